package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hallbook/schedule"
	"hallbook/storage"

	"github.com/spf13/cobra"
)

func segmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "segments",
		Short: "Share a time slot between teams by sub-ranges",
	}

	cmd.AddCommand(segmentsAssignCmd())
	cmd.AddCommand(segmentsListCmd())
	cmd.AddCommand(segmentsWhoCmd())
	cmd.AddCommand(segmentsGridCmd())
	cmd.AddCommand(segmentsRemoveCmd())
	cmd.AddCommand(segmentsDeactivateCmd())
	return cmd
}

func segmentsAssignCmd() *cobra.Command {
	var day string
	var timeRange string

	cmd := &cobra.Command{
		Use:   "assign <slot-id> <team-id>",
		Short: "Assign part of a time slot to a team",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if timeRange == "" {
				return fmt.Errorf("--time is required")
			}
			w, err := parseTimeRange(timeRange)
			if err != nil {
				return err
			}
			in := schedule.SegmentInput{
				TemplateID: args[0],
				TeamID:     args[1],
				StartTime:  w.Start,
				EndTime:    w.End,
			}
			if day != "" {
				weekday, err := storage.ParseWeekday(day)
				if err != nil {
					return err
				}
				in.DayOfWeek = &weekday
			}
			actor, err := requireActor()
			if err != nil {
				return err
			}

			return withSession(func(ctx context.Context, s *session) error {
				seg, err := s.engine.Assignments.AssignSegment(ctx, actor, in)
				if err != nil {
					return err
				}
				if outputJSON {
					return writeJSON(seg)
				}
				fmt.Printf("Assigned %s %s of slot %s to team %s (%s).\n",
					seg.DayOfWeek, seg.Window(), seg.TemplateID, seg.TeamID, seg.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&day, "day", "", "Day of week (default: the slot's day)")
	cmd.Flags().StringVar(&timeRange, "time", "", "Time range (HH:MM-HH:MM)")
	return cmd
}

func segmentsListCmd() *cobra.Command {
	var day string

	cmd := &cobra.Command{
		Use:   "list <slot-id>",
		Short: "List active team segments of a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(ctx context.Context, s *session) error {
				weekday, err := slotDay(ctx, s, args[0], day)
				if err != nil {
					return err
				}
				views, err := s.engine.Assignments.GetTeamAssignmentsForDay(ctx, args[0], weekday)
				if err != nil {
					return err
				}
				return renderAssignments(views)
			})
		},
	}

	cmd.Flags().StringVar(&day, "day", "", "Day of week (default: the slot's day)")
	return cmd
}

func segmentsWhoCmd() *cobra.Command {
	var day string
	var timeRange string

	cmd := &cobra.Command{
		Use:   "who <slot-id>",
		Short: "Show teams holding a sub-range of a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if timeRange == "" {
				return fmt.Errorf("--time is required")
			}
			w, err := parseTimeRange(timeRange)
			if err != nil {
				return err
			}
			return withSession(func(ctx context.Context, s *session) error {
				weekday, err := slotDay(ctx, s, args[0], day)
				if err != nil {
					return err
				}
				views, err := s.engine.Assignments.GetTeamsAssignedToSegment(ctx, args[0], weekday, w)
				if err != nil {
					return err
				}
				return renderAssignments(views)
			})
		},
	}

	cmd.Flags().StringVar(&day, "day", "", "Day of week (default: the slot's day)")
	cmd.Flags().StringVar(&timeRange, "time", "", "Time range (HH:MM-HH:MM)")
	return cmd
}

func segmentsGridCmd() *cobra.Command {
	var day string
	var increment int

	cmd := &cobra.Command{
		Use:   "grid <slot-id>",
		Short: "Show a slot cut into increments with their holders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(ctx context.Context, s *session) error {
				weekday, err := slotDay(ctx, s, args[0], day)
				if err != nil {
					return err
				}
				buckets, err := s.engine.Assignments.GetAvailableSegmentsForDay(ctx, args[0], weekday, increment)
				if err != nil {
					return err
				}
				if outputJSON {
					return writeJSON(buckets)
				}
				if outputCompact {
					free := []string{}
					for _, b := range buckets {
						if b.IsAvailable {
							free = append(free, b.StartTime.String())
						}
					}
					fmt.Printf("free: %s\n", strings.Join(free, " "))
					return nil
				}
				writer := newTable("TIME\tFREE\tTEAMS")
				for _, b := range buckets {
					names := make([]string, 0, len(b.AssignedTeams))
					for _, team := range b.AssignedTeams {
						names = append(names, team.Name)
					}
					fmt.Fprintf(writer, "%s-%s\t%s\t%s\n", b.StartTime, b.EndTime, yesNo(b.IsAvailable), dash(strings.Join(names, ", ")))
				}
				return writer.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&day, "day", "", "Day of week (default: the slot's day)")
	cmd.Flags().IntVar(&increment, "increment", 0, "Bucket size in minutes (default: the venue increment)")
	return cmd
}

func segmentsRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <slot-id> <segment-id>",
		Short: "Delete a team segment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(ctx context.Context, s *session) error {
				removed, err := s.engine.Assignments.RemoveTeamAssignment(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if outputJSON {
					return writeJSON(map[string]bool{"removed": removed})
				}
				if !removed {
					fmt.Printf("Segment %s not found.\n", args[1])
					return nil
				}
				fmt.Printf("Removed segment %s.\n", args[1])
				return nil
			})
		},
	}

	return cmd
}

func segmentsDeactivateCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "deactivate <slot-id> <segment-id>",
		Short: "End a team segment but keep its history",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := requireActor()
			if err != nil {
				return err
			}
			return withSession(func(ctx context.Context, s *session) error {
				done, err := s.engine.Assignments.DeactivateTeamAssignment(ctx, args[0], args[1], actor, reason)
				if err != nil {
					return err
				}
				if outputJSON {
					return writeJSON(map[string]bool{"deactivated": done})
				}
				if !done {
					fmt.Printf("No active segment %s.\n", args[1])
					return nil
				}
				fmt.Printf("Deactivated segment %s.\n", args[1])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the audit log")
	return cmd
}

// slotDay parses day, falling back to the weekday of the slot.
func slotDay(ctx context.Context, s *session, templateID, day string) (time.Weekday, error) {
	if day != "" {
		return storage.ParseWeekday(day)
	}
	t, err := s.db.GetTemplate(ctx, templateID)
	if err != nil {
		return 0, err
	}
	return t.DayOfWeek, nil
}

func renderAssignments(views []schedule.AssignmentView) error {
	if outputJSON {
		return writeJSON(views)
	}
	if len(views) == 0 {
		fmt.Println("No segments.")
		return nil
	}
	writer := newTable("ID\tTEAM\tDAY\tTIME\tMINUTES")
	for _, v := range views {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s-%s\t%d\n", v.ID, v.TeamName, v.DayOfWeek, v.StartTime, v.EndTime, v.DurationMinutes)
	}
	return writer.Flush()
}
