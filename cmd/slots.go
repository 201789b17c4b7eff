package cmd

import (
	"context"
	"fmt"
	"time"

	"hallbook/schedule"
	"hallbook/storage"

	"github.com/spf13/cobra"
)

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Manage recurring weekly time slots",
	}

	cmd.AddCommand(slotsAddCmd())
	cmd.AddCommand(slotsListCmd())
	cmd.AddCommand(slotsConflictsCmd())
	cmd.AddCommand(slotsAssignCmd())
	cmd.AddCommand(slotsUnassignCmd())
	return cmd
}

func slotsAddCmd() *cobra.Command {
	var venueKey string
	var day string
	var timeRange string
	var from string
	var until string
	var custom bool

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a weekly time slot to a venue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if venueKey == "" || day == "" || timeRange == "" {
				return fmt.Errorf("--venue, --day, and --time are required")
			}
			weekday, err := storage.ParseWeekday(day)
			if err != nil {
				return err
			}
			w, err := parseTimeRange(timeRange)
			if err != nil {
				return err
			}
			in := schedule.TimeSlotInput{
				DayOfWeek:       weekday,
				StartTime:       w.Start,
				EndTime:         w.End,
				UsesCustomTimes: custom,
			}
			if from != "" {
				if in.ValidFrom, err = parseDateInput(from); err != nil {
					return err
				}
			}
			if until != "" {
				date, err := parseDateInput(until)
				if err != nil {
					return err
				}
				in.ValidUntil = &date
			}
			actor, err := requireActor()
			if err != nil {
				return err
			}

			return withSession(func(ctx context.Context, s *session) error {
				venue, err := lookupVenue(ctx, s.db.Queries, venueKey)
				if err != nil {
					return err
				}
				t, err := s.engine.Optimizer.AddTimeSlot(ctx, actor, venue.ID, in)
				if err != nil {
					return err
				}
				if outputJSON {
					return writeJSON(t)
				}
				fmt.Printf("Added slot %s: %s %s at %s.\n", t.ID, t.DayOfWeek, t.Window(), venue.Name)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&venueKey, "venue", "", "Venue ID or name")
	cmd.Flags().StringVar(&day, "day", "", "Day of week (monday, tue, 1, ...)")
	cmd.Flags().StringVar(&timeRange, "time", "", "Time range (HH:MM-HH:MM)")
	cmd.Flags().StringVar(&from, "from", "", "First valid date (default today)")
	cmd.Flags().StringVar(&until, "until", "", "Last valid date")
	cmd.Flags().BoolVar(&custom, "custom", false, "Mark the slot as using custom times")
	return cmd
}

func slotsListCmd() *cobra.Command {
	var venueKey string
	var day string
	var team string
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List time slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := storage.TemplateFilter{TeamID: team, ActiveOnly: !all}
			if day != "" {
				weekday, err := storage.ParseWeekday(day)
				if err != nil {
					return err
				}
				filter.Day = &weekday
			}

			return withSession(func(ctx context.Context, s *session) error {
				if venueKey != "" {
					venue, err := lookupVenue(ctx, s.db.Queries, venueKey)
					if err != nil {
						return err
					}
					filter.VenueID = venue.ID
				}
				templates, err := s.db.ListTemplates(ctx, filter)
				if err != nil {
					return err
				}
				if outputJSON {
					return writeJSON(templates)
				}
				if len(templates) == 0 {
					fmt.Println("No time slots found.")
					return nil
				}
				writer := newTable("ID\tVENUE\tDAY\tTIME\tTEAM\tSTATUS\tVALID")
				for _, t := range templates {
					valid := storage.FormatDate(t.ValidFrom) + ".."
					if t.ValidUntil != nil {
						valid += storage.FormatDate(*t.ValidUntil)
					}
					fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						t.ID, t.VenueID, t.DayOfWeek, t.Window(), dash(t.TeamID), t.Status, valid)
				}
				return writer.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&venueKey, "venue", "", "Venue ID or name")
	cmd.Flags().StringVar(&day, "day", "", "Day of week")
	cmd.Flags().StringVar(&team, "team", "", "Only slots owned by this team")
	cmd.Flags().BoolVar(&all, "all", false, "Include inactive slots")
	return cmd
}

func slotsConflictsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts <slot-id>",
		Short: "List active slots that overlap a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(ctx context.Context, s *session) error {
				t, err := s.db.GetTemplate(ctx, args[0])
				if err != nil {
					return err
				}
				conflicts, err := s.engine.Conflicts.GetTimeSlotConflicts(ctx, t)
				if err != nil {
					return err
				}
				return renderConflicts(conflicts)
			})
		},
	}

	return cmd
}

func slotsAssignCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "assign <slot-id> <team-id>",
		Short: "Give a whole time slot to a team",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := requireActor()
			if err != nil {
				return err
			}
			return withSession(func(ctx context.Context, s *session) error {
				if _, err := s.engine.Optimizer.AssignTimeSlotToTeam(ctx, args[0], args[1], actor, reason); err != nil {
					return err
				}
				if outputJSON {
					return writeJSON(map[string]string{"template_id": args[0], "team_id": args[1]})
				}
				fmt.Printf("Assigned slot %s to team %s.\n", args[0], args[1])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the audit log")
	return cmd
}

func slotsUnassignCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "unassign <slot-id>",
		Short: "Take a time slot away from its team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := requireActor()
			if err != nil {
				return err
			}
			return withSession(func(ctx context.Context, s *session) error {
				changed, err := s.engine.Assignments.UnassignFromTeam(ctx, args[0], actor, reason)
				if err != nil {
					return err
				}
				if outputJSON {
					return writeJSON(map[string]bool{"unassigned": changed})
				}
				if !changed {
					fmt.Printf("Slot %s has no team.\n", args[0])
					return nil
				}
				fmt.Printf("Unassigned slot %s.\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the audit log")
	return cmd
}

func renderConflicts(conflicts []schedule.Conflict) error {
	if outputJSON {
		return writeJSON(conflicts)
	}
	if len(conflicts) == 0 {
		fmt.Println("No conflicts.")
		return nil
	}
	writer := newTable("TYPE\tWITH\tTEAM\tCOURT\tWINDOW")
	for _, c := range conflicts {
		with := c.OtherTemplateID + c.OtherBookingID + c.OtherSegmentID
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n", c.Type, dash(with), dash(c.TeamID), dash(c.CourtID), c.Window)
	}
	return writer.Flush()
}

var weekOrder = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday}
