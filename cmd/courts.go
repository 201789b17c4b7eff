package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"hallbook/storage"

	"github.com/spf13/cobra"
)

func courtsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "courts",
		Short: "Court level schedules and planning",
	}

	cmd.AddCommand(courtsScheduleCmd())
	cmd.AddCommand(courtsPlanCmd())
	cmd.AddCommand(courtsCheckCmd())
	return cmd
}

func courtsScheduleCmd() *cobra.Command {
	var venueKey string
	var from string
	var to string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show bookings per court and day",
		RunE: func(cmd *cobra.Command, args []string) error {
			if venueKey == "" {
				return fmt.Errorf("--venue is required")
			}
			start, end, err := parseDateRange(from, to)
			if err != nil {
				return err
			}

			return withSession(func(ctx context.Context, s *session) error {
				venue, err := lookupVenue(ctx, s.db.Queries, venueKey)
				if err != nil {
					return err
				}
				days, err := s.engine.Optimizer.GetCourtSchedule(ctx, venue, start, end)
				if err != nil {
					return err
				}
				if outputJSON {
					return writeJSON(days)
				}

				dates := make([]string, 0, len(days))
				for date := range days {
					dates = append(dates, date)
				}
				sort.Strings(dates)
				writer := newTable("DATE\tCOURT\tTIME\tTEAM\tSTATUS")
				for _, date := range dates {
					for _, entry := range days[date] {
						if len(entry.Bookings) == 0 {
							fmt.Fprintf(writer, "%s\t%s\t-\t-\tfree\n", date, entry.Court.Label)
							continue
						}
						for _, b := range entry.Bookings {
							fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n", date, entry.Court.Label, b.Window(), b.TeamID, b.Status)
						}
					}
				}
				return writer.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&venueKey, "venue", "", "Venue ID or name")
	cmd.Flags().StringVar(&from, "from", "today", "Start date")
	cmd.Flags().StringVar(&to, "to", "", "End date (default: start date)")
	return cmd
}

func courtsPlanCmd() *cobra.Command {
	var venueKey string
	var date string
	var increment int

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Place the day's time slots onto courts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if venueKey == "" {
				return fmt.Errorf("--venue is required")
			}
			target, err := parseDateInput(date)
			if err != nil {
				return err
			}

			return withSession(func(ctx context.Context, s *session) error {
				venue, err := lookupVenue(ctx, s.db.Queries, venueKey)
				if err != nil {
					return err
				}
				plan, err := s.engine.Optimizer.GetOptimalCourtAssignments(ctx, venue, target, increment)
				if err != nil {
					return err
				}
				if outputJSON {
					return writeJSON(plan)
				}
				if len(plan) == 0 {
					fmt.Println("No time slots on this day.")
					return nil
				}
				writer := newTable("SLOT\tTIME\tTEAM\tCOURT\tROWS")
				for _, a := range plan {
					court := a.CourtID
					if !a.Assigned {
						court = "none (blocked by " + strings.Join(a.BlockedBy, ", ") + ")"
					}
					fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%d+%d\n", a.TemplateID, a.Window, dash(a.TeamID), court, a.StartRow, a.RowSpan)
				}
				return writer.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&venueKey, "venue", "", "Venue ID or name")
	cmd.Flags().StringVar(&date, "date", "today", "Date (YYYY-MM-DD, today, tomorrow)")
	cmd.Flags().IntVar(&increment, "increment", 0, "Grid row size in minutes (default: the venue increment)")
	return cmd
}

func courtsCheckCmd() *cobra.Command {
	var venueKey string
	var date string
	var start string
	var duration int
	var courts []string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether courts are free for a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			if venueKey == "" || start == "" || len(courts) == 0 {
				return fmt.Errorf("--venue, --start, and --court are required")
			}
			target, err := parseDateInput(date)
			if err != nil {
				return err
			}
			at, err := storage.ParseClock(start)
			if err != nil {
				return err
			}

			return withSession(func(ctx context.Context, s *session) error {
				venue, err := lookupVenue(ctx, s.db.Queries, venueKey)
				if err != nil {
					return err
				}
				verrs, err := s.engine.Conflicts.ValidateCourtSelection(ctx, venue, courts, target, at, duration)
				if err != nil {
					return err
				}
				if err := verrs.Err(); err != nil {
					return err
				}
				conflicts, err := s.engine.Optimizer.CheckCourtWindow(ctx, venue, courts, target, at, duration)
				if err != nil {
					return err
				}
				return renderConflicts(conflicts)
			})
		},
	}

	cmd.Flags().StringVar(&venueKey, "venue", "", "Venue ID or name")
	cmd.Flags().StringVar(&date, "date", "today", "Date (YYYY-MM-DD, today, tomorrow)")
	cmd.Flags().StringVar(&start, "start", "", "Start time (HH:MM)")
	cmd.Flags().IntVar(&duration, "duration", 90, "Duration in minutes")
	cmd.Flags().StringSliceVar(&courts, "court", nil, "Court IDs")
	return cmd
}
