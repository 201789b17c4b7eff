package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"hallbook/storage"

	"github.com/spf13/cobra"
)

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Club and team reports",
	}

	cmd.AddCommand(statsWeekCmd())
	cmd.AddCommand(statsClubCmd())
	cmd.AddCommand(statsTeamCmd())
	return cmd
}

func statsWeekCmd() *cobra.Command {
	var club string
	var from string

	cmd := &cobra.Command{
		Use:   "week",
		Short: "Show the weekly plan of every venue of a club",
		RunE: func(cmd *cobra.Command, args []string) error {
			clubID, err := clubOrDefault(club)
			if err != nil {
				return err
			}
			start, err := parseDateInput(from)
			if err != nil {
				return err
			}

			return withSession(func(ctx context.Context, s *session) error {
				week, err := s.engine.Statistics.GetClubWeeklySchedule(ctx, clubID, start)
				if err != nil {
					return err
				}
				if outputJSON {
					return writeJSON(week)
				}
				if len(week) == 0 {
					fmt.Println("No venues found.")
					return nil
				}

				ids := make([]string, 0, len(week))
				for id := range week {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				writer := newTable("VENUE\tDATE\tDAY\tTIME\tTEAM\tSEGMENTS")
				for _, id := range ids {
					venueWeek := week[id]
					for offset := 0; offset < 7; offset++ {
						date := start.AddDate(0, 0, offset)
						for _, entry := range venueWeek.WeeklySchedule[strings.ToLower(date.Weekday().String())] {
							fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%d\n",
								venueWeek.Venue.Name, entry.Date, date.Weekday(), entry.Template.Window(), dash(entry.TeamName), len(entry.Segments))
						}
					}
				}
				return writer.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&club, "club", "", "Club ID (default from config)")
	cmd.Flags().StringVar(&from, "from", "today", "First day of the week")
	return cmd
}

func statsClubCmd() *cobra.Command {
	var club string
	var from string
	var to string

	cmd := &cobra.Command{
		Use:   "club",
		Short: "Show hall utilization of a club",
		RunE: func(cmd *cobra.Command, args []string) error {
			clubID, err := clubOrDefault(club)
			if err != nil {
				return err
			}
			start, end, err := parseDateRange(from, to)
			if err != nil {
				return err
			}

			return withSession(func(ctx context.Context, s *session) error {
				report, err := s.engine.Statistics.GetClubUtilizationStats(ctx, clubID, start, end)
				if err != nil {
					return err
				}
				if outputJSON {
					return writeJSON(report)
				}
				fmt.Printf("Halls: %d\nBookings: %d\nAverage utilization: %.2f%%\n",
					report.Overview.TotalHalls, report.Overview.TotalBookings, report.Overview.AverageUtilization)
				if len(report.Venues) == 0 {
					return nil
				}
				writer := newTable("VENUE\tBOOKINGS\tOPEN\tBOOKED\tUTILIZATION")
				for _, v := range report.Venues {
					fmt.Fprintf(writer, "%s\t%d\t%dm\t%dm\t%.2f%%\n", v.Name, v.Bookings, v.OpenMinutes, v.BookedMinutes, v.Utilization)
				}
				return writer.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&club, "club", "", "Club ID (default from config)")
	cmd.Flags().StringVar(&from, "from", "today", "Start date")
	cmd.Flags().StringVar(&to, "to", "", "End date (default: start date)")
	return cmd
}

func statsTeamCmd() *cobra.Command {
	var from string
	var to string

	cmd := &cobra.Command{
		Use:   "team <team-id>",
		Short: "Show booking stats of a team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := parseDateRange(from, to)
			if err != nil {
				return err
			}

			return withSession(func(ctx context.Context, s *session) error {
				stats, err := s.engine.Statistics.GetTeamBookingStats(ctx, args[0], start, end)
				if err != nil {
					return err
				}
				if outputJSON {
					return writeJSON(stats)
				}
				fmt.Printf("Total bookings: %d\n", stats.TotalBookings)
				fmt.Printf("Releases made: %d\n", stats.ReleasesMade)
				fmt.Printf("Utilization: %.2f%%\n", stats.AverageUtilization)
				for _, status := range storage.AllBookingStatuses {
					if n := stats.BookingsByStatus[status]; n > 0 {
						fmt.Printf("  %s: %d\n", status, n)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&from, "from", "today", "Start date")
	cmd.Flags().StringVar(&to, "to", "", "End date (default: start date)")
	return cmd
}
