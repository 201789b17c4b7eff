package cmd

import (
	"context"
	"fmt"
	"strings"

	"hallbook/schedule"
	"hallbook/storage"

	"github.com/spf13/cobra"
)

type AvailabilityOutput struct {
	VenueID    string               `json:"venue_id"`
	VenueName  string               `json:"venue_name"`
	Date       string               `json:"date"`
	Duration   int                  `json:"duration"`
	Teams      int                  `json:"teams"`
	Candidates []schedule.Candidate `json:"candidates"`
}

func availabilityCmd() *cobra.Command {
	var venueKey string
	var date string
	var duration int
	var teams int

	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Find start times with room for a number of teams",
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
				candidates, err := s.engine.Optimizer.FindAvailableSlots(ctx, venue, target, duration, teams)
				if err != nil {
					return err
				}
				output := AvailabilityOutput{
					VenueID:    venue.ID,
					VenueName:  venue.Name,
					Date:       storage.FormatDate(target),
					Duration:   duration,
					Teams:      teams,
					Candidates: candidates,
				}
				if outputJSON {
					return writeJSON(output)
				}
				return renderAvailability(output)
			})
		},
	}

	cmd.Flags().StringVar(&venueKey, "venue", "", "Venue ID or name")
	cmd.Flags().StringVar(&date, "date", "today", "Date (YYYY-MM-DD, today, tomorrow)")
	cmd.Flags().IntVar(&duration, "duration", 90, "Duration in minutes")
	cmd.Flags().IntVar(&teams, "teams", 1, "Teams that need to fit")
	return cmd
}

func renderAvailability(output AvailabilityOutput) error {
	fmt.Printf("%s (%s)\nDate: %s\n", output.VenueName, output.VenueID, output.Date)
	if len(output.Candidates) == 0 {
		fmt.Println("No available slots.")
		return nil
	}

	if outputCompact {
		times := make([]string, 0, len(output.Candidates))
		for _, c := range output.Candidates {
			times = append(times, c.StartTime.String())
		}
		fmt.Println(strings.Join(times, " "))
		return nil
	}

	writer := newTable("TIME\tROOM\tALREADY THERE")
	for _, c := range output.Candidates {
		fmt.Fprintf(writer, "%s-%s\t%d\t%s\n", c.StartTime, c.EndTime, c.RemainingCapacity, dash(strings.Join(c.ExistingTeams, ", ")))
	}
	return writer.Flush()
}

func gridCmd() *cobra.Command {
	var venueKey string
	var date string
	var increment int

	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Show the daily time grid of a venue",
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
				if increment <= 0 && venue.BookingIncrement <= 0 {
					increment = cfg.DefaultIncrement
				}
				grid := s.engine.Optimizer.GenerateDailyTimeGrid(venue, target, increment)
				if outputJSON {
					return writeJSON(grid)
				}
				if len(grid) == 0 {
					fmt.Printf("%s is closed on %s.\n", venue.Name, storage.FormatDate(target))
					return nil
				}
				labels := make([]string, 0, len(grid))
				for _, w := range grid {
					labels = append(labels, w.Start.String())
				}
				fmt.Println(strings.Join(labels, " "))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&venueKey, "venue", "", "Venue ID or name")
	cmd.Flags().StringVar(&date, "date", "today", "Date (YYYY-MM-DD, today, tomorrow)")
	cmd.Flags().IntVar(&increment, "increment", 0, "Bucket size in minutes (default: the venue increment)")
	return cmd
}
