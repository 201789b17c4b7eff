package cmd

import (
	"context"
	"fmt"
	"strings"

	"hallbook/schedule"
	"hallbook/storage"

	"github.com/spf13/cobra"
)

func bookingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookings",
		Short: "Reserve and manage dated team bookings",
	}

	cmd.AddCommand(bookingsReserveCmd())
	cmd.AddCommand(bookingsListCmd())
	cmd.AddCommand(bookingTransitionCmd("confirm", "Confirm a reservation", (*schedule.BookingService).Confirm))
	cmd.AddCommand(bookingTransitionCmd("attend", "Record attendance for a booking", (*schedule.BookingService).RecordAttendance))
	cmd.AddCommand(bookingTransitionCmd("release", "Release a booking so other teams can claim it", (*schedule.BookingService).Release))
	cmd.AddCommand(bookingTransitionCmd("cancel", "Cancel a booking", (*schedule.BookingService).Cancel))
	cmd.AddCommand(bookingsClaimCmd())
	cmd.AddCommand(bookingsAvailableCmd())
	cmd.AddCommand(bookingsRemoveCmd())
	return cmd
}

func bookingsReserveCmd() *cobra.Command {
	var date string
	var timeRange string
	var court string
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "reserve <slot-id> <team-id>",
		Short: "Reserve a time slot (or part of it) for a team on a date",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseDateInput(date)
			if err != nil {
				return err
			}
			w, err := optionalTimeRange(timeRange)
			if err != nil {
				return err
			}
			actor, err := requireActor()
			if err != nil {
				return err
			}

			return withSession(func(ctx context.Context, s *session) error {
				b, err := s.engine.Bookings.Reserve(ctx, actor, schedule.ReserveInput{
					TemplateID: args[0],
					TeamID:     args[1],
					Date:       target,
					StartTime:  w.Start,
					EndTime:    w.End,
					CourtID:    court,
					Confirmed:  confirmed,
				})
				if err != nil {
					return err
				}
				if outputJSON {
					return writeJSON(b)
				}
				fmt.Printf("Reserved %s %s for team %s (%s, %s).\n", storage.FormatDate(b.Date), b.Window(), b.TeamID, b.ID, b.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Date (YYYY-MM-DD, today, tomorrow)")
	cmd.Flags().StringVar(&timeRange, "time", "", "Time range inside the slot (default: the whole slot)")
	cmd.Flags().StringVar(&court, "court", "", "Court ID")
	cmd.Flags().BoolVar(&confirmed, "confirmed", false, "Create the booking already confirmed")
	return cmd
}

func bookingsListCmd() *cobra.Command {
	var venueKey string
	var team string
	var from string
	var to string
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List bookings",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := storage.BookingFilter{TeamID: team}
			if from != "" {
				date, err := parseDateInput(from)
				if err != nil {
					return err
				}
				filter.From = &date
			}
			if to != "" {
				date, err := parseDateInput(to)
				if err != nil {
					return err
				}
				filter.To = &date
			}
			if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
				return fmt.Errorf("--from must be on or before --to")
			}
			for _, status := range statuses {
				filter.Statuses = append(filter.Statuses, storage.BookingStatus(strings.ToLower(status)))
			}

			return withSession(func(ctx context.Context, s *session) error {
				if venueKey != "" {
					venue, err := lookupVenue(ctx, s.db.Queries, venueKey)
					if err != nil {
						return err
					}
					filter.VenueID = venue.ID
				}
				bookings, err := s.engine.Bookings.ListBookings(ctx, filter)
				if err != nil {
					return err
				}
				return renderBookings(bookings)
			})
		},
	}

	cmd.Flags().StringVar(&venueKey, "venue", "", "Venue ID or name")
	cmd.Flags().StringVar(&team, "team", "", "Team ID")
	cmd.Flags().StringVar(&from, "from", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "End date (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only these statuses")
	return cmd
}

type bookingAction func(s *schedule.BookingService, ctx context.Context, actor storage.Actor, id string) (storage.Booking, error)

func bookingTransitionCmd(use, short string, action bookingAction) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <booking-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := requireActor()
			if err != nil {
				return err
			}
			return withSession(func(ctx context.Context, s *session) error {
				b, err := action(s.engine.Bookings, ctx, actor, args[0])
				if err != nil {
					return err
				}
				if outputJSON {
					return writeJSON(b)
				}
				fmt.Printf("Booking %s is now %s.\n", b.ID, b.Status)
				return nil
			})
		},
	}

	return cmd
}

func bookingsClaimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claim <booking-id> <team-id>",
		Short: "Take over a released booking for another team",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := requireActor()
			if err != nil {
				return err
			}
			return withSession(func(ctx context.Context, s *session) error {
				b, err := s.engine.Bookings.Claim(ctx, actor, args[0], args[1])
				if err != nil {
					return err
				}
				if outputJSON {
					return writeJSON(b)
				}
				fmt.Printf("Team %s claimed %s %s (%s).\n", b.TeamID, storage.FormatDate(b.Date), b.Window(), b.ID)
				return nil
			})
		},
	}

	return cmd
}

func bookingsAvailableCmd() *cobra.Command {
	var from string
	var to string

	cmd := &cobra.Command{
		Use:   "available <team-id>",
		Short: "List released bookings a team could claim",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := parseDateRange(from, to)
			if err != nil {
				return err
			}
			return withSession(func(ctx context.Context, s *session) error {
				bookings, err := s.engine.Bookings.GetAvailableTimeSlotsForTeam(ctx, args[0], start, end)
				if err != nil {
					return err
				}
				return renderBookings(bookings)
			})
		},
	}

	cmd.Flags().StringVar(&from, "from", "today", "Start date")
	cmd.Flags().StringVar(&to, "to", "", "End date (default: start date)")
	return cmd
}

func bookingsRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <booking-id>",
		Short: "Delete a booking record (club admins only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			actor, err := requireActor()
			if err != nil {
				return err
			}
			return withSession(func(ctx context.Context, s *session) error {
				removed, err := s.engine.Bookings.RemoveBooking(ctx, actor, id)
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("booking %q not found", id)
				}
				fmt.Printf("Removed booking %s.\n", id)
				return nil
			})
		},
	}

	return cmd
}

func renderBookings(bookings []storage.Booking) error {
	if outputJSON {
		return writeJSON(bookings)
	}
	if len(bookings) == 0 {
		fmt.Println("No bookings found.")
		return nil
	}
	writer := newTable("ID\tDATE\tTIME\tVENUE\tCOURT\tTEAM\tSTATUS")
	for _, b := range bookings {
		team := b.TeamID
		if b.OriginalTeamID != "" && b.OriginalTeamID != b.TeamID {
			team += " (from " + b.OriginalTeamID + ")"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			b.ID, storage.FormatDate(b.Date), b.Window(), b.VenueID, dash(b.CourtID), team, b.Status)
	}
	return writer.Flush()
}
