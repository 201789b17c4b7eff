package cmd

import (
	"context"
	"fmt"

	"hallbook/storage"

	"github.com/spf13/cobra"
)

func venuesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "venues",
		Short: "Manage venues, courts and teams",
	}

	cmd.AddCommand(venuesImportCmd())
	cmd.AddCommand(venuesListCmd())
	cmd.AddCommand(venuesShowCmd())
	return cmd
}

func venuesImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import venues, courts and teams from a facility JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := storage.LoadFacilityFile(args[0])
			if err != nil {
				return err
			}
			return withSession(func(ctx context.Context, s *session) error {
				if err := s.db.ImportFacility(ctx, file); err != nil {
					return err
				}
				summary := map[string]int{
					"venues": len(file.Venues),
					"courts": len(file.Courts),
					"teams":  len(file.Teams),
				}
				if outputJSON {
					return writeJSON(summary)
				}
				fmt.Printf("Imported %d venues, %d courts and %d teams.\n", len(file.Venues), len(file.Courts), len(file.Teams))
				return nil
			})
		},
	}

	return cmd
}

func venuesListCmd() *cobra.Command {
	var club string
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List venues",
		RunE: func(cmd *cobra.Command, args []string) error {
			if club == "" {
				club = cfg.DefaultClub
			}
			return withSession(func(ctx context.Context, s *session) error {
				venues, err := s.db.ListVenues(ctx, club, !all)
				if err != nil {
					return err
				}
				if outputJSON {
					return writeJSON(venues)
				}
				if len(venues) == 0 {
					fmt.Println("No venues found.")
					return nil
				}

				writer := newTable("ID\tNAME\tCLUB\tCOURTS\tPARALLEL\tINCREMENT")
				for _, venue := range venues {
					parallel := yesNo(venue.SupportsParallel)
					if venue.SupportsParallel {
						parallel = fmt.Sprintf("up to %d", venue.ParallelCapacity())
					}
					fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%s\t%dm\n",
						venue.ID, venue.Name, venue.ClubID, venue.CourtCount, parallel, venue.BookingIncrement)
				}
				return writer.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&club, "club", "", "Club ID (default from config)")
	cmd.Flags().BoolVar(&all, "all", false, "Include inactive venues")
	return cmd
}

type venueDetail struct {
	Venue  storage.Venue   `json:"venue"`
	Courts []storage.Court `json:"courts"`
}

func venuesShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <venue>",
		Short: "Show opening hours and courts of a venue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(ctx context.Context, s *session) error {
				venue, err := lookupVenue(ctx, s.db.Queries, args[0])
				if err != nil {
					return err
				}
				courts, err := s.db.ListCourts(ctx, venue.ID, false)
				if err != nil {
					return err
				}
				if outputJSON {
					return writeJSON(venueDetail{Venue: venue, Courts: courts})
				}

				fmt.Printf("%s (%s)\nClub: %s\nTimezone: %s\nParallel teams: %d\n",
					venue.Name, venue.ID, venue.ClubID, venue.TimeZone, venue.ParallelCapacity())
				writer := newTable("DAY\tHOURS")
				for _, day := range weekOrder {
					fmt.Fprintf(writer, "%s\t%s\n", day, hoursLabel(venue, day))
				}
				if err := writer.Flush(); err != nil {
					return err
				}
				if len(courts) == 0 {
					fmt.Println("No courts.")
					return nil
				}
				writer = newTable("COURT\tLABEL\tACTIVE")
				for _, court := range courts {
					fmt.Fprintf(writer, "%s\t%s\t%s\n", court.ID, court.Label, yesNo(court.Active))
				}
				return writer.Flush()
			})
		},
	}

	return cmd
}
