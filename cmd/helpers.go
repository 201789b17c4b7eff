package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"hallbook/storage"
)

func writeJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func newTable(header string) *tabwriter.Writer {
	writer := tabwriter.NewWriter(os.Stdout, 2, 2, 2, ' ', 0)
	if !outputCompact && header != "" {
		fmt.Fprintln(writer, header)
	}
	return writer
}

// parseDateInput accepts YYYY-MM-DD, "today" and "tomorrow" and returns the
// civil date at midnight UTC.
func parseDateInput(input string) (time.Time, error) {
	if input == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	now := time.Now()
	switch strings.ToLower(input) {
	case "today":
		return storage.DateOf(now), nil
	case "tomorrow":
		return storage.DateOf(now.AddDate(0, 0, 1)), nil
	}
	return storage.ParseDate(input)
}

// parseDateRange defaults a missing end to the start date.
func parseDateRange(from, to string) (time.Time, time.Time, error) {
	start, err := parseDateInput(from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to == "" {
		return start, start, nil
	}
	end, err := parseDateInput(to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("--from must be on or before --to")
	}
	return start, end, nil
}

func parseTimeRange(input string) (storage.Window, error) {
	parts := strings.Split(input, "-")
	if len(parts) != 2 {
		return storage.Window{}, fmt.Errorf("invalid time range %q (expected HH:MM-HH:MM)", input)
	}
	start, err := storage.ParseClock(parts[0])
	if err != nil {
		return storage.Window{}, err
	}
	end, err := storage.ParseClock(parts[1])
	if err != nil {
		return storage.Window{}, err
	}
	if end <= start {
		return storage.Window{}, fmt.Errorf("time range end must be after start")
	}
	return storage.Window{Start: start, End: end}, nil
}

// optionalTimeRange returns the zero window for an empty flag.
func optionalTimeRange(input string) (storage.Window, error) {
	if input == "" {
		return storage.Window{}, nil
	}
	return parseTimeRange(input)
}

func requireActor() (storage.Actor, error) {
	actor, err := storage.LoadActor()
	if err != nil {
		return storage.Actor{}, err
	}
	if actor == nil || actor.UserID == "" {
		return storage.Actor{}, fmt.Errorf("no acting user. Run 'hall actor set' first")
	}
	return *actor, nil
}

// lookupVenue resolves a venue by id or name.
func lookupVenue(ctx context.Context, q *storage.Queries, key string) (storage.Venue, error) {
	venue, err := q.GetVenue(ctx, key)
	if err == nil {
		return venue, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return storage.Venue{}, err
	}
	venues, err := q.ListVenues(ctx, "", false)
	if err != nil {
		return storage.Venue{}, err
	}
	venue, ok := storage.FindVenue(venues, key)
	if !ok {
		return storage.Venue{}, fmt.Errorf("%w: venue %q", storage.ErrNotFound, key)
	}
	return venue, nil
}

func clubOrDefault(club string) (string, error) {
	if club == "" {
		club = cfg.DefaultClub
	}
	if club == "" {
		return "", fmt.Errorf("--club is required (or set default_club in config)")
	}
	return club, nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func hoursLabel(venue storage.Venue, day time.Weekday) string {
	open, ok := venue.OpenWindow(day)
	if !ok {
		return "closed"
	}
	return open.String()
}
