package schedule

import (
	"context"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hallbook/storage"
)

// venueWorkers bounds the concurrent per-venue sums of a utilization report.
const venueWorkers = 4

// StatisticsService aggregates persisted state. Only ProcessPastBookings
// writes.
type StatisticsService struct {
	db          *storage.DB
	assignments *AssignmentService
	opts        *options
}

type WeeklyEntry struct {
	Date     string                   `json:"date"`
	Template storage.TimeSlotTemplate `json:"template"`
	TeamName string                   `json:"team_name,omitempty"`
	Segments []AssignmentView         `json:"segments"`
}

type VenueWeek struct {
	Venue          storage.Venue            `json:"venue"`
	WeeklySchedule map[string][]WeeklyEntry `json:"weekly_schedule"`
}

type UtilizationOverview struct {
	TotalHalls         int     `json:"total_halls"`
	TotalBookings      int     `json:"total_bookings"`
	AverageUtilization float64 `json:"average_utilization"`
}

type VenueUtilization struct {
	VenueID       string  `json:"venue_id"`
	Name          string  `json:"name"`
	Bookings      int     `json:"bookings"`
	OpenMinutes   int     `json:"open_minutes"`
	BookedMinutes int     `json:"booked_minutes"`
	Utilization   float64 `json:"utilization"`
}

type ClubUtilization struct {
	Overview UtilizationOverview `json:"overview"`
	Venues   []VenueUtilization  `json:"venues"`
}

type TeamStats struct {
	TeamID             string                        `json:"team_id"`
	TotalBookings      int                           `json:"total_bookings"`
	BookingsByStatus   map[storage.BookingStatus]int `json:"bookings_by_status"`
	ReleasesMade       int                           `json:"releases_made"`
	AverageUtilization float64                       `json:"average_utilization"`
}

type SweepResult struct {
	Completed int `json:"completed"`
	NoShow    int `json:"no_show"`
}

// bookedStatuses are the statuses whose minutes count as used.
var bookedStatuses = []storage.BookingStatus{
	storage.BookingReserved,
	storage.BookingConfirmed,
	storage.BookingCompleted,
}

func isBooked(status storage.BookingStatus) bool {
	for _, s := range bookedStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func percent(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return round2(float64(part) / float64(whole) * 100)
}

// GetClubWeeklySchedule returns, per active venue of the club, the templates
// valid on each day of the week starting at weekStart, keyed by lowercase
// weekday name.
func (s *StatisticsService) GetClubWeeklySchedule(ctx context.Context, clubID string, weekStart time.Time) (map[string]VenueWeek, error) {
	weekStart = storage.DateOf(weekStart)
	out := map[string]VenueWeek{}
	err := s.db.Snapshot(ctx, func(tx *storage.Tx) error {
		venues, err := tx.ListVenues(ctx, clubID, true)
		if err != nil {
			return err
		}
		for _, venue := range venues {
			templates, err := tx.ListTemplates(ctx, storage.TemplateFilter{VenueID: venue.ID, ActiveOnly: true})
			if err != nil {
				return err
			}
			teamIDs := make([]string, 0, len(templates))
			for _, t := range templates {
				teamIDs = append(teamIDs, t.TeamID)
			}
			names, err := tx.TeamNames(ctx, teamIDs)
			if err != nil {
				return err
			}

			week := VenueWeek{Venue: venue, WeeklySchedule: map[string][]WeeklyEntry{}}
			for offset := 0; offset < 7; offset++ {
				date := weekStart.AddDate(0, 0, offset)
				key := strings.ToLower(date.Weekday().String())
				entries := []WeeklyEntry{}
				for _, t := range templates {
					if t.DayOfWeek != date.Weekday() || !t.ValidOn(date) {
						continue
					}
					segments, err := s.assignments.segmentViews(ctx, tx.Queries, t.ID, t.DayOfWeek, nil)
					if err != nil {
						return err
					}
					entries = append(entries, WeeklyEntry{
						Date:     storage.FormatDate(date),
						Template: t,
						TeamName: names[t.TeamID],
						Segments: segments,
					})
				}
				week.WeeklySchedule[key] = entries
			}
			out[venue.ID] = week
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}

// GetClubUtilizationStats computes booked minutes over open minutes per active
// venue in [start, end] and averages them. A club without venues averages 0.
// Venues and bookings are read in one snapshot; the per-venue sums run
// concurrently over that data.
func (s *StatisticsService) GetClubUtilizationStats(ctx context.Context, clubID string, start, end time.Time) (ClubUtilization, error) {
	start, end = storage.DateOf(start), storage.DateOf(end)
	if end.Before(start) {
		return ClubUtilization{}, invalid("end_date", CodeInvalidRange, storage.FormatDate(end))
	}

	var venues []storage.Venue
	var bookings [][]storage.Booking
	err := s.db.Snapshot(ctx, func(tx *storage.Tx) error {
		var err error
		venues, err = tx.ListVenues(ctx, clubID, true)
		if err != nil {
			return err
		}
		bookings = make([][]storage.Booking, len(venues))
		for i, venue := range venues {
			bookings[i], err = tx.ListBookings(ctx, storage.BookingFilter{VenueID: venue.ID, From: &start, To: &end})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ClubUtilization{}, translate(err)
	}

	results := make([]VenueUtilization, len(venues))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(venueWorkers)
	for i, venue := range venues {
		i, venue := i, venue
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = venueUtilization(venue, bookings[i], start, end)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ClubUtilization{}, err
	}

	report := ClubUtilization{
		Overview: UtilizationOverview{TotalHalls: len(venues)},
		Venues:   results,
	}
	sum := 0.0
	for _, u := range results {
		report.Overview.TotalBookings += u.Bookings
		sum += u.Utilization
	}
	if len(results) > 0 {
		report.Overview.AverageUtilization = round2(sum / float64(len(results)))
	}
	return report, nil
}

func venueUtilization(venue storage.Venue, bookings []storage.Booking, start, end time.Time) VenueUtilization {
	u := VenueUtilization{VenueID: venue.ID, Name: venue.Name, Bookings: len(bookings)}
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if open, ok := venue.OpenWindow(day.Weekday()); ok {
			u.OpenMinutes += open.Duration()
		}
	}
	for _, b := range bookings {
		if isBooked(b.Status) {
			u.BookedMinutes += b.DurationMinutes()
		}
	}
	u.Utilization = percent(u.BookedMinutes, u.OpenMinutes)
	return u
}

// GetTeamBookingStats reports on every booking the team holds or originally
// held in [start, end].
func (s *StatisticsService) GetTeamBookingStats(ctx context.Context, teamID string, start, end time.Time) (TeamStats, error) {
	start, end = storage.DateOf(start), storage.DateOf(end)
	stats := TeamStats{TeamID: teamID, BookingsByStatus: map[storage.BookingStatus]int{}}
	err := s.db.Snapshot(ctx, func(tx *storage.Tx) error {
		held, err := tx.ListBookings(ctx, storage.BookingFilter{TeamID: teamID, From: &start, To: &end})
		if err != nil {
			return err
		}
		original, err := tx.ListBookings(ctx, storage.BookingFilter{OriginalTeamID: teamID, From: &start, To: &end})
		if err != nil {
			return err
		}
		seen := map[string]bool{}
		used, total := 0, 0
		for _, b := range append(held, original...) {
			if seen[b.ID] {
				continue
			}
			seen[b.ID] = true
			stats.TotalBookings++
			stats.BookingsByStatus[b.Status]++
			if b.Status == storage.BookingReleased && b.OriginalTeamID == teamID {
				stats.ReleasesMade++
			}
			if b.Status == storage.BookingCanceled {
				continue
			}
			total += b.DurationMinutes()
			if b.TeamID == teamID && isBooked(b.Status) {
				used += b.DurationMinutes()
			}
		}
		stats.AverageUtilization = percent(used, total)
		return nil
	})
	if err != nil {
		return TeamStats{}, translate(err)
	}
	return stats, nil
}

// ProcessPastBookings moves every reserved or confirmed booking whose end lies
// strictly before now (in the venue's time zone) to completed when attendance
// was recorded or the booking was confirmed, and to no_show otherwise.
// Terminal bookings are never touched, so a second run changes nothing.
func (s *StatisticsService) ProcessPastBookings(ctx context.Context, now time.Time) (SweepResult, error) {
	var result SweepResult
	var events []Event
	err := s.db.Atomically(ctx, func(tx *storage.Tx) error {
		result = SweepResult{}
		events = events[:0]
		// The latest civil date anywhere is at most one day ahead of UTC.
		horizon := storage.DateOf(now.UTC()).AddDate(0, 0, 1)
		due, err := tx.ListBookings(ctx, storage.BookingFilter{
			To:       &horizon,
			Statuses: []storage.BookingStatus{storage.BookingReserved, storage.BookingConfirmed},
		})
		if err != nil {
			return err
		}
		locations := map[string]*time.Location{}
		for _, b := range due {
			loc, ok := locations[b.VenueID]
			if !ok {
				venue, err := tx.GetVenue(ctx, b.VenueID)
				if err != nil {
					return err
				}
				loc = venue.Location()
				locations[b.VenueID] = loc
			}
			if !b.EndsAt(loc).Before(now) {
				continue
			}
			to := storage.BookingNoShow
			if b.AttendedAt != nil || b.Status == storage.BookingConfirmed {
				to = storage.BookingCompleted
			}
			ok, err := tx.TransitionBooking(ctx, b.ID, []storage.BookingStatus{storage.BookingReserved, storage.BookingConfirmed}, to, now.UTC())
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			b.Status = to
			if to == storage.BookingCompleted {
				result.Completed++
				events = append(events, s.opts.event(EventBookingCompleted, b, ""))
			} else {
				result.NoShow++
				events = append(events, s.opts.event(EventBookingNoShow, b, ""))
			}
		}
		return nil
	})
	if err != nil {
		return SweepResult{}, translate(err)
	}
	s.opts.logger.Info("past bookings processed",
		zap.Int("completed", result.Completed),
		zap.Int("no_show", result.NoShow),
		zap.Time("now", now),
	)
	s.opts.emit(ctx, events)
	return result, nil
}
