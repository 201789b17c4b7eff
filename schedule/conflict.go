package schedule

import (
	"context"
	"errors"
	"strings"
	"time"

	"hallbook/storage"
)

// ConflictDetector answers overlap and validity questions. It never writes.
type ConflictDetector struct {
	db *storage.DB
}

// Overlaps is the half-open interval rule used everywhere in the engine.
func Overlaps(a, b storage.Window) bool {
	return a.Overlaps(b)
}

// GetTimeSlotConflicts returns one time_overlap conflict per other active
// template of the same venue and weekday whose window overlaps t.
func (d *ConflictDetector) GetTimeSlotConflicts(ctx context.Context, t storage.TimeSlotTemplate) ([]Conflict, error) {
	conflicts, err := timeSlotConflicts(ctx, d.db.Queries, t)
	return conflicts, translate(err)
}

func timeSlotConflicts(ctx context.Context, q *storage.Queries, t storage.TimeSlotTemplate) ([]Conflict, error) {
	day := t.DayOfWeek
	others, err := q.ListTemplates(ctx, storage.TemplateFilter{VenueID: t.VenueID, Day: &day, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	conflicts := []Conflict{}
	for _, other := range others {
		if other.ID == t.ID {
			continue
		}
		if Overlaps(t.Window(), other.Window()) {
			conflicts = append(conflicts, Conflict{
				Type:            ConflictTimeOverlap,
				OtherTemplateID: other.ID,
				TeamID:          other.TeamID,
				Window:          other.Window(),
			})
		}
	}
	return conflicts, nil
}

// ValidateTimeSlot checks w against the venue's hours on day. A closed day
// yields no errors; use ValidateDayOpen for that.
func (d *ConflictDetector) ValidateTimeSlot(w storage.Window, venue storage.Venue, day time.Weekday) ValidationErrors {
	return validateTimeSlot(w, venue, day)
}

func validateTimeSlot(w storage.Window, venue storage.Venue, day time.Weekday) ValidationErrors {
	hours := venue.HoursOn(day)
	if !hours.IsOpen {
		return nil
	}
	var errs ValidationErrors
	if w.Start < hours.OpenTime {
		errs = append(errs, ValidationError{Field: "start_time", Code: CodeStartBeforeOpening, Ref: hours.OpenTime.String()})
	}
	if w.End > hours.CloseTime {
		errs = append(errs, ValidationError{Field: "end_time", Code: CodeEndAfterClosing, Ref: hours.CloseTime.String()})
	}
	return errs
}

func (d *ConflictDetector) ValidateWindow(w storage.Window) ValidationErrors {
	return validateWindow(w)
}

func validateWindow(w storage.Window) ValidationErrors {
	if w.Empty() {
		return invalid("end_time", CodeInvalidRange, w.String())
	}
	if w.End > storage.MinutesPerDay {
		return invalid("end_time", CodeInvalidRange, w.String())
	}
	return nil
}

func (d *ConflictDetector) ValidateDayOpen(venue storage.Venue, day time.Weekday) ValidationErrors {
	return validateDayOpen(venue, day)
}

func validateDayOpen(venue storage.Venue, day time.Weekday) ValidationErrors {
	if _, ok := venue.OpenWindow(day); !ok {
		return invalid("day_of_week", CodeDayClosed, strings.ToLower(day.String()))
	}
	return nil
}

// ValidateCourtSelection reports one invalid_court error per id that is
// unknown, belongs to another venue or is inactive. It does not look at
// bookings; see CheckCourtWindow.
func (d *ConflictDetector) ValidateCourtSelection(ctx context.Context, venue storage.Venue, courtIDs []string, date time.Time, start storage.Clock, durationMinutes int) (ValidationErrors, error) {
	errs, err := validateCourtSelection(ctx, d.db.Queries, venue, courtIDs, durationMinutes)
	return errs, translate(err)
}

func validateCourtSelection(ctx context.Context, q *storage.Queries, venue storage.Venue, courtIDs []string, durationMinutes int) (ValidationErrors, error) {
	var errs ValidationErrors
	if durationMinutes <= 0 {
		errs = append(errs, ValidationError{Field: "duration_minutes", Code: CodeInvalidRange})
	}
	for _, id := range courtIDs {
		court, err := q.GetCourt(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			errs = append(errs, ValidationError{Field: "court_id", Code: CodeInvalidCourt, Ref: id})
			continue
		}
		if err != nil {
			return nil, err
		}
		if court.VenueID != venue.ID || !court.Active {
			errs = append(errs, ValidationError{Field: "court_id", Code: CodeInvalidCourt, Ref: id})
		}
	}
	return errs, nil
}

// CheckCourtWindow validates the court selection and then reports a
// court_busy conflict for every reserved or confirmed booking on one of the
// courts overlapping the requested window.
func (d *ConflictDetector) CheckCourtWindow(ctx context.Context, venue storage.Venue, courtIDs []string, date time.Time, start storage.Clock, durationMinutes int) ([]Conflict, error) {
	var conflicts []Conflict
	err := d.db.Snapshot(ctx, func(tx *storage.Tx) error {
		errs, err := validateCourtSelection(ctx, tx.Queries, venue, courtIDs, durationMinutes)
		if err != nil {
			return err
		}
		if err := errs.Err(); err != nil {
			return err
		}
		conflicts, err = courtConflicts(ctx, tx.Queries, courtIDs, date, storage.NewWindow(start, durationMinutes), "")
		return err
	})
	return conflicts, translate(err)
}

func courtConflicts(ctx context.Context, q *storage.Queries, courtIDs []string, date time.Time, w storage.Window, skipBookingID string) ([]Conflict, error) {
	date = storage.DateOf(date)
	conflicts := []Conflict{}
	for _, courtID := range courtIDs {
		bookings, err := q.ListBookings(ctx, storage.BookingFilter{
			CourtID:  courtID,
			From:     &date,
			To:       &date,
			Statuses: []storage.BookingStatus{storage.BookingReserved, storage.BookingConfirmed},
		})
		if err != nil {
			return nil, err
		}
		for _, b := range bookings {
			if b.ID == skipBookingID || !Overlaps(b.Window(), w) {
				continue
			}
			conflicts = append(conflicts, Conflict{
				Type:           ConflictCourtBusy,
				OtherBookingID: b.ID,
				TeamID:         b.TeamID,
				CourtID:        courtID,
				Window:         b.Window(),
			})
		}
	}
	return conflicts, nil
}
