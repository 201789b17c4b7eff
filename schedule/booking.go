package schedule

import (
	"context"
	"time"

	"go.uber.org/zap"

	"hallbook/storage"
)

// BookingService runs the lifecycle of dated bookings.
type BookingService struct {
	db   *storage.DB
	opts *options
}

type ReserveInput struct {
	TemplateID string    `json:"template_id" validate:"required"`
	TeamID     string    `json:"team_id" validate:"required"`
	Date       time.Time `json:"booking_date"`
	// A zero window books the whole template.
	StartTime storage.Clock `json:"start_time" validate:"gte=0,lte=1440"`
	EndTime   storage.Clock `json:"end_time" validate:"gte=0,lte=1440"`
	CourtID   string        `json:"court_id,omitempty"`
	Confirmed bool          `json:"confirmed"`
}

// CanUserReleaseBooking is true for trainers and assistant trainers of the
// booking's team and for the user who booked it.
func (s *BookingService) CanUserReleaseBooking(b storage.Booking, actor storage.Actor) bool {
	return canManageBooking(b, actor)
}

func (s *BookingService) CanUserCancelBooking(b storage.Booking, actor storage.Actor) bool {
	return canManageBooking(b, actor)
}

func canManageBooking(b storage.Booking, actor storage.Actor) bool {
	if actor.IsTrainerOf(b.TeamID) {
		return true
	}
	return actor.UserID != "" && actor.UserID == b.BookedByUserID
}

// GetAvailableTimeSlotsForTeam returns the released bookings in [start, end]
// that teamID may claim. A team never sees a release it originally held or
// made itself.
func (s *BookingService) GetAvailableTimeSlotsForTeam(ctx context.Context, teamID string, start, end time.Time) ([]storage.Booking, error) {
	start, end = storage.DateOf(start), storage.DateOf(end)
	released, err := s.db.ListBookings(ctx, storage.BookingFilter{
		From:     &start,
		To:       &end,
		Statuses: []storage.BookingStatus{storage.BookingReleased},
	})
	if err != nil {
		return nil, translate(err)
	}
	out := []storage.Booking{}
	for _, b := range released {
		if b.OriginalTeamID == teamID || b.ReleasedByTeamID == teamID {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// Reserve books a template window on a date for a team.
func (s *BookingService) Reserve(ctx context.Context, actor storage.Actor, in ReserveInput) (storage.Booking, error) {
	if err := validateInput(in); err != nil {
		return storage.Booking{}, err
	}
	if in.Date.IsZero() {
		return storage.Booking{}, invalid("booking_date", CodeRequired, "")
	}
	if !actor.IsTrainerOf(in.TeamID) {
		return storage.Booking{}, unauthorized("%s is not a trainer of team %s", actor.UserID, in.TeamID)
	}
	date := storage.DateOf(in.Date)

	var b storage.Booking
	err := s.db.Atomically(ctx, func(tx *storage.Tx) error {
		t, err := tx.GetTemplate(ctx, in.TemplateID)
		if err != nil {
			return err
		}
		if t.Status != storage.SlotActive || !t.ValidOn(date) {
			return invalid("template_id", CodeTemplateInactive, t.ID)
		}
		if date.Weekday() != t.DayOfWeek {
			return invalid("booking_date", CodeWrongDay, t.DayOfWeek.String())
		}
		venue, err := tx.GetVenue(ctx, t.VenueID)
		if err != nil {
			return err
		}
		team, err := tx.GetTeam(ctx, in.TeamID)
		if err != nil {
			return err
		}
		if team.ClubID != venue.ClubID {
			return invalid("team_id", CodeTeamClubMismatch, team.ID)
		}

		w := storage.Window{Start: in.StartTime, End: in.EndTime}
		if w.Start == 0 && w.End == 0 {
			w = t.Window()
		}
		errs := validateWindow(w)
		if !t.Window().Contains(w) {
			errs = append(errs, ValidationError{Field: "start_time", Code: CodeOutsideTemplate, Ref: t.Window().String()})
		}
		errs = append(errs, validateTimeSlot(w, venue, t.DayOfWeek)...)
		if in.CourtID != "" {
			courtErrs, err := validateCourtSelection(ctx, tx.Queries, venue, []string{in.CourtID}, w.Duration())
			if err != nil {
				return err
			}
			errs = append(errs, courtErrs...)
		}
		if err := errs.Err(); err != nil {
			return err
		}

		if t.TeamID != "" && t.TeamID != in.TeamID && !venue.SupportsParallel {
			return conflictErr(Conflict{
				Type:            ConflictAlreadyAssigned,
				OtherTemplateID: t.ID,
				TeamID:          t.TeamID,
				Window:          t.Window(),
			})
		}

		b = storage.Booking{
			ID:             s.opts.newID(),
			TemplateID:     t.ID,
			VenueID:        venue.ID,
			CourtID:        in.CourtID,
			TeamID:         in.TeamID,
			OriginalTeamID: in.TeamID,
			Date:           date,
			StartTime:      w.Start,
			EndTime:        w.End,
			Status:         storage.BookingReserved,
			BookedByUserID: actor.UserID,
		}
		if in.Confirmed {
			b.Status = storage.BookingConfirmed
		}
		if err := checkPlacement(ctx, tx.Queries, venue, b); err != nil {
			return err
		}

		now := s.opts.now().UTC()
		b.CreatedAt, b.UpdatedAt = now, now
		return tx.InsertBooking(ctx, b)
	})
	if err != nil {
		return storage.Booking{}, translate(err)
	}
	s.opts.logger.Info("booking reserved",
		zap.String("booking_id", b.ID),
		zap.String("team_id", b.TeamID),
		zap.String("date", storage.FormatDate(b.Date)),
		zap.Stringer("window", b.Window()),
	)
	s.opts.emit(ctx, []Event{s.opts.event(EventBookingCreated, b, actor.UserID)})
	return b, nil
}

// checkPlacement verifies that b can hold its window: the team holds no
// overlapping booking on the same template, the distinct other teams plus b's
// team stay within parallel capacity, and b's court is free.
func checkPlacement(ctx context.Context, q *storage.Queries, venue storage.Venue, b storage.Booking) error {
	occ, err := loadOccupancy(ctx, q, venue.ID, b.Date)
	if err != nil {
		return err
	}
	for _, o := range occ.overlapping(b.Window(), nil) {
		held, ok := o.(bookingOccupant)
		if ok && held.ID != b.ID && held.TeamID == b.TeamID && held.TemplateID == b.TemplateID {
			return conflictErr(held.conflict(ConflictDuplicate))
		}
	}
	others := occ.overlapping(b.Window(), func(o Occupant) bool {
		if held, ok := o.(bookingOccupant); ok && held.ID == b.ID {
			return true
		}
		return o.Team() == b.TeamID
	})
	if len(distinctTeams(others))+1 > venue.ParallelCapacity() {
		return conflictErr(occupantConflicts(ConflictCapacity, others)...)
	}
	if b.CourtID != "" {
		busy, err := courtConflicts(ctx, q, []string{b.CourtID}, b.Date, b.Window(), b.ID)
		if err != nil {
			return err
		}
		if len(busy) > 0 {
			return conflictErr(busy...)
		}
	}
	return nil
}

// transition loads a booking, applies change and writes it back only if the
// stored status is still the one that was read.
func (s *BookingService) transition(ctx context.Context, id string, change func(tx *storage.Tx, b *storage.Booking) error) (storage.Booking, error) {
	var b storage.Booking
	err := s.db.Atomically(ctx, func(tx *storage.Tx) error {
		var err error
		b, err = tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		expected := b.Status
		if err := change(tx, &b); err != nil {
			return err
		}
		b.UpdatedAt = s.opts.now().UTC()
		ok, err := tx.UpdateBooking(ctx, b, expected)
		if err != nil {
			return err
		}
		if !ok {
			return storage.ErrBusy
		}
		return nil
	})
	if err != nil {
		return storage.Booking{}, translate(err)
	}
	return b, nil
}

func invalidTransition(b storage.Booking, to storage.BookingStatus) error {
	return invalid("status", CodeInvalidTransition, string(b.Status)+"->"+string(to))
}

// Confirm moves a reserved booking to confirmed.
func (s *BookingService) Confirm(ctx context.Context, actor storage.Actor, id string) (storage.Booking, error) {
	b, err := s.transition(ctx, id, func(_ *storage.Tx, b *storage.Booking) error {
		if !canManageBooking(*b, actor) {
			return unauthorized("%s may not confirm booking %s", actor.UserID, b.ID)
		}
		if b.Status != storage.BookingReserved {
			return invalidTransition(*b, storage.BookingConfirmed)
		}
		b.Status = storage.BookingConfirmed
		return nil
	})
	if err != nil {
		return storage.Booking{}, err
	}
	s.opts.emit(ctx, []Event{s.opts.event(EventBookingConfirmed, b, actor.UserID)})
	return b, nil
}

// RecordAttendance stores the attendance signal the sweep uses to tell
// completed from no_show.
func (s *BookingService) RecordAttendance(ctx context.Context, actor storage.Actor, id string) (storage.Booking, error) {
	b, err := s.transition(ctx, id, func(_ *storage.Tx, b *storage.Booking) error {
		if !canManageBooking(*b, actor) {
			return unauthorized("%s may not record attendance for booking %s", actor.UserID, b.ID)
		}
		if !b.Status.Holding() {
			return invalid("status", CodeInvalidTransition, string(b.Status))
		}
		now := s.opts.now().UTC()
		b.AttendedAt = &now
		return nil
	})
	if err != nil {
		return storage.Booking{}, err
	}
	s.opts.emit(ctx, []Event{s.opts.event(EventBookingAttended, b, actor.UserID)})
	return b, nil
}

// Release opens a held booking to other teams. The record stays, with its
// original team, so the releasing team keeps being excluded from claiming it.
func (s *BookingService) Release(ctx context.Context, actor storage.Actor, id string) (storage.Booking, error) {
	b, err := s.transition(ctx, id, func(_ *storage.Tx, b *storage.Booking) error {
		if !canManageBooking(*b, actor) {
			return unauthorized("%s may not release booking %s", actor.UserID, b.ID)
		}
		if !b.Status.Holding() {
			return invalidTransition(*b, storage.BookingReleased)
		}
		b.Status = storage.BookingReleased
		b.ReleasedByTeamID = b.TeamID
		return nil
	})
	if err != nil {
		return storage.Booking{}, err
	}
	s.opts.logger.Info("booking released", zap.String("booking_id", b.ID), zap.String("team_id", b.TeamID))
	s.opts.emit(ctx, []Event{s.opts.event(EventBookingReleased, b, actor.UserID)})
	return b, nil
}

// Cancel withdraws a booking for good.
func (s *BookingService) Cancel(ctx context.Context, actor storage.Actor, id string) (storage.Booking, error) {
	b, err := s.transition(ctx, id, func(_ *storage.Tx, b *storage.Booking) error {
		if !canManageBooking(*b, actor) {
			return unauthorized("%s may not cancel booking %s", actor.UserID, b.ID)
		}
		if b.Status.Terminal() {
			return invalidTransition(*b, storage.BookingCanceled)
		}
		b.Status = storage.BookingCanceled
		return nil
	})
	if err != nil {
		return storage.Booking{}, err
	}
	s.opts.logger.Info("booking canceled", zap.String("booking_id", b.ID))
	s.opts.emit(ctx, []Event{s.opts.event(EventBookingCanceled, b, actor.UserID)})
	return b, nil
}

// Claim hands a released booking to teamID. The original team is kept and
// capacity is checked again, since the window may have filled up since the
// release.
func (s *BookingService) Claim(ctx context.Context, actor storage.Actor, id, teamID string) (storage.Booking, error) {
	if !actor.IsTrainerOf(teamID) {
		return storage.Booking{}, unauthorized("%s is not a trainer of team %s", actor.UserID, teamID)
	}
	b, err := s.transition(ctx, id, func(tx *storage.Tx, b *storage.Booking) error {
		if b.Status != storage.BookingReleased {
			return invalidTransition(*b, storage.BookingReserved)
		}
		if teamID == b.OriginalTeamID || teamID == b.ReleasedByTeamID {
			return invalid("team_id", CodeOwnRelease, b.ID)
		}
		venue, err := tx.GetVenue(ctx, b.VenueID)
		if err != nil {
			return err
		}
		team, err := tx.GetTeam(ctx, teamID)
		if err != nil {
			return err
		}
		if team.ClubID != venue.ClubID {
			return invalid("team_id", CodeTeamClubMismatch, team.ID)
		}
		b.TeamID = teamID
		b.Status = storage.BookingReserved
		b.BookedByUserID = actor.UserID
		b.AttendedAt = nil
		return checkPlacement(ctx, tx.Queries, venue, *b)
	})
	if err != nil {
		return storage.Booking{}, err
	}
	s.opts.logger.Info("booking claimed",
		zap.String("booking_id", b.ID),
		zap.String("team_id", b.TeamID),
		zap.String("original_team_id", b.OriginalTeamID),
	)
	s.opts.emit(ctx, []Event{s.opts.event(EventBookingClaimed, b, actor.UserID)})
	return b, nil
}

// ListBookings passes through to storage for reporting callers.
func (s *BookingService) ListBookings(ctx context.Context, filter storage.BookingFilter) ([]storage.Booking, error) {
	bookings, err := s.db.ListBookings(ctx, filter)
	return bookings, translate(err)
}

// RemoveBooking hard-deletes a booking record. Only club administrators of
// the booking's venue may do this.
func (s *BookingService) RemoveBooking(ctx context.Context, actor storage.Actor, id string) (bool, error) {
	var removed bool
	err := s.db.Atomically(ctx, func(tx *storage.Tx) error {
		b, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		venue, err := tx.GetVenue(ctx, b.VenueID)
		if err != nil {
			return err
		}
		if !actor.IsAdminOf(venue.ClubID) {
			return unauthorized("%s is not an administrator of club %s", actor.UserID, venue.ClubID)
		}
		removed, err = tx.RemoveBooking(ctx, id)
		return err
	})
	if err != nil {
		return false, translate(err)
	}
	return removed, nil
}
