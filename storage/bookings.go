package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

type BookingStatus string

const (
	BookingReserved  BookingStatus = "reserved"
	BookingConfirmed BookingStatus = "confirmed"
	BookingReleased  BookingStatus = "released"
	BookingCanceled  BookingStatus = "canceled"
	BookingCompleted BookingStatus = "completed"
	BookingNoShow    BookingStatus = "no_show"
)

var AllBookingStatuses = []BookingStatus{
	BookingReserved,
	BookingConfirmed,
	BookingReleased,
	BookingCanceled,
	BookingCompleted,
	BookingNoShow,
}

// Holding reports whether the booking still occupies its window.
func (s BookingStatus) Holding() bool {
	return s == BookingReserved || s == BookingConfirmed
}

// Terminal reports whether no further transition is allowed.
func (s BookingStatus) Terminal() bool {
	return s == BookingCanceled || s == BookingCompleted || s == BookingNoShow
}

type Booking struct {
	ID               string        `json:"id"`
	TemplateID       string        `json:"template_id"`
	VenueID          string        `json:"venue_id"`
	CourtID          string        `json:"court_id,omitempty"`
	TeamID           string        `json:"team_id"`
	OriginalTeamID   string        `json:"original_team_id"`
	ReleasedByTeamID string        `json:"released_by_team_id,omitempty"`
	Date             time.Time     `json:"booking_date"`
	StartTime        Clock         `json:"start_time"`
	EndTime          Clock         `json:"end_time"`
	Status           BookingStatus `json:"status"`
	BookedByUserID   string        `json:"booked_by_user_id"`
	AttendedAt       *time.Time    `json:"attended_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

func (b Booking) Window() Window {
	return Window{Start: b.StartTime, End: b.EndTime}
}

func (b Booking) DurationMinutes() int {
	return b.Window().Duration()
}

// EndsAt is the instant the booking ends in loc.
func (b Booking) EndsAt(loc *time.Location) time.Time {
	return b.EndTime.On(b.Date, loc)
}

type BookingFilter struct {
	VenueID        string
	TemplateID     string
	CourtID        string
	TeamID         string
	OriginalTeamID string
	From           *time.Time
	To             *time.Time
	Statuses       []BookingStatus
}

const bookingColumns = `id, template_id, venue_id, court_id, team_id, original_team_id, released_by_team_id,
  booking_date, start_time, end_time, status, booked_by_user_id, attended_at, created_at, updated_at`

func (q *Queries) InsertBooking(ctx context.Context, b Booking) error {
	_, err := q.q.ExecContext(ctx, `
INSERT INTO bookings (`+bookingColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		b.ID,
		b.TemplateID,
		b.VenueID,
		nullString(b.CourtID),
		b.TeamID,
		b.OriginalTeamID,
		nullString(b.ReleasedByTeamID),
		FormatDate(b.Date),
		b.StartTime,
		b.EndTime,
		string(b.Status),
		nullString(b.BookedByUserID),
		nullTimestamp(b.AttendedAt),
		formatTimestamp(b.CreatedAt),
		formatTimestamp(b.UpdatedAt),
	)
	return err
}

// UpdateBooking rewrites the mutable fields of b only if the stored status
// still equals expected. It reports false when another writer got there first.
func (q *Queries) UpdateBooking(ctx context.Context, b Booking, expected BookingStatus) (bool, error) {
	res, err := q.q.ExecContext(ctx, `
UPDATE bookings SET
  team_id = ?, released_by_team_id = ?, court_id = ?, status = ?, booked_by_user_id = ?, attended_at = ?, updated_at = ?
WHERE id = ? AND status = ?;`,
		b.TeamID,
		nullString(b.ReleasedByTeamID),
		nullString(b.CourtID),
		string(b.Status),
		nullString(b.BookedByUserID),
		nullTimestamp(b.AttendedAt),
		formatTimestamp(b.UpdatedAt),
		b.ID,
		string(expected),
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// TransitionBooking moves a booking to status when it is currently in one of
// from. It reports false when the booking was not in an allowed state.
func (q *Queries) TransitionBooking(ctx context.Context, id string, from []BookingStatus, to BookingStatus, at time.Time) (bool, error) {
	placeholders := make([]string, 0, len(from))
	args := []any{string(to), formatTimestamp(at), id}
	for _, status := range from {
		placeholders = append(placeholders, "?")
		args = append(args, string(status))
	}
	res, err := q.q.ExecContext(ctx,
		"UPDATE bookings SET status = ?, updated_at = ? WHERE id = ? AND status IN ("+strings.Join(placeholders, ", ")+");",
		args...,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func scanBooking(row interface{ Scan(...any) error }) (Booking, error) {
	var b Booking
	var courtID, releasedBy, bookedBy, attendedAt sql.NullString
	var date, status, createdAt, updatedAt string
	if err := row.Scan(
		&b.ID,
		&b.TemplateID,
		&b.VenueID,
		&courtID,
		&b.TeamID,
		&b.OriginalTeamID,
		&releasedBy,
		&date,
		&b.StartTime,
		&b.EndTime,
		&status,
		&bookedBy,
		&attendedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return Booking{}, err
	}
	b.CourtID = courtID.String
	b.ReleasedByTeamID = releasedBy.String
	b.BookedByUserID = bookedBy.String
	b.Status = BookingStatus(status)

	var err error
	if b.Date, err = ParseDate(date); err != nil {
		return Booking{}, err
	}
	if b.AttendedAt, err = parseTimestamp(attendedAt); err != nil {
		return Booking{}, err
	}
	if b.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Booking{}, err
	}
	if b.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Booking{}, err
	}
	return b, nil
}

func (q *Queries) GetBooking(ctx context.Context, id string) (Booking, error) {
	row := q.q.QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE id = ?", id)
	b, err := scanBooking(row)
	if err != nil {
		return Booking{}, notFound(err, "booking", id)
	}
	return b, nil
}

// ListBookings returns bookings ordered by date, start time and id.
func (q *Queries) ListBookings(ctx context.Context, filter BookingFilter) ([]Booking, error) {
	base := "SELECT " + bookingColumns + " FROM bookings"

	conds := []string{}
	args := []any{}

	if filter.VenueID != "" {
		conds = append(conds, "venue_id = ?")
		args = append(args, filter.VenueID)
	}
	if filter.TemplateID != "" {
		conds = append(conds, "template_id = ?")
		args = append(args, filter.TemplateID)
	}
	if filter.CourtID != "" {
		conds = append(conds, "court_id = ?")
		args = append(args, filter.CourtID)
	}
	if filter.TeamID != "" {
		conds = append(conds, "team_id = ?")
		args = append(args, filter.TeamID)
	}
	if filter.OriginalTeamID != "" {
		conds = append(conds, "original_team_id = ?")
		args = append(args, filter.OriginalTeamID)
	}
	if filter.From != nil {
		conds = append(conds, "booking_date >= ?")
		args = append(args, FormatDate(*filter.From))
	}
	if filter.To != nil {
		conds = append(conds, "booking_date <= ?")
		args = append(args, FormatDate(*filter.To))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			placeholders = append(placeholders, "?")
			args = append(args, string(status))
		}
		conds = append(conds, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := base
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY booking_date, start_time, id"

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := []Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// RemoveBooking hard-deletes a booking. Lifecycle code never calls it; it
// exists for administrative cleanup.
func (q *Queries) RemoveBooking(ctx context.Context, id string) (bool, error) {
	res, err := q.q.ExecContext(ctx, "DELETE FROM bookings WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
