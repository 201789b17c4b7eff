package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type SlotStatus string

const (
	SlotActive   SlotStatus = "active"
	SlotInactive SlotStatus = "inactive"
)

type TimeSlotTemplate struct {
	ID              string       `json:"id"`
	VenueID         string       `json:"venue_id"`
	DayOfWeek       time.Weekday `json:"day_of_week"`
	StartTime       Clock        `json:"start_time"`
	EndTime         Clock        `json:"end_time"`
	Status          SlotStatus   `json:"status"`
	TeamID          string       `json:"team_id,omitempty"`
	UsesCustomTimes bool         `json:"uses_custom_times"`
	ValidFrom       time.Time    `json:"valid_from"`
	ValidUntil      *time.Time   `json:"valid_until,omitempty"`
	AssignedBy      string       `json:"assigned_by,omitempty"`
	AssignedAt      *time.Time   `json:"assigned_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

func (t TimeSlotTemplate) Window() Window {
	return Window{Start: t.StartTime, End: t.EndTime}
}

// ValidOn reports whether date falls inside [ValidFrom, ValidUntil].
func (t TimeSlotTemplate) ValidOn(date time.Time) bool {
	date = DateOf(date)
	if date.Before(DateOf(t.ValidFrom)) {
		return false
	}
	if t.ValidUntil != nil && date.After(DateOf(*t.ValidUntil)) {
		return false
	}
	return true
}

type SegmentAssignment struct {
	ID              string       `json:"id"`
	TemplateID      string       `json:"template_id"`
	TeamID          string       `json:"team_id"`
	DayOfWeek       time.Weekday `json:"day_of_week"`
	StartTime       Clock        `json:"start_time"`
	EndTime         Clock        `json:"end_time"`
	DurationMinutes int          `json:"duration_minutes"`
	Status          SlotStatus   `json:"status"`
	ValidUntil      *time.Time   `json:"valid_until,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

func (s SegmentAssignment) Window() Window {
	return Window{Start: s.StartTime, End: s.EndTime}
}

type AuditRecord struct {
	Entity    string    `json:"entity"`
	EntityID  string    `json:"entity_id"`
	Action    string    `json:"action"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

type TemplateFilter struct {
	VenueID    string
	Day        *time.Weekday
	ActiveOnly bool
	TeamID     string
}

const templateColumns = `id, venue_id, day_of_week, start_time, end_time, status, team_id, uses_custom_times,
  valid_from, valid_until, assigned_by, assigned_at, created_at`

func (q *Queries) InsertTemplate(ctx context.Context, t TimeSlotTemplate) error {
	_, err := q.q.ExecContext(ctx, `
INSERT INTO time_slot_templates (`+templateColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		t.ID,
		t.VenueID,
		int(t.DayOfWeek),
		t.StartTime,
		t.EndTime,
		string(t.Status),
		nullString(t.TeamID),
		boolInt(t.UsesCustomTimes),
		FormatDate(t.ValidFrom),
		nullDate(t.ValidUntil),
		nullString(t.AssignedBy),
		nullTimestamp(t.AssignedAt),
		formatTimestamp(t.CreatedAt),
	)
	return err
}

// UpdateTemplateAssignment writes the team ownership fields of a template.
func (q *Queries) UpdateTemplateAssignment(ctx context.Context, t TimeSlotTemplate) error {
	_, err := q.q.ExecContext(ctx, `
UPDATE time_slot_templates SET team_id = ?, assigned_by = ?, assigned_at = ? WHERE id = ?;`,
		nullString(t.TeamID), nullString(t.AssignedBy), nullTimestamp(t.AssignedAt), t.ID,
	)
	return err
}

func (q *Queries) UpdateTemplateStatus(ctx context.Context, id string, status SlotStatus, validUntil *time.Time) error {
	_, err := q.q.ExecContext(ctx, `
UPDATE time_slot_templates SET status = ?, valid_until = ? WHERE id = ?;`,
		string(status), nullDate(validUntil), id,
	)
	return err
}

func scanTemplate(row interface{ Scan(...any) error }) (TimeSlotTemplate, error) {
	var t TimeSlotTemplate
	var day int
	var status string
	var teamID, validUntil, assignedBy, assignedAt sql.NullString
	var custom int
	var validFrom, createdAt string
	if err := row.Scan(
		&t.ID,
		&t.VenueID,
		&day,
		&t.StartTime,
		&t.EndTime,
		&status,
		&teamID,
		&custom,
		&validFrom,
		&validUntil,
		&assignedBy,
		&assignedAt,
		&createdAt,
	); err != nil {
		return TimeSlotTemplate{}, err
	}
	t.DayOfWeek = time.Weekday(day)
	t.Status = SlotStatus(status)
	t.TeamID = teamID.String
	t.UsesCustomTimes = custom == 1
	t.AssignedBy = assignedBy.String

	var err error
	if t.ValidFrom, err = ParseDate(validFrom); err != nil {
		return TimeSlotTemplate{}, err
	}
	if t.ValidUntil, err = parseNullDate(validUntil); err != nil {
		return TimeSlotTemplate{}, err
	}
	if t.AssignedAt, err = parseTimestamp(assignedAt); err != nil {
		return TimeSlotTemplate{}, err
	}
	created, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return TimeSlotTemplate{}, err
	}
	t.CreatedAt = created
	return t, nil
}

func (q *Queries) GetTemplate(ctx context.Context, id string) (TimeSlotTemplate, error) {
	row := q.q.QueryRowContext(ctx, "SELECT "+templateColumns+" FROM time_slot_templates WHERE id = ?", id)
	t, err := scanTemplate(row)
	if err != nil {
		return TimeSlotTemplate{}, notFound(err, "template", id)
	}
	return t, nil
}

// ListTemplates returns templates ordered by day, start time and id.
func (q *Queries) ListTemplates(ctx context.Context, filter TemplateFilter) ([]TimeSlotTemplate, error) {
	query := "SELECT " + templateColumns + " FROM time_slot_templates"
	conds := []string{}
	args := []any{}
	if filter.VenueID != "" {
		conds = append(conds, "venue_id = ?")
		args = append(args, filter.VenueID)
	}
	if filter.Day != nil {
		conds = append(conds, "day_of_week = ?")
		args = append(args, int(*filter.Day))
	}
	if filter.ActiveOnly {
		conds = append(conds, "status = ?")
		args = append(args, string(SlotActive))
	}
	if filter.TeamID != "" {
		conds = append(conds, "team_id = ?")
		args = append(args, filter.TeamID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY day_of_week, start_time, end_time, id"

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := []TimeSlotTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

const segmentColumns = `id, template_id, team_id, day_of_week, start_time, end_time, duration_minutes, status, valid_until, created_at`

func (q *Queries) InsertSegment(ctx context.Context, s SegmentAssignment) error {
	_, err := q.q.ExecContext(ctx, `
INSERT INTO segment_assignments (`+segmentColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		s.ID,
		s.TemplateID,
		s.TeamID,
		int(s.DayOfWeek),
		s.StartTime,
		s.EndTime,
		s.DurationMinutes,
		string(s.Status),
		nullTimestamp(s.ValidUntil),
		formatTimestamp(s.CreatedAt),
	)
	return err
}

// DeleteSegment removes a segment scoped to its template. It reports false
// when nothing matched.
func (q *Queries) DeleteSegment(ctx context.Context, templateID, id string) (bool, error) {
	res, err := q.q.ExecContext(ctx, "DELETE FROM segment_assignments WHERE id = ? AND template_id = ?", id, templateID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// DeactivateSegment soft-ends an active segment. It reports false when no
// active segment matched.
func (q *Queries) DeactivateSegment(ctx context.Context, templateID, id string, at time.Time) (bool, error) {
	res, err := q.q.ExecContext(ctx, `
UPDATE segment_assignments SET status = ?, valid_until = ?
WHERE id = ? AND template_id = ? AND status = ?;`,
		string(SlotInactive), formatTimestamp(at), id, templateID, string(SlotActive),
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

func scanSegment(row interface{ Scan(...any) error }) (SegmentAssignment, error) {
	var s SegmentAssignment
	var day int
	var status string
	var validUntil sql.NullString
	var createdAt string
	if err := row.Scan(
		&s.ID,
		&s.TemplateID,
		&s.TeamID,
		&day,
		&s.StartTime,
		&s.EndTime,
		&s.DurationMinutes,
		&status,
		&validUntil,
		&createdAt,
	); err != nil {
		return SegmentAssignment{}, err
	}
	s.DayOfWeek = time.Weekday(day)
	s.Status = SlotStatus(status)
	var err error
	if s.ValidUntil, err = parseTimestamp(validUntil); err != nil {
		return SegmentAssignment{}, err
	}
	created, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return SegmentAssignment{}, err
	}
	s.CreatedAt = created
	return s, nil
}

// ListSegments returns the segments of a template ordered by start time. A nil
// day lists every day.
func (q *Queries) ListSegments(ctx context.Context, templateID string, day *time.Weekday, activeOnly bool) ([]SegmentAssignment, error) {
	query := "SELECT " + segmentColumns + " FROM segment_assignments WHERE template_id = ?"
	args := []any{templateID}
	if day != nil {
		query += " AND day_of_week = ?"
		args = append(args, int(*day))
	}
	if activeOnly {
		query += " AND status = ?"
		args = append(args, string(SlotActive))
	}
	query += " ORDER BY start_time, end_time, id"
	return q.querySegments(ctx, query, args...)
}

// ListVenueSegments returns active segments of every active template of a
// venue on day.
func (q *Queries) ListVenueSegments(ctx context.Context, venueID string, day time.Weekday) ([]SegmentAssignment, error) {
	query := "SELECT " + prefixColumns("s", segmentColumns) + `
FROM segment_assignments s
JOIN time_slot_templates t ON t.id = s.template_id
WHERE t.venue_id = ? AND s.day_of_week = ? AND s.status = ? AND t.status = ?
ORDER BY s.start_time, s.end_time, s.id`
	return q.querySegments(ctx, query, venueID, int(day), string(SlotActive), string(SlotActive))
}

func (q *Queries) querySegments(ctx context.Context, query string, args ...any) ([]SegmentAssignment, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	segments := []SegmentAssignment{}
	for rows.Next() {
		s, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		segments = append(segments, s)
	}
	return segments, rows.Err()
}

func (q *Queries) InsertAudit(ctx context.Context, record AuditRecord) error {
	_, err := q.q.ExecContext(ctx, `
INSERT INTO audit_log (entity, entity_id, action, actor_id, actor_name, reason, at)
VALUES (?, ?, ?, ?, ?, ?, ?);`,
		record.Entity,
		record.EntityID,
		record.Action,
		nullString(record.ActorID),
		nullString(record.ActorName),
		nullString(record.Reason),
		formatTimestamp(record.At),
	)
	if err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return nil
}

// ListAudit returns the audit trail of one entity, oldest first.
func (q *Queries) ListAudit(ctx context.Context, entity, entityID string) ([]AuditRecord, error) {
	rows, err := q.q.QueryContext(ctx, `
SELECT entity, entity_id, action, actor_id, actor_name, reason, at
FROM audit_log WHERE entity = ? AND entity_id = ? ORDER BY id`, entity, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []AuditRecord{}
	for rows.Next() {
		var record AuditRecord
		var actorID, actorName, reason sql.NullString
		var at string
		if err := rows.Scan(&record.Entity, &record.EntityID, &record.Action, &actorID, &actorName, &reason, &at); err != nil {
			return nil, err
		}
		record.ActorID = actorID.String
		record.ActorName = actorName.String
		record.Reason = reason.String
		parsed, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return nil, err
		}
		record.At = parsed
		records = append(records, record)
	}
	return records, rows.Err()
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}
