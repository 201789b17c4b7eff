package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

const DefaultVenueTimezone = "Europe/Berlin"

type DayHours struct {
	IsOpen    bool  `json:"is_open"`
	OpenTime  Clock `json:"open_time"`
	CloseTime Clock `json:"close_time"`
}

// WeeklyHours is indexed by time.Weekday.
type WeeklyHours [7]DayHours

func (h WeeklyHours) MarshalJSON() ([]byte, error) {
	out := make(map[string]DayHours, 7)
	for day := time.Sunday; day <= time.Saturday; day++ {
		out[strings.ToLower(day.String())] = h[day]
	}
	return json.Marshal(out)
}

func (h *WeeklyHours) UnmarshalJSON(b []byte) error {
	var in map[string]DayHours
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	var hours WeeklyHours
	for key, value := range in {
		day, err := ParseWeekday(key)
		if err != nil {
			return err
		}
		hours[day] = value
	}
	*h = hours
	return nil
}

// ParseWeekday accepts English day names, three letter abbreviations and the
// numbers 0 (Sunday) to 6.
func ParseWeekday(input string) (time.Weekday, error) {
	needle := strings.ToLower(strings.TrimSpace(input))
	for day := time.Sunday; day <= time.Saturday; day++ {
		name := strings.ToLower(day.String())
		if needle == name || needle == name[:3] || needle == fmt.Sprintf("%d", int(day)) {
			return day, nil
		}
	}
	return time.Sunday, fmt.Errorf("invalid day of week %q", input)
}

type Venue struct {
	ID               string      `json:"id" validate:"required"`
	ClubID           string      `json:"club_id" validate:"required"`
	Name             string      `json:"name" validate:"required"`
	Active           bool        `json:"active"`
	TimeZone         string      `json:"timezone"`
	Hours            WeeklyHours `json:"hours"`
	SupportsParallel bool        `json:"supports_parallel_bookings"`
	MaxParallelTeams int         `json:"max_parallel_teams" validate:"gte=1"`
	BookingIncrement int         `json:"booking_increment_minutes" validate:"gte=5,lte=240"`
	CourtCount       int         `json:"court_count"`
}

func (v Venue) HoursOn(day time.Weekday) DayHours {
	return v.Hours[day]
}

// OpenWindow returns the operating window for day, or false when closed.
func (v Venue) OpenWindow(day time.Weekday) (Window, bool) {
	hours := v.Hours[day]
	if !hours.IsOpen || hours.CloseTime <= hours.OpenTime {
		return Window{}, false
	}
	return Window{Start: hours.OpenTime, End: hours.CloseTime}, true
}

// ParallelCapacity is the number of teams that may hold overlapping time. A
// venue without parallel bookings always has capacity 1.
func (v Venue) ParallelCapacity() int {
	if !v.SupportsParallel || v.MaxParallelTeams < 1 {
		return 1
	}
	return v.MaxParallelTeams
}

func (v Venue) Location() *time.Location {
	return VenueLocation(v.TimeZone)
}

func NormalizeVenueTimezone(tz string) string {
	if strings.TrimSpace(tz) == "" {
		return DefaultVenueTimezone
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return DefaultVenueTimezone
	}
	return tz
}

func VenueLocation(tz string) *time.Location {
	loc, err := time.LoadLocation(NormalizeVenueTimezone(tz))
	if err != nil {
		return time.UTC
	}
	return loc
}

type Court struct {
	ID      string `json:"id" validate:"required"`
	VenueID string `json:"venue_id" validate:"required"`
	Label   string `json:"label"`
	Order   int    `json:"order"`
	Active  bool   `json:"active"`
}

type Team struct {
	ID     string `json:"id" validate:"required"`
	ClubID string `json:"club_id" validate:"required"`
	Name   string `json:"name" validate:"required"`
}

// FacilityFile is the plain-data export the facility and club administration
// hands to the scheduler.
type FacilityFile struct {
	Venues []Venue `json:"venues"`
	Courts []Court `json:"courts"`
	Teams  []Team  `json:"teams"`
}

func LoadFacilityFile(path string) (FacilityFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FacilityFile{}, err
	}
	if info.IsDir() {
		return FacilityFile{}, fmt.Errorf("facility path is a directory: %s", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return FacilityFile{}, err
	}
	defer file.Close()

	var payload FacilityFile
	if err := json.NewDecoder(file).Decode(&payload); err != nil {
		return FacilityFile{}, fmt.Errorf("decode facility file: %w", err)
	}
	for i := range payload.Venues {
		payload.Venues[i].TimeZone = NormalizeVenueTimezone(payload.Venues[i].TimeZone)
		if payload.Venues[i].BookingIncrement == 0 {
			payload.Venues[i].BookingIncrement = 30
		}
		if payload.Venues[i].MaxParallelTeams == 0 {
			payload.Venues[i].MaxParallelTeams = 1
		}
	}
	return payload, nil
}

// ImportFacility upserts every venue, court and team of file in one unit.
func (db *DB) ImportFacility(ctx context.Context, file FacilityFile) error {
	return db.Atomically(ctx, func(tx *Tx) error {
		for _, venue := range file.Venues {
			if err := tx.UpsertVenue(ctx, venue); err != nil {
				return fmt.Errorf("import venue %s: %w", venue.ID, err)
			}
		}
		for _, court := range file.Courts {
			if err := tx.UpsertCourt(ctx, court); err != nil {
				return fmt.Errorf("import court %s: %w", court.ID, err)
			}
		}
		for _, team := range file.Teams {
			if err := tx.UpsertTeam(ctx, team); err != nil {
				return fmt.Errorf("import team %s: %w", team.ID, err)
			}
		}
		return nil
	})
}

func (q *Queries) UpsertVenue(ctx context.Context, venue Venue) error {
	hours, err := json.Marshal(venue.Hours)
	if err != nil {
		return err
	}
	_, err = q.q.ExecContext(ctx, `
INSERT INTO venues (id, club_id, name, active, timezone, hours, supports_parallel, max_parallel_teams, booking_increment)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  club_id = excluded.club_id,
  name = excluded.name,
  active = excluded.active,
  timezone = excluded.timezone,
  hours = excluded.hours,
  supports_parallel = excluded.supports_parallel,
  max_parallel_teams = excluded.max_parallel_teams,
  booking_increment = excluded.booking_increment;`,
		venue.ID,
		venue.ClubID,
		venue.Name,
		boolInt(venue.Active),
		NormalizeVenueTimezone(venue.TimeZone),
		string(hours),
		boolInt(venue.SupportsParallel),
		venue.MaxParallelTeams,
		venue.BookingIncrement,
	)
	return err
}

func (q *Queries) UpsertCourt(ctx context.Context, court Court) error {
	_, err := q.q.ExecContext(ctx, `
INSERT INTO courts (id, venue_id, label, sort_order, active) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  venue_id = excluded.venue_id,
  label = excluded.label,
  sort_order = excluded.sort_order,
  active = excluded.active;`,
		court.ID, court.VenueID, court.Label, court.Order, boolInt(court.Active),
	)
	return err
}

func (q *Queries) UpsertTeam(ctx context.Context, team Team) error {
	_, err := q.q.ExecContext(ctx, `
INSERT INTO teams (id, club_id, name) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET club_id = excluded.club_id, name = excluded.name;`,
		team.ID, team.ClubID, team.Name,
	)
	return err
}

const venueColumns = `v.id, v.club_id, v.name, v.active, v.timezone, v.hours, v.supports_parallel, v.max_parallel_teams, v.booking_increment,
  (SELECT COUNT(*) FROM courts c WHERE c.venue_id = v.id AND c.active = 1)`

func scanVenue(row interface{ Scan(...any) error }) (Venue, error) {
	var venue Venue
	var active, parallel int
	var tz sql.NullString
	var hours string
	if err := row.Scan(
		&venue.ID,
		&venue.ClubID,
		&venue.Name,
		&active,
		&tz,
		&hours,
		&parallel,
		&venue.MaxParallelTeams,
		&venue.BookingIncrement,
		&venue.CourtCount,
	); err != nil {
		return Venue{}, err
	}
	venue.Active = active == 1
	venue.SupportsParallel = parallel == 1
	venue.TimeZone = NormalizeVenueTimezone(tz.String)
	if err := json.Unmarshal([]byte(hours), &venue.Hours); err != nil {
		return Venue{}, fmt.Errorf("decode hours of venue %s: %w", venue.ID, err)
	}
	return venue, nil
}

func (q *Queries) GetVenue(ctx context.Context, id string) (Venue, error) {
	row := q.q.QueryRowContext(ctx, "SELECT "+venueColumns+" FROM venues v WHERE v.id = ?", id)
	venue, err := scanVenue(row)
	if err != nil {
		return Venue{}, notFound(err, "venue", id)
	}
	return venue, nil
}

// ListVenues returns venues ordered by name. An empty clubID lists all clubs.
func (q *Queries) ListVenues(ctx context.Context, clubID string, activeOnly bool) ([]Venue, error) {
	query := "SELECT " + venueColumns + " FROM venues v"
	conds := []string{}
	args := []any{}
	if clubID != "" {
		conds = append(conds, "v.club_id = ?")
		args = append(args, clubID)
	}
	if activeOnly {
		conds = append(conds, "v.active = 1")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY v.name, v.id"

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	venues := []Venue{}
	for rows.Next() {
		venue, err := scanVenue(rows)
		if err != nil {
			return nil, err
		}
		venues = append(venues, venue)
	}
	return venues, rows.Err()
}

// FindVenue matches by id or case-insensitive name.
func FindVenue(venues []Venue, key string) (Venue, bool) {
	needle := strings.ToLower(strings.TrimSpace(key))
	for _, venue := range venues {
		if venue.ID == key || strings.ToLower(venue.Name) == needle {
			return venue, true
		}
	}
	return Venue{}, false
}

// ListCourts returns a venue's courts in display order.
func (q *Queries) ListCourts(ctx context.Context, venueID string, activeOnly bool) ([]Court, error) {
	query := "SELECT id, venue_id, label, sort_order, active FROM courts WHERE venue_id = ?"
	if activeOnly {
		query += " AND active = 1"
	}
	query += " ORDER BY sort_order, id"

	rows, err := q.q.QueryContext(ctx, query, venueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	courts := []Court{}
	for rows.Next() {
		var court Court
		var active int
		if err := rows.Scan(&court.ID, &court.VenueID, &court.Label, &court.Order, &active); err != nil {
			return nil, err
		}
		court.Active = active == 1
		courts = append(courts, court)
	}
	return courts, rows.Err()
}

func (q *Queries) GetCourt(ctx context.Context, id string) (Court, error) {
	var court Court
	var active int
	err := q.q.QueryRowContext(ctx, "SELECT id, venue_id, label, sort_order, active FROM courts WHERE id = ?", id).
		Scan(&court.ID, &court.VenueID, &court.Label, &court.Order, &active)
	if err != nil {
		return Court{}, notFound(err, "court", id)
	}
	court.Active = active == 1
	return court, nil
}

func (q *Queries) GetTeam(ctx context.Context, id string) (Team, error) {
	var team Team
	err := q.q.QueryRowContext(ctx, "SELECT id, club_id, name FROM teams WHERE id = ?", id).
		Scan(&team.ID, &team.ClubID, &team.Name)
	if err != nil {
		return Team{}, notFound(err, "team", id)
	}
	return team, nil
}

func (q *Queries) ListTeams(ctx context.Context, clubID string) ([]Team, error) {
	query := "SELECT id, club_id, name FROM teams"
	args := []any{}
	if clubID != "" {
		query += " WHERE club_id = ?"
		args = append(args, clubID)
	}
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	teams := []Team{}
	for rows.Next() {
		var team Team
		if err := rows.Scan(&team.ID, &team.ClubID, &team.Name); err != nil {
			return nil, err
		}
		teams = append(teams, team)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(teams, func(i, j int) bool {
		return strings.ToLower(teams[i].Name) < strings.ToLower(teams[j].Name)
	})
	return teams, nil
}

// TeamNames maps team ids to display names. Unknown ids map to themselves.
func (q *Queries) TeamNames(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := names[id]; ok {
			continue
		}
		team, err := q.GetTeam(ctx, id)
		if errors.Is(err, ErrNotFound) {
			names[id] = id
			continue
		}
		if err != nil {
			return nil, err
		}
		names[id] = team.Name
	}
	return names, nil
}
