package schedule

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"hallbook/storage"
)

const defaultIncrement = 30

// ScheduleOptimizer builds grids, searches availability and maps templates
// onto courts.
type ScheduleOptimizer struct {
	db          *storage.DB
	conflicts   *ConflictDetector
	assignments *AssignmentService
	opts        *options
}

type TimeSlotInput struct {
	DayOfWeek       time.Weekday  `json:"day_of_week" validate:"gte=0,lte=6"`
	StartTime       storage.Clock `json:"start_time" validate:"gte=0,lte=1440"`
	EndTime         storage.Clock `json:"end_time" validate:"gte=0,lte=1440"`
	UsesCustomTimes bool          `json:"uses_custom_times"`
	ValidFrom       time.Time     `json:"valid_from"`
	ValidUntil      *time.Time    `json:"valid_until,omitempty"`
}

// Candidate is a feasible start time returned by FindAvailableSlots.
type Candidate struct {
	StartTime         storage.Clock `json:"start_time"`
	EndTime           storage.Clock `json:"end_time"`
	ExistingTeams     []string      `json:"existing_teams"`
	RemainingCapacity int           `json:"remaining_capacity"`
}

type CourtDaySchedule struct {
	Court    storage.Court     `json:"court"`
	Bookings []storage.Booking `json:"bookings"`
}

// CourtAssignment places one template on a court. CourtID is empty when no
// court was free; BlockedBy then names the templates holding every court.
type CourtAssignment struct {
	TemplateID string         `json:"template_id"`
	TeamID     string         `json:"team_id,omitempty"`
	Window     storage.Window `json:"window"`
	CourtID    string         `json:"court_id,omitempty"`
	Assigned   bool           `json:"assigned"`
	BlockedBy  []string       `json:"blocked_by,omitempty"`
	StartRow   int            `json:"start_row"`
	RowSpan    int            `json:"row_span"`
}

// CreateTimeSlot stores a new template as given. Hours and overlap checks
// are the caller's responsibility; AddTimeSlot does both.
func (o *ScheduleOptimizer) CreateTimeSlot(ctx context.Context, venue storage.Venue, in TimeSlotInput) (storage.TimeSlotTemplate, error) {
	if err := validateInput(in); err != nil {
		return storage.TimeSlotTemplate{}, err
	}
	t := o.newTemplate(venue, in)
	if err := o.db.InsertTemplate(ctx, t); err != nil {
		return storage.TimeSlotTemplate{}, translate(err)
	}
	return t, nil
}

func (o *ScheduleOptimizer) newTemplate(venue storage.Venue, in TimeSlotInput) storage.TimeSlotTemplate {
	now := o.opts.now()
	validFrom := in.ValidFrom
	if validFrom.IsZero() {
		validFrom = now
	}
	return storage.TimeSlotTemplate{
		ID:              o.opts.newID(),
		VenueID:         venue.ID,
		DayOfWeek:       in.DayOfWeek,
		StartTime:       in.StartTime,
		EndTime:         in.EndTime,
		Status:          storage.SlotActive,
		UsesCustomTimes: in.UsesCustomTimes,
		ValidFrom:       storage.DateOf(validFrom),
		ValidUntil:      in.ValidUntil,
		CreatedAt:       now,
	}
}

// AddTimeSlot validates and creates a template in one unit. Venues without
// parallel bookings reject any overlap with another active template; parallel
// venues accept overlaps up to their capacity.
func (o *ScheduleOptimizer) AddTimeSlot(ctx context.Context, actor storage.Actor, venueID string, in TimeSlotInput) (storage.TimeSlotTemplate, error) {
	if err := validateInput(in); err != nil {
		return storage.TimeSlotTemplate{}, err
	}
	var t storage.TimeSlotTemplate
	err := o.db.Atomically(ctx, func(tx *storage.Tx) error {
		venue, err := tx.GetVenue(ctx, venueID)
		if err != nil {
			return err
		}
		if !actor.IsAdminOf(venue.ClubID) {
			return unauthorized("%s is not an administrator of club %s", actor.UserID, venue.ClubID)
		}
		w := storage.Window{Start: in.StartTime, End: in.EndTime}
		errs := validateWindow(w)
		errs = append(errs, validateDayOpen(venue, in.DayOfWeek)...)
		errs = append(errs, validateTimeSlot(w, venue, in.DayOfWeek)...)
		if err := errs.Err(); err != nil {
			return err
		}

		t = o.newTemplate(venue, in)
		conflicts, err := timeSlotConflicts(ctx, tx.Queries, t)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			if !venue.SupportsParallel {
				return conflictErr(conflicts...)
			}
			windows := []storage.Window{w}
			for _, c := range conflicts {
				windows = append(windows, c.Window)
			}
			if peakConcurrency(windows, w) > venue.ParallelCapacity() {
				for i := range conflicts {
					conflicts[i].Type = ConflictCapacity
				}
				return conflictErr(conflicts...)
			}
		}
		if err := tx.InsertTemplate(ctx, t); err != nil {
			return err
		}
		return o.assignments.audit(ctx, tx.Queries, "template", t.ID, "create", actor, "")
	})
	if err != nil {
		return storage.TimeSlotTemplate{}, translate(err)
	}
	o.opts.logger.Info("time slot created",
		zap.String("template_id", t.ID),
		zap.String("venue_id", t.VenueID),
		zap.Stringer("day", t.DayOfWeek),
		zap.Stringer("window", t.Window()),
	)
	return t, nil
}

// AssignTimeSlotToTeam gives an unowned template to a team of the venue's
// club. A template that already has a team is reported as an
// already_assigned conflict with a false result.
func (o *ScheduleOptimizer) AssignTimeSlotToTeam(ctx context.Context, templateID, teamID string, actor storage.Actor, reason string) (bool, error) {
	err := o.db.Atomically(ctx, func(tx *storage.Tx) error {
		t, venue, err := authorizeTemplate(ctx, tx.Queries, templateID, actor)
		if err != nil {
			return err
		}
		if t.TeamID != "" {
			return conflictErr(Conflict{
				Type:            ConflictAlreadyAssigned,
				OtherTemplateID: t.ID,
				TeamID:          t.TeamID,
				Window:          t.Window(),
			})
		}
		if t.Status != storage.SlotActive {
			return invalid("template_id", CodeTemplateInactive, t.ID)
		}
		team, err := tx.GetTeam(ctx, teamID)
		if err != nil {
			return err
		}
		if team.ClubID != venue.ClubID {
			return invalid("team_id", CodeTeamClubMismatch, team.ID)
		}
		return o.assignments.assignTemplate(ctx, tx.Queries, t, teamID, actor, reason)
	})
	if err != nil {
		return false, translate(err)
	}
	o.opts.logger.Info("time slot assigned",
		zap.String("template_id", templateID),
		zap.String("team_id", teamID),
		zap.String("actor_id", actor.UserID),
	)
	return true, nil
}

// GenerateDailyTimeGrid partitions the open hours of date's weekday into
// increment buckets. A trailing remainder shorter than increment is dropped.
// A non-positive increment uses the venue's booking increment.
func (o *ScheduleOptimizer) GenerateDailyTimeGrid(venue storage.Venue, date time.Time, increment int) []storage.Window {
	open, ok := venue.OpenWindow(date.Weekday())
	if !ok {
		return []storage.Window{}
	}
	return dailyGrid(open, effectiveIncrement(venue, increment))
}

func effectiveIncrement(venue storage.Venue, increment int) int {
	if increment > 0 {
		return increment
	}
	if venue.BookingIncrement > 0 {
		return venue.BookingIncrement
	}
	return defaultIncrement
}

func dailyGrid(open storage.Window, increment int) []storage.Window {
	grid := []storage.Window{}
	for start := open.Start; start.Add(increment) <= open.End; start = start.Add(increment) {
		grid = append(grid, storage.NewWindow(start, increment))
	}
	return grid
}

// FindAvailableSlots walks the daily grid and returns, in start order, every
// start at which a window of durationMinutes fits before closing and
// requiredTeams more teams fit under the venue's parallel capacity.
func (o *ScheduleOptimizer) FindAvailableSlots(ctx context.Context, venue storage.Venue, date time.Time, durationMinutes, requiredTeams int) ([]Candidate, error) {
	candidates := []Candidate{}
	open, ok := venue.OpenWindow(date.Weekday())
	if !ok {
		return candidates, nil
	}
	if requiredTeams < 1 {
		requiredTeams = 1
	}
	if requiredTeams > 1 && !venue.SupportsParallel {
		return candidates, nil
	}
	if durationMinutes <= 0 {
		return nil, invalid("duration_minutes", CodeInvalidRange, "")
	}

	capacity := venue.ParallelCapacity()
	err := o.db.Snapshot(ctx, func(tx *storage.Tx) error {
		occ, err := loadOccupancy(ctx, tx.Queries, venue.ID, date)
		if err != nil {
			return err
		}
		for _, bucket := range dailyGrid(open, effectiveIncrement(venue, 0)) {
			w := storage.NewWindow(bucket.Start, durationMinutes)
			if w.End > open.End {
				break
			}
			teams := occ.teams(w, nil)
			available := len(teams)+requiredTeams <= capacity
			if !venue.SupportsParallel {
				available = len(teams) == 0
			}
			if !available {
				continue
			}
			candidates = append(candidates, Candidate{
				StartTime:         w.Start,
				EndTime:           w.End,
				ExistingTeams:     teams,
				RemainingCapacity: capacity - len(teams),
			})
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return candidates, nil
}

// GetCourtSchedule lists, per date in [start, end] and per active court, the
// bookings placed on that court. Canceled bookings are left out.
func (o *ScheduleOptimizer) GetCourtSchedule(ctx context.Context, venue storage.Venue, start, end time.Time) (map[string][]CourtDaySchedule, error) {
	start, end = storage.DateOf(start), storage.DateOf(end)
	if end.Before(start) {
		return nil, invalid("end_date", CodeInvalidRange, storage.FormatDate(end))
	}
	out := map[string][]CourtDaySchedule{}
	err := o.db.Snapshot(ctx, func(tx *storage.Tx) error {
		courts, err := tx.ListCourts(ctx, venue.ID, true)
		if err != nil {
			return err
		}
		bookings, err := tx.ListBookings(ctx, storage.BookingFilter{VenueID: venue.ID, From: &start, To: &end})
		if err != nil {
			return err
		}
		byKey := map[string][]storage.Booking{}
		for _, b := range bookings {
			if b.CourtID == "" || b.Status == storage.BookingCanceled {
				continue
			}
			key := storage.FormatDate(b.Date) + "|" + b.CourtID
			byKey[key] = append(byKey[key], b)
		}
		for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
			date := storage.FormatDate(day)
			entries := make([]CourtDaySchedule, 0, len(courts))
			for _, court := range courts {
				entry := CourtDaySchedule{Court: court, Bookings: byKey[date+"|"+court.ID]}
				if entry.Bookings == nil {
					entry.Bookings = []storage.Booking{}
				}
				entries = append(entries, entry)
			}
			out[date] = entries
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}

// GetOptimalCourtAssignments places the templates valid on date onto courts,
// earliest start first (then earliest end, then id), each on the first court
// in display order that has no overlapping template yet. Templates that find
// no court are returned unassigned.
func (o *ScheduleOptimizer) GetOptimalCourtAssignments(ctx context.Context, venue storage.Venue, date time.Time, increment int) ([]CourtAssignment, error) {
	var templates []storage.TimeSlotTemplate
	var courts []storage.Court
	err := o.db.Snapshot(ctx, func(tx *storage.Tx) error {
		day := date.Weekday()
		all, err := tx.ListTemplates(ctx, storage.TemplateFilter{VenueID: venue.ID, Day: &day, ActiveOnly: true})
		if err != nil {
			return err
		}
		for _, t := range all {
			if t.ValidOn(date) {
				templates = append(templates, t)
			}
		}
		courts, err = tx.ListCourts(ctx, venue.ID, true)
		return err
	})
	if err != nil {
		return nil, translate(err)
	}
	return assignCourts(templates, courts, venue, date, effectiveIncrement(venue, increment)), nil
}

func assignCourts(templates []storage.TimeSlotTemplate, courts []storage.Court, venue storage.Venue, date time.Time, increment int) []CourtAssignment {
	sort.SliceStable(templates, func(i, j int) bool {
		a, b := templates[i], templates[j]
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		if a.EndTime != b.EndTime {
			return a.EndTime < b.EndTime
		}
		return a.ID < b.ID
	})
	open, _ := venue.OpenWindow(date.Weekday())

	type placed struct {
		templateID string
		window     storage.Window
	}
	byCourt := make([][]placed, len(courts))
	out := make([]CourtAssignment, 0, len(templates))
	for _, t := range templates {
		a := CourtAssignment{TemplateID: t.ID, TeamID: t.TeamID, Window: t.Window()}
		if open.End > open.Start {
			a.StartRow = (t.StartTime.Minutes() - open.Start.Minutes()) / increment
			a.RowSpan = (t.Window().Duration() + increment - 1) / increment
		}
		for i, court := range courts {
			free := true
			for _, p := range byCourt[i] {
				if Overlaps(p.window, t.Window()) {
					free = false
					break
				}
			}
			if free {
				byCourt[i] = append(byCourt[i], placed{t.ID, t.Window()})
				a.CourtID = court.ID
				a.Assigned = true
				break
			}
		}
		if !a.Assigned {
			for i := range byCourt {
				for _, p := range byCourt[i] {
					if Overlaps(p.window, t.Window()) {
						a.BlockedBy = append(a.BlockedBy, p.templateID)
					}
				}
			}
		}
		out = append(out, a)
	}
	return out
}

// CheckCourtWindow is ConflictDetector.CheckCourtWindow exposed where the
// optimizer is the caller.
func (o *ScheduleOptimizer) CheckCourtWindow(ctx context.Context, venue storage.Venue, courtIDs []string, date time.Time, start storage.Clock, durationMinutes int) ([]Conflict, error) {
	return o.conflicts.CheckCourtWindow(ctx, venue, courtIDs, date, start, durationMinutes)
}
