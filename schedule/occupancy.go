package schedule

import (
	"context"
	"errors"
	"sort"
	"time"

	"hallbook/storage"
)

// Occupant is anything that holds a window for a team on a date: a whole
// template assignment, a segment assignment or a dated booking.
type Occupant interface {
	Team() string
	Ref() string
	Occupies(date time.Time, w storage.Window) bool
	conflict(t ConflictType) Conflict
}

type bookingOccupant struct{ storage.Booking }

func (o bookingOccupant) Team() string { return o.TeamID }
func (o bookingOccupant) Ref() string  { return "booking:" + o.ID }

func (o bookingOccupant) conflict(t ConflictType) Conflict {
	return Conflict{Type: t, OtherBookingID: o.ID, TeamID: o.TeamID, CourtID: o.CourtID, Window: o.Window()}
}

func (o bookingOccupant) Occupies(date time.Time, w storage.Window) bool {
	return o.Status.Holding() &&
		storage.DateOf(o.Date).Equal(storage.DateOf(date)) &&
		o.Window().Overlaps(w)
}

type segmentOccupant struct {
	storage.SegmentAssignment
	parent storage.TimeSlotTemplate
}

func (o segmentOccupant) Team() string { return o.TeamID }
func (o segmentOccupant) Ref() string  { return "segment:" + o.ID }

func (o segmentOccupant) conflict(t ConflictType) Conflict {
	return Conflict{Type: t, OtherTemplateID: o.TemplateID, OtherSegmentID: o.ID, TeamID: o.TeamID, Window: o.Window()}
}

func (o segmentOccupant) Occupies(date time.Time, w storage.Window) bool {
	return o.Status == storage.SlotActive &&
		o.DayOfWeek == date.Weekday() &&
		o.parent.ValidOn(date) &&
		o.Window().Overlaps(w)
}

type templateOccupant struct{ storage.TimeSlotTemplate }

func (o templateOccupant) Team() string { return o.TeamID }
func (o templateOccupant) Ref() string  { return "template:" + o.ID }

func (o templateOccupant) conflict(t ConflictType) Conflict {
	return Conflict{Type: t, OtherTemplateID: o.ID, TeamID: o.TeamID, Window: o.Window()}
}

func (o templateOccupant) Occupies(date time.Time, w storage.Window) bool {
	return o.Status == storage.SlotActive &&
		o.TeamID != "" &&
		o.DayOfWeek == date.Weekday() &&
		o.ValidOn(date) &&
		o.Window().Overlaps(w)
}

// occupancy is every occupant of one venue on one date.
type occupancy struct {
	date      time.Time
	occupants []Occupant
}

// loadOccupancy collects the occupants of venue on date. A template
// assignment only counts while its team has no booking record for that
// template on that date: once such a booking exists it is the authoritative
// fact, including a release.
func loadOccupancy(ctx context.Context, q *storage.Queries, venueID string, date time.Time) (occupancy, error) {
	date = storage.DateOf(date)
	day := date.Weekday()
	occ := occupancy{date: date}

	bookings, err := q.ListBookings(ctx, storage.BookingFilter{VenueID: venueID, From: &date, To: &date})
	if err != nil {
		return occupancy{}, err
	}
	instantiated := map[string]bool{}
	for _, b := range bookings {
		instantiated[b.TemplateID+"|"+b.OriginalTeamID] = true
		if b.Status.Holding() {
			occ.occupants = append(occ.occupants, bookingOccupant{b})
		}
	}

	templates, err := q.ListTemplates(ctx, storage.TemplateFilter{VenueID: venueID, Day: &day, ActiveOnly: true})
	if err != nil {
		return occupancy{}, err
	}
	byID := make(map[string]storage.TimeSlotTemplate, len(templates))
	for _, t := range templates {
		byID[t.ID] = t
		if t.TeamID != "" && !instantiated[t.ID+"|"+t.TeamID] {
			occ.occupants = append(occ.occupants, templateOccupant{t})
		}
	}

	segments, err := q.ListVenueSegments(ctx, venueID, day)
	if err != nil {
		return occupancy{}, err
	}
	for _, s := range segments {
		// Custom-time segments may sit on another day than their template.
		parent, ok := byID[s.TemplateID]
		if !ok {
			parent, err = q.GetTemplate(ctx, s.TemplateID)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return occupancy{}, err
			}
			byID[parent.ID] = parent
		}
		if parent.Status != storage.SlotActive {
			continue
		}
		occ.occupants = append(occ.occupants, segmentOccupant{SegmentAssignment: s, parent: parent})
	}
	return occ, nil
}

// overlapping returns the occupants holding any part of w, skipping those
// rejected by skip.
func (o occupancy) overlapping(w storage.Window, skip func(Occupant) bool) []Occupant {
	out := []Occupant{}
	for _, occ := range o.occupants {
		if skip != nil && skip(occ) {
			continue
		}
		if occ.Occupies(o.date, w) {
			out = append(out, occ)
		}
	}
	return out
}

// teams returns the distinct teams occupying w, sorted.
func (o occupancy) teams(w storage.Window, skip func(Occupant) bool) []string {
	return distinctTeams(o.overlapping(w, skip))
}

func occupantConflicts(t ConflictType, occupants []Occupant) []Conflict {
	conflicts := make([]Conflict, 0, len(occupants))
	for _, occ := range occupants {
		conflicts = append(conflicts, occ.conflict(t))
	}
	return conflicts
}

func distinctTeams(occupants []Occupant) []string {
	set := map[string]struct{}{}
	for _, occ := range occupants {
		set[occ.Team()] = struct{}{}
	}
	teams := make([]string, 0, len(set))
	for team := range set {
		teams = append(teams, team)
	}
	sort.Strings(teams)
	return teams
}

// peakConcurrency returns the largest number of windows that overlap at any
// single instant inside within.
func peakConcurrency(windows []storage.Window, within storage.Window) int {
	type edge struct {
		at    storage.Clock
		delta int
	}
	edges := make([]edge, 0, 2*len(windows))
	for _, w := range windows {
		if !w.Overlaps(within) {
			continue
		}
		start, end := w.Start, w.End
		if start < within.Start {
			start = within.Start
		}
		if end > within.End {
			end = within.End
		}
		edges = append(edges, edge{start, 1}, edge{end, -1})
	}
	// Ends sort before starts at the same instant: half-open windows that
	// touch do not overlap.
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].at == edges[j].at {
			return edges[i].delta < edges[j].delta
		}
		return edges[i].at < edges[j].at
	})
	current, peak := 0, 0
	for _, e := range edges {
		current += e.delta
		if current > peak {
			peak = current
		}
	}
	return peak
}
