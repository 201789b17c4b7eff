package schedule

import (
	"errors"
	"testing"
	"time"

	"hallbook/storage"
)

func TestGenerateDailyTimeGrid(t *testing.T) {
	venue := testVenue("v1", false, 1)
	venue.Hours[time.Sunday] = storage.DayHours{IsOpen: false}
	o := &ScheduleOptimizer{}

	grid := o.GenerateDailyTimeGrid(venue, monday, 30)
	if len(grid) != 28 {
		t.Fatalf("expected 28 buckets, got %d", len(grid))
	}
	if grid[0] != window("08:00", "08:30") || grid[27] != window("21:30", "22:00") {
		t.Fatalf("unexpected bounds %s .. %s", grid[0], grid[27])
	}
	if got := o.GenerateDailyTimeGrid(venue, monday.AddDate(0, 0, -1), 30); len(got) != 0 {
		t.Fatalf("closed day should have no buckets, got %d", len(got))
	}

	venue.Hours[time.Monday].CloseTime = storage.MustClock("09:45")
	if got := o.GenerateDailyTimeGrid(venue, monday, 30); len(got) != 3 {
		t.Fatalf("remainder should be dropped, got %d buckets", len(got))
	}
	if got := o.GenerateDailyTimeGrid(venue, monday, 0); len(got) != 3 {
		t.Fatalf("zero increment should use the venue increment, got %d buckets", len(got))
	}
}

func TestFindAvailableSlotsCapacityBoundary(t *testing.T) {
	f := newFixture(t, storage.FacilityFile{
		Venues: []storage.Venue{testVenue("v2", true, 2)},
		Teams:  testTeams("a", "b", "c"),
	})
	tpl := f.template(t, "v2", time.Monday, "10:00", "12:00")
	f.reserve(t, tpl.ID, "a", "10:00", "11:00")
	venue := f.venue(t, "v2")

	slots, err := f.engine.Optimizer.FindAvailableSlots(f.ctx, venue, monday, 30, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !hasStart(slots, "10:30") {
		t.Fatal("second team should fit at 10:30")
	}
	slots, err = f.engine.Optimizer.FindAvailableSlots(f.ctx, venue, monday, 30, 2)
	if err != nil {
		t.Fatal(err)
	}
	if hasStart(slots, "10:30") {
		t.Fatal("two more teams must not fit next to an existing booking")
	}

	f.reserve(t, tpl.ID, "b", "10:30", "11:00")
	slots, err = f.engine.Optimizer.FindAvailableSlots(f.ctx, venue, monday, 30, 1)
	if err != nil {
		t.Fatal(err)
	}
	if hasStart(slots, "10:30") {
		t.Fatal("a third team must not fit at 10:30")
	}
	if !hasStart(slots, "11:00") {
		t.Fatal("11:00 should still be free")
	}

	_, err = f.engine.Bookings.Reserve(f.ctx, trainer("coach-c", "c"), ReserveInput{
		TemplateID: tpl.ID,
		TeamID:     "c",
		Date:       monday,
		StartTime:  storage.MustClock("10:30"),
		EndTime:    storage.MustClock("11:00"),
	})
	var conflict *ConflictError
	if !errors.As(err, &conflict) || !errors.Is(err, ErrCapacity) {
		t.Fatalf("expected capacity conflict, got %v", err)
	}
	if len(conflict.Conflicts) != 2 {
		t.Fatalf("expected both holders reported, got %+v", conflict.Conflicts)
	}
}

func TestFindAvailableSlotsNonParallel(t *testing.T) {
	f := newFixture(t, storage.FacilityFile{
		Venues: []storage.Venue{testVenue("v1", false, 4)},
		Teams:  testTeams("a"),
	})
	tpl := f.template(t, "v1", time.Monday, "10:00", "11:00")
	if _, err := f.engine.Optimizer.AssignTimeSlotToTeam(f.ctx, tpl.ID, "a", admin, "season"); err != nil {
		t.Fatal(err)
	}
	venue := f.venue(t, "v1")

	slots, err := f.engine.Optimizer.FindAvailableSlots(f.ctx, venue, monday, 60, 1)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"09:30", "10:00", "10:30"} {
		if hasStart(slots, s) {
			t.Fatalf("%s overlaps the assigned template", s)
		}
	}
	if !hasStart(slots, "09:00") || !hasStart(slots, "11:00") || !hasStart(slots, "21:00") || hasStart(slots, "21:30") {
		t.Fatalf("unexpected candidates %+v", slots)
	}
	for i := 1; i < len(slots); i++ {
		if slots[i].StartTime <= slots[i-1].StartTime {
			t.Fatal("candidates must be in start order")
		}
	}

	slots, err = f.engine.Optimizer.FindAvailableSlots(f.ctx, venue, monday, 60, 2)
	if err != nil || len(slots) != 0 {
		t.Fatalf("non-parallel venue cannot host two teams, got %d slots, %v", len(slots), err)
	}
}

func TestAddTimeSlotRejectsOverlapAndBadHours(t *testing.T) {
	f := newFixture(t, storage.FacilityFile{Venues: []storage.Venue{testVenue("v1", false, 1)}})
	in := TimeSlotInput{DayOfWeek: time.Monday, StartTime: storage.MustClock("16:00"), EndTime: storage.MustClock("18:00")}

	if _, err := f.engine.Optimizer.AddTimeSlot(f.ctx, trainer("coach", "a"), "v1", in); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	first, err := f.engine.Optimizer.AddTimeSlot(f.ctx, admin, "v1", in)
	if err != nil {
		t.Fatal(err)
	}

	in.StartTime, in.EndTime = storage.MustClock("17:00"), storage.MustClock("19:00")
	_, err = f.engine.Optimizer.AddTimeSlot(f.ctx, admin, "v1", in)
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Conflicts[0].OtherTemplateID != first.ID {
		t.Fatalf("expected overlap with %s, got %v", first.ID, err)
	}

	in.StartTime, in.EndTime = storage.MustClock("21:00"), storage.MustClock("23:00")
	_, err = f.engine.Optimizer.AddTimeSlot(f.ctx, admin, "v1", in)
	var verrs ValidationErrors
	if !errors.As(err, &verrs) || verrs[0].Code != CodeEndAfterClosing {
		t.Fatalf("expected end_after_closing, got %v", err)
	}

	audit, err := f.db.ListAudit(f.ctx, "template", first.ID)
	if err != nil || len(audit) != 1 || audit[0].Action != "create" {
		t.Fatalf("expected create audit record, got %+v, %v", audit, err)
	}
}

func TestExclusiveAssignmentThenConflict(t *testing.T) {
	f := newFixture(t, storage.FacilityFile{
		Venues: []storage.Venue{testVenue("v1", false, 1)},
		Teams:  testTeams("a", "b"),
	})
	first := f.template(t, "v1", time.Monday, "16:00", "18:00")

	ok, err := f.engine.Optimizer.AssignTimeSlotToTeam(f.ctx, first.ID, "a", admin, "season plan")
	if err != nil || !ok {
		t.Fatalf("assign: %v, %v", ok, err)
	}
	ok, err = f.engine.Optimizer.AssignTimeSlotToTeam(f.ctx, first.ID, "b", admin, "")
	if ok || !errors.Is(err, ErrCapacity) {
		t.Fatalf("second assignment should conflict, got %v, %v", ok, err)
	}

	second := f.template(t, "v1", time.Monday, "17:00", "19:00")
	conflicts, err := f.engine.Conflicts.GetTimeSlotConflicts(f.ctx, second)
	if err != nil {
		t.Fatal(err)
	}
	if len(conflicts) != 1 || conflicts[0].Type != ConflictTimeOverlap || conflicts[0].OtherTemplateID != first.ID {
		t.Fatalf("expected one time_overlap with %s, got %+v", first.ID, conflicts)
	}

	stored, err := f.db.GetTemplate(f.ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.TeamID != "a" || stored.AssignedBy != "admin" || stored.AssignedAt == nil {
		t.Fatalf("assignment not recorded: %+v", stored)
	}
	audit, err := f.db.ListAudit(f.ctx, "template", first.ID)
	if err != nil || len(audit) != 1 || audit[0].Reason != "season plan" || audit[0].ActorName != "Club Admin" {
		t.Fatalf("unexpected audit trail %+v, %v", audit, err)
	}
}

func TestAssignTimeSlotToTeamRejectsForeignTeam(t *testing.T) {
	f := newFixture(t, storage.FacilityFile{
		Venues: []storage.Venue{testVenue("v1", false, 1)},
		Teams:  []storage.Team{{ID: "x", ClubID: "other-club", Name: "Visitors"}},
	})
	tpl := f.template(t, "v1", time.Monday, "16:00", "18:00")
	_, err := f.engine.Optimizer.AssignTimeSlotToTeam(f.ctx, tpl.ID, "x", admin, "")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected team_club_mismatch, got %v", err)
	}
	_, err = f.engine.Optimizer.AssignTimeSlotToTeam(f.ctx, tpl.ID, "missing", admin, "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAssignTimeSlotToTeamChecksAdminFirst(t *testing.T) {
	f := newFixture(t, storage.FacilityFile{
		Venues: []storage.Venue{testVenue("v1", false, 1)},
		Teams:  testTeams("a", "b"),
	})
	tpl := f.template(t, "v1", time.Monday, "16:00", "18:00")
	if _, err := f.engine.Optimizer.AssignTimeSlotToTeam(f.ctx, tpl.ID, "a", admin, "season"); err != nil {
		t.Fatal(err)
	}

	_, err := f.engine.Optimizer.AssignTimeSlotToTeam(f.ctx, tpl.ID, "b", trainer("coach-b", "b"), "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		t.Fatalf("owner leaked to a non-admin: %+v", conflict.Conflicts)
	}

	_, err = f.engine.Optimizer.AssignTimeSlotToTeam(f.ctx, tpl.ID, "b", admin, "")
	if !errors.As(err, &conflict) || conflict.Conflicts[0].TeamID != "a" {
		t.Fatalf("expected already assigned to a, got %v", err)
	}
}

func TestOptimalCourtAssignmentWithOneCourt(t *testing.T) {
	f := newFixture(t, storage.FacilityFile{
		Venues: []storage.Venue{testVenue("v1", false, 1)},
		Courts: []storage.Court{{ID: "c1", VenueID: "v1", Label: "Court 1", Order: 1, Active: true}},
	})
	late := f.template(t, "v1", time.Monday, "10:30", "11:30")
	early := f.template(t, "v1", time.Monday, "10:00", "11:00")

	plan, err := f.engine.Optimizer.GetOptimalCourtAssignments(f.ctx, f.venue(t, "v1"), monday, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan) != 2 {
		t.Fatalf("expected both templates reported, got %+v", plan)
	}
	if plan[0].TemplateID != early.ID || !plan[0].Assigned || plan[0].CourtID != "c1" {
		t.Fatalf("earlier template should get the court: %+v", plan[0])
	}
	if plan[0].StartRow != 4 || plan[0].RowSpan != 2 {
		t.Fatalf("unexpected grid span %+v", plan[0])
	}
	if plan[1].TemplateID != late.ID || plan[1].Assigned || len(plan[1].BlockedBy) != 1 || plan[1].BlockedBy[0] != early.ID {
		t.Fatalf("later template should be unassigned: %+v", plan[1])
	}
}

func TestOptimalCourtAssignmentSkipsExpiredTemplates(t *testing.T) {
	f := newFixture(t, storage.FacilityFile{
		Venues: []storage.Venue{testVenue("v1", false, 1)},
		Courts: []storage.Court{
			{ID: "c2", VenueID: "v1", Order: 2, Active: true},
			{ID: "c1", VenueID: "v1", Order: 1, Active: true},
		},
	})
	expired := monday.AddDate(0, 0, -7)
	_, err := f.engine.Optimizer.CreateTimeSlot(f.ctx, f.venue(t, "v1"), TimeSlotInput{
		DayOfWeek:  time.Monday,
		StartTime:  storage.MustClock("10:00"),
		EndTime:    storage.MustClock("11:00"),
		ValidUntil: &expired,
	})
	if err != nil {
		t.Fatal(err)
	}
	a := f.template(t, "v1", time.Monday, "10:00", "11:00")
	b := f.template(t, "v1", time.Monday, "10:00", "11:00")

	plan, err := f.engine.Optimizer.GetOptimalCourtAssignments(f.ctx, f.venue(t, "v1"), monday, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan) != 2 {
		t.Fatalf("expired template should be skipped, got %+v", plan)
	}
	first, second := a.ID, b.ID
	if second < first {
		first, second = second, first
	}
	if plan[0].TemplateID != first || plan[0].CourtID != "c1" || plan[1].TemplateID != second || plan[1].CourtID != "c2" {
		t.Fatalf("equal windows should tie-break by id onto courts in order: %+v", plan)
	}
}

func TestGetCourtSchedule(t *testing.T) {
	f := newFixture(t, storage.FacilityFile{
		Venues: []storage.Venue{testVenue("v1", true, 2)},
		Courts: []storage.Court{
			{ID: "c1", VenueID: "v1", Order: 1, Active: true},
			{ID: "c2", VenueID: "v1", Order: 2, Active: true},
			{ID: "c3", VenueID: "v1", Order: 3, Active: false},
		},
		Teams: testTeams("a"),
	})
	tpl := f.template(t, "v1", time.Monday, "10:00", "12:00")
	if _, err := f.engine.Bookings.Reserve(f.ctx, trainer("coach", "a"), ReserveInput{
		TemplateID: tpl.ID, TeamID: "a", Date: monday, CourtID: "c2",
	}); err != nil {
		t.Fatal(err)
	}

	schedule, err := f.engine.Optimizer.GetCourtSchedule(f.ctx, f.venue(t, "v1"), monday, monday.AddDate(0, 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(schedule) != 2 {
		t.Fatalf("expected two dates, got %d", len(schedule))
	}
	day := schedule["2026-10-12"]
	if len(day) != 2 || len(day[0].Bookings) != 0 || len(day[1].Bookings) != 1 || day[1].Court.ID != "c2" {
		t.Fatalf("unexpected schedule %+v", day)
	}
	if next := schedule["2026-10-13"]; len(next) != 2 || len(next[1].Bookings) != 0 {
		t.Fatalf("unexpected schedule for the next day %+v", next)
	}
}

func hasStart(slots []Candidate, start string) bool {
	for _, s := range slots {
		if s.StartTime == storage.MustClock(start) {
			return true
		}
	}
	return false
}
