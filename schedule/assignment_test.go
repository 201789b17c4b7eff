package schedule

import (
	"errors"
	"testing"
	"time"

	"hallbook/storage"
)

func segmentInput(templateID, teamID, start, end string) SegmentInput {
	return SegmentInput{
		TemplateID: templateID,
		TeamID:     teamID,
		StartTime:  storage.MustClock(start),
		EndTime:    storage.MustClock(end),
	}
}

func TestParallelSegmentSplit(t *testing.T) {
	f := newFixture(t, storage.FacilityFile{
		Venues: []storage.Venue{testVenue("v2", true, 2)},
		Teams:  testTeams("a", "b"),
	})
	tpl := f.template(t, "v2", time.Monday, "14:00", "16:00")

	if _, err := f.engine.Assignments.AssignSegment(f.ctx, admin, segmentInput(tpl.ID, "a", "14:00", "15:00")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.Assignments.AssignSegment(f.ctx, admin, segmentInput(tpl.ID, "b", "15:00", "16:00")); err != nil {
		t.Fatal(err)
	}

	buckets, err := f.engine.Assignments.GetAvailableSegmentsForDay(f.ctx, tpl.ID, time.Monday, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(buckets) != 4 {
		t.Fatalf("expected 4 buckets, got %d", len(buckets))
	}
	want := []string{"a", "a", "b", "b"}
	for i, bucket := range buckets {
		if bucket.IsAvailable || len(bucket.AssignedTeams) != 1 || bucket.AssignedTeams[0].ID != want[i] {
			t.Fatalf("bucket %d: %+v", i, bucket)
		}
	}
	if buckets[0].AssignedTeams[0].Name != "Team a" {
		t.Fatalf("team name not resolved: %+v", buckets[0].AssignedTeams)
	}
}

func TestAvailableSegmentsKeepShortTail(t *testing.T) {
	f := newFixture(t, storage.FacilityFile{
		Venues: []storage.Venue{testVenue("v1", true, 2)},
		Teams:  testTeams("a"),
	})
	tpl := f.template(t, "v1", time.Monday, "14:00", "15:15")
	buckets, err := f.engine.Assignments.GetAvailableSegmentsForDay(f.ctx, tpl.ID, time.Monday, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(buckets) != 3 || buckets[2].EndTime != storage.MustClock("15:15") || !buckets[2].IsAvailable {
		t.Fatalf("unexpected buckets %+v", buckets)
	}
}

func TestAssignSegmentCapacity(t *testing.T) {
	f := newFixture(t, storage.FacilityFile{
		Venues: []storage.Venue{testVenue("v2", true, 2)},
		Teams:  testTeams("a", "b", "c"),
	})
	tpl := f.template(t, "v2", time.Monday, "14:00", "16:00")
	assign := func(team, start, end string) error {
		_, err := f.engine.Assignments.AssignSegment(f.ctx, admin, segmentInput(tpl.ID, team, start, end))
		return err
	}

	if err := assign("a", "14:00", "15:00"); err != nil {
		t.Fatal(err)
	}
	if err := assign("b", "14:30", "16:00"); err != nil {
		t.Fatalf("two teams fit a capacity of 2: %v", err)
	}
	if err := assign("c", "14:45", "15:15"); !errors.Is(err, ErrCapacity) {
		t.Fatalf("third overlapping team should exceed capacity, got %v", err)
	}
	if err := assign("c", "15:00", "16:00"); err != nil {
		t.Fatalf("after a leaves only b overlaps: %v", err)
	}
	err := assign("a", "14:30", "15:30")
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Conflicts[0].Type != ConflictAlreadyAssigned {
		t.Fatalf("a team cannot hold overlapping segments, got %v", err)
	}
	if err := assign("a", "13:00", "14:30"); !errors.Is(err, ErrValidation) {
		t.Fatalf("segment outside the template should be invalid, got %v", err)
	}

	views, err := f.engine.Assignments.GetTeamsAssignedToSegment(f.ctx, tpl.ID, time.Monday, window("15:00", "15:30"))
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 2 || views[0].TeamID != "b" || views[1].TeamID != "c" {
		t.Fatalf("unexpected holders %+v", views)
	}
}

func TestAssignSegmentNonParallelVenue(t *testing.T) {
	f := newFixture(t, storage.FacilityFile{
		Venues: []storage.Venue{testVenue("v1", false, 3)},
		Teams:  testTeams("a", "b"),
	})
	tpl := f.template(t, "v1", time.Monday, "14:00", "16:00")
	if _, err := f.engine.Assignments.AssignSegment(f.ctx, admin, segmentInput(tpl.ID, "a", "14:00", "15:00")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.Assignments.AssignSegment(f.ctx, admin, segmentInput(tpl.ID, "b", "14:30", "15:30")); !errors.Is(err, ErrCapacity) {
		t.Fatalf("non-parallel venue holds one team at a time, got %v", err)
	}
	if _, err := f.engine.Assignments.AssignSegment(f.ctx, admin, segmentInput(tpl.ID, "b", "15:00", "16:00")); err != nil {
		t.Fatalf("disjoint halves should fit: %v", err)
	}
}

func TestCustomSegmentOnOtherDayHoldsVenue(t *testing.T) {
	f := newFixture(t, storage.FacilityFile{
		Venues: []storage.Venue{testVenue("v1", false, 1)},
		Teams:  testTeams("a", "b"),
	})
	venue := f.venue(t, "v1")
	custom, err := f.engine.Optimizer.CreateTimeSlot(f.ctx, venue, TimeSlotInput{
		DayOfWeek:       time.Tuesday,
		StartTime:       storage.MustClock("10:00"),
		EndTime:         storage.MustClock("11:00"),
		UsesCustomTimes: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	in := segmentInput(custom.ID, "a", "16:00", "18:00")
	day := time.Monday
	in.DayOfWeek = &day
	if _, err := f.engine.Assignments.AssignSegment(f.ctx, admin, in); err != nil {
		t.Fatal(err)
	}

	slots, err := f.engine.Optimizer.FindAvailableSlots(f.ctx, venue, monday, 60, 1)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"15:30", "16:00", "17:00"} {
		if hasStart(slots, s) {
			t.Fatalf("%s overlaps team a's Monday segment", s)
		}
	}
	if !hasStart(slots, "15:00") || !hasStart(slots, "18:00") {
		t.Fatalf("unexpected candidates %+v", slots)
	}

	tpl := f.template(t, "v1", time.Monday, "16:00", "18:00")
	_, err = f.engine.Bookings.Reserve(f.ctx, trainer("coach-b", "b"), ReserveInput{
		TemplateID: tpl.ID,
		TeamID:     "b",
		Date:       monday,
		StartTime:  storage.MustClock("16:00"),
		EndTime:    storage.MustClock("17:00"),
	})
	if !errors.Is(err, ErrCapacity) {
		t.Fatalf("expected capacity conflict with the segment, got %v", err)
	}
}

func TestAssignSegmentRequiresAdmin(t *testing.T) {
	f := newFixture(t, storage.FacilityFile{
		Venues: []storage.Venue{testVenue("v2", true, 2)},
		Teams:  testTeams("a"),
	})
	tpl := f.template(t, "v2", time.Monday, "14:00", "16:00")
	_, err := f.engine.Assignments.AssignSegment(f.ctx, trainer("coach", "a"), segmentInput(tpl.ID, "a", "14:00", "15:00"))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	_, err = f.engine.Assignments.AssignSegment(f.ctx, admin, SegmentInput{TemplateID: tpl.ID})
	var verrs ValidationErrors
	if !errors.As(err, &verrs) || verrs[0].Field != "team_id" || verrs[0].Code != "required" {
		t.Fatalf("expected team_id required, got %v", err)
	}
}

func TestRemoveTeamAssignmentIsIdempotent(t *testing.T) {
	f := newFixture(t, storage.FacilityFile{
		Venues: []storage.Venue{testVenue("v2", true, 2)},
		Teams:  testTeams("a"),
	})
	tpl := f.template(t, "v2", time.Monday, "14:00", "16:00")
	seg, err := f.engine.Assignments.AssignSegment(f.ctx, admin, segmentInput(tpl.ID, "a", "14:00", "15:00"))
	if err != nil {
		t.Fatal(err)
	}

	removed, err := f.engine.Assignments.RemoveTeamAssignment(f.ctx, tpl.ID, seg.ID)
	if err != nil || !removed {
		t.Fatalf("first removal: %v, %v", removed, err)
	}
	removed, err = f.engine.Assignments.RemoveTeamAssignment(f.ctx, tpl.ID, seg.ID)
	if err != nil || removed {
		t.Fatalf("second removal: %v, %v", removed, err)
	}
	removed, err = f.engine.Assignments.RemoveTeamAssignment(f.ctx, "other-template", seg.ID)
	if err != nil || removed {
		t.Fatalf("removal under another template: %v, %v", removed, err)
	}
}

func TestDeactivateTeamAssignmentKeepsHistory(t *testing.T) {
	f := newFixture(t, storage.FacilityFile{
		Venues: []storage.Venue{testVenue("v2", true, 2)},
		Teams:  testTeams("a"),
	})
	tpl := f.template(t, "v2", time.Monday, "14:00", "16:00")
	seg, err := f.engine.Assignments.AssignSegment(f.ctx, admin, segmentInput(tpl.ID, "a", "14:00", "15:00"))
	if err != nil {
		t.Fatal(err)
	}

	done, err := f.engine.Assignments.DeactivateTeamAssignment(f.ctx, tpl.ID, seg.ID, admin, "season over")
	if err != nil || !done {
		t.Fatalf("deactivate: %v, %v", done, err)
	}
	done, err = f.engine.Assignments.DeactivateTeamAssignment(f.ctx, tpl.ID, seg.ID, admin, "")
	if err != nil || done {
		t.Fatalf("second deactivate: %v, %v", done, err)
	}

	active, err := f.engine.Assignments.GetTeamAssignmentsForDay(f.ctx, tpl.ID, time.Monday)
	if err != nil || len(active) != 0 {
		t.Fatalf("expected no active segments, got %+v, %v", active, err)
	}
	day := time.Monday
	all, err := f.db.ListSegments(f.ctx, tpl.ID, &day, false)
	if err != nil || len(all) != 1 || all[0].Status != storage.SlotInactive || all[0].ValidUntil == nil {
		t.Fatalf("deactivated segment should remain: %+v, %v", all, err)
	}
}

func TestUnassignFromTeamLeavesSegments(t *testing.T) {
	f := newFixture(t, storage.FacilityFile{
		Venues: []storage.Venue{testVenue("v2", true, 2)},
		Teams:  testTeams("a", "b"),
	})
	tpl := f.template(t, "v2", time.Monday, "14:00", "16:00")
	if ok, err := f.engine.Assignments.AssignToTeam(f.ctx, tpl.ID, "a", admin, "whole slot"); err != nil || !ok {
		t.Fatalf("assign: %v, %v", ok, err)
	}
	if _, err := f.engine.Assignments.AssignSegment(f.ctx, admin, segmentInput(tpl.ID, "b", "15:00", "16:00")); err != nil {
		t.Fatal(err)
	}

	ok, err := f.engine.Assignments.UnassignFromTeam(f.ctx, tpl.ID, admin, "team folded")
	if err != nil || !ok {
		t.Fatalf("unassign: %v, %v", ok, err)
	}
	ok, err = f.engine.Assignments.UnassignFromTeam(f.ctx, tpl.ID, admin, "")
	if err != nil || ok {
		t.Fatalf("second unassign: %v, %v", ok, err)
	}

	stored, err := f.db.GetTemplate(f.ctx, tpl.ID)
	if err != nil || stored.TeamID != "" {
		t.Fatalf("team not cleared: %+v, %v", stored, err)
	}
	views, err := f.engine.Assignments.GetTeamAssignmentsForDay(f.ctx, tpl.ID, time.Monday)
	if err != nil || len(views) != 1 || views[0].TeamID != "b" {
		t.Fatalf("segments should be untouched: %+v, %v", views, err)
	}
	audit, err := f.db.ListAudit(f.ctx, "template", tpl.ID)
	if err != nil || len(audit) != 2 || audit[1].Action != "unassign" || audit[1].Reason != "team folded" {
		t.Fatalf("unexpected audit trail %+v, %v", audit, err)
	}
}
