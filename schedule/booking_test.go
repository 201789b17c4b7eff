package schedule

import (
	"errors"
	"sync"
	"testing"
	"time"

	"hallbook/storage"
)

func TestCanUserReleaseBooking(t *testing.T) {
	b := storage.Booking{TeamID: "a", BookedByUserID: "u-booker"}
	s := &BookingService{}
	cases := []struct {
		name  string
		actor storage.Actor
		want  bool
	}{
		{"trainer", trainer("u1", "a"), true},
		{"assistant", storage.Actor{UserID: "u2", Memberships: []storage.Membership{{TeamID: "a", Role: storage.RoleAssistantTrainer}}}, true},
		{"booker", storage.Actor{UserID: "u-booker"}, true},
		{"player", storage.Actor{UserID: "u3", Memberships: []storage.Membership{{TeamID: "a", Role: storage.RolePlayer}}}, false},
		{"other trainer", trainer("u4", "b"), false},
		{"anonymous", storage.Actor{}, false},
	}
	for _, tc := range cases {
		if got := s.CanUserReleaseBooking(b, tc.actor); got != tc.want {
			t.Errorf("%s: release = %v, want %v", tc.name, got, tc.want)
		}
		if got := s.CanUserCancelBooking(b, tc.actor); got != tc.want {
			t.Errorf("%s: cancel = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func containsBooking(bookings []storage.Booking, id string) bool {
	for _, b := range bookings {
		if b.ID == id {
			return true
		}
	}
	return false
}

func TestReleaseExclusivity(t *testing.T) {
	f := newFixture(t, storage.FacilityFile{
		Venues: []storage.Venue{testVenue("v1", false, 1)},
		Teams:  testTeams("a", "b", "c"),
	})
	tpl := f.template(t, "v1", time.Monday, "16:00", "18:00")
	b := f.reserve(t, tpl.ID, "a", "16:00", "18:00")

	if _, err := f.engine.Bookings.Release(f.ctx, trainer("coach-b", "b"), b.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("another team's trainer must not release, got %v", err)
	}
	released, err := f.engine.Bookings.Release(f.ctx, trainer("coach-a", "a"), b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if released.Status != storage.BookingReleased || released.OriginalTeamID != "a" || released.ReleasedByTeamID != "a" {
		t.Fatalf("unexpected release %+v", released)
	}

	visible := func(team string) bool {
		t.Helper()
		slots, err := f.engine.Bookings.GetAvailableTimeSlotsForTeam(f.ctx, team, monday, monday)
		if err != nil {
			t.Fatal(err)
		}
		return containsBooking(slots, b.ID)
	}
	if visible("a") {
		t.Fatal("releasing team must not see its own release")
	}
	if !visible("b") || !visible("c") {
		t.Fatal("other teams must see the release")
	}

	if _, err := f.engine.Bookings.Claim(f.ctx, trainer("coach-a", "a"), b.ID, "a"); !errors.Is(err, ErrValidation) {
		t.Fatalf("a team cannot claim its own release, got %v", err)
	}
	claimed, err := f.engine.Bookings.Claim(f.ctx, trainer("coach-b", "b"), b.ID, "b")
	if err != nil {
		t.Fatal(err)
	}
	if claimed.TeamID != "b" || claimed.OriginalTeamID != "a" || claimed.Status != storage.BookingReserved {
		t.Fatalf("unexpected claim %+v", claimed)
	}
	if visible("c") {
		t.Fatal("a claimed booking is no longer available")
	}

	if _, err := f.engine.Bookings.Release(f.ctx, trainer("coach-b", "b"), b.ID); err != nil {
		t.Fatal(err)
	}
	if visible("a") || visible("b") {
		t.Fatal("neither the original nor the releasing team may see the release")
	}
	if !visible("c") {
		t.Fatal("third team must see the second release")
	}

	types := []EventType{}
	for _, e := range f.events {
		types = append(types, e.Type)
	}
	want := []EventType{EventBookingCreated, EventBookingReleased, EventBookingClaimed, EventBookingReleased}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("events = %v, want %v", types, want)
		}
	}
}

func TestReleasedBookingFreesCapacity(t *testing.T) {
	f := newFixture(t, storage.FacilityFile{
		Venues: []storage.Venue{testVenue("v1", false, 1)},
		Teams:  testTeams("a", "b"),
	})
	tpl := f.template(t, "v1", time.Monday, "16:00", "18:00")
	if _, err := f.engine.Optimizer.AssignTimeSlotToTeam(f.ctx, tpl.ID, "a", admin, ""); err != nil {
		t.Fatal(err)
	}
	venue := f.venue(t, "v1")

	slots, err := f.engine.Optimizer.FindAvailableSlots(f.ctx, venue, monday, 60, 1)
	if err != nil {
		t.Fatal(err)
	}
	if hasStart(slots, "16:00") {
		t.Fatal("assigned template should block 16:00")
	}

	b := f.reserve(t, tpl.ID, "a", "16:00", "18:00")
	if _, err := f.engine.Bookings.Release(f.ctx, trainer("coach-a", "a"), b.ID); err != nil {
		t.Fatal(err)
	}
	slots, err = f.engine.Optimizer.FindAvailableSlots(f.ctx, venue, monday, 60, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !hasStart(slots, "16:00") {
		t.Fatal("released date should be open again")
	}
	if _, err := f.engine.Bookings.Claim(f.ctx, trainer("coach-b", "b"), b.ID, "b"); err != nil {
		t.Fatalf("claim: %v", err)
	}
}

func TestReserveValidation(t *testing.T) {
	f := newFixture(t, storage.FacilityFile{
		Venues: []storage.Venue{testVenue("v1", false, 1)},
		Courts: []storage.Court{{ID: "c1", VenueID: "v1", Order: 1, Active: true}},
		Teams:  testTeams("a", "b"),
	})
	tpl := f.template(t, "v1", time.Monday, "16:00", "18:00")
	coach := trainer("coach-a", "a")

	cases := []struct {
		name string
		in   ReserveInput
		code string
	}{
		{"wrong weekday", ReserveInput{TemplateID: tpl.ID, TeamID: "a", Date: monday.AddDate(0, 0, 1)}, CodeWrongDay},
		{"outside template", ReserveInput{TemplateID: tpl.ID, TeamID: "a", Date: monday, StartTime: storage.MustClock("15:00"), EndTime: storage.MustClock("17:00")}, CodeOutsideTemplate},
		{"empty window", ReserveInput{TemplateID: tpl.ID, TeamID: "a", Date: monday, StartTime: storage.MustClock("17:00"), EndTime: storage.MustClock("16:30")}, CodeInvalidRange},
		{"unknown court", ReserveInput{TemplateID: tpl.ID, TeamID: "a", Date: monday, CourtID: "c9"}, CodeInvalidCourt},
		{"missing date", ReserveInput{TemplateID: tpl.ID, TeamID: "a"}, CodeRequired},
		{"before valid_from", ReserveInput{TemplateID: tpl.ID, TeamID: "a", Date: monday.AddDate(0, 0, -14)}, CodeTemplateInactive},
	}
	for _, tc := range cases {
		_, err := f.engine.Bookings.Reserve(f.ctx, coach, tc.in)
		var verrs ValidationErrors
		if !errors.As(err, &verrs) {
			t.Errorf("%s: expected validation error, got %v", tc.name, err)
			continue
		}
		found := false
		for _, e := range verrs {
			if e.Code == tc.code {
				found = true
			}
		}
		if !found {
			t.Errorf("%s: expected %s in %v", tc.name, tc.code, verrs)
		}
	}

	if _, err := f.engine.Bookings.Reserve(f.ctx, trainer("coach-b", "b"), ReserveInput{TemplateID: tpl.ID, TeamID: "a", Date: monday}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	bookings, err := f.db.ListBookings(f.ctx, storage.BookingFilter{})
	if err != nil || len(bookings) != 0 {
		t.Fatalf("rejected requests must not write: %+v, %v", bookings, err)
	}
}

func TestReserveRejectsDuplicateAndAssignedTemplate(t *testing.T) {
	f := newFixture(t, storage.FacilityFile{
		Venues: []storage.Venue{testVenue("v1", false, 1), testVenue("v3", true, 3)},
		Courts: []storage.Court{{ID: "c1", VenueID: "v3", Order: 1, Active: true}},
		Teams:  testTeams("a", "b"),
	})
	exclusive := f.template(t, "v1", time.Monday, "16:00", "18:00")
	if _, err := f.engine.Optimizer.AssignTimeSlotToTeam(f.ctx, exclusive.ID, "a", admin, ""); err != nil {
		t.Fatal(err)
	}
	_, err := f.engine.Bookings.Reserve(f.ctx, trainer("coach-b", "b"), ReserveInput{TemplateID: exclusive.ID, TeamID: "b", Date: monday})
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Conflicts[0].Type != ConflictAlreadyAssigned {
		t.Fatalf("expected already_assigned, got %v", err)
	}

	shared := f.template(t, "v3", time.Monday, "10:00", "12:00")
	f.reserve(t, shared.ID, "a", "10:00", "11:00")
	_, err = f.engine.Bookings.Reserve(f.ctx, trainer("coach-a", "a"), ReserveInput{
		TemplateID: shared.ID, TeamID: "a", Date: monday,
		StartTime: storage.MustClock("10:30"), EndTime: storage.MustClock("11:30"),
	})
	if !errors.As(err, &conflict) || conflict.Conflicts[0].Type != ConflictDuplicate {
		t.Fatalf("expected duplicate_booking, got %v", err)
	}

	_, err = f.engine.Bookings.Reserve(f.ctx, trainer("coach-b", "b"), ReserveInput{
		TemplateID: shared.ID, TeamID: "b", Date: monday, CourtID: "c1",
		StartTime: storage.MustClock("10:00"), EndTime: storage.MustClock("11:00"),
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.engine.Bookings.Reserve(f.ctx, trainer("coach-a", "a"), ReserveInput{
		TemplateID: shared.ID, TeamID: "a", Date: monday, CourtID: "c1",
		StartTime: storage.MustClock("11:00"), EndTime: storage.MustClock("12:00"),
	})
	if err != nil {
		t.Fatalf("court is free after 11:00: %v", err)
	}
}

func TestReserveCourtBusy(t *testing.T) {
	f := newFixture(t, storage.FacilityFile{
		Venues: []storage.Venue{testVenue("v3", true, 3)},
		Courts: []storage.Court{{ID: "c1", VenueID: "v3", Order: 1, Active: true}},
		Teams:  testTeams("a", "b"),
	})
	tpl := f.template(t, "v3", time.Monday, "10:00", "12:00")
	if _, err := f.engine.Bookings.Reserve(f.ctx, trainer("coach-a", "a"), ReserveInput{TemplateID: tpl.ID, TeamID: "a", Date: monday, CourtID: "c1"}); err != nil {
		t.Fatal(err)
	}
	_, err := f.engine.Bookings.Reserve(f.ctx, trainer("coach-b", "b"), ReserveInput{
		TemplateID: tpl.ID, TeamID: "b", Date: monday, CourtID: "c1",
		StartTime: storage.MustClock("11:00"), EndTime: storage.MustClock("12:00"),
	})
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Conflicts[0].Type != ConflictCourtBusy || conflict.Conflicts[0].CourtID != "c1" {
		t.Fatalf("expected court_busy, got %v", err)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	f := newFixture(t, storage.FacilityFile{
		Venues: []storage.Venue{testVenue("v1", false, 1)},
		Teams:  testTeams("a"),
	})
	tpl := f.template(t, "v1", time.Monday, "16:00", "18:00")
	coach := trainer("coach-a", "a")
	b := f.reserve(t, tpl.ID, "a", "16:00", "18:00")

	confirmed, err := f.engine.Bookings.Confirm(f.ctx, coach, b.ID)
	if err != nil || confirmed.Status != storage.BookingConfirmed {
		t.Fatalf("confirm: %+v, %v", confirmed, err)
	}
	if _, err := f.engine.Bookings.Confirm(f.ctx, coach, b.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("confirming twice should be an invalid transition, got %v", err)
	}
	attended, err := f.engine.Bookings.RecordAttendance(f.ctx, coach, b.ID)
	if err != nil || attended.AttendedAt == nil || attended.Status != storage.BookingConfirmed {
		t.Fatalf("attendance: %+v, %v", attended, err)
	}
	canceled, err := f.engine.Bookings.Cancel(f.ctx, coach, b.ID)
	if err != nil || canceled.Status != storage.BookingCanceled {
		t.Fatalf("cancel: %+v, %v", canceled, err)
	}
	for name, op := range map[string]func() error{
		"release": func() error { _, err := f.engine.Bookings.Release(f.ctx, coach, b.ID); return err },
		"cancel":  func() error { _, err := f.engine.Bookings.Cancel(f.ctx, coach, b.ID); return err },
		"attend":  func() error { _, err := f.engine.Bookings.RecordAttendance(f.ctx, coach, b.ID); return err },
	} {
		if err := op(); !errors.Is(err, ErrValidation) {
			t.Errorf("%s on a canceled booking: got %v", name, err)
		}
	}
	if _, err := f.engine.Bookings.Cancel(f.ctx, coach, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConcurrentReserveKeepsCapacity(t *testing.T) {
	teams := []string{"a", "b", "c", "d"}
	f := newFixture(t, storage.FacilityFile{
		Venues: []storage.Venue{testVenue("v1", false, 1)},
		Teams:  testTeams(teams...),
	})
	tpl := f.template(t, "v1", time.Monday, "18:00", "19:00")

	var wg sync.WaitGroup
	errs := make([]error, len(teams))
	for i, team := range teams {
		wg.Add(1)
		go func(i int, team string) {
			defer wg.Done()
			_, errs[i] = f.engine.Bookings.Reserve(f.ctx, trainer("coach-"+team, team), ReserveInput{
				TemplateID: tpl.ID,
				TeamID:     team,
				Date:       monday,
			})
		}(i, team)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrCapacity), errors.Is(err, ErrConcurrency):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one reservation, got %d (%v)", successes, errs)
	}
	held, err := f.engine.Bookings.ListBookings(f.ctx, storage.BookingFilter{
		VenueID:  "v1",
		Statuses: []storage.BookingStatus{storage.BookingReserved},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(held) != 1 {
		t.Fatalf("stored %d reservations for one window", len(held))
	}
}
