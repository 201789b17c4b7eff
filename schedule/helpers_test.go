package schedule

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"hallbook/storage"
)

const testClub = "club-1"

var (
	// Monday, the week the test clock sits in.
	testNow = time.Date(2026, 10, 5, 9, 0, 0, 0, time.UTC)
	// The following Monday.
	monday = time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)

	admin = storage.Actor{UserID: "admin", Name: "Club Admin", AdminOf: []string{testClub}}
)

func trainer(userID string, teams ...string) storage.Actor {
	actor := storage.Actor{UserID: userID, Name: userID}
	for _, team := range teams {
		actor.Memberships = append(actor.Memberships, storage.Membership{TeamID: team, Role: storage.RoleTrainer})
	}
	return actor
}

func openDaily(open, close string) storage.WeeklyHours {
	var hours storage.WeeklyHours
	for day := range hours {
		hours[day] = storage.DayHours{IsOpen: true, OpenTime: storage.MustClock(open), CloseTime: storage.MustClock(close)}
	}
	return hours
}

func testVenue(id string, parallel bool, maxTeams int) storage.Venue {
	return storage.Venue{
		ID:               id,
		ClubID:           testClub,
		Name:             "Hall " + id,
		Active:           true,
		TimeZone:         "UTC",
		Hours:            openDaily("08:00", "22:00"),
		SupportsParallel: parallel,
		MaxParallelTeams: maxTeams,
		BookingIncrement: 30,
	}
}

func testTeams(ids ...string) []storage.Team {
	teams := make([]storage.Team, 0, len(ids))
	for _, id := range ids {
		teams = append(teams, storage.Team{ID: id, ClubID: testClub, Name: "Team " + id})
	}
	return teams
}

type fixture struct {
	ctx    context.Context
	db     *storage.DB
	engine *Engine

	mu     sync.Mutex
	events []Event
}

func newFixture(t *testing.T, facility storage.FacilityFile) *fixture {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "hallbook.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{ctx: context.Background(), db: db}
	if err := db.ImportFacility(f.ctx, facility); err != nil {
		t.Fatalf("import facility: %v", err)
	}
	f.engine = New(db,
		WithClock(func() time.Time { return testNow }),
		WithNotifier(NotifierFunc(func(_ context.Context, e Event) error {
			f.mu.Lock()
			f.events = append(f.events, e)
			f.mu.Unlock()
			return nil
		})),
	)
	return f
}

func (f *fixture) venue(t *testing.T, id string) storage.Venue {
	t.Helper()
	venue, err := f.db.GetVenue(f.ctx, id)
	if err != nil {
		t.Fatalf("get venue %s: %v", id, err)
	}
	return venue
}

func (f *fixture) template(t *testing.T, venueID string, day time.Weekday, start, end string) storage.TimeSlotTemplate {
	t.Helper()
	tpl, err := f.engine.Optimizer.CreateTimeSlot(f.ctx, f.venue(t, venueID), TimeSlotInput{
		DayOfWeek: day,
		StartTime: storage.MustClock(start),
		EndTime:   storage.MustClock(end),
	})
	if err != nil {
		t.Fatalf("create time slot: %v", err)
	}
	return tpl
}

func (f *fixture) reserve(t *testing.T, templateID, teamID, start, end string) storage.Booking {
	t.Helper()
	b, err := f.engine.Bookings.Reserve(f.ctx, trainer("coach-"+teamID, teamID), ReserveInput{
		TemplateID: templateID,
		TeamID:     teamID,
		Date:       monday,
		StartTime:  storage.MustClock(start),
		EndTime:    storage.MustClock(end),
	})
	if err != nil {
		t.Fatalf("reserve %s %s-%s: %v", teamID, start, end, err)
	}
	return b
}

func window(start, end string) storage.Window {
	return storage.Window{Start: storage.MustClock(start), End: storage.MustClock(end)}
}
