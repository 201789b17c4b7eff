package storage

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	cases := map[string]Clock{
		"08:00":    480,
		"8:05":     485,
		"21:30:00": 1290,
		"24:00":    MinutesPerDay,
		" 00:00 ":  0,
	}
	for in, want := range cases {
		got, err := ParseClock(in)
		if err != nil {
			t.Fatalf("ParseClock(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseClock(%q) = %d, want %d", in, got, want)
		}
	}
	for _, bad := range []string{"", "25:00", "12:60", "noon"} {
		if _, err := ParseClock(bad); err == nil {
			t.Errorf("ParseClock(%q) should fail", bad)
		}
	}
}

func TestClockText(t *testing.T) {
	c := NewClock(7, 5)
	if c.String() != "07:05" {
		t.Fatalf("String() = %s", c.String())
	}
	raw, err := json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `"07:05"` {
		t.Fatalf("json = %s", raw)
	}
	var back Clock
	if err := json.Unmarshal([]byte(`"24:00"`), &back); err != nil || back != MinutesPerDay {
		t.Fatalf("unmarshal 24:00 = %d, %v", back, err)
	}
	if err := back.Scan([]byte("10:15")); err != nil || back != 615 {
		t.Fatalf("scan = %d, %v", back, err)
	}
}

func TestClockOn(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	date := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
	at := MustClock("18:30").On(date, loc)
	if want := time.Date(2026, 10, 12, 16, 30, 0, 0, time.UTC); !at.Equal(want) {
		t.Fatalf("On = %s, want %s", at, want)
	}
}

func TestWindow(t *testing.T) {
	w := NewWindow(MustClock("10:00"), 90)
	if w.End != MustClock("11:30") || w.Duration() != 90 {
		t.Fatalf("unexpected window %s", w)
	}
	if !w.Contains(Window{Start: MustClock("10:30"), End: MustClock("11:30")}) {
		t.Fatal("window should contain its tail")
	}
	if w.Contains(Window{Start: MustClock("09:59"), End: MustClock("11:00")}) {
		t.Fatal("window should not contain an earlier start")
	}
	if w.Overlaps(Window{Start: MustClock("11:30"), End: MustClock("12:00")}) {
		t.Fatal("adjacent windows do not overlap")
	}
	if !(Window{Start: 600, End: 600}).Empty() {
		t.Fatal("zero length window is empty")
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-10-12")
	if err != nil {
		t.Fatal(err)
	}
	if d.Weekday() != time.Monday || FormatDate(d) != "2026-10-12" {
		t.Fatalf("unexpected date %s", d)
	}
	if _, err := ParseDate("12.10.2026"); err == nil {
		t.Fatal("expected error for non ISO date")
	}
	local := time.Date(2026, 10, 12, 23, 30, 0, 0, time.FixedZone("X", -5*60*60))
	if !DateOf(local).Equal(d) {
		t.Fatalf("DateOf keeps the civil date, got %s", DateOf(local))
	}
}
