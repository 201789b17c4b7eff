package storage

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"

	MinutesPerDay = 24 * 60
)

// Clock is a time of day in minutes since midnight. 24:00 is allowed as an
// end-of-day closing time.
type Clock int

func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock accepts "HH:MM" and "HH:MM:SS".
func ParseClock(input string) (Clock, error) {
	input = strings.TrimSpace(input)
	if input == "24:00" || input == "24:00:00" {
		return MinutesPerDay, nil
	}
	layout := ClockLayout
	if strings.Count(input, ":") == 2 {
		layout = "15:04:05"
	}
	parsed, err := time.Parse(layout, input)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q (expected HH:MM)", input)
	}
	return NewClock(parsed.Hour(), parsed.Minute()), nil
}

func MustClock(input string) Clock {
	c, err := ParseClock(input)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) Minutes() int { return int(c) }

func (c Clock) Add(minutes int) Clock { return c + Clock(minutes) }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On returns the instant of c on date in loc.
func (c Clock) On(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), int(c)/60, int(c)%60, 0, 0, loc)
}

func (c *Clock) Scan(v any) error {
	switch x := v.(type) {
	case string:
		parsed, err := ParseClock(x)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	case []byte:
		return c.Scan(string(x))
	case int64:
		*c = Clock(x)
		return nil
	case nil:
		*c = 0
		return nil
	default:
		return fmt.Errorf("clock: unsupported Scan type %T", v)
	}
}

func (c Clock) Value() (driver.Value, error) {
	return c.String(), nil
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Window is the half-open time range [Start, End).
type Window struct {
	Start Clock `json:"start"`
	End   Clock `json:"end"`
}

func NewWindow(start Clock, durationMinutes int) Window {
	return Window{Start: start, End: start.Add(durationMinutes)}
}

func (w Window) Duration() int { return int(w.End - w.Start) }

func (w Window) Empty() bool { return w.End <= w.Start }

// Overlaps reports whether w and o share at least one instant.
func (w Window) Overlaps(o Window) bool {
	return w.Start < o.End && o.Start < w.End
}

// Contains reports whether o lies entirely within w.
func (w Window) Contains(o Window) bool {
	return w.Start <= o.Start && o.End <= w.End
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// ParseDate parses a civil date and returns it at midnight UTC.
func ParseDate(input string) (time.Time, error) {
	parsed, err := time.Parse(DateLayout, strings.TrimSpace(input))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", input)
	}
	return parsed, nil
}

// DateOf truncates t to its civil date at midnight UTC.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
