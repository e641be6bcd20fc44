// Package market answers exchange-calendar questions: session hours and the
// exchange-local close of an expiration date.
package market

import (
	"fmt"
	"time"
	_ "time/tzdata" // minimal containers ship without zoneinfo
)

// DefaultTimezone is the primary listing exchange's zone.
const DefaultTimezone = "America/New_York"

// Clock is an hour/minute wall-clock time in the exchange zone.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) minutes() int { return c.Hour*60 + c.Minute }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Session describes regular trading hours.
type Session struct {
	Location *time.Location
	Open     Clock
	Close    Clock
}

// NYSE returns the regular 09:30–16:00 New York session.
func NYSE() Session {
	return Session{
		Location: LoadLocation(DefaultTimezone),
		Open:     Clock{Hour: 9, Minute: 30},
		Close:    Clock{Hour: 16, Minute: 0},
	}
}

// LoadLocation loads tz, falling back to New York and finally to a fixed ET offset.
func LoadLocation(tz string) *time.Location {
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err == nil {
		return loc
	}
	if fallback, err2 := time.LoadLocation(DefaultTimezone); err2 == nil {
		return fallback
	}
	return time.FixedZone("ET", -5*60*60)
}

// Now returns the current time in the exchange zone.
func (s Session) Now() time.Time {
	return time.Now().In(s.Location)
}

// IsOpen reports whether the exchange is open at ref, or now when ref is nil.
func (s Session) IsOpen(ref *time.Time) bool {
	if ref == nil {
		return s.IsOpenAt(time.Now())
	}
	return s.IsOpenAt(*ref)
}

// IsOpenAt reports whether t falls strictly inside regular hours on a weekday.
// Comparison is at minute resolution; the open and close minutes are closed.
func (s Session) IsOpenAt(t time.Time) bool {
	local := t.In(s.Location)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	m := local.Hour()*60 + local.Minute()
	return m > s.Open.minutes() && m < s.Close.minutes()
}

// CloseOn returns the session close on the calendar date of d.
// Only d's year, month and day are used.
func (s Session) CloseOn(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), s.Close.Hour, s.Close.Minute, 0, 0, s.Location)
}

// IsOpen reports whether the New York exchange is open at ref, or now when ref is nil.
func IsOpen(ref *time.Time) bool {
	return NYSE().IsOpen(ref)
}
