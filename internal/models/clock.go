package models

import (
	"encoding/json"
	"fmt"
	"time"
)

const minutesPerDay = 24 * 60

// ClockTime is a wall-clock time of day (24h, minute precision)
type ClockTime struct {
	Hour   int
	Minute int
}

// NewClockTime builds a ClockTime, normalising out-of-range values onto the 24h clock
func NewClockTime(hour, minute int) ClockTime {
	return clockFromMinutes(hour*60 + minute)
}

// ParseClock parses an "HH:MM" string
func ParseClock(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// MustParseClock is ParseClock for constant inputs; it panics on error
func MustParseClock(s string) ClockTime {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func clockFromMinutes(m int) ClockTime {
	m %= minutesPerDay
	if m < 0 {
		m += minutesPerDay
	}
	return ClockTime{Hour: m / 60, Minute: m % 60}
}

// Minutes returns the number of minutes since midnight
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

// AddHours adds hours, wrapping around midnight
func (c ClockTime) AddHours(hours int) ClockTime {
	return clockFromMinutes(c.Minutes() + hours*60)
}

// AddMinutes adds (or with a negative value subtracts) minutes, wrapping around midnight
func (c ClockTime) AddMinutes(minutes int) ClockTime {
	return clockFromMinutes(c.Minutes() + minutes)
}

// Before reports whether c is earlier in the day than other
func (c ClockTime) Before(other ClockTime) bool {
	return c.Minutes() < other.Minutes()
}

// On returns the instant at this clock time on the day of t, in t's location
func (c ClockTime) On(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), c.Hour, c.Minute, 0, 0, t.Location())
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("clock time must be a string: %w", err)
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// AddHours adds hours to an "HH:MM" string, wrapping modulo 24h
func AddHours(hhmm string, hours int) (string, error) {
	c, err := ParseClock(hhmm)
	if err != nil {
		return "", err
	}
	return c.AddHours(hours).String(), nil
}
