package models

const (
	MinAdvanceMinutes        = 0
	MaxAdvanceMinutes        = 60
	MinRepeatIntervalMinutes = 5
	MaxRepeatIntervalMinutes = 60
)

// QuietHours is a daily window in which reminders still fire but without sound or vibration
type QuietHours struct {
	Enabled   bool      `json:"enabled"`
	StartTime ClockTime `json:"start_time"`
	EndTime   ClockTime `json:"end_time"`
}

// Contains reports whether t falls in [StartTime, EndTime) on a wrapping 24h clock.
// A disabled window, or one with equal bounds, contains nothing.
func (q QuietHours) Contains(t ClockTime) bool {
	if !q.Enabled {
		return false
	}
	start, end, cur := q.StartTime.Minutes(), q.EndTime.Minutes(), t.Minutes()

	// Overnight window, e.g. 22:00 to 08:00
	if end < start {
		return cur >= start || cur < end
	}
	return cur >= start && cur < end
}

// ReminderPreferences holds the user's notification settings
type ReminderPreferences struct {
	Enabled               bool       `json:"enabled"`
	Sound                 bool       `json:"sound"`
	Vibration             bool       `json:"vibration"`
	AdvanceMinutes        int        `json:"advance_minutes"`
	RepeatIntervalMinutes int        `json:"repeat_interval_minutes"`
	QuietHours            QuietHours `json:"quiet_hours"`
}

// DefaultReminderPreferences returns the settings used until the user saves their own
func DefaultReminderPreferences() ReminderPreferences {
	return ReminderPreferences{
		Enabled:               true,
		Sound:                 true,
		Vibration:             true,
		AdvanceMinutes:        5,
		RepeatIntervalMinutes: 15,
		QuietHours: QuietHours{
			Enabled:   false,
			StartTime: ClockTime{Hour: 22},
			EndTime:   ClockTime{Hour: 8},
		},
	}
}

// Normalize clamps numeric settings into their allowed ranges
func (p ReminderPreferences) Normalize() ReminderPreferences {
	p.AdvanceMinutes = clamp(p.AdvanceMinutes, MinAdvanceMinutes, MaxAdvanceMinutes)
	p.RepeatIntervalMinutes = clamp(p.RepeatIntervalMinutes, MinRepeatIntervalMinutes, MaxRepeatIntervalMinutes)
	return p
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
