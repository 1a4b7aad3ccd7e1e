package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPermissionDenied is returned by a trigger scheduler when the platform
	// refuses to deliver notifications.
	ErrPermissionDenied = errors.New("notification permission denied")
	// ErrTriggerNotFound is returned when cancelling a trigger that is already gone.
	ErrTriggerNotFound = errors.New("trigger not found")
	ErrPersistence     = errors.New("persistence failure")
	ErrTransport       = errors.New("transport failure")
	ErrPartialSchedule = errors.New("partial schedule failure")
	ErrInvalidPlan     = errors.New("invalid medication plan")
	// ErrPreferencesNotApplied means new preferences were saved but some
	// reminders still follow the old ones.
	ErrPreferencesNotApplied = errors.New("preferences saved but reminders were not fully updated")
)

// PartialScheduleError reports the trigger times that failed to register
// while the rest of the plan was scheduled.
type PartialScheduleError struct {
	PlanID string
	Failed []ClockTime
	Err    error
}

func (e *PartialScheduleError) Error() string {
	times := make([]string, len(e.Failed))
	for i, t := range e.Failed {
		times[i] = t.String()
	}
	return fmt.Sprintf("plan %s: %d trigger(s) failed to register [%s]: %v",
		e.PlanID, len(e.Failed), strings.Join(times, ", "), e.Err)
}

func (e *PartialScheduleError) Unwrap() []error {
	return []error{ErrPartialSchedule, e.Err}
}
