package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidFrequency  = errors.New("invalid frequency code")
	ErrInvalidTimeAnchor = errors.New("invalid time anchor")
)

// Frequency defines how many times a day a dose is due
type Frequency string

const (
	FrequencyQD    Frequency = "QD"
	FrequencyBID   Frequency = "BID"
	FrequencyTID   Frequency = "TID"
	FrequencyQID   Frequency = "QID"
	FrequencyQ12H  Frequency = "Q12H"
	FrequencyQ8H   Frequency = "Q8H"
	FrequencyQ6H   Frequency = "Q6H"
	FrequencyPRN   Frequency = "PRN"
	FrequencyOther Frequency = "OTHER"
)

var frequencies = []Frequency{
	FrequencyQD, FrequencyBID, FrequencyTID, FrequencyQID,
	FrequencyQ12H, FrequencyQ8H, FrequencyQ6H,
	FrequencyPRN, FrequencyOther,
}

// ParseFrequency converts a frequency code (case-insensitive) into a Frequency
func ParseFrequency(s string) (Frequency, error) {
	code := Frequency(strings.ToUpper(strings.TrimSpace(s)))
	for _, f := range frequencies {
		if f == code {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFrequency, s)
}

// Recurring reports whether the frequency produces scheduled doses.
// PRN and OTHER are taken as needed.
func (f Frequency) Recurring() bool {
	switch f {
	case FrequencyPRN, FrequencyOther, "":
		return false
	}
	return true
}

func (f *Frequency) UnmarshalText(text []byte) error {
	parsed, err := ParseFrequency(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// TimeAnchor describes the rough time-of-day intent of a dose
type TimeAnchor string

const (
	AnchorBeforeBreakfast TimeAnchor = "before_breakfast"
	AnchorAfterBreakfast  TimeAnchor = "after_breakfast"
	AnchorBeforeLunch     TimeAnchor = "before_lunch"
	AnchorAfterLunch      TimeAnchor = "after_lunch"
	AnchorBeforeDinner    TimeAnchor = "before_dinner"
	AnchorAfterDinner     TimeAnchor = "after_dinner"
	AnchorBeforeSleep     TimeAnchor = "before_sleep"
	AnchorMorning         TimeAnchor = "morning"
	AnchorNoon            TimeAnchor = "noon"
	AnchorEvening         TimeAnchor = "evening"
)

var anchors = []TimeAnchor{
	AnchorBeforeBreakfast, AnchorAfterBreakfast,
	AnchorBeforeLunch, AnchorAfterLunch,
	AnchorBeforeDinner, AnchorAfterDinner,
	AnchorBeforeSleep, AnchorMorning, AnchorNoon, AnchorEvening,
}

// ParseTimeAnchor converts an anchor code into a TimeAnchor.
// An empty string is accepted and means "no anchor".
func ParseTimeAnchor(s string) (TimeAnchor, error) {
	code := TimeAnchor(strings.ToLower(strings.TrimSpace(s)))
	if code == "" {
		return "", nil
	}
	for _, a := range anchors {
		if a == code {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTimeAnchor, s)
}

func (a *TimeAnchor) UnmarshalText(text []byte) error {
	parsed, err := ParseTimeAnchor(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MedicationPlan is a medication's dosage/frequency/duration record for one user
type MedicationPlan struct {
	ID             string      `json:"id"`
	MedicationName string      `json:"medication_name"`
	Dosage         string      `json:"dosage"`
	Frequency      Frequency   `json:"frequency"`
	TimeAnchor     TimeAnchor  `json:"time_anchor,omitempty"`
	TimeOverrides  []ClockTime `json:"time_overrides,omitempty"`
	StartDate      time.Time   `json:"start_date"`
	EndDate        *time.Time  `json:"end_date,omitempty"`
	Instructions   string      `json:"instructions,omitempty"`
	CancelledAt    *time.Time  `json:"cancelled_at,omitempty"`
}

// Validate checks that the plan carries the fields the scheduler relies on
func (p *MedicationPlan) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("plan id is required")
	}
	if strings.TrimSpace(p.MedicationName) == "" {
		return errors.New("medication name is required")
	}
	if _, err := ParseFrequency(string(p.Frequency)); err != nil {
		return err
	}
	if p.EndDate != nil && !p.StartDate.IsZero() && p.EndDate.Before(p.StartDate) {
		return errors.New("end date is before start date")
	}
	return nil
}

// IsActive returns true if the plan has started, has not ended and was not cancelled
func (p *MedicationPlan) IsActive(now time.Time) bool {
	if p.CancelledAt != nil {
		return false
	}
	if !p.StartDate.IsZero() && now.Before(p.StartDate) {
		return false
	}
	if p.EndDate != nil && !now.Before(*p.EndDate) {
		return false
	}
	return true
}
