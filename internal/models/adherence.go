package models

import "time"

// AdherenceKind is the outcome recorded for a dose
type AdherenceKind string

const (
	AdherenceTaken   AdherenceKind = "TAKEN"
	AdherenceSkipped AdherenceKind = "SKIPPED"
)

// AdherenceEvent records a dose being taken or skipped. Events are never modified.
type AdherenceEvent struct {
	ID        string        `json:"id" db:"id"`
	PlanID    string        `json:"plan_id" db:"plan_id"`
	Kind      AdherenceKind `json:"kind" db:"kind"`
	Timestamp time.Time     `json:"timestamp" db:"occurred_at"`
	Dosage    string        `json:"dosage,omitempty" db:"dosage"`
	Reason    string        `json:"reason,omitempty" db:"reason"`
	Notes     string        `json:"notes,omitempty" db:"notes"`
}

// ComplianceStats summarises adherence over a trailing window
type ComplianceStats struct {
	PlanID            string            `json:"plan_id,omitempty"`
	MedicationName    string            `json:"medication_name,omitempty"`
	Taken             int               `json:"taken"`
	Skipped           int               `json:"skipped"`
	AdherenceRate     float64           `json:"adherence_rate"`
	ConsecutiveMissed int               `json:"consecutive_missed"`
	WindowStart       time.Time         `json:"window_start"`
	WindowEnd         time.Time         `json:"window_end"`
	PerMedication     []ComplianceStats `json:"per_medication,omitempty"`
}
