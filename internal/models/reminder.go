package models

import "time"

// ScheduledTrigger is a single recurring daily alarm registered for a plan
type ScheduledTrigger struct {
	ID        string    `json:"id"`
	PlanID    string    `json:"plan_id"`
	Time      ClockTime `json:"time"`
	DoseTime  ClockTime `json:"dose_time"`
	Silent    bool      `json:"silent"`
	CreatedAt time.Time `json:"created_at"`
}

// TriggerPayload travels with a registered trigger so that a fired alarm can describe itself
type TriggerPayload struct {
	PlanID         string    `json:"plan_id"`
	MedicationName string    `json:"medication_name"`
	Dosage         string    `json:"dosage"`
	Instructions   string    `json:"instructions,omitempty"`
	DoseTime       ClockTime `json:"dose_time"`
}

// TriggerRequest describes a daily alarm to register with a trigger scheduler
type TriggerRequest struct {
	Time           ClockTime
	Silent         bool
	Sound          bool
	Vibration      bool
	RepeatInterval time.Duration
	Payload        TriggerPayload
}

// FiredTrigger is handed to listeners when an alarm goes off
type FiredTrigger struct {
	TriggerID string
	Request   TriggerRequest
	FiredAt   time.Time
	Repeat    int
}
