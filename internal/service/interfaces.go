package service

import (
	"context"

	"github.com/Kerhoff/DoseboT/internal/models"
)

// FireFunc is called by a trigger scheduler when a registered alarm goes off
type FireFunc func(ctx context.Context, fired models.FiredTrigger)

// TriggerScheduler is the host capability that keeps recurring daily alarms.
// Register returns models.ErrPermissionDenied when the platform refuses
// notifications; Cancel returns models.ErrTriggerNotFound when the trigger is
// already gone.
type TriggerScheduler interface {
	Register(ctx context.Context, req models.TriggerRequest) (string, error)
	Cancel(ctx context.Context, triggerID string) error
	SetFireFunc(fn FireFunc)
}

// Acknowledger is implemented by trigger schedulers that repeat an alarm
// until the dose is confirmed.
type Acknowledger interface {
	Acknowledge(planID string)
}
