package service

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/DoseboT/internal/models"
)

// SyncReport summarises one plan synchronisation
type SyncReport struct {
	Rescheduled int `json:"rescheduled"`
	Unchanged   int `json:"unchanged"`
	Cancelled   int `json:"cancelled"`
}

// StartPlanSync runs SyncPlans every interval until the context is cancelled,
// so it should be launched in a separate goroutine.
func (e *Engine) StartPlanSync(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Infof("Plan sync started (every %s)", interval)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Plan sync stopped")
			return
		case <-ticker.C:
			if _, err := e.SyncPlans(ctx, false); err != nil {
				e.logger.WithError(err).Error("Plan sync failed")
			}
		}
	}
}

// SyncPlans brings the registered triggers in line with the active plans:
// plans whose trigger set is out of date are rescheduled and triggers of
// plans that are no longer active are cancelled. With force every active
// plan is rescheduled, which restores alarms after a restart.
func (e *Engine) SyncPlans(ctx context.Context, force bool) (*SyncReport, error) {
	report := &SyncReport{}

	plans, err := e.plans.ActivePlans(ctx)
	if err != nil {
		err = fmt.Errorf("failed to fetch active plans: %w", err)
		e.metrics.PlanSyncRun(err)
		return report, err
	}

	var errs *multierror.Error
	prefs := e.Prefs.Get(ctx)
	now := e.now()
	active := make(map[string]bool, len(plans))

	var stale []*models.MedicationPlan
	for _, plan := range plans {
		if err := plan.Validate(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("plan %s: %w", plan.ID, err))
			continue
		}
		active[plan.ID] = true
		if !force && e.samePayload(ctx, plan) &&
			triggersMatch(e.Registry.TriggersFor(ctx, plan.ID), PlanTriggers(plan, prefs, now)) {
			report.Unchanged++
			continue
		}
		stale = append(stale, plan)
	}

	if len(stale) > 0 {
		results, err := e.RescheduleAll(ctx, stale)
		report.Rescheduled = len(results)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	registered, err := e.Registry.PlanIDs(ctx)
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	for _, id := range registered {
		if active[id] {
			continue
		}
		if err := e.Cancel(ctx, id); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("plan %s: %w", id, err))
			continue
		}
		report.Cancelled++
	}

	if _, err := e.cache.Prune(ctx); err != nil {
		e.logger.WithError(err).Warn("Failed to prune plan cache")
	}

	e.logger.WithFields(logrus.Fields{
		"rescheduled": report.Rescheduled,
		"unchanged":   report.Unchanged,
		"cancelled":   report.Cancelled,
		"forced":      force,
	}).Info("Plan sync completed")

	err = errs.ErrorOrNil()
	e.metrics.PlanSyncRun(err)
	return report, err
}

// triggersMatch reports whether the recorded triggers are exactly the ones the plan needs
func triggersMatch(recorded []models.ScheduledTrigger, wanted []models.TriggerRequest) bool {
	if len(recorded) != len(wanted) {
		return false
	}
	for i := range wanted {
		r, w := recorded[i], wanted[i]
		if r.Time != w.Time || r.DoseTime != w.Payload.DoseTime || r.Silent != w.Silent {
			return false
		}
	}
	return true
}

// samePayload reports whether the alarms registered for the plan still
// describe it correctly
func (e *Engine) samePayload(ctx context.Context, plan *models.MedicationPlan) bool {
	cached, err := e.cache.GetPlan(ctx, plan.ID)
	if err != nil || cached == nil {
		return false
	}
	return cached.MedicationName == plan.MedicationName &&
		cached.Dosage == plan.Dosage &&
		cached.Instructions == plan.Instructions
}
