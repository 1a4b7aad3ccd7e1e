package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Kerhoff/DoseboT/internal/metrics"
	"github.com/Kerhoff/DoseboT/internal/models"
)

// ScheduleResult is the outcome of scheduling one plan
type ScheduleResult struct {
	PlanID   string                    `json:"plan_id"`
	Triggers []models.ScheduledTrigger `json:"triggers"`
	// Warning is set when scheduling completed without alarms for a reason
	// that does not make the plan inactive, e.g. notification permission.
	Warning error `json:"-"`
}

// ReminderScheduler turns medication plans into registered daily triggers and
// keeps the registry in step with the trigger scheduler.
type ReminderScheduler struct {
	triggers TriggerScheduler
	registry *Registry
	prefs    *PreferenceStore
	logger   *logrus.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration
	now      func() time.Time
	locks    *planLocks
	parallel int
}

// NewReminderScheduler creates a scheduler. timeout bounds every trigger
// scheduler call; parallel limits RescheduleAll concurrency.
func NewReminderScheduler(
	triggers TriggerScheduler,
	registry *Registry,
	prefs *PreferenceStore,
	logger *logrus.Logger,
	m *metrics.Metrics,
	timeout time.Duration,
	parallel int,
	now func() time.Time,
) *ReminderScheduler {
	if now == nil {
		now = time.Now
	}
	if parallel <= 0 {
		parallel = 4
	}
	return &ReminderScheduler{
		triggers: triggers,
		registry: registry,
		prefs:    prefs,
		logger:   logger,
		metrics:  m,
		timeout:  timeout,
		now:      now,
		locks:    newPlanLocks(),
		parallel: parallel,
	}
}

// PlanTriggers computes the trigger requests a plan needs under prefs.
// Doses inside quiet hours are kept but marked silent; the advance offset
// moves each alarm earlier, wrapping within the day.
func PlanTriggers(plan *models.MedicationPlan, prefs models.ReminderPreferences, now time.Time) []models.TriggerRequest {
	if !plan.Frequency.Recurring() || !prefs.Enabled || !plan.IsActive(now) {
		return nil
	}

	times := ResolveTimes(plan)
	reqs := make([]models.TriggerRequest, 0, len(times))
	for _, dose := range times {
		silent := prefs.QuietHours.Contains(dose)
		reqs = append(reqs, models.TriggerRequest{
			Time:           dose.AddMinutes(-prefs.AdvanceMinutes),
			Silent:         silent,
			Sound:          prefs.Sound && !silent,
			Vibration:      prefs.Vibration && !silent,
			RepeatInterval: time.Duration(prefs.RepeatIntervalMinutes) * time.Minute,
			Payload: models.TriggerPayload{
				PlanID:         plan.ID,
				MedicationName: plan.MedicationName,
				Dosage:         plan.Dosage,
				Instructions:   plan.Instructions,
				DoseTime:       dose,
			},
		})
	}
	return reqs
}

// Schedule cancels whatever the plan had and registers its current triggers.
// When some registrations fail the rest are kept, recorded and returned
// together with a *models.PartialScheduleError.
func (s *ReminderScheduler) Schedule(ctx context.Context, plan *models.MedicationPlan) (*ScheduleResult, error) {
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidPlan, err)
	}

	unlock := s.locks.Lock(plan.ID)
	defer unlock()

	return s.schedule(ctx, plan)
}

// Cancel cancels every trigger recorded for the plan and clears its record.
// Triggers the scheduler no longer knows about count as cancelled.
func (s *ReminderScheduler) Cancel(ctx context.Context, planID string) error {
	unlock := s.locks.Lock(planID)
	defer unlock()

	return s.cancel(ctx, planID)
}

// Reschedule is Cancel followed by Schedule, under one per-plan lock
func (s *ReminderScheduler) Reschedule(ctx context.Context, plan *models.MedicationPlan) (*ScheduleResult, error) {
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidPlan, err)
	}

	unlock := s.locks.Lock(plan.ID)
	defer unlock()

	if err := s.cancel(ctx, plan.ID); err != nil {
		return &ScheduleResult{PlanID: plan.ID, Triggers: []models.ScheduledTrigger{}},
			fmt.Errorf("failed to cancel triggers for plan %s: %w", plan.ID, err)
	}
	return s.schedule(ctx, plan)
}

// RescheduleAll reschedules several plans concurrently. Every plan is
// attempted; the returned error aggregates the individual failures.
func (s *ReminderScheduler) RescheduleAll(ctx context.Context, plans []*models.MedicationPlan) (map[string]*ScheduleResult, error) {
	var (
		mu      sync.Mutex
		results = make(map[string]*ScheduleResult, len(plans))
		errs    *multierror.Error
	)

	g := new(errgroup.Group)
	g.SetLimit(s.parallel)
	for _, plan := range plans {
		plan := plan
		g.Go(func() error {
			res, err := s.Reschedule(ctx, plan)

			mu.Lock()
			defer mu.Unlock()
			if res != nil {
				results[plan.ID] = res
			}
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("plan %s: %w", plan.ID, err))
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, errs.ErrorOrNil()
}

// Triggers returns the triggers currently recorded for a plan
func (s *ReminderScheduler) Triggers(ctx context.Context, planID string) []models.ScheduledTrigger {
	return s.registry.TriggersFor(ctx, planID)
}

func (s *ReminderScheduler) schedule(ctx context.Context, plan *models.MedicationPlan) (*ScheduleResult, error) {
	log := s.logger.WithField("plan_id", plan.ID)
	result := &ScheduleResult{PlanID: plan.ID, Triggers: []models.ScheduledTrigger{}}

	if err := s.cancel(ctx, plan.ID); err != nil {
		return result, fmt.Errorf("failed to cancel existing triggers for plan %s: %w", plan.ID, err)
	}

	now := s.now()
	reqs := PlanTriggers(plan, s.prefs.Get(ctx), now)
	if len(reqs) == 0 {
		log.Debug("No recurring reminders needed for plan")
		return result, s.registry.RecordTriggers(ctx, plan.ID, nil)
	}

	var (
		errs   *multierror.Error
		failed []models.ClockTime
	)
	for _, req := range reqs {
		id, err := s.register(ctx, req)
		if errors.Is(err, models.ErrPermissionDenied) {
			result.Warning = err
			log.WithError(err).Warn("Notification permission denied, plan stays active without alarms")
			break
		}
		if err != nil {
			s.metrics.TriggerFailed()
			failed = append(failed, req.Time)
			errs = multierror.Append(errs, fmt.Errorf("trigger at %s: %w", req.Time, err))
			continue
		}

		s.metrics.TriggerRegistered()
		result.Triggers = append(result.Triggers, models.ScheduledTrigger{
			ID:        id,
			PlanID:    plan.ID,
			Time:      req.Time,
			DoseTime:  req.Payload.DoseTime,
			Silent:    req.Silent,
			CreatedAt: now,
		})
	}

	if err := s.registry.RecordTriggers(ctx, plan.ID, result.Triggers); err != nil {
		// Unrecorded triggers could never be cancelled; take them back down.
		s.rollback(ctx, result.Triggers)
		result.Triggers = []models.ScheduledTrigger{}
		return result, err
	}

	log.WithFields(logrus.Fields{
		"medication": plan.MedicationName,
		"triggers":   len(result.Triggers),
		"failed":     len(failed),
	}).Info("Scheduled medication reminders")

	if len(failed) > 0 {
		return result, &models.PartialScheduleError{PlanID: plan.ID, Failed: failed, Err: errs.ErrorOrNil()}
	}
	return result, nil
}

func (s *ReminderScheduler) register(ctx context.Context, req models.TriggerRequest) (string, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	return s.triggers.Register(ctx, req)
}

func (s *ReminderScheduler) cancelTrigger(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	err := s.triggers.Cancel(ctx, id)
	if err != nil && !errors.Is(err, models.ErrTriggerNotFound) {
		return err
	}
	s.metrics.TriggerCancelled()
	return nil
}

func (s *ReminderScheduler) cancel(ctx context.Context, planID string) error {
	existing := s.registry.TriggersFor(ctx, planID)

	var (
		errs      *multierror.Error
		remaining []models.ScheduledTrigger
	)
	for _, t := range existing {
		if err := s.cancelTrigger(ctx, t.ID); err != nil {
			// keep it recorded so a later cancel can retry
			remaining = append(remaining, t)
			errs = multierror.Append(errs, fmt.Errorf("cancel trigger %s: %w", t.ID, err))
		}
	}

	if err := s.registry.RecordTriggers(ctx, planID, remaining); err != nil {
		errs = multierror.Append(errs, err)
	}

	if len(existing) > 0 {
		s.logger.WithFields(logrus.Fields{
			"plan_id":   planID,
			"cancelled": len(existing) - len(remaining),
			"remaining": len(remaining),
		}).Info("Cancelled medication reminders")
	}

	return errs.ErrorOrNil()
}

func (s *ReminderScheduler) rollback(ctx context.Context, triggers []models.ScheduledTrigger) {
	for _, t := range triggers {
		if err := s.cancelTrigger(ctx, t.ID); err != nil {
			s.logger.WithError(err).WithField("trigger_id", t.ID).Error("Failed to roll back unrecorded trigger")
		}
	}
}

// planLocks serialises operations on the same plan id
type planLocks struct {
	mu    sync.Mutex
	locks map[string]*planLock
}

type planLock struct {
	mu   sync.Mutex
	refs int
}

func newPlanLocks() *planLocks {
	return &planLocks{locks: make(map[string]*planLock)}
}

// Lock blocks until the plan is free and returns the matching unlock
func (l *planLocks) Lock(planID string) func() {
	l.mu.Lock()
	pl, ok := l.locks[planID]
	if !ok {
		pl = &planLock{}
		l.locks[planID] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()

	return func() {
		pl.mu.Unlock()

		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.locks, planID)
		}
		l.mu.Unlock()
	}
}
