package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/DoseboT/internal/metrics"
	"github.com/Kerhoff/DoseboT/internal/models"
	"github.com/Kerhoff/DoseboT/internal/repository"
)

// Deps are the collaborators the engine drives
type Deps struct {
	Store     repository.KVStore
	Triggers  TriggerScheduler
	Adherence repository.AdherenceRepository
	// Plans is optional; without it the engine syncs from the plans it has
	// scheduled itself.
	Plans   repository.PlanSource
	Logger  *logrus.Logger
	Metrics *metrics.Metrics
}

// Options tune the engine. Zero values pick defaults.
type Options struct {
	CallTimeout time.Duration
	// AdherenceTimeout bounds adherence log calls; zero means CallTimeout.
	AdherenceTimeout time.Duration
	AdherenceWindow  time.Duration
	Parallelism      int
	Now              func() time.Time
}

// Engine is the medication reminder engine: the only surface the UI layer talks to
type Engine struct {
	logger    *logrus.Logger
	metrics   *metrics.Metrics
	triggers  TriggerScheduler
	plans     repository.PlanSource
	cache     *planCache
	now       func() time.Time
	Registry  *Registry
	Prefs     *PreferenceStore
	Scheduler *ReminderScheduler
	Adherence *AdherenceTracker

	listenOnce sync.Once
	listenerMu sync.RWMutex
	listener   FireFunc
}

// Initialize builds the engine from its dependencies. It does not touch any
// of them; call RegisterFireListener and SyncPlans once the caller is ready.
func Initialize(deps Deps, opts Options) (*Engine, error) {
	if deps.Store == nil {
		return nil, errors.New("key-value store is required")
	}
	if deps.Triggers == nil {
		return nil, errors.New("trigger scheduler is required")
	}
	if deps.Adherence == nil {
		return nil, errors.New("adherence repository is required")
	}
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.AdherenceTimeout <= 0 {
		opts.AdherenceTimeout = opts.CallTimeout
	}

	registry := NewRegistry(deps.Store, deps.Logger, opts.CallTimeout)
	prefs := NewPreferenceStore(deps.Store, deps.Logger, opts.CallTimeout)
	cache := newPlanCache(deps.Store, opts.CallTimeout, opts.Now)

	e := &Engine{
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		triggers:  deps.Triggers,
		plans:     deps.Plans,
		cache:     cache,
		now:       opts.Now,
		Registry:  registry,
		Prefs:     prefs,
		Scheduler: NewReminderScheduler(deps.Triggers, registry, prefs, deps.Logger, deps.Metrics, opts.CallTimeout, opts.Parallelism, opts.Now),
		Adherence: NewAdherenceTracker(deps.Adherence, deps.Logger, deps.Metrics, opts.AdherenceTimeout, opts.AdherenceWindow, opts.Now),
	}
	if e.plans == nil {
		e.plans = cache
	}
	e.Adherence.medicationName = e.medicationName

	return e, nil
}

// RegisterFireListener attaches the engine to the trigger scheduler's fire
// callback and routes fired alarms to fn. Only the first call hooks the
// trigger scheduler; later calls just replace fn.
func (e *Engine) RegisterFireListener(fn FireFunc) {
	e.listenerMu.Lock()
	e.listener = fn
	e.listenerMu.Unlock()

	e.listenOnce.Do(func() {
		e.triggers.SetFireFunc(e.onFire)
		e.logger.Info("Reminder fire listener registered")
	})
}

func (e *Engine) onFire(ctx context.Context, fired models.FiredTrigger) {
	planID := fired.Request.Payload.PlanID
	log := e.logger.WithFields(logrus.Fields{
		"plan_id":    planID,
		"trigger_id": fired.TriggerID,
	})

	// A plan that ended since it was scheduled must not keep reminding
	if plan, err := e.cache.GetPlan(ctx, planID); err == nil && plan != nil && !plan.IsActive(e.now()) {
		log.Info("Plan is no longer active, cancelling its reminders")
		if err := e.Cancel(ctx, planID); err != nil {
			log.WithError(err).Error("Failed to cancel reminders of inactive plan")
		}
		return
	}

	e.metrics.AlarmFired(fired.Request.Silent)

	e.listenerMu.RLock()
	fn := e.listener
	e.listenerMu.RUnlock()

	if fn != nil {
		fn(ctx, fired)
	}
}

// Schedule registers reminders for a plan, replacing any it had
func (e *Engine) Schedule(ctx context.Context, plan *models.MedicationPlan) (*ScheduleResult, error) {
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidPlan, err)
	}
	e.remember(ctx, plan)
	return e.Scheduler.Schedule(ctx, plan)
}

// Reschedule cancels and re-registers a plan's reminders
func (e *Engine) Reschedule(ctx context.Context, plan *models.MedicationPlan) (*ScheduleResult, error) {
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidPlan, err)
	}
	e.remember(ctx, plan)
	return e.Scheduler.Reschedule(ctx, plan)
}

// RescheduleAll reschedules several plans concurrently
func (e *Engine) RescheduleAll(ctx context.Context, plans []*models.MedicationPlan) (map[string]*ScheduleResult, error) {
	for _, p := range plans {
		e.remember(ctx, p)
	}
	return e.Scheduler.RescheduleAll(ctx, plans)
}

// Cancel removes every reminder of a plan. The plan is forgotten; scheduling
// it again starts a new cycle.
func (e *Engine) Cancel(ctx context.Context, planID string) error {
	if err := e.Scheduler.Cancel(ctx, planID); err != nil {
		return err
	}
	if err := e.cache.Remove(ctx, planID); err != nil {
		e.logger.WithError(err).WithField("plan_id", planID).Warn("Failed to forget cancelled plan")
	}
	return nil
}

// Triggers returns the triggers recorded for a plan
func (e *Engine) Triggers(ctx context.Context, planID string) []models.ScheduledTrigger {
	return e.Scheduler.Triggers(ctx, planID)
}

// RecordTaken records a taken dose and silences pending repeats for the plan
func (e *Engine) RecordTaken(ctx context.Context, planID, dosage, notes string) (*models.AdherenceEvent, error) {
	event, err := e.Adherence.RecordTaken(ctx, planID, dosage, notes)
	if err != nil {
		return nil, err
	}
	e.acknowledge(planID)
	return event, nil
}

// RecordSkipped records a skipped dose and silences pending repeats for the plan
func (e *Engine) RecordSkipped(ctx context.Context, planID, reason string) (*models.AdherenceEvent, error) {
	event, err := e.Adherence.RecordSkipped(ctx, planID, reason)
	if err != nil {
		return nil, err
	}
	e.acknowledge(planID)
	return event, nil
}

// ComplianceStats returns adherence statistics for one plan, or all plans when planID is empty
func (e *Engine) ComplianceStats(ctx context.Context, planID string) (*models.ComplianceStats, error) {
	return e.Adherence.ComplianceStats(ctx, planID)
}

// GetPreferences returns the current reminder preferences
func (e *Engine) GetPreferences(ctx context.Context) models.ReminderPreferences {
	return e.Prefs.Get(ctx)
}

// SetPreferences stores new preferences and, when they changed, re-derives
// the triggers of every active plan. The stored (clamped) value is returned.
func (e *Engine) SetPreferences(ctx context.Context, prefs models.ReminderPreferences) (models.ReminderPreferences, error) {
	before := e.Prefs.Get(ctx)

	stored, err := e.Prefs.Set(ctx, prefs)
	if err != nil {
		return stored, err
	}
	if reflect.DeepEqual(before, stored) {
		return stored, nil
	}

	if _, err := e.SyncPlans(ctx, false); err != nil {
		return stored, fmt.Errorf("%w: %w", models.ErrPreferencesNotApplied, err)
	}
	return stored, nil
}

func (e *Engine) remember(ctx context.Context, plan *models.MedicationPlan) {
	if err := e.cache.Save(ctx, plan); err != nil {
		e.logger.WithError(err).WithField("plan_id", plan.ID).Warn("Failed to cache plan")
	}
}

func (e *Engine) acknowledge(planID string) {
	if ack, ok := e.triggers.(Acknowledger); ok {
		ack.Acknowledge(planID)
	}
}

func (e *Engine) medicationName(ctx context.Context, planID string) string {
	if plan, err := e.cache.GetPlan(ctx, planID); err == nil && plan != nil {
		return plan.MedicationName
	}
	if e.plans != repository.PlanSource(e.cache) {
		if plan, err := e.plans.GetPlan(ctx, planID); err == nil && plan != nil {
			return plan.MedicationName
		}
	}
	return planID
}
