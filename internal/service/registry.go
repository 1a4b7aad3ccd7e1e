package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/DoseboT/internal/models"
	"github.com/Kerhoff/DoseboT/internal/repository"
)

const triggersKeyPrefix = "reminder:triggers:"

// Registry is the durable record of which triggers belong to which plan.
// It is only mutated by the ReminderScheduler, next to the matching
// TriggerScheduler call.
type Registry struct {
	store   repository.KVStore
	logger  *logrus.Logger
	timeout time.Duration
}

// NewRegistry creates a registry on top of a key-value store
func NewRegistry(store repository.KVStore, logger *logrus.Logger, timeout time.Duration) *Registry {
	return &Registry{store: store, logger: logger, timeout: timeout}
}

func triggersKey(planID string) string {
	return triggersKeyPrefix + planID
}

// RecordTriggers replaces the trigger list of a plan. An empty list removes the record.
func (r *Registry) RecordTriggers(ctx context.Context, planID string, triggers []models.ScheduledTrigger) error {
	if len(triggers) == 0 {
		return r.RemoveTriggers(ctx, planID)
	}

	raw, err := json.Marshal(triggers)
	if err != nil {
		return fmt.Errorf("failed to encode triggers for plan %s: %w", planID, err)
	}

	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.store.Set(ctx, triggersKey(planID), raw); err != nil {
		return fmt.Errorf("%w: failed to record triggers for plan %s: %w", models.ErrPersistence, planID, err)
	}
	return nil
}

// TriggersFor returns the triggers recorded for a plan. A read failure is
// logged and treated as "nothing scheduled yet".
func (r *Registry) TriggersFor(ctx context.Context, planID string) []models.ScheduledTrigger {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := r.store.Get(ctx, triggersKey(planID))
	if err != nil {
		r.logger.WithError(err).WithField("plan_id", planID).Warn("Failed to read trigger registry")
		return []models.ScheduledTrigger{}
	}
	if raw == nil {
		return []models.ScheduledTrigger{}
	}

	var triggers []models.ScheduledTrigger
	if err := json.Unmarshal(raw, &triggers); err != nil {
		r.logger.WithError(err).WithField("plan_id", planID).Warn("Trigger registry record is corrupt")
		return []models.ScheduledTrigger{}
	}
	return triggers
}

// RemoveTriggers clears the record for a plan. Removing an absent plan is a no-op.
func (r *Registry) RemoveTriggers(ctx context.Context, planID string) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.store.Delete(ctx, triggersKey(planID)); err != nil {
		return fmt.Errorf("%w: failed to remove triggers for plan %s: %w", models.ErrPersistence, planID, err)
	}
	return nil
}

// PlanIDs lists the plans that currently have triggers recorded
func (r *Registry) PlanIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	keys, err := r.store.Keys(ctx, triggersKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list registry: %w", models.ErrPersistence, err)
	}

	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, triggersKeyPrefix))
	}
	return ids, nil
}
