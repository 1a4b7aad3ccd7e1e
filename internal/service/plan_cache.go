package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Kerhoff/DoseboT/internal/models"
	"github.com/Kerhoff/DoseboT/internal/repository"
)

const plansKeyPrefix = "reminder:plans:"

// planCache keeps the last known version of every scheduled plan. It serves
// as the plan source when no remote API is configured, and resolves
// medication names for statistics.
type planCache struct {
	store   repository.KVStore
	timeout time.Duration
	now     func() time.Time
}

var _ repository.PlanSource = (*planCache)(nil)

func newPlanCache(store repository.KVStore, timeout time.Duration, now func() time.Time) *planCache {
	return &planCache{store: store, timeout: timeout, now: now}
}

func (c *planCache) Save(ctx context.Context, plan *models.MedicationPlan) error {
	raw, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to encode plan %s: %w", plan.ID, err)
	}

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.store.Set(ctx, plansKeyPrefix+plan.ID, raw); err != nil {
		return fmt.Errorf("%w: failed to cache plan %s: %w", models.ErrPersistence, plan.ID, err)
	}
	return nil
}

func (c *planCache) Remove(ctx context.Context, planID string) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.store.Delete(ctx, plansKeyPrefix+planID); err != nil {
		return fmt.Errorf("%w: failed to drop cached plan %s: %w", models.ErrPersistence, planID, err)
	}
	return nil
}

func (c *planCache) GetPlan(ctx context.Context, id string) (*models.MedicationPlan, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.store.Get(ctx, plansKeyPrefix+id)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read cached plan %s: %w", models.ErrPersistence, id, err)
	}
	if raw == nil {
		return nil, nil
	}

	var plan models.MedicationPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, fmt.Errorf("failed to decode cached plan %s: %w", id, err)
	}
	return &plan, nil
}

// ActivePlans returns the cached plans that are active now
func (c *planCache) ActivePlans(ctx context.Context) ([]*models.MedicationPlan, error) {
	plans, err := c.all(ctx)
	if err != nil {
		return nil, err
	}

	now := c.now()
	active := make([]*models.MedicationPlan, 0, len(plans))
	for _, p := range plans {
		if p.IsActive(now) {
			active = append(active, p)
		}
	}
	return active, nil
}

// Prune drops plans that have ended or were cancelled. Plans that have not
// started yet are kept.
func (c *planCache) Prune(ctx context.Context) (int, error) {
	plans, err := c.all(ctx)
	if err != nil {
		return 0, err
	}

	now := c.now()
	pruned := 0
	for _, p := range plans {
		if p.IsActive(now) || (!p.StartDate.IsZero() && now.Before(p.StartDate) && p.CancelledAt == nil) {
			continue
		}
		if err := c.Remove(ctx, p.ID); err != nil {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}

func (c *planCache) all(ctx context.Context) ([]*models.MedicationPlan, error) {
	listCtx, cancel := withTimeout(ctx, c.timeout)
	keys, err := c.store.Keys(listCtx, plansKeyPrefix)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list cached plans: %w", models.ErrPersistence, err)
	}

	plans := make([]*models.MedicationPlan, 0, len(keys))
	for _, k := range keys {
		plan, err := c.GetPlan(ctx, strings.TrimPrefix(k, plansKeyPrefix))
		if err != nil {
			return nil, err
		}
		if plan != nil {
			plans = append(plans, plan)
		}
	}
	return plans, nil
}
