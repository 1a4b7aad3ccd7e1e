package repository

import (
	"context"
	"time"

	"github.com/Kerhoff/DoseboT/internal/models"
)

// KVStore defines the interface for the durable key-value store backing the
// reminder registry and the preference record. Set replaces the stored value
// atomically. Get returns nil, nil for an absent key.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// AdherenceRepository defines the interface for the append-only adherence log
type AdherenceRepository interface {
	Append(ctx context.Context, event *models.AdherenceEvent) error
	List(ctx context.Context, filters AdherenceFilters) ([]*models.AdherenceEvent, error)
}

// PlanSource defines the interface for fetching a user's medication plans.
// GetPlan returns nil, nil when the plan is unknown.
type PlanSource interface {
	ActivePlans(ctx context.Context) ([]*models.MedicationPlan, error)
	GetPlan(ctx context.Context, id string) (*models.MedicationPlan, error)
}

// AdherenceFilters represents filters for querying adherence events.
// Results are ordered by timestamp ascending.
type AdherenceFilters struct {
	PlanID string
	Since  *time.Time
	Until  *time.Time
}

// Matches reports whether an event passes the filters
func (f AdherenceFilters) Matches(e *models.AdherenceEvent) bool {
	if f.PlanID != "" && e.PlanID != f.PlanID {
		return false
	}
	if f.Since != nil && e.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && !e.Timestamp.Before(*f.Until) {
		return false
	}
	return true
}
