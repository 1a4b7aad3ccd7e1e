package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/Kerhoff/DoseboT/internal/models"
	"github.com/Kerhoff/DoseboT/internal/repository"
)

type adherenceRepo struct {
	mu     sync.RWMutex
	events []models.AdherenceEvent
}

func NewAdherenceRepo() repository.AdherenceRepository {
	return &adherenceRepo{}
}

func (r *adherenceRepo) Append(ctx context.Context, e *models.AdherenceEvent) error {
	if e == nil || e.ID == "" {
		return errors.New("event id required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.events {
		if existing.ID == e.ID {
			return errors.New("event already exists")
		}
	}
	r.events = append(r.events, *e)
	return nil
}

func (r *adherenceRepo) List(ctx context.Context, filters repository.AdherenceFilters) ([]*models.AdherenceEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.AdherenceEvent, 0)
	for i := range r.events {
		if !filters.Matches(&r.events[i]) {
			continue
		}
		e := r.events[i]
		out = append(out, &e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}
