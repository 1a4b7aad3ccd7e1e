package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/DoseboT/internal/models"
	"github.com/Kerhoff/DoseboT/internal/repository"
)

const preferencesKey = "reminder:preferences"

// PreferenceStore keeps the single reminder preference record
type PreferenceStore struct {
	store   repository.KVStore
	logger  *logrus.Logger
	timeout time.Duration
}

// NewPreferenceStore creates a preference store on top of a key-value store
func NewPreferenceStore(store repository.KVStore, logger *logrus.Logger, timeout time.Duration) *PreferenceStore {
	return &PreferenceStore{store: store, logger: logger, timeout: timeout}
}

// Get returns the stored preferences, or the defaults when nothing is stored
// or the record cannot be read. It never fails.
func (p *PreferenceStore) Get(ctx context.Context) models.ReminderPreferences {
	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	raw, err := p.store.Get(ctx, preferencesKey)
	if err != nil {
		p.logger.WithError(err).Warn("Failed to read reminder preferences, using defaults")
		return models.DefaultReminderPreferences()
	}
	if raw == nil {
		return models.DefaultReminderPreferences()
	}

	prefs := models.DefaultReminderPreferences()
	if err := json.Unmarshal(raw, &prefs); err != nil {
		p.logger.WithError(err).Warn("Stored reminder preferences are corrupt, using defaults")
		return models.DefaultReminderPreferences()
	}

	return prefs.Normalize()
}

// Set clamps out-of-range values, persists the record and returns what was stored
func (p *PreferenceStore) Set(ctx context.Context, prefs models.ReminderPreferences) (models.ReminderPreferences, error) {
	prefs = prefs.Normalize()

	raw, err := json.Marshal(prefs)
	if err != nil {
		return prefs, fmt.Errorf("failed to encode preferences: %w", err)
	}

	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.store.Set(ctx, preferencesKey, raw); err != nil {
		return prefs, fmt.Errorf("%w: failed to save preferences: %w", models.ErrPersistence, err)
	}

	p.logger.WithFields(logrus.Fields{
		"enabled":         prefs.Enabled,
		"advance_minutes": prefs.AdvanceMinutes,
		"quiet_hours":     prefs.QuietHours.Enabled,
	}).Info("Reminder preferences updated")

	return prefs, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
