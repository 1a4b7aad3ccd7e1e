package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/DoseboT/internal/metrics"
	"github.com/Kerhoff/DoseboT/internal/models"
	"github.com/Kerhoff/DoseboT/internal/repository"
)

// DefaultAdherenceWindow is the trailing window compliance is computed over
const DefaultAdherenceWindow = 30 * 24 * time.Hour

// AdherenceTracker records taken/skipped doses and derives compliance from the log
type AdherenceTracker struct {
	events  repository.AdherenceRepository
	logger  *logrus.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	window  time.Duration
	now     func() time.Time

	// medicationName resolves a display name for the per-medication breakdown
	medicationName func(ctx context.Context, planID string) string
}

// NewAdherenceTracker creates a tracker on top of an adherence log
func NewAdherenceTracker(
	events repository.AdherenceRepository,
	logger *logrus.Logger,
	m *metrics.Metrics,
	timeout, window time.Duration,
	now func() time.Time,
) *AdherenceTracker {
	if window <= 0 {
		window = DefaultAdherenceWindow
	}
	if now == nil {
		now = time.Now
	}
	return &AdherenceTracker{
		events:  events,
		logger:  logger,
		metrics: m,
		timeout: timeout,
		window:  window,
		now:     now,
	}
}

// RecordTaken appends a TAKEN event. The error is returned as is; the caller
// decides whether to retry.
func (t *AdherenceTracker) RecordTaken(ctx context.Context, planID, dosage, notes string) (*models.AdherenceEvent, error) {
	return t.record(ctx, &models.AdherenceEvent{
		PlanID: planID,
		Kind:   models.AdherenceTaken,
		Dosage: dosage,
		Notes:  notes,
	})
}

// RecordSkipped appends a SKIPPED event
func (t *AdherenceTracker) RecordSkipped(ctx context.Context, planID, reason string) (*models.AdherenceEvent, error) {
	return t.record(ctx, &models.AdherenceEvent{
		PlanID: planID,
		Kind:   models.AdherenceSkipped,
		Reason: reason,
	})
}

func (t *AdherenceTracker) record(ctx context.Context, event *models.AdherenceEvent) (*models.AdherenceEvent, error) {
	if strings.TrimSpace(event.PlanID) == "" {
		return nil, fmt.Errorf("%w: plan id is required", models.ErrInvalidPlan)
	}

	event.ID = uuid.NewString()
	event.Timestamp = t.now()

	ctx, cancel := withTimeout(ctx, t.timeout)
	defer cancel()

	err := t.events.Append(ctx, event)
	t.metrics.AdherenceRecorded(string(event.Kind), err)
	if err != nil {
		return nil, fmt.Errorf("failed to record %s event for plan %s: %w", event.Kind, event.PlanID, err)
	}

	t.logger.WithFields(logrus.Fields{
		"plan_id": event.PlanID,
		"kind":    event.Kind,
	}).Info("Recorded adherence event")

	return event, nil
}

// ComplianceStats computes adherence over the trailing window. With an empty
// planID all plans are aggregated and a per-medication breakdown is attached.
func (t *AdherenceTracker) ComplianceStats(ctx context.Context, planID string) (*models.ComplianceStats, error) {
	end := t.now()
	start := end.Add(-t.window)

	ctx, cancel := withTimeout(ctx, t.timeout)
	defer cancel()

	events, err := t.events.List(ctx, repository.AdherenceFilters{PlanID: planID, Since: &start})
	if err != nil {
		return nil, fmt.Errorf("failed to load adherence events: %w", err)
	}

	stats := Compliance(events)
	stats.PlanID = planID
	stats.WindowStart, stats.WindowEnd = start, end

	if planID != "" {
		stats.MedicationName = t.nameFor(ctx, planID)
		return &stats, nil
	}

	byPlan := make(map[string][]*models.AdherenceEvent)
	for _, e := range events {
		byPlan[e.PlanID] = append(byPlan[e.PlanID], e)
	}
	for id, planEvents := range byPlan {
		s := Compliance(planEvents)
		s.PlanID = id
		s.MedicationName = t.nameFor(ctx, id)
		s.WindowStart, s.WindowEnd = start, end
		stats.PerMedication = append(stats.PerMedication, s)
	}
	sort.Slice(stats.PerMedication, func(i, j int) bool {
		a, b := stats.PerMedication[i], stats.PerMedication[j]
		if a.MedicationName != b.MedicationName {
			return a.MedicationName < b.MedicationName
		}
		return a.PlanID < b.PlanID
	})

	return &stats, nil
}

func (t *AdherenceTracker) nameFor(ctx context.Context, planID string) string {
	if t.medicationName == nil {
		return ""
	}
	return t.medicationName(ctx, planID)
}

// Compliance derives counts, adherence rate and the trailing run of skipped
// doses from events ordered by time.
func Compliance(events []*models.AdherenceEvent) models.ComplianceStats {
	var stats models.ComplianceStats
	for _, e := range events {
		switch e.Kind {
		case models.AdherenceTaken:
			stats.Taken++
			stats.ConsecutiveMissed = 0
		case models.AdherenceSkipped:
			stats.Skipped++
			stats.ConsecutiveMissed++
		}
	}
	if total := stats.Taken + stats.Skipped; total > 0 {
		stats.AdherenceRate = float64(stats.Taken) / float64(total)
	}
	return stats
}
