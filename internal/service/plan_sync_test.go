package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kerhoff/DoseboT/internal/models"
)

// stubPlans is a PlanSource with a settable plan list
type stubPlans struct {
	mu    sync.Mutex
	plans []*models.MedicationPlan
	err   error
}

func (s *stubPlans) set(plans ...*models.MedicationPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans = plans
}

func (s *stubPlans) ActivePlans(ctx context.Context) ([]*models.MedicationPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]*models.MedicationPlan, len(s.plans))
	for i, p := range s.plans {
		cp := *p
		out[i] = &cp
	}
	return out, nil
}

func (s *stubPlans) GetPlan(ctx context.Context, id string) (*models.MedicationPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.plans {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func TestSyncPlans_SchedulesNewAndCancelsOrphans(t *testing.T) {
	ctx := context.Background()
	source := &stubPlans{}
	f := newEngineFixture(t, source)

	a := testPlan("a", models.FrequencyBID, models.AnchorMorning)
	b := testPlan("b", models.FrequencyQD, models.AnchorEvening)
	source.set(a, b)

	report, err := f.engine.SyncPlans(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, &SyncReport{Rescheduled: 2}, report)
	assert.Len(t, f.triggers.ids(), 3)

	// b was discontinued upstream
	source.set(a)

	report, err = f.engine.SyncPlans(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, &SyncReport{Unchanged: 1, Cancelled: 1}, report)
	assert.Empty(t, f.engine.Triggers(ctx, "b"))
	assert.Len(t, f.triggers.ids(), 2)

	ids, err := f.engine.Registry.PlanIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestSyncPlans_DetectsChangedPlans(t *testing.T) {
	ctx := context.Background()
	source := &stubPlans{}
	f := newEngineFixture(t, source)

	a := testPlan("a", models.FrequencyBID, models.AnchorMorning)
	source.set(a)
	_, err := f.engine.SyncPlans(ctx, false)
	require.NoError(t, err)

	changed := *a
	changed.Dosage = "20mg"
	source.set(&changed)

	report, err := f.engine.SyncPlans(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rescheduled)
	for _, req := range f.triggers.forPlan("a") {
		assert.Equal(t, "20mg", req.Payload.Dosage)
	}

	retimed := changed
	retimed.TimeAnchor = models.AnchorNoon
	source.set(&retimed)

	report, err = f.engine.SyncPlans(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rescheduled)
	assert.Equal(t, []string{"23:55", "11:55"}, triggerTimes(f.engine.Triggers(ctx, "a")))
}

func TestSyncPlans_ForceRestoresLostAlarms(t *testing.T) {
	ctx := context.Background()
	source := &stubPlans{}
	f := newEngineFixture(t, source)

	source.set(testPlan("a", models.FrequencyBID, models.AnchorMorning))
	_, err := f.engine.SyncPlans(ctx, false)
	require.NoError(t, err)

	// the process restarted: the registry survived but the alarms did not
	f.triggers.forget()

	report, err := f.engine.SyncPlans(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rescheduled)
	assert.Len(t, f.triggers.ids(), 2)
	assert.Equal(t, triggerIDs(f.engine.Triggers(ctx, "a")), f.triggers.ids())
}

func TestSyncPlans_SkipsInvalidPlans(t *testing.T) {
	ctx := context.Background()
	source := &stubPlans{}
	f := newEngineFixture(t, source)

	source.set(
		testPlan("good", models.FrequencyQD, models.AnchorMorning),
		&models.MedicationPlan{ID: "bad", MedicationName: "x", Frequency: "hourly"},
	)

	report, err := f.engine.SyncPlans(ctx, false)
	require.Error(t, err)
	assert.Equal(t, 1, report.Rescheduled)
	assert.Len(t, f.triggers.ids(), 1)
}

func TestSyncPlans_SourceFailure(t *testing.T) {
	source := &stubPlans{err: models.ErrTransport}
	f := newEngineFixture(t, source)

	_, err := f.engine.SyncPlans(context.Background(), false)
	assert.True(t, errors.Is(err, models.ErrTransport))
}

func TestStartPlanSync_StopsWithContext(t *testing.T) {
	source := &stubPlans{}
	source.set(testPlan("a", models.FrequencyQD, models.AnchorMorning))
	f := newEngineFixture(t, source)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.engine.StartPlanSync(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(f.triggers.ids()) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("plan sync did not stop")
	}
}
