package alarm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kerhoff/DoseboT/internal/models"
	"github.com/Kerhoff/DoseboT/pkg/logger"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(hhmm string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = models.MustParseClock(hhmm).On(c.t)
}

func (c *clock) NextDay() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.AddDate(0, 0, 1)
}

type recorder struct {
	mu    sync.Mutex
	fired []models.FiredTrigger
}

func (r *recorder) fire(_ context.Context, f models.FiredTrigger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, f)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired)
}

func (r *recorder) last() models.FiredTrigger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fired[len(r.fired)-1]
}

func newTestScheduler(t *testing.T) (*Scheduler, *clock, *recorder) {
	t.Helper()

	c := &clock{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	rec := &recorder{}

	s := New(logger.NewNop(), Config{Location: time.UTC, Now: c.Now})
	s.Authorize(true)
	s.SetFireFunc(rec.fire)
	return s, c, rec
}

func request(planID, at string, repeat time.Duration) models.TriggerRequest {
	return models.TriggerRequest{
		Time:           models.MustParseClock(at),
		Sound:          true,
		RepeatInterval: repeat,
		Payload: models.TriggerPayload{
			PlanID:         planID,
			MedicationName: "Ibuprofen",
			DoseTime:       models.MustParseClock(at),
		},
	}
}

func TestScheduler_RequiresPermission(t *testing.T) {
	s := New(logger.NewNop(), Config{})

	_, err := s.Register(context.Background(), request("p1", "08:00", 0))
	assert.True(t, errors.Is(err, models.ErrPermissionDenied))

	s.Authorize(true)
	_, err = s.Register(context.Background(), request("p1", "08:00", 0))
	assert.NoError(t, err)
}

func TestScheduler_FiresDailyAtClockTime(t *testing.T) {
	ctx := context.Background()
	s, c, rec := newTestScheduler(t)

	id, err := s.Register(ctx, request("p1", "12:30", 0))
	require.NoError(t, err)

	c.Set("12:29")
	s.processDue(ctx)
	assert.Zero(t, rec.count())

	c.Set("12:30")
	s.processDue(ctx)
	require.Equal(t, 1, rec.count())
	assert.Equal(t, id, rec.last().TriggerID)
	assert.Equal(t, "p1", rec.last().Request.Payload.PlanID)
	assert.Zero(t, rec.last().Repeat)

	// once a day only
	c.Set("18:00")
	s.processDue(ctx)
	assert.Equal(t, 1, rec.count())

	c.NextDay()
	c.Set("12:30")
	s.processDue(ctx)
	assert.Equal(t, 2, rec.count())
}

func TestScheduler_PastTimeStartsTomorrow(t *testing.T) {
	ctx := context.Background()
	s, c, rec := newTestScheduler(t)

	_, err := s.Register(ctx, request("p1", "08:00", 0))
	require.NoError(t, err)

	c.Set("23:59")
	s.processDue(ctx)
	assert.Zero(t, rec.count())

	c.NextDay()
	c.Set("08:00")
	s.processDue(ctx)
	assert.Equal(t, 1, rec.count())
}

func TestScheduler_RepeatsUntilMaxRepeats(t *testing.T) {
	ctx := context.Background()
	s, c, rec := newTestScheduler(t)

	_, err := s.Register(ctx, request("p1", "12:30", 15*time.Minute))
	require.NoError(t, err)

	for _, at := range []string{"12:30", "12:45", "13:00", "13:15", "13:30", "13:45"} {
		c.Set(at)
		s.processDue(ctx)
	}

	require.Equal(t, 1+DefaultMaxRepeats, rec.count())
	assert.Equal(t, DefaultMaxRepeats, rec.last().Repeat)
}

func TestScheduler_AcknowledgeStopsRepeats(t *testing.T) {
	ctx := context.Background()
	s, c, rec := newTestScheduler(t)

	_, err := s.Register(ctx, request("p1", "12:30", 15*time.Minute))
	require.NoError(t, err)
	_, err = s.Register(ctx, request("p2", "12:30", 15*time.Minute))
	require.NoError(t, err)

	c.Set("12:30")
	s.processDue(ctx)
	require.Equal(t, 2, rec.count())

	s.Acknowledge("p1")

	c.Set("12:45")
	s.processDue(ctx)
	require.Equal(t, 3, rec.count())
	assert.Equal(t, "p2", rec.last().Request.Payload.PlanID)
	assert.Equal(t, 1, rec.last().Repeat)
}

func TestScheduler_Cancel(t *testing.T) {
	ctx := context.Background()
	s, c, rec := newTestScheduler(t)

	id, err := s.Register(ctx, request("p1", "12:30", 0))
	require.NoError(t, err)
	require.Len(t, s.Pending(), 1)

	require.NoError(t, s.Cancel(ctx, id))
	assert.Empty(t, s.Pending())
	assert.True(t, errors.Is(s.Cancel(ctx, id), models.ErrTriggerNotFound))

	c.Set("12:30")
	s.processDue(ctx)
	assert.Zero(t, rec.count())
}

func TestScheduler_FireFuncMayCancel(t *testing.T) {
	ctx := context.Background()
	s, c, _ := newTestScheduler(t)

	id, err := s.Register(ctx, request("p1", "12:30", 0))
	require.NoError(t, err)

	var cancelErr error
	s.SetFireFunc(func(ctx context.Context, f models.FiredTrigger) {
		cancelErr = s.Cancel(ctx, f.TriggerID)
	})

	c.Set("12:30")
	s.processDue(ctx)

	assert.NoError(t, cancelErr)
	assert.True(t, errors.Is(s.Cancel(ctx, id), models.ErrTriggerNotFound))
}

func TestScheduler_PendingOrderedByNextFire(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestScheduler(t)

	for _, at := range []string{"09:00", "18:00", "12:30"} {
		_, err := s.Register(ctx, request("p1", at, 0))
		require.NoError(t, err)
	}

	pending := s.Pending()
	require.Len(t, pending, 3)
	// 09:00 already passed today, so it comes last
	assert.Equal(t, "12:30", pending[0].Time.String())
	assert.Equal(t, "18:00", pending[1].Time.String())
	assert.Equal(t, "09:00", pending[2].Time.String())
}

func TestScheduler_StartStopsWithContext(t *testing.T) {
	s := New(logger.NewNop(), Config{Tick: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
