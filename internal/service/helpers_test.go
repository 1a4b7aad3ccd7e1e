package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/Kerhoff/DoseboT/internal/models"
	"github.com/Kerhoff/DoseboT/internal/repository"
	"github.com/Kerhoff/DoseboT/internal/repository/memory"
	"github.com/Kerhoff/DoseboT/pkg/logger"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

// testClock is a settable clock for code that takes a now func
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: testNow}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// fakeTriggers is an in-memory TriggerScheduler
type fakeTriggers struct {
	mu        sync.Mutex
	seq       int
	entries   map[string]models.TriggerRequest
	denied    bool
	failAt    map[models.ClockTime]error
	cancelErr error
	fire      FireFunc
	fireSets  int
	acked     []string
}

var _ TriggerScheduler = (*fakeTriggers)(nil)
var _ Acknowledger = (*fakeTriggers)(nil)

func newFakeTriggers() *fakeTriggers {
	return &fakeTriggers{
		entries: make(map[string]models.TriggerRequest),
		failAt:  make(map[models.ClockTime]error),
	}
}

func (f *fakeTriggers) Register(ctx context.Context, req models.TriggerRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.denied {
		return "", models.ErrPermissionDenied
	}
	if err, ok := f.failAt[req.Time]; ok {
		return "", err
	}
	f.seq++
	id := fmt.Sprintf("trigger-%d", f.seq)
	f.entries[id] = req
	return id, nil
}

func (f *fakeTriggers) Cancel(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancelErr != nil {
		return f.cancelErr
	}
	if _, ok := f.entries[id]; !ok {
		return models.ErrTriggerNotFound
	}
	delete(f.entries, id)
	return nil
}

func (f *fakeTriggers) SetFireFunc(fn FireFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fire = fn
	f.fireSets++
}

func (f *fakeTriggers) Acknowledge(planID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, planID)
}

func (f *fakeTriggers) setCancelErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelErr = err
}

func (f *fakeTriggers) forget() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = make(map[string]models.TriggerRequest)
}

// ids returns the live trigger ids, sorted
func (f *fakeTriggers) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.entries))
	for id := range f.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (f *fakeTriggers) forPlan(planID string) []models.TriggerRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.TriggerRequest
	for _, req := range f.entries {
		if req.Payload.PlanID == planID {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// mockTriggers is a testify mock of TriggerScheduler
type mockTriggers struct {
	mock.Mock
}

func (m *mockTriggers) Register(ctx context.Context, req models.TriggerRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockTriggers) Cancel(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockTriggers) SetFireFunc(fn FireFunc) {
	m.Called(fn)
}

// flakyStore wraps a KVStore and fails selected operations
type flakyStore struct {
	repository.KVStore
	mu          sync.Mutex
	failGet     bool
	failSetWith string // key prefix whose writes fail
}

var errStoreDown = errors.New("store unavailable")

func newFlakyStore() *flakyStore {
	return &flakyStore{KVStore: memory.NewKVStore()}
}

func (s *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	fail := s.failGet
	s.mu.Unlock()
	if fail {
		return nil, errStoreDown
	}
	return s.KVStore.Get(ctx, key)
}

func (s *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	prefix := s.failSetWith
	s.mu.Unlock()
	if prefix != "" && strings.HasPrefix(key, prefix) {
		return errStoreDown
	}
	return s.KVStore.Set(ctx, key, value)
}

func (s *flakyStore) failWrites(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSetWith = prefix
}

func (s *flakyStore) failReads(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failGet = fail
}

// newTestScheduler wires a ReminderScheduler on the given collaborators
func newTestScheduler(triggers TriggerScheduler, store repository.KVStore, now func() time.Time) *ReminderScheduler {
	log := logger.NewNop()
	registry := NewRegistry(store, log, time.Second)
	prefs := NewPreferenceStore(store, log, time.Second)
	return NewReminderScheduler(triggers, registry, prefs, log, nil, time.Second, 2, now)
}

func testPlan(id string, freq models.Frequency, anchor models.TimeAnchor) *models.MedicationPlan {
	return &models.MedicationPlan{
		ID:             id,
		MedicationName: "Med " + id,
		Dosage:         "10mg",
		Frequency:      freq,
		TimeAnchor:     anchor,
		StartDate:      testNow.AddDate(0, 0, -7),
	}
}

func clocks(ss ...string) []models.ClockTime {
	out := make([]models.ClockTime, len(ss))
	for i, s := range ss {
		out[i] = models.MustParseClock(s)
	}
	return out
}

func triggerTimes(triggers []models.ScheduledTrigger) []string {
	out := make([]string, len(triggers))
	for i, t := range triggers {
		out[i] = t.Time.String()
	}
	return out
}

func triggerIDs(triggers []models.ScheduledTrigger) []string {
	out := make([]string, len(triggers))
	for i, t := range triggers {
		out[i] = t.ID
	}
	sort.Strings(out)
	return out
}
