package alarm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/teambition/rrule-go"

	"github.com/Kerhoff/DoseboT/internal/models"
	"github.com/Kerhoff/DoseboT/internal/service"
)

const (
	DefaultTick       = 30 * time.Second
	DefaultMaxRepeats = 3
)

// Config tunes the scheduler. Zero values pick defaults.
type Config struct {
	Tick       time.Duration
	MaxRepeats int
	Location   *time.Location
	Now        func() time.Time
}

// Scheduler keeps daily alarms in process and fires them from a ticker loop.
// After an alarm fires it repeats every RepeatInterval, up to MaxRepeats
// times, until the plan is acknowledged or the next daily occurrence comes.
type Scheduler struct {
	mu         sync.Mutex
	entries    map[string]*entry
	fire       service.FireFunc
	authorized bool

	logger     *logrus.Logger
	tick       time.Duration
	maxRepeats int
	loc        *time.Location
	now        func() time.Time
}

type entry struct {
	id    string
	req   models.TriggerRequest
	rule  *rrule.RRule
	next  time.Time
	nagAt time.Time
	nags  int
}

var _ service.TriggerScheduler = (*Scheduler)(nil)
var _ service.Acknowledger = (*Scheduler)(nil)

// New creates a scheduler. It refuses registrations until Authorize(true) is
// called, the way a platform does before notification permission is granted.
func New(logger *logrus.Logger, cfg Config) *Scheduler {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.MaxRepeats < 0 {
		cfg.MaxRepeats = 0
	} else if cfg.MaxRepeats == 0 {
		cfg.MaxRepeats = DefaultMaxRepeats
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Scheduler{
		entries:    make(map[string]*entry),
		logger:     logger,
		tick:       cfg.Tick,
		maxRepeats: cfg.MaxRepeats,
		loc:        cfg.Location,
		now:        cfg.Now,
	}
}

// Authorize grants or revokes permission to deliver alarms
func (s *Scheduler) Authorize(granted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authorized = granted
}

// SetFireFunc sets the callback invoked for every fired alarm
func (s *Scheduler) SetFireFunc(fn service.FireFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fire = fn
}

// Register adds a daily alarm at req.Time and returns its id
func (s *Scheduler) Register(ctx context.Context, req models.TriggerRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.authorized {
		return "", models.ErrPermissionDenied
	}

	now := s.now().In(s.loc)
	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Dtstart: req.Time.On(now),
	})
	if err != nil {
		return "", fmt.Errorf("failed to build daily rule for %s: %w", req.Time, err)
	}

	e := &entry{
		id:   uuid.NewString(),
		req:  req,
		rule: rule,
		next: rule.After(now, false),
	}
	s.entries[e.id] = e

	s.logger.WithFields(logrus.Fields{
		"trigger_id": e.id,
		"plan_id":    req.Payload.PlanID,
		"time":       req.Time.String(),
		"next":       e.next.Format(time.RFC3339),
	}).Debug("Registered alarm")

	return e.id, nil
}

// Cancel removes an alarm. models.ErrTriggerNotFound is returned if it is unknown.
func (s *Scheduler) Cancel(ctx context.Context, triggerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[triggerID]; !ok {
		return models.ErrTriggerNotFound
	}
	delete(s.entries, triggerID)
	return nil
}

// Acknowledge stops pending repeats for every alarm of the plan
func (s *Scheduler) Acknowledge(planID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.req.Payload.PlanID == planID {
			e.nagAt = time.Time{}
			e.nags = 0
		}
	}
}

// Pending returns the registered alarms ordered by their next fire time
func (s *Scheduler) Pending() []models.ScheduledTrigger {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.ScheduledTrigger, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, models.ScheduledTrigger{
			ID:       e.id,
			PlanID:   e.req.Payload.PlanID,
			Time:     e.req.Time,
			DoseTime: e.req.Payload.DoseTime,
			Silent:   e.req.Silent,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return s.entries[out[i].ID].next.Before(s.entries[out[j].ID].next)
	})
	return out
}

// Start runs the alarm loop until the context is cancelled. It blocks, so it
// should be launched in a separate goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.logger.Info("Alarm scheduler started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Alarm scheduler stopped")
			return
		case <-ticker.C:
			s.processDue(ctx)
		}
	}
}

// processDue fires every alarm whose daily occurrence or repeat is due. The
// callback runs without the lock held so it may cancel or register alarms.
func (s *Scheduler) processDue(ctx context.Context) {
	now := s.now().In(s.loc)

	s.mu.Lock()
	fire := s.fire
	var due []models.FiredTrigger
	for _, e := range s.entries {
		switch {
		case !now.Before(e.next):
			due = append(due, models.FiredTrigger{TriggerID: e.id, Request: e.req, FiredAt: now})
			e.next = e.rule.After(now, false)
			e.nags = 0
			e.nagAt = time.Time{}
			if e.req.RepeatInterval > 0 && s.maxRepeats > 0 {
				e.nagAt = now.Add(e.req.RepeatInterval)
			}
		case !e.nagAt.IsZero() && !now.Before(e.nagAt):
			e.nags++
			due = append(due, models.FiredTrigger{TriggerID: e.id, Request: e.req, FiredAt: now, Repeat: e.nags})
			if e.nags >= s.maxRepeats {
				e.nagAt = time.Time{}
			} else {
				e.nagAt = e.nagAt.Add(e.req.RepeatInterval)
			}
		}
	}
	s.mu.Unlock()

	if fire == nil {
		return
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].Request.Time.Before(due[j].Request.Time)
	})
	for _, f := range due {
		fire(ctx, f)
	}
}
