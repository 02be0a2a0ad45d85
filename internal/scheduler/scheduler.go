// Package scheduler owns time. It runs extract cycles on a fixed interval and
// report cycles at the configured times of day, one cycle at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/ignite/punchlist-monitor/internal/config"
	"github.com/ignite/punchlist-monitor/internal/domain"
	"github.com/ignite/punchlist-monitor/internal/pipeline"
	"github.com/ignite/punchlist-monitor/internal/pkg/distlock"
	"github.com/ignite/punchlist-monitor/internal/pkg/logger"
)

// ErrInvalidSchedule is returned for an unparsable time-of-day expression.
var ErrInvalidSchedule = errors.New("scheduler: invalid schedule")

// CycleRunner executes one cycle and reports its state transitions.
type CycleRunner interface {
	Run(ctx context.Context, kind domain.CycleKind, opts pipeline.Options) domain.CycleResult
	OnState(fn func(domain.CycleState))
}

// Recorder persists finished cycles.
type Recorder interface {
	Save(ctx context.Context, res domain.CycleResult) error
}

// Status is a point-in-time view of the loop for the status API.
type Status struct {
	State         domain.CycleState   `json:"state"`
	Running       bool                `json:"running"`
	NextRun       time.Time           `json:"next_run,omitempty"`
	NextKind      domain.CycleKind    `json:"next_kind,omitempty"`
	LastReportDay string              `json:"last_report_day,omitempty"`
	Last          *domain.CycleResult `json:"last,omitempty"`
}

// Scheduler is the outer loop.
type Scheduler struct {
	runner   CycleRunner
	lock     distlock.DistLock
	fallback *distlock.LocalLock
	recorder Recorder

	interval     time.Duration
	times        []cron.Schedule
	loc          *time.Location
	closureStart int
	closureEnd   int
	now          func() time.Time
	trigger      chan domain.CycleKind

	mu            sync.RWMutex
	state         domain.CycleState
	running       bool
	next          time.Time
	nextKind      domain.CycleKind
	lastStart     time.Time
	lastReportDay string
	last          *domain.CycleResult
}

// Option tweaks a Scheduler.
type Option func(*Scheduler)

// WithRecorder persists every finished cycle.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithInterval overrides the configured extraction interval.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// New parses the schedule and wires the runner's state transitions.
func New(cfg config.ScheduleConfig, runner CycleRunner, lock distlock.DistLock, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		runner:       runner,
		lock:         lock,
		fallback:     &distlock.LocalLock{},
		interval:     cfg.Interval(),
		loc:          cfg.Location(),
		closureStart: cfg.ClosureWindowStart,
		closureEnd:   cfg.ClosureWindowEnd,
		now:          time.Now,
		trigger:      make(chan domain.CycleKind, 1),
		state:        domain.StateIdle,
	}
	for _, expr := range cfg.TimesOfDay {
		sched, err := cron.ParseStandard(expr)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, expr, err)
		}
		s.times = append(s.times, sched)
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive", ErrInvalidSchedule)
	}
	if s.lock == nil {
		s.lock = &distlock.LocalLock{}
	}
	runner.OnState(s.setState)
	return s, nil
}

// Start runs a cycle immediately and then loops until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	logger.Info("scheduler: started", "interval", s.interval, "times_of_day", len(s.times), "timezone", s.loc.String())

	s.markTick()
	s.RunOnce(ctx, s.kindFor(s.now(), false))

	for {
		next, fromCron := s.nextTick(s.now())
		kind := s.kindFor(next, fromCron)
		s.setNext(next, kind)

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("scheduler: stopped")
			return nil
		case k := <-s.trigger:
			timer.Stop()
			logger.Info("scheduler: manual trigger", "kind", string(k))
			s.markTick()
			s.RunOnce(ctx, k)
		case <-timer.C:
			s.markTick()
			s.RunOnce(ctx, s.kindFor(s.now(), fromCron))
		}
	}
}

// Trigger requests an immediate cycle. It returns false when a request is
// already pending.
func (s *Scheduler) Trigger(kind domain.CycleKind) bool {
	select {
	case s.trigger <- kind:
		return true
	default:
		return false
	}
}

// RunOnce runs one guarded cycle. It returns nil when the lock is held
// elsewhere. When the shared lock backend fails the cycle still runs under
// the in-process lock and its log carries an AVISO line.
func (s *Scheduler) RunOnce(ctx context.Context, kind domain.CycleKind) *domain.CycleResult {
	var notices []string
	lock := s.lock
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		logger.Error("scheduler: lock acquire failed, using local lock", "error", err)
		notices = append(notices, fmt.Sprintf("Lock distribuído indisponível (%v); ciclo executado com lock local.", err))
		lock = s.fallback
		acquired, err = lock.Acquire(ctx)
	}
	if err != nil || !acquired {
		logger.Warn("scheduler: cycle already running, skipping", "kind", string(kind))
		return nil
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Error("scheduler: lock release failed", "error", err)
		}
	}()

	start := s.now()
	day := s.day(start)

	s.mu.Lock()
	s.running = true
	firstReport := s.lastReportDay != day
	s.mu.Unlock()

	opts := pipeline.Options{Notices: notices}
	if kind == domain.CycleReport {
		opts.SendClosure = firstReport || s.inClosureWindow(start)
	}

	res := s.safeRun(ctx, kind, opts)

	s.mu.Lock()
	if kind == domain.CycleReport && res.State != domain.StateFailed {
		s.lastReportDay = day
	}
	s.last = &res
	s.running = false
	s.state = domain.StateIdle
	s.mu.Unlock()

	if s.recorder != nil {
		if err := s.recorder.Save(context.WithoutCancel(ctx), res); err != nil {
			logger.Error("scheduler: saving cycle failed", "run_id", res.RunID, "error", err)
		}
	}
	return &res
}

// safeRun turns a panic inside the cycle into a failed result.
func (s *Scheduler) safeRun(ctx context.Context, kind domain.CycleKind, opts pipeline.Options) (res domain.CycleResult) {
	start := s.now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("scheduler: cycle panicked", "panic", r, "stack", string(debug.Stack()))
			s.setState(domain.StateFailed)
			res = domain.CycleResult{
				RunID:      uuid.NewString(),
				Kind:       kind,
				StartedAt:  start,
				FinishedAt: s.now(),
				State:      domain.StateFailed,
				Error:      fmt.Sprintf("panic: %v", r),
			}
		}
	}()
	return s.runner.Run(ctx, kind, opts)
}

// kindFor decides the cycle kind for a tick at t. Time-of-day ticks and the
// first cycle of each day report; other interval ticks only extract.
func (s *Scheduler) kindFor(t time.Time, fromCron bool) domain.CycleKind {
	if fromCron {
		return domain.CycleReport
	}
	s.mu.RLock()
	reported := s.lastReportDay == s.day(t)
	s.mu.RUnlock()
	if !reported {
		return domain.CycleReport
	}
	return domain.CycleExtract
}

// nextTick returns the earliest of the next interval tick and the next time
// of day after now.
func (s *Scheduler) nextTick(now time.Time) (time.Time, bool) {
	s.mu.RLock()
	next := s.lastStart.Add(s.interval)
	s.mu.RUnlock()
	if next.Before(now) {
		next = now
	}

	fromCron := false
	local := now.In(s.loc)
	for _, sched := range s.times {
		if t := sched.Next(local); !t.IsZero() && !t.After(next) {
			next = t
			fromCron = true
		}
	}
	return next, fromCron
}

func (s *Scheduler) inClosureWindow(t time.Time) bool {
	h := t.In(s.loc).Hour()
	return h >= s.closureStart && h < s.closureEnd
}

func (s *Scheduler) day(t time.Time) string {
	return t.In(s.loc).Format("2006-01-02")
}

// markTick anchors the next interval tick, also when the cycle is skipped.
func (s *Scheduler) markTick() {
	s.mu.Lock()
	s.lastStart = s.now()
	s.mu.Unlock()
}

func (s *Scheduler) setState(state domain.CycleState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Scheduler) setNext(t time.Time, kind domain.CycleKind) {
	s.mu.Lock()
	s.next = t
	s.nextKind = kind
	s.mu.Unlock()
}

// Status returns a snapshot of the loop.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		State:         s.state,
		Running:       s.running,
		NextRun:       s.next,
		NextKind:      s.nextKind,
		LastReportDay: s.lastReportDay,
	}
	if s.last != nil {
		last := *s.last
		st.Last = &last
	}
	return st
}
