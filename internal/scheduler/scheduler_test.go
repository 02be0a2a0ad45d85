package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ignite/punchlist-monitor/internal/config"
	"github.com/ignite/punchlist-monitor/internal/domain"
	"github.com/ignite/punchlist-monitor/internal/pipeline"
	"github.com/ignite/punchlist-monitor/internal/pkg/distlock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type call struct {
	kind domain.CycleKind
	opts pipeline.Options
}

type fakeRunner struct {
	mu      sync.Mutex
	calls   chan call
	onState func(domain.CycleState)
	panics  bool
	result  domain.CycleState
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{calls: make(chan call, 16), result: domain.StateExtracting}
}

func (f *fakeRunner) OnState(fn func(domain.CycleState)) { f.onState = fn }

func (f *fakeRunner) Run(ctx context.Context, kind domain.CycleKind, opts pipeline.Options) domain.CycleResult {
	f.onState(domain.StateAuthenticating)
	f.calls <- call{kind, opts}
	f.mu.Lock()
	panics, state := f.panics, f.result
	f.mu.Unlock()
	if panics {
		panic("boom")
	}
	return domain.CycleResult{RunID: "run", Kind: kind, State: state, Success: state != domain.StateFailed}
}

type memRecorder struct {
	mu   sync.Mutex
	runs []domain.CycleResult
}

func (m *memRecorder) Save(ctx context.Context, res domain.CycleResult) error {
	m.mu.Lock()
	m.runs = append(m.runs, res)
	m.mu.Unlock()
	return nil
}

type busyLock struct{}

func (busyLock) Acquire(ctx context.Context) (bool, error) { return false, nil }
func (busyLock) Release(ctx context.Context) error         { return nil }

type brokenLock struct{}

func (brokenLock) Acquire(ctx context.Context) (bool, error) { return false, errors.New("redis down") }
func (brokenLock) Release(ctx context.Context) error         { return nil }

func schedule() config.ScheduleConfig {
	return config.ScheduleConfig{
		IntervalMinutes:    15,
		TimesOfDay:         []string{"0 8 * * *", "0 12 * * *", "30 16 * * *"},
		Timezone:           "UTC",
		ClosureWindowStart: 7,
		ClosureWindowEnd:   9,
	}
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func at(hour, min int) time.Time { return time.Date(2025, 1, 6, hour, min, 0, 0, time.UTC) }

func TestNewRejectsBadSpec(t *testing.T) {
	cfg := schedule()
	cfg.TimesOfDay = []string{"every morning"}
	_, err := New(cfg, newFakeRunner(), nil)
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	cfg = schedule()
	cfg.IntervalMinutes = 0
	_, err = New(cfg, newFakeRunner(), nil)
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestFirstCycleOfDayReports(t *testing.T) {
	c := &clock{t: at(6, 0)}
	runner := newFakeRunner()
	s, err := New(schedule(), runner, nil, WithClock(c.Now))
	require.NoError(t, err)

	assert.Equal(t, domain.CycleReport, s.kindFor(c.Now(), false))
	s.RunOnce(context.Background(), domain.CycleReport)
	got := <-runner.calls
	assert.True(t, got.opts.SendClosure, "first report of the day sends the closure mail")

	c.Set(at(6, 15))
	assert.Equal(t, domain.CycleExtract, s.kindFor(c.Now(), false))
	assert.Equal(t, domain.CycleReport, s.kindFor(c.Now(), true))

	// Next day starts with a report again.
	assert.Equal(t, domain.CycleReport, s.kindFor(at(6, 0).AddDate(0, 0, 1), false))
}

func TestClosureWindow(t *testing.T) {
	c := &clock{t: at(8, 0)}
	runner := newFakeRunner()
	s, err := New(schedule(), runner, nil, WithClock(c.Now))
	require.NoError(t, err)

	s.RunOnce(context.Background(), domain.CycleReport)
	assert.True(t, (<-runner.calls).opts.SendClosure)

	c.Set(at(8, 45))
	s.RunOnce(context.Background(), domain.CycleReport)
	assert.True(t, (<-runner.calls).opts.SendClosure, "inside the window")

	c.Set(at(12, 0))
	s.RunOnce(context.Background(), domain.CycleReport)
	assert.False(t, (<-runner.calls).opts.SendClosure)

	s.RunOnce(context.Background(), domain.CycleExtract)
	assert.False(t, (<-runner.calls).opts.SendClosure)
}

func TestFailedReportDoesNotCountForTheDay(t *testing.T) {
	c := &clock{t: at(8, 0)}
	runner := newFakeRunner()
	runner.result = domain.StateFailed
	s, err := New(schedule(), runner, nil, WithClock(c.Now))
	require.NoError(t, err)

	s.RunOnce(context.Background(), domain.CycleReport)
	<-runner.calls
	assert.Equal(t, domain.CycleReport, s.kindFor(c.Now(), false))
	assert.Empty(t, s.Status().LastReportDay)
}

func TestNextTick(t *testing.T) {
	c := &clock{t: at(7, 50)}
	s, err := New(schedule(), newFakeRunner(), nil, WithClock(c.Now))
	require.NoError(t, err)

	s.markTick()
	next, fromCron := s.nextTick(at(7, 50))
	assert.True(t, next.Equal(at(8, 0)), next)
	assert.True(t, fromCron)

	c.Set(at(9, 0))
	s.markTick()
	next, fromCron = s.nextTick(at(9, 0))
	assert.True(t, next.Equal(at(9, 15)), next)
	assert.False(t, fromCron)

	// A cycle that overran the interval fires right away.
	next, _ = s.nextTick(at(9, 40))
	assert.True(t, next.Equal(at(9, 40)), next)
}

func TestRunOnceSkipsWhenLocked(t *testing.T) {
	runner := newFakeRunner()
	s, err := New(schedule(), runner, busyLock{})
	require.NoError(t, err)

	assert.Nil(t, s.RunOnce(context.Background(), domain.CycleExtract))
	assert.Len(t, runner.calls, 0)

}

func TestRunOnceFallsBackToLocalLockWhenBackendFails(t *testing.T) {
	runner := newFakeRunner()
	rec := &memRecorder{}
	s, err := New(schedule(), runner, brokenLock{}, WithRecorder(rec))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res := s.RunOnce(context.Background(), domain.CycleReport)
		require.NotNil(t, res)
		c := <-runner.calls
		require.Len(t, c.opts.Notices, 1)
		assert.Contains(t, c.opts.Notices[0], "redis down")
	}
	assert.Len(t, rec.runs, 3)
}

func TestRunOnceRecoversPanic(t *testing.T) {
	runner := newFakeRunner()
	runner.panics = true
	rec := &memRecorder{}
	s, err := New(schedule(), runner, &distlock.LocalLock{}, WithRecorder(rec))
	require.NoError(t, err)

	res := s.RunOnce(context.Background(), domain.CycleExtract)
	<-runner.calls
	require.NotNil(t, res)
	assert.Equal(t, domain.StateFailed, res.State)
	assert.Contains(t, res.Error, "panic: boom")

	st := s.Status()
	assert.Equal(t, domain.StateIdle, st.State)
	assert.False(t, st.Running)
	require.NotNil(t, st.Last)
	assert.Equal(t, domain.StateFailed, st.Last.State)
	require.Len(t, rec.runs, 1)

	// The lock was released despite the panic.
	runner.mu.Lock()
	runner.panics = false
	runner.mu.Unlock()
	assert.NotNil(t, s.RunOnce(context.Background(), domain.CycleExtract))
	<-runner.calls
}

func TestStartRunsImmediatelyAndHonoursTrigger(t *testing.T) {
	runner := newFakeRunner()
	cfg := schedule()
	cfg.TimesOfDay = nil
	s, err := New(cfg, runner, nil, WithInterval(time.Hour))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	first := <-runner.calls
	assert.Equal(t, domain.CycleReport, first.kind)

	require.Eventually(t, func() bool { return !s.Status().NextRun.IsZero() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.CycleExtract, s.Status().NextKind)

	assert.True(t, s.Trigger(domain.CycleReport))
	second := <-runner.calls
	assert.Equal(t, domain.CycleReport, second.kind)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestStartFiresOnInterval(t *testing.T) {
	runner := newFakeRunner()
	cfg := schedule()
	cfg.TimesOfDay = nil
	s, err := New(cfg, runner, nil, WithInterval(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	assert.Equal(t, domain.CycleReport, (<-runner.calls).kind)
	assert.Equal(t, domain.CycleExtract, (<-runner.calls).kind)
	assert.Equal(t, domain.CycleExtract, (<-runner.calls).kind)

	cancel()
	require.NoError(t, <-done)
}

func TestTriggerIsBuffered(t *testing.T) {
	s, err := New(schedule(), newFakeRunner(), nil)
	require.NoError(t, err)
	assert.True(t, s.Trigger(domain.CycleExtract))
	assert.False(t, s.Trigger(domain.CycleExtract))
}
