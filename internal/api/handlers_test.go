package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/ignite/punchlist-monitor/internal/config"
	"github.com/ignite/punchlist-monitor/internal/domain"
	"github.com/ignite/punchlist-monitor/internal/repository/postgres"
	"github.com/ignite/punchlist-monitor/internal/scheduler"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScheduler struct {
	status    scheduler.Status
	accept    bool
	triggered []domain.CycleKind
}

func (f *fakeScheduler) Status() scheduler.Status { return f.status }

func (f *fakeScheduler) Trigger(kind domain.CycleKind) bool {
	if !f.accept {
		return false
	}
	f.triggered = append(f.triggered, kind)
	return true
}

type fakeRuns struct {
	runs      []domain.CycleResult
	err       error
	lastLimit int
}

func (f *fakeRuns) List(ctx context.Context, limit int) ([]domain.CycleResult, error) {
	f.lastLimit = limit
	return f.runs, f.err
}

func (f *fakeRuns) Get(ctx context.Context, id string) (*domain.CycleResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.runs {
		if f.runs[i].RunID == id {
			return &f.runs[i], nil
		}
	}
	return nil, postgres.ErrNotFound
}

var started = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func setupTestServer(t *testing.T, sched *fakeScheduler, runs RunLister) http.Handler {
	t.Helper()
	cfg := config.ServerConfig{Host: "localhost", Port: 8080, CORSOrigins: []string{"http://localhost:5173"}}
	srv := NewServer(cfg, NewHandlers(sched, runs), NewHealthChecker())
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetStatus(t *testing.T) {
	sched := &fakeScheduler{status: scheduler.Status{
		State:    domain.StateIdle,
		NextRun:  started.Add(15 * time.Minute),
		NextKind: domain.CycleExtract,
		Last:     &domain.CycleResult{RunID: "r1", Kind: domain.CycleReport, Success: true, StartedAt: started},
	}}
	rec := do(t, setupTestServer(t, sched, nil), http.MethodGet, "/api/status")

	require.Equal(t, http.StatusOK, rec.Code)
	var body scheduler.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.StateIdle, body.State)
	assert.Equal(t, domain.CycleExtract, body.NextKind)
	require.NotNil(t, body.Last)
	assert.Equal(t, "r1", body.Last.RunID)
}

func TestListRuns(t *testing.T) {
	runs := &fakeRuns{runs: []domain.CycleResult{
		{RunID: "r2", Kind: domain.CycleExtract, StartedAt: started.Add(time.Hour)},
		{RunID: "r1", Kind: domain.CycleReport, StartedAt: started},
	}}
	h := setupTestServer(t, &fakeScheduler{}, runs)

	rec := do(t, h, http.MethodGet, "/api/runs?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, runs.lastLimit)

	var body struct {
		Runs  []domain.CycleResult `json:"runs"`
		Count int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "r2", body.Runs[0].RunID)
}

func TestListRunsEmpty(t *testing.T) {
	rec := do(t, setupTestServer(t, &fakeScheduler{}, &fakeRuns{}), http.MethodGet, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"runs":[],"count":0}`, rec.Body.String())
}

func TestListRunsErrors(t *testing.T) {
	tests := []struct {
		name   string
		runs   RunLister
		target string
		status int
	}{
		{"bad limit", &fakeRuns{}, "/api/runs?limit=abc", http.StatusBadRequest},
		{"negative limit", &fakeRuns{}, "/api/runs?limit=-1", http.StatusBadRequest},
		{"store failure", &fakeRuns{err: errors.New("pq: connection refused")}, "/api/runs", http.StatusInternalServerError},
		{"no history", nil, "/api/runs", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, setupTestServer(t, &fakeScheduler{}, tt.runs), http.MethodGet, tt.target)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestGetRun(t *testing.T) {
	runs := &fakeRuns{runs: []domain.CycleResult{{RunID: "r1", Kind: domain.CycleReport, Success: true}}}
	h := setupTestServer(t, &fakeScheduler{}, runs)

	rec := do(t, h, http.MethodGet, "/api/runs/r1")
	require.Equal(t, http.StatusOK, rec.Code)
	var run domain.CycleResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.True(t, run.Success)

	rec = do(t, h, http.MethodGet, "/api/runs/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerRun(t *testing.T) {
	sched := &fakeScheduler{accept: true}
	h := setupTestServer(t, sched, nil)

	rec := do(t, h, http.MethodPost, "/api/runs/trigger?kind=report")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/runs/trigger")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	assert.Equal(t, []domain.CycleKind{domain.CycleReport, domain.CycleExtract}, sched.triggered)

	rec = do(t, h, http.MethodPost, "/api/runs/trigger?kind=purge")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerRunPending(t *testing.T) {
	rec := do(t, setupTestServer(t, &fakeScheduler{accept: false}, nil), http.MethodPost, "/api/runs/trigger")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := setupTestServer(t, &fakeScheduler{}, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealth(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	hc := NewHealthChecker().
		Register("database", db.PingContext, time.Second, 0).
		Register("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() }, time.Second, 0).
		Register("s3", nil, 0, 0)

	rec := httptest.NewRecorder()
	hc.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "up", body.Checks["database"].Status)
	assert.Equal(t, "up", body.Checks["redis"].Status)
	assert.Equal(t, "not_configured", body.Checks["s3"].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthDegraded(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	hc := NewHealthChecker().
		Register("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() }, time.Second, 0)

	rec := httptest.NewRecorder()
	hc.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "down", body.Checks["redis"].Status)
}

func TestLiveness(t *testing.T) {
	rec := do(t, setupTestServer(t, &fakeScheduler{}, nil), http.MethodGet, "/health/live")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"alive"`)
}

func TestHealthzRoute(t *testing.T) {
	rec := do(t, setupTestServer(t, &fakeScheduler{}, nil), http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `"healthy"`, mustField(t, rec.Body.Bytes(), "status"))
}

func mustField(t *testing.T, body []byte, key string) string {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &m))
	return string(m[key])
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "42s", formatUptime(42*time.Second))
	assert.Equal(t, "3m5s", formatUptime(3*time.Minute+5*time.Second))
	assert.Equal(t, "2h0m1s", formatUptime(2*time.Hour+time.Second))
}
