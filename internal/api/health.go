package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ignite/punchlist-monitor/internal/pkg/httputil"
)

// HealthStatus represents the overall health of the monitor.
type HealthStatus struct {
	Status string                    `json:"status"` // "healthy", "degraded"
	Uptime string                    `json:"uptime"`
	Checks map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single dependency.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded", "not_configured"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// PingFunc checks one dependency.
type PingFunc func(ctx context.Context) error

type dependency struct {
	ping    PingFunc
	timeout time.Duration
	slow    time.Duration
}

// HealthChecker pings the registered dependencies. Redis and Postgres are
// optional for the monitor, so an unregistered dependency is reported as
// not_configured and never degrades the overall status.
type HealthChecker struct {
	deps      map[string]dependency
	startTime time.Time
}

// NewHealthChecker creates an empty HealthChecker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{deps: make(map[string]dependency), startTime: time.Now()}
}

// Register adds a dependency. A nil ping records the component as not configured.
func (hc *HealthChecker) Register(name string, ping PingFunc, timeout, slow time.Duration) *HealthChecker {
	hc.deps[name] = dependency{ping: ping, timeout: timeout, slow: slow}
	return hc
}

// HandleHealth returns the status of every registered dependency.
//
//	GET /health, /healthz
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	httputil.OK(w, HealthStatus{
		Status: determineOverallStatus(checks),
		Uptime: formatUptime(time.Since(hc.startTime)),
		Checks: checks,
	})
}

// HandleLiveness always answers 200 while the process is up.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{
		"status": "alive",
		"uptime": formatUptime(time.Since(hc.startTime)),
	})
}

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	type result struct {
		name  string
		check ComponentCheck
	}
	ch := make(chan result, len(hc.deps))
	for name, d := range hc.deps {
		go func(name string, d dependency) { ch <- result{name, runCheck(ctx, d)} }(name, d)
	}

	checks := make(map[string]ComponentCheck, len(hc.deps))
	for range hc.deps {
		r := <-ch
		checks[r.name] = r.check
	}
	return checks
}

func runCheck(ctx context.Context, d dependency) ComponentCheck {
	if d.ping == nil {
		return ComponentCheck{Status: "not_configured"}
	}
	timeout := d.timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := d.ping(pingCtx)
	latency := time.Since(start)

	if err != nil {
		return ComponentCheck{
			Status:  "down",
			Latency: latency.String(),
			Message: fmt.Sprintf("ping failed: %v", err),
		}
	}
	if d.slow > 0 && latency > d.slow {
		return ComponentCheck{
			Status:  "degraded",
			Latency: latency.String(),
			Message: fmt.Sprintf("slow response (%s)", latency),
		}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: "connected"}
}

// determineOverallStatus is "degraded" when any configured dependency is down
// or slow. The cycle itself keeps running without either store.
func determineOverallStatus(checks map[string]ComponentCheck) string {
	for _, c := range checks {
		switch c.Status {
		case "down", "degraded":
			return "degraded"
		}
	}
	return "healthy"
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
