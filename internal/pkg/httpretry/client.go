// Package httpretry retries SharePoint REST calls that fail with throttling or
// transient server errors.
package httpretry

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/ignite/punchlist-monitor/internal/pkg/logger"
)

// HTTPDoer executes one HTTP request. *http.Client and *RetryClient both
// satisfy it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient re-sends a request on 429, 5xx gateway errors and network
// failures. A throttled response's Retry-After wins over the computed backoff,
// capped at maxDelay.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// Option tweaks a RetryClient.
type Option func(*RetryClient)

// WithDelays overrides the backoff bounds.
func WithDelays(base, max time.Duration) Option {
	return func(rc *RetryClient) {
		rc.baseDelay = base
		rc.maxDelay = max
	}
}

// NewRetryClient wraps client. maxRetries counts the attempts after the first
// one; zero or less sends every request exactly once.
func NewRetryClient(client HTTPDoer, maxRetries int, opts ...Option) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	rc := &RetryClient{
		client:     client,
		maxRetries: max(maxRetries, 0),
		baseDelay:  1 * time.Second,
		maxDelay:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// Do sends req, retrying while the failure is transient. A 400 from the list
// service carries meaning for the caller (expansion limit) and is returned on
// the first attempt.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var (
		lastErr    error
		retryAfter time.Duration
	)

	for attempt := 0; attempt <= rc.maxRetries; attempt++ {
		if err := req.Context().Err(); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}

		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: reset request body: %w", err)
				}
				req.Body = body
			}

			delay := retryAfter
			if delay == 0 {
				delay = rc.calculateDelay(attempt)
			}
			logger.Warn("httpretry: retrying sharepoint request",
				"attempt", attempt,
				"max_retries", rc.maxRetries,
				"method", req.Method,
				"path", req.URL.Path,
				"wait", delay,
				"error", lastErr)

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-req.Context().Done():
				timer.Stop()
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, req.Context().Err()
			}
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			lastErr = err
			retryAfter = 0
			if req.Context().Err() != nil {
				return nil, err
			}
			continue
		}

		if !isRetryableStatus(resp.StatusCode) || attempt == rc.maxRetries {
			return resp, nil
		}

		retryAfter = rc.parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: %s returned %d", req.URL.Path, resp.StatusCode)
	}

	return nil, lastErr
}

// calculateDelay is full jitter over baseDelay * 2^(attempt-1), capped at
// maxDelay and floored at a tenth of baseDelay.
func (rc *RetryClient) calculateDelay(attempt int) time.Duration {
	expDelay := float64(rc.baseDelay) * math.Pow(2, float64(attempt-1))
	if expDelay > float64(rc.maxDelay) {
		expDelay = float64(rc.maxDelay)
	}

	jittered := time.Duration(rand.Float64() * expDelay)
	if floor := rc.baseDelay / 10; jittered < floor {
		jittered = floor
	}
	return jittered
}

// parseRetryAfter reads delta-seconds or an HTTP date. Zero means the header
// was absent or unusable.
func (rc *RetryClient) parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(v); err == nil {
		d = at.Sub(now)
	}
	if d <= 0 {
		return 0
	}
	return min(d, rc.maxDelay)
}

func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
