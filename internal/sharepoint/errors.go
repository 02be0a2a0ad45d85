package sharepoint

import (
	"errors"
	"fmt"
)

// Failure reasons for a list that could not be extracted this cycle.
const (
	ReasonSchemaUnavailable = "schema_unavailable"
	ReasonBaseQueryFailed   = "base_query_failed"
)

var (
	// ErrNoCredentials is returned when the client is built without cookies.
	ErrNoCredentials = errors.New("sharepoint: no session cookies")
	// ErrInvalidSiteURL is returned for a site URL that cannot be parsed.
	ErrInvalidSiteURL = errors.New("sharepoint: invalid site url")
)

// HTTPError is a non-200 answer from the list service.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("sharepoint: status %d: %s", e.Status, body)
}

// Failure is a per-list extraction failure. It never stops other lists.
type Failure struct {
	List   string
	Reason string
	Status int
	Err    error
}

func (f *Failure) Error() string {
	if f.Status > 0 {
		return fmt.Sprintf("sharepoint: list %q: %s (status %d)", f.List, f.Reason, f.Status)
	}
	return fmt.Sprintf("sharepoint: list %q: %s: %v", f.List, f.Reason, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	return 0
}

func newFailure(list, reason string, err error) *Failure {
	return &Failure{List: list, Reason: reason, Status: StatusOf(err), Err: err}
}
