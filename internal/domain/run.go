package domain

import "time"

// CycleKind distinguishes a plain extraction cycle from one that also
// derives metrics and mails the reports.
type CycleKind string

const (
	CycleExtract CycleKind = "extract"
	CycleReport  CycleKind = "report"
)

// CycleState is a scheduler loop state.
type CycleState string

const (
	StateIdle           CycleState = "idle"
	StateAuthenticating CycleState = "authenticating"
	StateExtracting     CycleState = "extracting"
	StateReporting      CycleState = "reporting"
	StateFailed         CycleState = "failed"
)

// PathOutcome is the result of writing one artifact to one destination.
type PathOutcome struct {
	Path   string `json:"path"`
	OK     bool   `json:"ok"`
	Locked bool   `json:"locked,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ListOutcome summarizes one list within a cycle.
type ListOutcome struct {
	List         string        `json:"list"`
	Rows         int           `json:"rows"`
	Mode         string        `json:"mode,omitempty"`
	Skipped      bool          `json:"skipped,omitempty"`
	Error        string        `json:"error,omitempty"`
	Destinations []PathOutcome `json:"destinations,omitempty"`
}

// OK reports whether the list was extracted and written to every destination.
func (o ListOutcome) OK() bool {
	if o.Skipped || o.Error != "" {
		return false
	}
	for _, d := range o.Destinations {
		if !d.OK {
			return false
		}
	}
	return true
}

// CycleResult is the record of one scheduler cycle.
type CycleResult struct {
	RunID      string        `json:"run_id"`
	Kind       CycleKind     `json:"kind"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	State      CycleState    `json:"state"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	Lists      []ListOutcome `json:"lists"`
}

// Duration returns how long the cycle ran.
func (r CycleResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
