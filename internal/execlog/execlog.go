// Package execlog collects the per-cycle execution log that is mailed to the
// operators at the end of every cycle.
package execlog

import (
	"fmt"
	"sync"
	"time"

	"github.com/ignite/punchlist-monitor/internal/pkg/logger"
)

// Level is the severity tag shown in the mailed log.
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelWarn    Level = "AVISO"
	LevelError   Level = "ERRO"
	LevelSuccess Level = "SUCESSO"
)

// Entry is one log line.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
}

// Line renders the entry as "[15:04:05] LEVEL: message".
func (e Entry) Line() string {
	return fmt.Sprintf("[%s] %s: %s", e.Time.Format("15:04:05"), e.Level, e.Message)
}

// Log is an ordered, concurrency-safe list of entries.
type Log struct {
	mu      sync.Mutex
	now     func() time.Time
	entries []Entry
}

// New creates an empty log using the wall clock.
func New() *Log {
	return &Log{now: time.Now}
}

// NewWithClock creates an empty log with a fixed clock, for tests.
func NewWithClock(now func() time.Time) *Log {
	return &Log{now: now}
}

// Reset drops every entry. Called at the start of each cycle.
func (l *Log) Reset() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

func (l *Log) add(level Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.mu.Lock()
	l.entries = append(l.entries, Entry{Time: l.now(), Level: level, Message: msg})
	l.mu.Unlock()

	switch level {
	case LevelError:
		logger.Error(msg, "source", "cycle")
	case LevelWarn:
		logger.Warn(msg, "source", "cycle")
	default:
		logger.Info(msg, "source", "cycle", "tag", string(level))
	}
}

// Info records an informational line.
func (l *Log) Info(format string, args ...any) { l.add(LevelInfo, format, args...) }

// Warn records a non-fatal anomaly (AVISO).
func (l *Log) Warn(format string, args ...any) { l.add(LevelWarn, format, args...) }

// Error records a failure (ERRO).
func (l *Log) Error(format string, args ...any) { l.add(LevelError, format, args...) }

// Success records a completed step (SUCESSO).
func (l *Log) Success(format string, args ...any) { l.add(LevelSuccess, format, args...) }

// Entries returns a copy of the entries in order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Count returns how many entries have level.
func (l *Log) Count(level Level) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.Level == level {
			n++
		}
	}
	return n
}

// Failed reports whether any ERRO line was recorded.
func (l *Log) Failed() bool { return l.Count(LevelError) > 0 }
