package execlog

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	t := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func TestLogOrderAndLevels(t *testing.T) {
	l := NewWithClock(fixedClock())
	l.Info("starting %s", "cycle")
	l.Warn("bulk query rejected")
	l.Success("written to %d destinations", 2)
	l.Error("lock on %s", "/data/bi")

	entries := l.Entries()
	require.Len(t, entries, 4)
	assert.Equal(t, LevelInfo, entries[0].Level)
	assert.Equal(t, "starting cycle", entries[0].Message)
	assert.Equal(t, LevelWarn, entries[1].Level)
	assert.Equal(t, LevelSuccess, entries[2].Level)
	assert.Equal(t, LevelError, entries[3].Level)

	assert.True(t, l.Failed())
	assert.Equal(t, 1, l.Count(LevelSuccess))
	assert.Equal(t, "[08:00:00] ERRO: lock on /data/bi", entries[3].Line())
}

func TestReset(t *testing.T) {
	l := New()
	l.Error("x")
	l.Reset()
	assert.Empty(t, l.Entries())
	assert.False(t, l.Failed())
}

func TestConcurrentWrites(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Info("line")
		}()
	}
	wg.Wait()
	assert.Len(t, l.Entries(), 20)
}
