package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTickLogsAtInterval(t *testing.T) {
	now := time.Unix(0, 0)
	p := NewProfiler(WithInterval(time.Second), WithClock(func() time.Time { return now }))

	assert.False(t, p.Tick(true))
	now = now.Add(500 * time.Millisecond)
	assert.False(t, p.Tick(false))
	now = now.Add(600 * time.Millisecond)
	assert.True(t, p.Tick(true))
	assert.False(t, p.Tick(true), "window restarts after logging")

	applied, failed := p.Totals()
	assert.Equal(t, 3, applied)
	assert.Equal(t, 1, failed)
}
