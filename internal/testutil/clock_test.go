package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestFakeClock_StartsAtStart(t *testing.T) {
	clock := NewFakeClock(start)
	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start, clock.Now(), "reading does not advance")
}

func TestFakeClock_Advance(t *testing.T) {
	clock := NewFakeClock(start)

	got := clock.Advance(5 * time.Minute)
	assert.Equal(t, start.Add(5*time.Minute), got)
	assert.Equal(t, got, clock.Now())

	clock.Advance(time.Millisecond)
	assert.Equal(t, start.Add(5*time.Minute+time.Millisecond), clock.Now())
}

func TestFakeClock_Set(t *testing.T) {
	clock := NewFakeClock(start)
	clock.Advance(time.Hour)
	clock.Set(start)
	assert.Equal(t, start, clock.Now())
}

func TestFakeClock_ThreadSafe(t *testing.T) {
	clock := NewFakeClock(start)
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				clock.Advance(time.Millisecond)
				_ = clock.Now()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, start.Add(numGoroutines*callsPerGoroutine*time.Millisecond), clock.Now())
}
