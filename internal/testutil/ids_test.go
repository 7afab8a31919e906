package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedIDs_Sequence(t *testing.T) {
	ids := NewFixedIDs("worker_")
	assert.Equal(t, "worker_00000001", ids.Generate())
	assert.Equal(t, "worker_00000002", ids.Generate())

	ids.Reset()
	assert.Equal(t, "worker_00000001", ids.Generate())
}

func TestFixedIDs_Deterministic(t *testing.T) {
	a, b := NewFixedIDs(""), NewFixedIDs("")
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Generate(), b.Generate())
	}
}

func TestFixedIDs_ThreadSafe(t *testing.T) {
	ids := NewFixedIDs("m")
	const numGoroutines = 20
	const callsPerGoroutine = 50

	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		wg   sync.WaitGroup
	)
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				id := ids.Generate()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, numGoroutines*callsPerGoroutine)
}
