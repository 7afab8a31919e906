package testutil

import (
	"fmt"
	"sync"
)

// FixedIDs generates predictable ids "{prefix}{n:08d}" starting at 1.
//
// This enables deterministic test execution and golden snapshot comparison:
// the same test with a fresh FixedIDs produces the same model and worker ids.
//
// Thread-safety: Generate is safe for concurrent use via internal mutex.
type FixedIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewFixedIDs creates a generator for prefix. The first id is prefix+"00000001".
func NewFixedIDs(prefix string) *FixedIDs {
	return &FixedIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *FixedIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s%08d", g.prefix, g.n)
}

// Reset restarts the sequence so the next id is prefix+"00000001".
func (g *FixedIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
