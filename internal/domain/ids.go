package domain

import (
	"strings"

	"github.com/google/uuid"
)

// IDGenerator produces identifiers for models, workers and consumers.
// Implemented by ShortIDGenerator (production) and testutil.FixedIDs (tests).
type IDGenerator interface {
	Generate() string
}

// ShortIDGenerator returns Prefix followed by eight random hex digits
// taken from a UUIDv4.
//
// Thread-safety: stateless and safe for concurrent use.
type ShortIDGenerator struct {
	Prefix string
}

func (g ShortIDGenerator) Generate() string {
	return g.Prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// NewModelID returns a fresh short model token.
func NewModelID() string {
	return ShortIDGenerator{}.Generate()
}

// NewWorkerID returns a fresh worker id of the form "worker_xxxxxxxx".
func NewWorkerID() string {
	return ShortIDGenerator{Prefix: "worker_"}.Generate()
}
