package guid

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Generator produces fresh canonical keys.
// Implemented by RandomGenerator (production) and FixedGenerator (tests).
type Generator interface {
	NewKey() Key
}

// RandomGenerator generates random version 4 identifiers.
//
// Uses github.com/google/uuid for RFC 4122 compliant UUIDs.
//
// Thread-safety: RandomGenerator is stateless and safe for concurrent use.
type RandomGenerator struct{}

// NewKey creates a new random key in canonical form.
//
// Panics if UUID generation fails (should never happen in practice).
func (g RandomGenerator) NewKey() Key {
	return Key(strings.ToUpper(uuid.Must(uuid.NewRandom()).String()))
}

// FixedGenerator returns predetermined keys for testing.
//
// This enables deterministic duplicate-resolution tests and golden report
// comparison: tests provide a known sequence of keys and verify exact
// audit output.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu   sync.Mutex
	keys []Key
	idx  int
}

// NewFixedGenerator creates a generator that returns keys in order.
// Panics on exhaustion, which fails fast on test misconfiguration
// (the test planned fewer regenerations than the engine performed).
func NewFixedGenerator(keys ...Key) *FixedGenerator {
	return &FixedGenerator{keys: keys}
}

// NewKey returns the next predetermined key.
func (g *FixedGenerator) NewKey() Key {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.keys) {
		panic("FixedGenerator: all keys exhausted")
	}
	k := g.keys[g.idx]
	g.idx++
	return k
}
