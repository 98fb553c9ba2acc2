package trace

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces batch ids.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 batch ids.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined ids, for tests that need to know every
// id up front.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next id. Panics once every id has been used: the test
// submitted more batches than it declared.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// CountingGenerator returns prefix-1, prefix-2, ... and never runs out.
// Scenario runs use it so golden traces stay stable.
type CountingGenerator struct {
	prefix string
	clock  Clock
}

// NewCountingGenerator creates a counting generator.
func NewCountingGenerator(prefix string) *CountingGenerator {
	return &CountingGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *CountingGenerator) Generate() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.clock.Next())
}
