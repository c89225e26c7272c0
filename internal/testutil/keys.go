package testutil

import (
	"fmt"
	"sync"
)

// FixedKeyGenerator returns predetermined session keys.
//
// The same scenario with the same generator produces byte-identical
// event traces, which is what golden snapshot comparison needs.
type FixedKeyGenerator struct {
	mu   sync.Mutex
	keys []string
	idx  int
}

// NewFixedKeyGenerator creates a generator that returns keys in order.
func NewFixedKeyGenerator(keys ...string) *FixedKeyGenerator {
	return &FixedKeyGenerator{keys: keys}
}

// Generate returns the next key.
//
// Panics if all keys have been consumed; a test that creates more
// sessions than it declared is misconfigured.
func (g *FixedKeyGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.keys) {
		panic("FixedKeyGenerator: all keys exhausted")
	}
	k := g.keys[g.idx]
	g.idx++
	return k
}

// CountingKeyGenerator returns "<prefix>-1", "<prefix>-2", ... without limit.
type CountingKeyGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewCountingKeyGenerator creates a generator with the given prefix.
func NewCountingKeyGenerator(prefix string) *CountingKeyGenerator {
	return &CountingKeyGenerator{prefix: prefix}
}

// Generate returns the next numbered key.
func (g *CountingKeyGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
