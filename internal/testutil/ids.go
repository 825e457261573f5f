package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs returns predictable 32-character session ids for tests:
// prefix followed by a zero-padded counter.
//
// Thread-safety: SequenceIDs is safe for concurrent use via internal mutex.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDs creates a generator. An empty prefix defaults to "s".
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "s"
	}
	return &SequenceIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequenceIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s%0*d", g.prefix, 32-len(g.prefix), g.n)
}
