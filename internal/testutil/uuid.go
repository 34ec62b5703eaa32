package testutil

import (
	"crypto/sha256"
	"sync"

	"github.com/google/uuid"
)

// SequentialUUIDs generates reproducible UUIDs for fixture graphs.
//
// The n-th UUID is a version 5 style UUID derived from the namespace and n,
// so the same seed always yields the same sequence. Plug New into
// store.Options.NewUUID.
type SequentialUUIDs struct {
	mu    sync.Mutex
	space uuid.UUID
	n     uint64
}

// NewSequentialUUIDs creates a generator seeded by seed. An empty seed uses
// "provgraph-fixture".
func NewSequentialUUIDs(seed string) *SequentialUUIDs {
	if seed == "" {
		seed = "provgraph-fixture"
	}
	return &SequentialUUIDs{space: uuid.NewHash(sha256.New(), uuid.NameSpaceOID, []byte(seed), 5)}
}

// New returns the next UUID in canonical lowercase form.
func (g *SequentialUUIDs) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return uuid.NewSHA1(g.space, uint64Bytes(g.n)).String()
}

// Reset restarts the sequence.
func (g *SequentialUUIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}

func uint64Bytes(n uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(n)
		n >>= 8
	}
	return b
}
