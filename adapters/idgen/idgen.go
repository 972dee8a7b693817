// Package idgen provides ID generation implementations.
package idgen

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/volplane/volplane/ports"
)

// UUID generates canonical lowercase UUIDv4 strings. This is the
// production generator; its output always satisfies the uuid schema.
type UUID struct{}

// New generates a new UUID v4.
func (UUID) New() string {
	return uuid.New().String()
}

// Ensure interface compliance.
var _ ports.IDGenerator = UUID{}

// Sequential generates deterministic UUID-shaped ids for testing. The
// counter occupies the final group, so ids stay valid against the uuid
// schema while remaining predictable.
type Sequential struct {
	counter uint64
}

// NewSequential creates a sequential ID generator.
func NewSequential() *Sequential {
	return &Sequential{}
}

// New generates the next sequential id.
func (s *Sequential) New() string {
	n := atomic.AddUint64(&s.counter, 1)
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", n)
}

// Reset resets the counter (for testing).
func (s *Sequential) Reset() {
	atomic.StoreUint64(&s.counter, 0)
}

var _ ports.IDGenerator = (*Sequential)(nil)
