// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability. Lease expiry is evaluated
// against it lazily; there are no internal timers.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers. The production
// implementation must emit canonical lowercase UUIDv4, since generated
// dataset ids are validated against the uuid schema.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Configuration Store Port
// -----------------------------------------------------------------------------

// Store errors.
var (
	// ErrNotFound is returned by Load when no configuration has been
	// committed yet.
	ErrNotFound = errors.New("configuration not found")

	// ErrVersionConflict is returned by Save when the stored version no
	// longer matches the expected one. The caller re-reads, re-validates
	// and retries.
	ErrVersionConflict = errors.New("configuration version conflict")
)

// ConfigStore persists the committed cluster configuration as an opaque
// JSON document with a monotonically increasing version. Save commits
// atomically: either the document replaces the stored one at
// expected+1, or nothing changes.
type ConfigStore interface {
	// Load returns the stored document and its version.
	Load(ctx context.Context) (doc []byte, version uint64, err error)

	// Save stores the document if the current version equals expected,
	// returning the new version. A fresh store has version 0.
	Save(ctx context.Context, doc []byte, expected uint64) (uint64, error)
}
