// Package memory provides in-memory store implementations for tests and
// single-process use.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/volplane/volplane/ports"
)

// ConfigStore keeps the committed configuration document in memory with
// compare-and-swap version semantics identical to the SQLite store.
type ConfigStore struct {
	mu      sync.Mutex
	doc     []byte
	version uint64
}

// NewConfigStore creates an empty store at version 0.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{}
}

// Load returns the stored document and version.
func (s *ConfigStore) Load(_ context.Context) ([]byte, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		return nil, 0, ports.ErrNotFound
	}
	out := make([]byte, len(s.doc))
	copy(out, s.doc)
	return out, s.version, nil
}

// Save stores the document if the current version matches expected.
func (s *ConfigStore) Save(_ context.Context, doc []byte, expected uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.version != expected {
		return 0, fmt.Errorf("%w: stored %d, expected %d", ports.ErrVersionConflict, s.version, expected)
	}
	s.doc = make([]byte, len(doc))
	copy(s.doc, doc)
	s.version++
	return s.version, nil
}

var _ ports.ConfigStore = (*ConfigStore)(nil)
