package schema_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/volplane/volplane/domain/document"
	"github.com/volplane/volplane/domain/schema"
)

var (
	clusterOnce     sync.Once
	clusterRegistry *schema.Registry
	clusterErr      error
)

// clusterReg returns the shared compiled cluster registry.
func clusterReg(t *testing.T) *schema.Registry {
	t.Helper()
	clusterOnce.Do(func() {
		clusterRegistry, clusterErr = schema.NewCluster()
	})
	if clusterErr != nil {
		t.Fatalf("NewCluster: %v", clusterErr)
	}
	return clusterRegistry
}

func decode(t *testing.T, raw string) document.Value {
	t.Helper()
	v, err := document.Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}

// requireViolation asserts that err is a StructuralError containing a
// violation with the given path and code.
func requireViolation(t *testing.T, err error, path string, code schema.Code) {
	t.Helper()
	var structural *schema.StructuralError
	if !errors.As(err, &structural) {
		t.Fatalf("error = %v (%T), want StructuralError with %s at %s", err, err, code, path)
	}
	for _, v := range structural.Violations {
		if v.Path.String() == path && v.Code == code {
			return
		}
	}
	t.Fatalf("no %s violation at %s in %v", code, path, structural.Violations)
}

func requireValid(t *testing.T, r *schema.Registry, name, raw string) {
	t.Helper()
	if _, err := r.Validate(name, decode(t, raw)); err != nil {
		t.Fatalf("Validate(%q, %s) = %v, want valid", name, raw, err)
	}
}
