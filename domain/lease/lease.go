// Package lease provides the lease entity: a time-bounded exclusive
// claim binding a dataset to a node.
package lease

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/volplane/volplane/domain/document"
)

// Lease is the typed form of a lease acquisition document. Expires is
// the requested lifetime in seconds from acquisition; nil never expires.
type Lease struct {
	DatasetID string
	NodeUUID  string
	Expires   *float64
}

// FromDocument builds a Lease from a normalized document that already
// passed validation against the lease schema.
func FromDocument(v document.Value) (Lease, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Lease{}, fmt.Errorf("lease: document is %T, not an object", v)
	}
	var l Lease
	l.DatasetID, ok = obj["dataset_id"].(string)
	if !ok {
		return Lease{}, fmt.Errorf("lease: dataset_id missing")
	}
	l.NodeUUID, ok = obj["node_uuid"].(string)
	if !ok {
		return Lease{}, fmt.Errorf("lease: node_uuid missing")
	}
	raw, present := obj["expires"]
	if !present {
		return Lease{}, fmt.Errorf("lease: expires missing")
	}
	if raw != nil {
		n, ok := raw.(json.Number)
		if !ok {
			return Lease{}, fmt.Errorf("lease: expires is %T, not a number", raw)
		}
		f, err := n.Float64()
		if err != nil {
			return Lease{}, fmt.Errorf("lease: expires: %w", err)
		}
		l.Expires = &f
	}
	return l, nil
}

// Document renders the lease in its canonical acquisition shape.
func (l Lease) Document() document.Value {
	obj := map[string]any{
		"dataset_id": l.DatasetID,
		"node_uuid":  l.NodeUUID,
		"expires":    nil,
	}
	if l.Expires != nil {
		obj["expires"] = document.Float(*l.Expires)
	}
	return obj
}

// ExpirationAt resolves the requested lifetime against an acquisition
// instant. Nil means the lease never expires.
func (l Lease) ExpirationAt(now time.Time) *time.Time {
	if l.Expires == nil {
		return nil
	}
	t := now.Add(time.Duration(*l.Expires * float64(time.Second)))
	return &t
}
