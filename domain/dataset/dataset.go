// Package dataset provides the dataset entity: a unit of persistent
// storage identified by a UUID, with at most one primary manifestation.
package dataset

import (
	"fmt"
	"sort"

	"github.com/volplane/volplane/domain/document"
)

// Dataset is the typed form of a structurally valid dataset document
// (immutable value type). Deleted datasets are tombstones; they are
// never physically removed from the configuration.
type Dataset struct {
	DatasetID   string
	Primary     string // owning node UUID; empty = unassigned
	Deleted     bool
	Metadata    map[string]string
	MaximumSize *int64 // bytes; nil = unbounded
}

// FromDocument builds a Dataset from a normalized document that already
// passed validation against dataset_configuration or dataset_state.
func FromDocument(v document.Value) (Dataset, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Dataset{}, fmt.Errorf("dataset: document is %T, not an object", v)
	}
	var d Dataset
	if id, ok := obj["dataset_id"].(string); ok {
		d.DatasetID = id
	}
	if primary, ok := obj["primary"].(string); ok {
		d.Primary = primary
	}
	if deleted, ok := obj["deleted"].(bool); ok {
		d.Deleted = deleted
	}
	if meta, ok := obj["metadata"].(map[string]any); ok {
		d.Metadata = make(map[string]string, len(meta))
		for k, mv := range meta {
			s, ok := mv.(string)
			if !ok {
				return Dataset{}, fmt.Errorf("dataset: metadata %q is %T, not a string", k, mv)
			}
			d.Metadata[k] = s
		}
	}
	if raw, present := obj["maximum_size"]; present && raw != nil {
		size, ok := document.Int(raw)
		if !ok {
			return Dataset{}, fmt.Errorf("dataset: maximum_size is not an integer")
		}
		d.MaximumSize = &size
	}
	return d, nil
}

// Document renders the dataset in its canonical committed shape. Unset
// optional fields are omitted; re-validating the result always succeeds
// and rebuilds an equal Dataset.
func (d Dataset) Document() document.Value {
	obj := map[string]any{
		"dataset_id": d.DatasetID,
	}
	if d.Primary != "" {
		obj["primary"] = d.Primary
	}
	if d.Deleted {
		obj["deleted"] = true
	}
	if d.Metadata != nil {
		meta := make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			meta[k] = v
		}
		obj["metadata"] = meta
	}
	if d.MaximumSize != nil {
		obj["maximum_size"] = document.Number(*d.MaximumSize)
	}
	return obj
}

// WithPrimary returns a copy with the primary node reassigned. This is
// the only mutation the restricted update schema permits.
func (d Dataset) WithPrimary(nodeUUID string) Dataset {
	out := d
	out.Primary = nodeUUID
	return out
}

// WithDeleted returns a tombstoned copy.
func (d Dataset) WithDeleted() Dataset {
	out := d
	out.Deleted = true
	return out
}

// MetadataKeys returns the metadata keys in sorted order.
func (d Dataset) MetadataKeys() []string {
	keys := make([]string, 0, len(d.Metadata))
	for k := range d.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
