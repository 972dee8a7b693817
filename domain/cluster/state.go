// Package cluster provides the committed desired-state snapshot and the
// cross-entity invariant checker that gates what may join it.
package cluster

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/volplane/volplane/domain/container"
	"github.com/volplane/volplane/domain/dataset"
	"github.com/volplane/volplane/domain/document"
	"github.com/volplane/volplane/domain/node"
)

// HeldLease is a committed lease: an exclusive dataset-to-node claim
// with an absolute expiration instant in unix seconds. A nil expiration
// never expires. Expiry is evaluated lazily at check time; nothing
// sweeps leases in the background.
type HeldLease struct {
	DatasetID  string
	NodeUUID   string
	Expiration *float64
}

// ExpiredAt reports whether the lease has lapsed at the given instant.
func (l HeldLease) ExpiredAt(now time.Time) bool {
	return l.Expiration != nil && *l.Expiration <= unixSeconds(now)
}

// ExpirationTime returns the expiration as a time, or nil.
func (l HeldLease) ExpirationTime() *time.Time {
	if l.Expiration == nil {
		return nil
	}
	sec := int64(*l.Expiration)
	nsec := int64((*l.Expiration - float64(sec)) * float64(time.Second))
	t := time.Unix(sec, nsec)
	return &t
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// UnixSeconds converts an instant to the representation committed leases
// carry.
func UnixSeconds(t time.Time) float64 {
	return unixSeconds(t)
}

// State is an immutable snapshot of committed cluster desired-state.
// Version is the optimistic concurrency counter carried with the
// configuration document. Mutating methods return copies; a snapshot
// handed to the invariant checker is never changed beneath it.
type State struct {
	Version    uint64
	Nodes      map[string]node.Node           // by node UUID
	Datasets   map[string]dataset.Dataset     // by dataset id
	Leases     map[string]HeldLease           // by dataset id; at most one live lease per dataset
	Containers map[string]container.Container // by container name
}

// Empty returns the version-zero state with no entities.
func Empty() State {
	return State{
		Nodes:      map[string]node.Node{},
		Datasets:   map[string]dataset.Dataset{},
		Leases:     map[string]HeldLease{},
		Containers: map[string]container.Container{},
	}
}

// FromDocument rebuilds a State from a normalized document that already
// passed validation against cluster_configuration.
func FromDocument(v document.Value) (State, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return State{}, fmt.Errorf("cluster: document is %T, not an object", v)
	}
	st := Empty()
	version, ok := document.Int(obj["version"])
	if !ok || version < 0 {
		return State{}, fmt.Errorf("cluster: version is not a non-negative integer")
	}
	st.Version = uint64(version)

	if raw, ok := obj["nodes"].([]any); ok {
		for i, item := range raw {
			n, err := node.FromDocument(item)
			if err != nil {
				return State{}, fmt.Errorf("cluster: nodes[%d]: %w", i, err)
			}
			st.Nodes[n.UUID] = n
		}
	}
	if raw, ok := obj["datasets"].([]any); ok {
		for i, item := range raw {
			d, err := dataset.FromDocument(item)
			if err != nil {
				return State{}, fmt.Errorf("cluster: datasets[%d]: %w", i, err)
			}
			st.Datasets[d.DatasetID] = d
		}
	}
	if raw, ok := obj["leases"].([]any); ok {
		for i, item := range raw {
			l, err := heldLeaseFromDocument(item)
			if err != nil {
				return State{}, fmt.Errorf("cluster: leases[%d]: %w", i, err)
			}
			st.Leases[l.DatasetID] = l
		}
	}
	if raw, ok := obj["containers"].([]any); ok {
		for i, item := range raw {
			c, err := container.FromDocument(item)
			if err != nil {
				return State{}, fmt.Errorf("cluster: containers[%d]: %w", i, err)
			}
			st.Containers[c.Name] = c
		}
	}
	return st, nil
}

func heldLeaseFromDocument(v document.Value) (HeldLease, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return HeldLease{}, fmt.Errorf("lease is %T, not an object", v)
	}
	var l HeldLease
	l.DatasetID, ok = obj["dataset_id"].(string)
	if !ok {
		return HeldLease{}, fmt.Errorf("dataset_id missing")
	}
	l.NodeUUID, ok = obj["node_uuid"].(string)
	if !ok {
		return HeldLease{}, fmt.Errorf("node_uuid missing")
	}
	if raw := obj["expiration"]; raw != nil {
		n, ok := raw.(json.Number)
		if !ok {
			return HeldLease{}, fmt.Errorf("expiration is %T, not a number", raw)
		}
		f, err := n.Float64()
		if err != nil {
			return HeldLease{}, fmt.Errorf("expiration: %w", err)
		}
		l.Expiration = &f
	}
	return l, nil
}

// Document renders the state in its canonical committed shape. Entity
// lists are emitted in sorted key order so the document is stable for a
// given state.
func (st State) Document() document.Value {
	nodes := make([]any, 0, len(st.Nodes))
	for _, uuid := range sortedKeys(st.Nodes) {
		nodes = append(nodes, st.Nodes[uuid].Document())
	}
	datasets := make([]any, 0, len(st.Datasets))
	for _, id := range sortedKeys(st.Datasets) {
		datasets = append(datasets, st.Datasets[id].Document())
	}
	leases := make([]any, 0, len(st.Leases))
	for _, id := range sortedKeys(st.Leases) {
		l := st.Leases[id]
		obj := map[string]any{
			"dataset_id": l.DatasetID,
			"node_uuid":  l.NodeUUID,
			"expiration": nil,
		}
		if l.Expiration != nil {
			obj["expiration"] = document.Float(*l.Expiration)
		}
		leases = append(leases, obj)
	}
	containers := make([]any, 0, len(st.Containers))
	for _, name := range sortedKeys(st.Containers) {
		containers = append(containers, st.Containers[name].Document())
	}
	return map[string]any{
		"version":    document.Number(int64(st.Version)),
		"nodes":      nodes,
		"datasets":   datasets,
		"leases":     leases,
		"containers": containers,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// clone copies the state with fresh maps so With* methods never touch
// the snapshot they were called on.
func (st State) clone() State {
	out := State{
		Version:    st.Version,
		Nodes:      make(map[string]node.Node, len(st.Nodes)),
		Datasets:   make(map[string]dataset.Dataset, len(st.Datasets)),
		Leases:     make(map[string]HeldLease, len(st.Leases)),
		Containers: make(map[string]container.Container, len(st.Containers)),
	}
	for k, v := range st.Nodes {
		out.Nodes[k] = v
	}
	for k, v := range st.Datasets {
		out.Datasets[k] = v
	}
	for k, v := range st.Leases {
		out.Leases[k] = v
	}
	for k, v := range st.Containers {
		out.Containers[k] = v
	}
	return out
}

// WithNode returns a copy with the node registered.
func (st State) WithNode(n node.Node) State {
	out := st.clone()
	out.Nodes[n.UUID] = n
	return out
}

// WithDataset returns a copy with the dataset added or replaced.
func (st State) WithDataset(d dataset.Dataset) State {
	out := st.clone()
	out.Datasets[d.DatasetID] = d
	return out
}

// WithLease returns a copy with the lease held.
func (st State) WithLease(l HeldLease) State {
	out := st.clone()
	out.Leases[l.DatasetID] = l
	return out
}

// WithoutLease returns a copy with any lease on the dataset released.
func (st State) WithoutLease(datasetID string) State {
	out := st.clone()
	delete(out.Leases, datasetID)
	return out
}

// WithContainer returns a copy with the container added or replaced.
func (st State) WithContainer(c container.Container) State {
	out := st.clone()
	out.Containers[c.Name] = c
	return out
}

// WithVersion returns a copy at the given version.
func (st State) WithVersion(v uint64) State {
	out := st.clone()
	out.Version = v
	return out
}
