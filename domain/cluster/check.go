package cluster

import (
	"fmt"
	"strings"
	"time"

	"github.com/volplane/volplane/domain/container"
	"github.com/volplane/volplane/domain/dataset"
	"github.com/volplane/volplane/domain/lease"
	"github.com/volplane/volplane/domain/node"
)

// Rule names a cross-entity invariant.
type Rule string

const (
	RuleLeaseConflict      Rule = "lease_conflict"
	RuleUnknownNode        Rule = "unknown_node"
	RuleUnknownDataset     Rule = "unknown_dataset"
	RuleVolumeNodeMismatch Rule = "volume_node_mismatch"
)

// SemanticViolation is one failed invariant. Field names the reference
// that failed; the remaining fields identify the entities involved.
type SemanticViolation struct {
	Rule      Rule
	Field     string
	Message   string
	DatasetID string
	NodeUUID  string

	// Lease conflicts only: the current holder and its expiry.
	Holder     string
	Expiration *float64
}

func (v SemanticViolation) String() string {
	return fmt.Sprintf("%s: %s: %s", v.Rule, v.Field, v.Message)
}

// SemanticError aggregates every invariant failure found for one entity
// against one snapshot. The caller can act on all of them at once.
type SemanticError struct {
	Violations []SemanticViolation
}

func (e *SemanticError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return "invariants violated: " + strings.Join(msgs, "; ")
}

// Check evaluates every invariant that applies to the entity against an
// immutable snapshot, reporting all failures. It runs strictly after
// structural validation; documents that failed validation never reach
// it. Nodes carry no cross-entity invariants.
func Check(entity any, st State, now time.Time) []SemanticViolation {
	switch e := entity.(type) {
	case dataset.Dataset:
		return CheckDataset(e, st)
	case lease.Lease:
		return CheckLease(e, st, now)
	case container.Container:
		return CheckContainer(e, st)
	case node.Node:
		return nil
	}
	return []SemanticViolation{{
		Rule:    RuleUnknownDataset,
		Field:   "entity",
		Message: fmt.Sprintf("unsupported entity type %T", entity),
	}}
}

// CheckDataset verifies that a dataset's primary, when assigned, names a
// known node.
func CheckDataset(d dataset.Dataset, st State) []SemanticViolation {
	var out []SemanticViolation
	if d.Primary != "" {
		if _, ok := st.Nodes[d.Primary]; !ok {
			out = append(out, unknownNode("primary", d.Primary))
		}
	}
	return out
}

// CheckLease verifies that a lease acquisition names a known node and a
// live dataset, and that no unexpired lease on the dataset is held by a
// different node. Re-acquisition by the current holder is a renewal, not
// a conflict. Expiry is evaluated against now, never swept.
func CheckLease(l lease.Lease, st State, now time.Time) []SemanticViolation {
	var out []SemanticViolation
	if _, ok := st.Nodes[l.NodeUUID]; !ok {
		out = append(out, unknownNode("node_uuid", l.NodeUUID))
	}
	out = append(out, checkDatasetRef("dataset_id", l.DatasetID, st)...)

	if held, ok := st.Leases[l.DatasetID]; ok && !held.ExpiredAt(now) && held.NodeUUID != l.NodeUUID {
		msg := fmt.Sprintf("dataset %s is leased to node %s", l.DatasetID, held.NodeUUID)
		if t := held.ExpirationTime(); t != nil {
			msg += fmt.Sprintf(" until %s", t.UTC().Format(time.RFC3339))
		} else {
			msg += " with no expiry"
		}
		out = append(out, SemanticViolation{
			Rule:       RuleLeaseConflict,
			Field:      "dataset_id",
			Message:    msg,
			DatasetID:  l.DatasetID,
			NodeUUID:   l.NodeUUID,
			Holder:     held.NodeUUID,
			Expiration: held.Expiration,
		})
	}
	return out
}

// CheckContainer verifies the container's placement node and, for every
// volume, that the dataset exists, is not tombstoned, and has its
// primary manifestation on the container's node.
func CheckContainer(c container.Container, st State) []SemanticViolation {
	var out []SemanticViolation
	if _, ok := st.Nodes[c.NodeUUID]; !ok {
		out = append(out, unknownNode("node_uuid", c.NodeUUID))
	}
	for i, vol := range c.Volumes {
		field := fmt.Sprintf("volumes[%d].dataset_id", i)
		refViolations := checkDatasetRef(field, vol.DatasetID, st)
		out = append(out, refViolations...)
		if len(refViolations) > 0 {
			continue
		}
		d := st.Datasets[vol.DatasetID]
		if d.Primary != c.NodeUUID {
			out = append(out, SemanticViolation{
				Rule:      RuleVolumeNodeMismatch,
				Field:     field,
				Message:   fmt.Sprintf("dataset %s manifests on node %q, container is placed on node %s", vol.DatasetID, d.Primary, c.NodeUUID),
				DatasetID: vol.DatasetID,
				NodeUUID:  c.NodeUUID,
			})
		}
	}
	return out
}

func checkDatasetRef(field, datasetID string, st State) []SemanticViolation {
	d, ok := st.Datasets[datasetID]
	if !ok {
		return []SemanticViolation{{
			Rule:      RuleUnknownDataset,
			Field:     field,
			Message:   fmt.Sprintf("dataset %s is not in the configuration", datasetID),
			DatasetID: datasetID,
		}}
	}
	if d.Deleted {
		return []SemanticViolation{{
			Rule:      RuleUnknownDataset,
			Field:     field,
			Message:   fmt.Sprintf("dataset %s is deleted", datasetID),
			DatasetID: datasetID,
		}}
	}
	return nil
}

func unknownNode(field, uuid string) SemanticViolation {
	return SemanticViolation{
		Rule:     RuleUnknownNode,
		Field:    field,
		Message:  fmt.Sprintf("node %s is not in the configuration", uuid),
		NodeUUID: uuid,
	}
}
