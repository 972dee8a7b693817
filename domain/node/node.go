// Package node provides the node entity: a cluster member addressed by
// UUID and IPv4 host.
package node

import (
	"fmt"

	"github.com/volplane/volplane/domain/document"
)

// Node is the typed form of a structurally valid node document
// (immutable value type).
type Node struct {
	UUID string
	Host string
}

// FromDocument builds a Node from a normalized document that already
// passed validation against node_state.
func FromDocument(v document.Value) (Node, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Node{}, fmt.Errorf("node: document is %T, not an object", v)
	}
	var n Node
	n.UUID, ok = obj["uuid"].(string)
	if !ok {
		return Node{}, fmt.Errorf("node: uuid missing")
	}
	n.Host, ok = obj["host"].(string)
	if !ok {
		return Node{}, fmt.Errorf("node: host missing")
	}
	return n, nil
}

// Document renders the node in its canonical shape.
func (n Node) Document() document.Value {
	return map[string]any{
		"uuid": n.UUID,
		"host": n.Host,
	}
}
