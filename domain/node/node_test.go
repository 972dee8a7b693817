package node_test

import (
	"testing"

	"github.com/volplane/volplane/domain/document"
	"github.com/volplane/volplane/domain/node"
)

func TestFromDocument(t *testing.T) {
	v, err := document.Decode([]byte(`{"uuid": "30acf7ce-3222-4a1f-8321-9fee4d9f2e94", "host": "10.0.0.5"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	n, err := node.FromDocument(v)
	if err != nil {
		t.Fatalf("FromDocument: %v", err)
	}
	if n.UUID != "30acf7ce-3222-4a1f-8321-9fee4d9f2e94" || n.Host != "10.0.0.5" {
		t.Errorf("Node = %+v", n)
	}
}

func TestFromDocument_MissingHost(t *testing.T) {
	_, err := node.FromDocument(map[string]any{"uuid": "30acf7ce-3222-4a1f-8321-9fee4d9f2e94"})
	if err == nil {
		t.Fatal("expected an error for a node without host")
	}
}

func TestDocument_RoundTrip(t *testing.T) {
	original := node.Node{UUID: "30acf7ce-3222-4a1f-8321-9fee4d9f2e94", Host: "192.168.1.10"}
	rebuilt, err := node.FromDocument(original.Document())
	if err != nil {
		t.Fatalf("FromDocument: %v", err)
	}
	if rebuilt != original {
		t.Errorf("round trip changed the node: %+v", rebuilt)
	}
}
