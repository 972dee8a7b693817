package lease_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/volplane/volplane/domain/document"
	"github.com/volplane/volplane/domain/lease"
)

func decode(t *testing.T, raw string) document.Value {
	t.Helper()
	v, err := document.Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestFromDocument(t *testing.T) {
	l, err := lease.FromDocument(decode(t, `{
		"dataset_id": "6b444f22-30eb-4811-9d8a-0c4a0a0ca63b",
		"node_uuid": "30acf7ce-3222-4a1f-8321-9fee4d9f2e94",
		"expires": 60
	}`))
	if err != nil {
		t.Fatalf("FromDocument: %v", err)
	}
	if l.DatasetID != "6b444f22-30eb-4811-9d8a-0c4a0a0ca63b" {
		t.Errorf("DatasetID = %q", l.DatasetID)
	}
	if l.NodeUUID != "30acf7ce-3222-4a1f-8321-9fee4d9f2e94" {
		t.Errorf("NodeUUID = %q", l.NodeUUID)
	}
	if l.Expires == nil || *l.Expires != 60 {
		t.Errorf("Expires = %v", l.Expires)
	}
}

func TestFromDocument_NullExpires(t *testing.T) {
	l, err := lease.FromDocument(decode(t, `{
		"dataset_id": "6b444f22-30eb-4811-9d8a-0c4a0a0ca63b",
		"node_uuid": "30acf7ce-3222-4a1f-8321-9fee4d9f2e94",
		"expires": null
	}`))
	if err != nil {
		t.Fatalf("FromDocument: %v", err)
	}
	if l.Expires != nil {
		t.Errorf("Expires = %v, want nil", l.Expires)
	}
}

func TestFromDocument_MissingExpires(t *testing.T) {
	_, err := lease.FromDocument(decode(t, `{
		"dataset_id": "6b444f22-30eb-4811-9d8a-0c4a0a0ca63b",
		"node_uuid": "30acf7ce-3222-4a1f-8321-9fee4d9f2e94"
	}`))
	if err == nil {
		t.Fatal("expected an error for a lease without expires")
	}
}

func TestDocument_RoundTrip(t *testing.T) {
	secs := 15.5
	for _, original := range []lease.Lease{
		{DatasetID: "6b444f22-30eb-4811-9d8a-0c4a0a0ca63b", NodeUUID: "30acf7ce-3222-4a1f-8321-9fee4d9f2e94", Expires: &secs},
		{DatasetID: "6b444f22-30eb-4811-9d8a-0c4a0a0ca63b", NodeUUID: "30acf7ce-3222-4a1f-8321-9fee4d9f2e94"},
	} {
		rebuilt, err := lease.FromDocument(original.Document())
		if err != nil {
			t.Fatalf("FromDocument: %v", err)
		}
		if !reflect.DeepEqual(original, rebuilt) {
			t.Errorf("round trip changed the lease:\n  original %+v\n  rebuilt  %+v", original, rebuilt)
		}
	}
}

func TestExpirationAt(t *testing.T) {
	now := time.Date(2016, 3, 1, 12, 0, 0, 0, time.UTC)

	secs := 90.0
	l := lease.Lease{Expires: &secs}
	got := l.ExpirationAt(now)
	if got == nil || !got.Equal(now.Add(90*time.Second)) {
		t.Errorf("ExpirationAt = %v", got)
	}

	forever := lease.Lease{}
	if forever.ExpirationAt(now) != nil {
		t.Error("a lease without expires must never expire")
	}
}
