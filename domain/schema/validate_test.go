package schema_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/volplane/volplane/domain/schema"
)

func TestValidate_UUID(t *testing.T) {
	r := clusterReg(t)

	valid := []string{
		"6b444f22-30eb-4811-9d8a-0c4a0a0ca63b",
		"00000000-0000-4000-8000-000000000000",
		"ffffffff-ffff-4fff-bfff-ffffffffffff",
	}
	for _, s := range valid {
		requireValid(t, r, schema.SchemaUUID, fmt.Sprintf("%q", s))
	}

	invalid := []struct {
		name string
		uuid string
	}{
		{"too short", "6b444f22-30eb-4811-9d8a-0c4a0a0ca63"},
		{"too long", "6b444f22-30eb-4811-9d8a-0c4a0a0ca63bb"},
		{"version nibble not 4", "6b444f22-30eb-5811-9d8a-0c4a0a0ca63b"},
		{"variant nibble outside 89ab", "6b444f22-30eb-4811-cd8a-0c4a0a0ca63b"},
		{"uppercase hex", "6B444F22-30EB-4811-9D8A-0C4A0A0CA63B"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Validate(schema.SchemaUUID, tt.uuid)
			requireViolation(t, err, "/", schema.CodePattern)
		})
	}
}

func TestValidate_UUIDNonString(t *testing.T) {
	r := clusterReg(t)
	_, err := r.Validate(schema.SchemaUUID, decode(t, `42`))
	requireViolation(t, err, "/", schema.CodeType)
}

func TestValidate_DatasetMetadataLimit(t *testing.T) {
	r := clusterReg(t)

	entries := func(n int) string {
		parts := make([]string, n)
		for i := range parts {
			parts[i] = fmt.Sprintf("%q: \"v\"", fmt.Sprintf("key%02d", i))
		}
		return "{" + strings.Join(parts, ",") + "}"
	}

	requireValid(t, r, schema.SchemaDatasetConfiguration,
		fmt.Sprintf(`{"metadata": %s}`, entries(16)))

	_, err := r.Validate(schema.SchemaDatasetConfiguration,
		decode(t, fmt.Sprintf(`{"metadata": %s}`, entries(17))))
	requireViolation(t, err, "/metadata", schema.CodeMaxProperties)
}

func TestValidate_DatasetMetadataValueLength(t *testing.T) {
	r := clusterReg(t)

	long := strings.Repeat("x", 257)
	_, err := r.Validate(schema.SchemaDatasetConfiguration,
		decode(t, fmt.Sprintf(`{"metadata": {"k": %q}}`, long)))
	requireViolation(t, err, "/metadata/k", schema.CodeMaxLength)

	// A key longer than 256 characters matches no declared pattern.
	_, err = r.Validate(schema.SchemaDatasetConfiguration,
		decode(t, fmt.Sprintf(`{"metadata": {%q: "v"}}`, long)))
	requireViolation(t, err, "/metadata/"+long, schema.CodeUnknownField)
}

func TestValidate_StringLengthCountsRunes(t *testing.T) {
	r := clusterReg(t)

	// 200 two-byte characters: 400 bytes, 200 runes, within the limit.
	multibyte := strings.Repeat("é", 200)
	requireValid(t, r, schema.SchemaDatasetConfiguration,
		fmt.Sprintf(`{"metadata": {"k": %q}}`, multibyte))

	// 257 runes is over the limit in any encoding.
	_, err := r.Validate(schema.SchemaDatasetConfiguration,
		decode(t, fmt.Sprintf(`{"metadata": {"k": %q}}`, strings.Repeat("é", 257))))
	requireViolation(t, err, "/metadata/k", schema.CodeMaxLength)
}

func TestValidate_MaximumSize(t *testing.T) {
	r := clusterReg(t)

	tests := []struct {
		name string
		doc  string
		path string
		code schema.Code // empty = valid
	}{
		{"at minimum", `{"maximum_size": 67108864}`, "", ""},
		{"null is unbounded", `{"maximum_size": null}`, "", ""},
		{"large multiple", `{"maximum_size": 107374182400}`, "", ""},
		{"below minimum", `{"maximum_size": 67108863}`, "/maximum_size", schema.CodeMinimum},
		{"not a multiple of 1024", `{"maximum_size": 67108865}`, "/maximum_size", schema.CodeMultipleOf},
		{"fractional", `{"maximum_size": 67108864.5}`, "/maximum_size", schema.CodeType},
		{"string", `{"maximum_size": "big"}`, "/maximum_size", schema.CodeType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Validate(schema.SchemaDatasetConfiguration, decode(t, tt.doc))
			if tt.code == "" {
				if err != nil {
					t.Fatalf("want valid, got %v", err)
				}
				return
			}
			requireViolation(t, err, tt.path, tt.code)
		})
	}
}

func TestValidate_DatasetUnknownField(t *testing.T) {
	r := clusterReg(t)

	// Every recognized field is individually valid; the unrecognized one
	// still fails the document.
	_, err := r.Validate(schema.SchemaDatasetConfiguration, decode(t, `{
		"dataset_id": "6b444f22-30eb-4811-9d8a-0c4a0a0ca63b",
		"deleted": false,
		"maximum_size": 67108864,
		"surprise": true
	}`))
	requireViolation(t, err, "/surprise", schema.CodeUnknownField)
}

func TestValidate_CollectsAllViolations(t *testing.T) {
	r := clusterReg(t)

	_, err := r.Validate(schema.SchemaDatasetConfiguration, decode(t, `{
		"dataset_id": "nope",
		"primary": 17,
		"maximum_size": 1000,
		"extra": null
	}`))
	var structural *schema.StructuralError
	if !errors.As(err, &structural) {
		t.Fatalf("error = %T, want StructuralError", err)
	}
	// One pass surfaces every problem: bad id pattern and lengths, wrong
	// primary type, size below minimum and off-multiple, unknown field.
	if len(structural.Violations) < 5 {
		t.Errorf("got %d violations, want at least 5: %v", len(structural.Violations), structural.Violations)
	}
	requireViolation(t, err, "/dataset_id", schema.CodePattern)
	requireViolation(t, err, "/primary", schema.CodeType)
	requireViolation(t, err, "/maximum_size", schema.CodeMinimum)
	requireViolation(t, err, "/maximum_size", schema.CodeMultipleOf)
	requireViolation(t, err, "/extra", schema.CodeUnknownField)
}

func TestValidate_DatasetUpdateRestricted(t *testing.T) {
	r := clusterReg(t)

	requireValid(t, r, schema.SchemaDatasetUpdate,
		`{"primary": "6b444f22-30eb-4811-9d8a-0c4a0a0ca63b"}`)

	_, err := r.Validate(schema.SchemaDatasetUpdate, decode(t, `{}`))
	requireViolation(t, err, "/", schema.CodeRequired)

	// Even otherwise-legal dataset fields are rejected in an update.
	_, err = r.Validate(schema.SchemaDatasetUpdate, decode(t, `{
		"primary": "6b444f22-30eb-4811-9d8a-0c4a0a0ca63b",
		"maximum_size": 67108864
	}`))
	requireViolation(t, err, "/maximum_size", schema.CodeUnknownField)
}

func TestValidate_Lease(t *testing.T) {
	r := clusterReg(t)

	requireValid(t, r, schema.SchemaLease, `{
		"dataset_id": "6b444f22-30eb-4811-9d8a-0c4a0a0ca63b",
		"node_uuid": "30acf7ce-3222-4a1f-8321-9fee4d9f2e94",
		"expires": 900
	}`)
	requireValid(t, r, schema.SchemaLease, `{
		"dataset_id": "6b444f22-30eb-4811-9d8a-0c4a0a0ca63b",
		"node_uuid": "30acf7ce-3222-4a1f-8321-9fee4d9f2e94",
		"expires": null
	}`)
	// Fractional lifetimes are numbers, not integers.
	requireValid(t, r, schema.SchemaLease, `{
		"dataset_id": "6b444f22-30eb-4811-9d8a-0c4a0a0ca63b",
		"node_uuid": "30acf7ce-3222-4a1f-8321-9fee4d9f2e94",
		"expires": 0.5
	}`)

	_, err := r.Validate(schema.SchemaLease, decode(t, `{
		"dataset_id": "6b444f22-30eb-4811-9d8a-0c4a0a0ca63b",
		"node_uuid": "30acf7ce-3222-4a1f-8321-9fee4d9f2e94"
	}`))
	requireViolation(t, err, "/", schema.CodeRequired)

	_, err = r.Validate(schema.SchemaLease, decode(t, `{
		"dataset_id": "short",
		"node_uuid": "30acf7ce-3222-4a1f-8321-9fee4d9f2e94",
		"expires": null
	}`))
	requireViolation(t, err, "/dataset_id", schema.CodeMinLength)
}

func TestValidate_ContainerPorts(t *testing.T) {
	r := clusterReg(t)

	base := func(ports string) string {
		return fmt.Sprintf(`{
			"name": "web",
			"image": "nginx:latest",
			"node_uuid": "30acf7ce-3222-4a1f-8321-9fee4d9f2e94",
			"ports": %s
		}`, ports)
	}

	requireValid(t, r, schema.SchemaContainerConfiguration,
		base(`[{"internal": 80, "external": 8080}, {"internal": 443, "external": 8443}]`))

	t.Run("duplicate pairs", func(t *testing.T) {
		_, err := r.Validate(schema.SchemaContainerConfiguration,
			decode(t, base(`[{"internal": 80, "external": 8080}, {"external": 8080, "internal": 80}]`)))
		requireViolation(t, err, "/ports/1", schema.CodeUniqueItems)
	})
	t.Run("port zero", func(t *testing.T) {
		_, err := r.Validate(schema.SchemaContainerConfiguration,
			decode(t, base(`[{"internal": 0, "external": 8080}]`)))
		requireViolation(t, err, "/ports/0/internal", schema.CodeMinimum)
	})
	t.Run("port too high", func(t *testing.T) {
		_, err := r.Validate(schema.SchemaContainerConfiguration,
			decode(t, base(`[{"internal": 80, "external": 65536}]`)))
		requireViolation(t, err, "/ports/0/external", schema.CodeMaximum)
	})
	t.Run("missing half of the pair", func(t *testing.T) {
		_, err := r.Validate(schema.SchemaContainerConfiguration,
			decode(t, base(`[{"internal": 80}]`)))
		requireViolation(t, err, "/ports/0", schema.CodeRequired)
	})
}

func TestValidate_ContainerShape(t *testing.T) {
	r := clusterReg(t)

	tests := []struct {
		name string
		doc  string
		path string
		code schema.Code
	}{
		{
			"bad name pattern",
			`{"name": "-bad", "image": "img", "node_uuid": "30acf7ce-3222-4a1f-8321-9fee4d9f2e94"}`,
			"/name", schema.CodePattern,
		},
		{
			"cpu shares above cap",
			`{"name": "web", "image": "img", "node_uuid": "30acf7ce-3222-4a1f-8321-9fee4d9f2e94", "cpu_shares": 1025}`,
			"/cpu_shares", schema.CodeMaximum,
		},
		{
			"memory below floor",
			`{"name": "web", "image": "img", "node_uuid": "30acf7ce-3222-4a1f-8321-9fee4d9f2e94", "memory_limit": 1048575}`,
			"/memory_limit", schema.CodeMinimum,
		},
		{
			"relative mountpoint",
			`{"name": "web", "image": "img", "node_uuid": "30acf7ce-3222-4a1f-8321-9fee4d9f2e94",
			  "volumes": [{"dataset_id": "6b444f22-30eb-4811-9d8a-0c4a0a0ca63b", "mountpoint": "data"}]}`,
			"/volumes/0/mountpoint", schema.CodePattern,
		},
		{
			"non-string environment value",
			`{"name": "web", "image": "img", "node_uuid": "30acf7ce-3222-4a1f-8321-9fee4d9f2e94",
			  "environment": {"PORT": 8080}}`,
			"/environment/PORT", schema.CodeType,
		},
		{
			"running not settable by submission",
			`{"name": "web", "image": "img", "node_uuid": "30acf7ce-3222-4a1f-8321-9fee4d9f2e94", "running": true}`,
			"/running", schema.CodeUnknownField,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Validate(schema.SchemaContainerConfiguration, decode(t, tt.doc))
			requireViolation(t, err, tt.path, tt.code)
		})
	}
}

func TestValidate_CommandLineBounds(t *testing.T) {
	r := clusterReg(t)

	long := strings.Repeat("a", 4097)
	_, err := r.Validate(schema.SchemaContainerConfiguration, decode(t, fmt.Sprintf(`{
		"name": "web", "image": "img",
		"node_uuid": "30acf7ce-3222-4a1f-8321-9fee4d9f2e94",
		"command_line": ["run", %q]
	}`, long)))
	requireViolation(t, err, "/command_line/1", schema.CodeMaxLength)
}

func TestValidate_NodeState(t *testing.T) {
	r := clusterReg(t)

	requireValid(t, r, schema.SchemaNodeState,
		`{"uuid": "30acf7ce-3222-4a1f-8321-9fee4d9f2e94", "host": "10.0.1.17"}`)

	tests := []struct {
		name string
		host string
	}{
		{"octet out of range", "10.0.1.256"},
		{"hostname", "node1.example.com"},
		{"trailing dot", "10.0.1.17."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := fmt.Sprintf(`{"uuid": "30acf7ce-3222-4a1f-8321-9fee4d9f2e94", "host": %q}`, tt.host)
			_, err := r.Validate(schema.SchemaNodeState, decode(t, doc))
			requireViolation(t, err, "/host", schema.CodePattern)
		})
	}
}

func TestValidate_UnknownSchemaName(t *testing.T) {
	r := clusterReg(t)
	_, err := r.Validate("no_such_schema", decode(t, `{}`))
	if !errors.Is(err, schema.ErrUnknownSchema) {
		t.Errorf("error = %v, want ErrUnknownSchema", err)
	}
}

func TestValidateJSON_Malformed(t *testing.T) {
	r := clusterReg(t)
	_, err := r.ValidateJSON(schema.SchemaDatasetConfiguration, []byte(`{not json`))
	var structural *schema.StructuralError
	if !errors.As(err, &structural) {
		t.Fatalf("error = %T, want StructuralError", err)
	}
}
