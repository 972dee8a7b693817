package schema

import "github.com/volplane/volplane/domain/document"

// Stable schema names. These identify document shapes in the persisted
// configuration contract and must not be renamed without a migration.
const (
	SchemaUUID                   = "uuid"
	SchemaDatasetConfiguration   = "dataset_configuration"
	SchemaDatasetUpdate          = "dataset_update"
	SchemaLease                  = "lease"
	SchemaContainerConfiguration = "container_configuration"
	SchemaNodeState              = "node_state"
	SchemaClusterConfiguration   = "cluster_configuration"
	SchemaRestartPolicy          = "restart_policy"
)

// Dataset size and metadata limits.
const (
	MinDatasetSize      = 67108864 // 64MiB
	DatasetSizeMultiple = 1024
	MaxMetadataEntries  = 16
	MaxMetadataLength   = 256
)

// Container limits.
const (
	MaxCommandLineItems  = 4096
	MaxCommandLineLength = 4096
	MinPort              = 1
	MaxPort              = 65535
	MinCPUShares         = 1
	MaxCPUShares         = 1024
	MinMemoryLimit       = 1048576 // 1MiB
	MinRetryCount        = 1
)

// Value patterns.
const (
	// PatternUUID accepts canonical lowercase UUIDv4: version nibble 4,
	// variant nibble in 89ab.
	PatternUUID = "^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$"

	// PatternIPv4 accepts a dotted quad with each octet in 0-255.
	PatternIPv4 = "^(25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)(\\.(25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)){3}$"

	// PatternContainerName accepts Docker-style container names.
	PatternContainerName = "^/?[a-zA-Z0-9][a-zA-Z0-9_.-]*$"

	// PatternMountpoint accepts absolute paths only.
	PatternMountpoint = "^/.*$"
)

// NewCluster builds and compiles the registry of cluster configuration
// and state schemas. A returned error is a registry defect and fatal.
func NewCluster() (*Registry, error) {
	r := New()
	for name, def := range clusterDefinitions() {
		if err := r.Register(name, def); err != nil {
			return nil, err
		}
	}
	if err := r.Compile(); err != nil {
		return nil, err
	}
	return r, nil
}

func clusterDefinitions() map[string]*Definition {
	return map[string]*Definition{
		SchemaUUID: {
			Types:     []Type{TypeString},
			MinLength: intp(36),
			MaxLength: intp(36),
			Pattern:   PatternUUID,
		},

		// Lease dataset ids only require length; historic documents may
		// carry ids that predate strict UUIDv4 issuance.
		"dataset_id": {
			Types:     []Type{TypeString},
			MinLength: intp(36),
			MaxLength: intp(36),
		},

		"host_ipv4": {
			Types:   []Type{TypeString},
			Pattern: PatternIPv4,
		},

		"metadata": {
			Types:         []Type{TypeObject},
			MaxProperties: intp(MaxMetadataEntries),
			PatternProperties: map[string]*Definition{
				"^.{0,256}$": {Types: []Type{TypeString}, MaxLength: intp(MaxMetadataLength)},
			},
			AdditionalProperties: boolp(false),
		},

		"maximum_size": {
			Types:      []Type{TypeInteger, TypeNull},
			Minimum:    int64p(MinDatasetSize),
			MultipleOf: int64p(DatasetSizeMultiple),
		},

		"dataset": {
			Types: []Type{TypeObject},
			Properties: map[string]*Definition{
				"dataset_id":   {Ref: RefPrefix + "uuid"},
				"primary":      {Ref: RefPrefix + "uuid"},
				"deleted":      {Types: []Type{TypeBoolean}},
				"metadata":     {Ref: RefPrefix + "metadata"},
				"maximum_size": {Ref: RefPrefix + "maximum_size"},
			},
			AdditionalProperties: boolp(false),
		},

		// Submissions may omit dataset_id; one is generated on build.
		SchemaDatasetConfiguration: {
			AllOf: []*Definition{{Ref: RefPrefix + "dataset"}},
		},

		// Committed datasets always carry their id.
		"dataset_state": {
			AllOf: []*Definition{
				{Ref: RefPrefix + "dataset"},
				{Required: []string{"dataset_id"}},
			},
		},

		// Updates may only reassign the primary node.
		SchemaDatasetUpdate: {
			Types: []Type{TypeObject},
			Properties: map[string]*Definition{
				"primary": {Ref: RefPrefix + "uuid"},
			},
			Required:             []string{"primary"},
			AdditionalProperties: boolp(false),
		},

		SchemaLease: {
			Types: []Type{TypeObject},
			Properties: map[string]*Definition{
				"dataset_id": {Ref: RefPrefix + "dataset_id"},
				"node_uuid":  {Ref: RefPrefix + "uuid"},
				"expires":    {Types: []Type{TypeNumber, TypeNull}},
			},
			Required:             []string{"dataset_id", "node_uuid", "expires"},
			AdditionalProperties: boolp(false),
		},

		// Committed leases carry an absolute expiration instant.
		"lease_state": {
			Types: []Type{TypeObject},
			Properties: map[string]*Definition{
				"dataset_id": {Ref: RefPrefix + "dataset_id"},
				"node_uuid":  {Ref: RefPrefix + "uuid"},
				"expiration": {Types: []Type{TypeNumber, TypeNull}},
			},
			Required:             []string{"dataset_id", "node_uuid", "expiration"},
			AdditionalProperties: boolp(false),
		},

		SchemaRestartPolicy: {
			Types:        []Type{TypeObject},
			Discriminant: "name",
			OneOf: []*Definition{
				{
					Types: []Type{TypeObject},
					Properties: map[string]*Definition{
						"name": {Types: []Type{TypeString}, Enum: []document.Value{"never"}},
					},
					Required:             []string{"name"},
					AdditionalProperties: boolp(false),
				},
				{
					Types: []Type{TypeObject},
					Properties: map[string]*Definition{
						"name": {Types: []Type{TypeString}, Enum: []document.Value{"always"}},
					},
					Required:             []string{"name"},
					AdditionalProperties: boolp(false),
				},
				{
					Types: []Type{TypeObject},
					Properties: map[string]*Definition{
						"name":                {Types: []Type{TypeString}, Enum: []document.Value{"on-failure"}},
						"maximum_retry_count": {Types: []Type{TypeInteger}, Minimum: int64p(MinRetryCount)},
					},
					Required:             []string{"name", "maximum_retry_count"},
					AdditionalProperties: boolp(false),
				},
			},
		},

		"port_map": {
			Types: []Type{TypeObject},
			Properties: map[string]*Definition{
				"internal": {Ref: RefPrefix + "port_number"},
				"external": {Ref: RefPrefix + "port_number"},
			},
			Required:             []string{"internal", "external"},
			AdditionalProperties: boolp(false),
		},

		"port_number": {
			Types:   []Type{TypeInteger},
			Minimum: int64p(MinPort),
			Maximum: int64p(MaxPort),
		},

		"link": {
			Types: []Type{TypeObject},
			Properties: map[string]*Definition{
				"alias":       {Types: []Type{TypeString}, MinLength: intp(1)},
				"local_port":  {Ref: RefPrefix + "port_number"},
				"remote_port": {Ref: RefPrefix + "port_number"},
			},
			Required:             []string{"alias", "local_port", "remote_port"},
			AdditionalProperties: boolp(false),
		},

		"volume": {
			Types: []Type{TypeObject},
			Properties: map[string]*Definition{
				"dataset_id": {Ref: RefPrefix + "uuid"},
				"mountpoint": {Types: []Type{TypeString}, Pattern: PatternMountpoint},
			},
			Required:             []string{"dataset_id", "mountpoint"},
			AdditionalProperties: boolp(false),
		},

		"container": {
			Types: []Type{TypeObject},
			Properties: map[string]*Definition{
				"name":  {Types: []Type{TypeString}, Pattern: PatternContainerName},
				"image": {Types: []Type{TypeString}, MinLength: intp(1)},
				"command_line": {
					Types:    []Type{TypeArray},
					Items:    &Definition{Types: []Type{TypeString}, MaxLength: intp(MaxCommandLineLength)},
					MaxItems: intp(MaxCommandLineItems),
				},
				"ports":       {Types: []Type{TypeArray}, Items: &Definition{Ref: RefPrefix + "port_map"}, UniqueItems: true},
				"environment": {Ref: RefPrefix + "environment"},
				"links":       {Types: []Type{TypeArray}, Items: &Definition{Ref: RefPrefix + "link"}, UniqueItems: true},
				"restart_policy": {Ref: RefPrefix + "restart_policy"},
				"cpu_shares": {
					Types:   []Type{TypeInteger},
					Minimum: int64p(MinCPUShares),
					Maximum: int64p(MaxCPUShares),
				},
				"memory_limit": {Types: []Type{TypeInteger}, Minimum: int64p(MinMemoryLimit)},
				"volumes":      {Types: []Type{TypeArray}, Items: &Definition{Ref: RefPrefix + "volume"}},
				"node_uuid":    {Ref: RefPrefix + "uuid"},
			},
			Required:             []string{"name", "image", "node_uuid"},
			AdditionalProperties: boolp(false),
		},

		"environment": {
			Types: []Type{TypeObject},
			PatternProperties: map[string]*Definition{
				"^.+$": {Types: []Type{TypeString}},
			},
			AdditionalProperties: boolp(false),
		},

		// The running flag is observed state, reported by node agents and
		// never accepted from a configuration submission.
		SchemaContainerConfiguration: {
			AllOf: []*Definition{{Ref: RefPrefix + "container"}},
		},

		"container_state": {
			AllOf: []*Definition{
				{Ref: RefPrefix + "container"},
				{
					Properties: map[string]*Definition{
						"running": {Types: []Type{TypeBoolean}},
					},
					Required: []string{"running"},
				},
			},
		},

		SchemaNodeState: {
			Types: []Type{TypeObject},
			Properties: map[string]*Definition{
				"uuid": {Ref: RefPrefix + "uuid"},
				"host": {Ref: RefPrefix + "host_ipv4"},
			},
			Required:             []string{"uuid", "host"},
			AdditionalProperties: boolp(false),
		},

		// The committed desired-state aggregate. Version is the optimistic
		// concurrency counter carried with the document.
		SchemaClusterConfiguration: {
			Types: []Type{TypeObject},
			Properties: map[string]*Definition{
				"version":    {Types: []Type{TypeInteger}, Minimum: int64p(0)},
				"nodes":      {Types: []Type{TypeArray}, Items: &Definition{Ref: RefPrefix + "node_state"}},
				"datasets":   {Types: []Type{TypeArray}, Items: &Definition{Ref: RefPrefix + "dataset_state"}},
				"leases":     {Types: []Type{TypeArray}, Items: &Definition{Ref: RefPrefix + "lease_state"}},
				"containers": {Types: []Type{TypeArray}, Items: &Definition{Ref: RefPrefix + "container_state"}},
			},
			Required:             []string{"version", "nodes", "datasets", "leases", "containers"},
			AdditionalProperties: boolp(false),
		},
	}
}

func intp(i int) *int       { return &i }
func int64p(i int64) *int64 { return &i }
func boolp(b bool) *bool    { return &b }
