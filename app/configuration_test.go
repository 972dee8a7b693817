package app_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/volplane/volplane/adapters/clock"
	"github.com/volplane/volplane/adapters/idgen"
	"github.com/volplane/volplane/adapters/memory"
	"github.com/volplane/volplane/adapters/metrics"
	"github.com/volplane/volplane/app"
	"github.com/volplane/volplane/domain/cluster"
	"github.com/volplane/volplane/domain/schema"
	"github.com/volplane/volplane/ports"
)

const nodeB = "b76d9f14-0c2a-4bb8-9a44-5c13e7a1f0d2"

type fixture struct {
	clock   *clock.Fake
	store   ports.ConfigStore
	service *app.ConfigurationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, memory.NewConfigStore(), app.DefaultCommitRetries)
}

func newFixtureWithStore(t *testing.T, store ports.ConfigStore, maxRetries int) *fixture {
	t.Helper()
	reg, err := schema.NewCluster()
	if err != nil {
		t.Fatalf("compile registry: %v", err)
	}
	clk := clock.NewFake(time.Date(2016, 3, 1, 12, 0, 0, 0, time.UTC))
	collector := metrics.New()
	validation := app.NewValidationService(reg, idgen.NewSequential(), clk, collector, zerolog.Nop())
	return &fixture{
		clock:   clk,
		store:   store,
		service: app.NewConfigurationService(validation, store, clk, collector, zerolog.Nop(), maxRetries),
	}
}

func (f *fixture) registerNodes(t *testing.T, uuids ...string) {
	t.Helper()
	ctx := context.Background()
	for i, uuid := range uuids {
		raw := fmt.Sprintf(`{"uuid": %q, "host": "10.0.0.%d"}`, uuid, i+1)
		if _, err := f.service.RegisterNode(ctx, []byte(raw)); err != nil {
			t.Fatalf("RegisterNode(%s): %v", uuid, err)
		}
	}
}

func (f *fixture) createDataset(t *testing.T, primary string) string {
	t.Helper()
	raw := fmt.Sprintf(`{"primary": %q}`, primary)
	d, err := f.service.CreateDataset(context.Background(), []byte(raw))
	if err != nil {
		t.Fatalf("CreateDataset: %v", err)
	}
	return d.DatasetID
}

func TestSnapshot_EmptyStore(t *testing.T) {
	f := newFixture(t)
	st, err := f.service.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if st.Version != 0 || len(st.Nodes) != 0 {
		t.Errorf("empty store snapshot = %+v", st)
	}
}

func TestSubmissionPipeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerNodes(t, nodeA, nodeB)

	id := f.createDataset(t, nodeA)

	st, err := f.service.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if st.Version != 3 {
		t.Errorf("Version = %d, want 3 after three commits", st.Version)
	}
	d, ok := st.Datasets[id]
	if !ok || d.Primary != nodeA {
		t.Errorf("dataset not committed: %+v", st.Datasets)
	}

	// The committed document must survive a load/validate/rebuild cycle.
	raw, version, err := f.store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if version != 3 {
		t.Errorf("store version = %d", version)
	}
	if len(raw) == 0 {
		t.Fatal("store holds no document")
	}
	again, err := f.service.Snapshot(ctx)
	if err != nil {
		t.Fatalf("re-Snapshot: %v", err)
	}
	if again.Version != st.Version || len(again.Datasets) != len(st.Datasets) {
		t.Errorf("snapshots diverge: %+v vs %+v", st, again)
	}
}

func TestCreateDataset_RejectsInvalidSubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.CreateDataset(ctx, []byte(`{"maximum_size": 1}`))
	var structural *schema.StructuralError
	if !errors.As(err, &structural) {
		t.Fatalf("err = %v, want *schema.StructuralError", err)
	}

	// A rejected submission never mutates the committed configuration.
	st, err := f.service.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if st.Version != 0 || len(st.Datasets) != 0 {
		t.Errorf("rejected submission mutated state: %+v", st)
	}
}

func TestCreateDataset_UnknownPrimaryRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.CreateDataset(context.Background(), []byte(fmt.Sprintf(`{"primary": %q}`, nodeA)))
	var semantic *cluster.SemanticError
	if !errors.As(err, &semantic) {
		t.Fatalf("err = %v, want *cluster.SemanticError", err)
	}
	if semantic.Violations[0].Rule != cluster.RuleUnknownNode {
		t.Errorf("Rule = %s", semantic.Violations[0].Rule)
	}
}

func TestUpdateDataset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerNodes(t, nodeA, nodeB)
	id := f.createDataset(t, nodeA)

	d, err := f.service.UpdateDataset(ctx, id, []byte(fmt.Sprintf(`{"primary": %q}`, nodeB)))
	if err != nil {
		t.Fatalf("UpdateDataset: %v", err)
	}
	if d.Primary != nodeB {
		t.Errorf("Primary = %q", d.Primary)
	}

	if _, err := f.service.UpdateDataset(ctx, "ffffffff-ffff-4fff-8fff-ffffffffffff", []byte(fmt.Sprintf(`{"primary": %q}`, nodeB))); !errors.Is(err, app.ErrDatasetNotFound) {
		t.Errorf("err = %v, want ErrDatasetNotFound", err)
	}

	// The update schema admits nothing but primary.
	var structural *schema.StructuralError
	if _, err := f.service.UpdateDataset(ctx, id, []byte(fmt.Sprintf(`{"primary": %q, "maximum_size": 1073741824}`, nodeB))); !errors.As(err, &structural) {
		t.Errorf("err = %v, want *schema.StructuralError", err)
	}
}

func TestAcquireLease_ConflictThenExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerNodes(t, nodeA, nodeB)
	id := f.createDataset(t, nodeA)

	held, err := f.service.AcquireLease(ctx, []byte(fmt.Sprintf(`{"dataset_id": %q, "node_uuid": %q, "expires": 60}`, id, nodeA)))
	if err != nil {
		t.Fatalf("AcquireLease: %v", err)
	}
	if held.Expiration == nil {
		t.Fatal("a lease with expires must carry an expiration")
	}
	wantExp := cluster.UnixSeconds(f.clock.Now().Add(60 * time.Second))
	if *held.Expiration != wantExp {
		t.Errorf("Expiration = %v, want %v", *held.Expiration, wantExp)
	}

	// A different node is refused while the lease is live.
	_, err = f.service.AcquireLease(ctx, []byte(fmt.Sprintf(`{"dataset_id": %q, "node_uuid": %q, "expires": null}`, id, nodeB)))
	var semantic *cluster.SemanticError
	if !errors.As(err, &semantic) {
		t.Fatalf("err = %v, want *cluster.SemanticError", err)
	}
	if v := semantic.Violations[0]; v.Rule != cluster.RuleLeaseConflict || v.Holder != nodeA {
		t.Errorf("violation = %+v", v)
	}

	// Renewal by the holder is not a conflict.
	if _, err := f.service.AcquireLease(ctx, []byte(fmt.Sprintf(`{"dataset_id": %q, "node_uuid": %q, "expires": 120}`, id, nodeA))); err != nil {
		t.Errorf("renewal rejected: %v", err)
	}

	// Once the renewed lease lapses the other node acquires it.
	f.clock.Advance(121 * time.Second)
	held, err = f.service.AcquireLease(ctx, []byte(fmt.Sprintf(`{"dataset_id": %q, "node_uuid": %q, "expires": null}`, id, nodeB)))
	if err != nil {
		t.Fatalf("acquisition after expiry: %v", err)
	}
	if held.NodeUUID != nodeB || held.Expiration != nil {
		t.Errorf("held = %+v", held)
	}
}

func TestReleaseLease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerNodes(t, nodeA)
	id := f.createDataset(t, nodeA)

	if err := f.service.ReleaseLease(ctx, id); !errors.Is(err, app.ErrNoLease) {
		t.Errorf("err = %v, want ErrNoLease", err)
	}

	if _, err := f.service.AcquireLease(ctx, []byte(fmt.Sprintf(`{"dataset_id": %q, "node_uuid": %q, "expires": null}`, id, nodeA))); err != nil {
		t.Fatalf("AcquireLease: %v", err)
	}
	if err := f.service.ReleaseLease(ctx, id); err != nil {
		t.Fatalf("ReleaseLease: %v", err)
	}

	st, err := f.service.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(st.Leases) != 0 {
		t.Errorf("lease still held: %+v", st.Leases)
	}
}

func TestAddContainer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerNodes(t, nodeA, nodeB)
	id := f.createDataset(t, nodeA)

	raw := fmt.Sprintf(`{
		"name": "web", "image": "nginx",
		"volumes": [{"dataset_id": %q, "mountpoint": "/data"}],
		"node_uuid": %q
	}`, id, nodeA)
	c, err := f.service.AddContainer(ctx, []byte(raw))
	if err != nil {
		t.Fatalf("AddContainer: %v", err)
	}
	if c.Running {
		t.Error("a new container must not be running")
	}

	// Placing the container off the dataset's primary node is refused.
	misplaced := fmt.Sprintf(`{
		"name": "web2", "image": "nginx",
		"volumes": [{"dataset_id": %q, "mountpoint": "/data"}],
		"node_uuid": %q
	}`, id, nodeB)
	_, err = f.service.AddContainer(ctx, []byte(misplaced))
	var semantic *cluster.SemanticError
	if !errors.As(err, &semantic) {
		t.Fatalf("err = %v, want *cluster.SemanticError", err)
	}
	if semantic.Violations[0].Rule != cluster.RuleVolumeNodeMismatch {
		t.Errorf("Rule = %s", semantic.Violations[0].Rule)
	}

	// Submissions cannot set running.
	var structural *schema.StructuralError
	withRunning := fmt.Sprintf(`{"name": "web3", "image": "nginx", "running": true, "node_uuid": %q}`, nodeA)
	if _, err := f.service.AddContainer(ctx, []byte(withRunning)); !errors.As(err, &structural) {
		t.Errorf("err = %v, want *schema.StructuralError", err)
	}
}

func TestSetContainerRunning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerNodes(t, nodeA)

	raw := fmt.Sprintf(`{"name": "web", "image": "nginx", "node_uuid": %q}`, nodeA)
	if _, err := f.service.AddContainer(ctx, []byte(raw)); err != nil {
		t.Fatalf("AddContainer: %v", err)
	}

	if err := f.service.SetContainerRunning(ctx, "web", true); err != nil {
		t.Fatalf("SetContainerRunning: %v", err)
	}
	st, err := f.service.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !st.Containers["web"].Running {
		t.Error("running flag not committed")
	}

	if err := f.service.SetContainerRunning(ctx, "ghost", true); !errors.Is(err, app.ErrContainerNotFound) {
		t.Errorf("err = %v, want ErrContainerNotFound", err)
	}
}

func TestDeleteDataset_Tombstone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerNodes(t, nodeA)
	id := f.createDataset(t, nodeA)

	d, err := f.service.DeleteDataset(ctx, id)
	if err != nil {
		t.Fatalf("DeleteDataset: %v", err)
	}
	if !d.Deleted {
		t.Error("dataset not tombstoned")
	}

	// The entry stays in the configuration.
	st, err := f.service.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if _, ok := st.Datasets[id]; !ok {
		t.Error("tombstoned dataset removed from configuration")
	}

	// A tombstoned dataset can no longer be leased or mounted.
	_, err = f.service.AcquireLease(ctx, []byte(fmt.Sprintf(`{"dataset_id": %q, "node_uuid": %q, "expires": null}`, id, nodeA)))
	var semantic *cluster.SemanticError
	if !errors.As(err, &semantic) || semantic.Violations[0].Rule != cluster.RuleUnknownDataset {
		t.Errorf("lease on tombstone: err = %v", err)
	}

	raw := fmt.Sprintf(`{"name": "web", "image": "nginx", "volumes": [{"dataset_id": %q, "mountpoint": "/data"}], "node_uuid": %q}`, id, nodeA)
	_, err = f.service.AddContainer(ctx, []byte(raw))
	if !errors.As(err, &semantic) || semantic.Violations[0].Rule != cluster.RuleUnknownDataset {
		t.Errorf("mount of tombstone: err = %v", err)
	}

	if _, err := f.service.DeleteDataset(ctx, "ffffffff-ffff-4fff-8fff-ffffffffffff"); !errors.Is(err, app.ErrDatasetNotFound) {
		t.Errorf("err = %v, want ErrDatasetNotFound", err)
	}
}

// conflictStore wraps a store and fails the first n saves with a
// version conflict, as a concurrent writer would.
type conflictStore struct {
	ports.ConfigStore
	remaining int
}

func (s *conflictStore) Save(ctx context.Context, doc []byte, expected uint64) (uint64, error) {
	if s.remaining > 0 {
		s.remaining--
		return 0, ports.ErrVersionConflict
	}
	return s.ConfigStore.Save(ctx, doc, expected)
}

func TestCommitRetriesOnConflict(t *testing.T) {
	store := &conflictStore{ConfigStore: memory.NewConfigStore(), remaining: 2}
	f := newFixtureWithStore(t, store, app.DefaultCommitRetries)

	f.registerNodes(t, nodeA)

	st, err := f.service.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(st.Nodes) != 1 {
		t.Errorf("node not committed after retries: %+v", st)
	}
}

func TestCommitGivesUpAfterRetryBudget(t *testing.T) {
	store := &conflictStore{ConfigStore: memory.NewConfigStore(), remaining: 10}
	f := newFixtureWithStore(t, store, app.DefaultCommitRetries)

	raw := fmt.Sprintf(`{"uuid": %q, "host": "10.0.0.1"}`, nodeA)
	_, err := f.service.RegisterNode(context.Background(), []byte(raw))
	if !errors.Is(err, app.ErrTooManyConflicts) {
		t.Fatalf("err = %v, want ErrTooManyConflicts", err)
	}
}

// The retry budget is the caller's: a configured budget larger than the
// default absorbs a conflict burst the default would give up on, and a
// zero budget means a single attempt.
func TestCommitRetryBudgetConfigurable(t *testing.T) {
	store := &conflictStore{ConfigStore: memory.NewConfigStore(), remaining: 6}
	f := newFixtureWithStore(t, store, 8)

	f.registerNodes(t, nodeA)

	st, err := f.service.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(st.Nodes) != 1 {
		t.Errorf("node not committed within the configured budget: %+v", st)
	}

	single := newFixtureWithStore(t, &conflictStore{ConfigStore: memory.NewConfigStore(), remaining: 1}, 0)
	raw := fmt.Sprintf(`{"uuid": %q, "host": "10.0.0.1"}`, nodeA)
	if _, err := single.service.RegisterNode(context.Background(), []byte(raw)); !errors.Is(err, app.ErrTooManyConflicts) {
		t.Fatalf("err = %v, want ErrTooManyConflicts on a zero budget", err)
	}
}
