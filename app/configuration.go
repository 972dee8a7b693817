package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/volplane/volplane/adapters/metrics"
	"github.com/volplane/volplane/domain/cluster"
	"github.com/volplane/volplane/domain/container"
	"github.com/volplane/volplane/domain/dataset"
	"github.com/volplane/volplane/domain/document"
	"github.com/volplane/volplane/domain/lease"
	"github.com/volplane/volplane/domain/node"
	"github.com/volplane/volplane/domain/schema"
	"github.com/volplane/volplane/ports"
)

// DefaultCommitRetries bounds how many times a submission is re-validated
// and retried after an optimistic version conflict, for callers that do
// not configure their own budget.
const DefaultCommitRetries = 3

// Submission errors.
var (
	// ErrDatasetNotFound is returned by update, delete and release
	// operations naming a dataset the configuration does not hold.
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrContainerNotFound is returned when observed state is reported
	// for a container the configuration does not hold.
	ErrContainerNotFound = errors.New("container not found")

	// ErrNoLease is returned when releasing a dataset that holds no lease.
	ErrNoLease = errors.New("no lease held")

	// ErrTooManyConflicts is returned when the commit retry budget is
	// exhausted without a clean optimistic save.
	ErrTooManyConflicts = errors.New("too many commit conflicts")
)

// ConfigurationService runs the full submission pipeline: validate,
// build, check invariants against a fresh snapshot, apply, and commit
// with an optimistic version check. A rejected submission never mutates
// the committed configuration.
type ConfigurationService struct {
	validation *ValidationService
	store      ports.ConfigStore
	clock      ports.Clock
	metrics    *metrics.Collector
	logger     zerolog.Logger
	maxRetries int
}

// NewConfigurationService creates the commit pipeline. maxRetries bounds
// conflict retries; zero means a single attempt, negative values fall
// back to DefaultCommitRetries.
func NewConfigurationService(validation *ValidationService, store ports.ConfigStore, clk ports.Clock, collector *metrics.Collector, logger zerolog.Logger, maxRetries int) *ConfigurationService {
	if maxRetries < 0 {
		maxRetries = DefaultCommitRetries
	}
	return &ConfigurationService{
		validation: validation,
		store:      store,
		clock:      clk,
		metrics:    collector,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Snapshot loads and rebuilds the committed cluster state. A store that
// has never been written yields the empty version-zero state. Stored
// documents always re-validate; a failure here is corruption, not user
// input.
func (s *ConfigurationService) Snapshot(ctx context.Context) (cluster.State, error) {
	raw, version, err := s.store.Load(ctx)
	if errors.Is(err, ports.ErrNotFound) {
		return cluster.Empty(), nil
	}
	if err != nil {
		return cluster.State{}, fmt.Errorf("load configuration: %w", err)
	}
	v, err := s.validation.Validate(schema.SchemaClusterConfiguration, raw)
	if err != nil {
		return cluster.State{}, fmt.Errorf("stored configuration no longer validates: %w", err)
	}
	st, err := cluster.FromDocument(v)
	if err != nil {
		return cluster.State{}, fmt.Errorf("rebuild configuration: %w", err)
	}
	if st.Version != version {
		return cluster.State{}, fmt.Errorf("stored configuration version %d disagrees with store version %d", st.Version, version)
	}
	return st, nil
}

// update runs one submission attempt per fresh snapshot until the save
// lands or the retry budget runs out. fn validates and applies the
// submission against the given snapshot; conflicts re-enter fn with a
// newer snapshot, never reusing stale invariant decisions.
func (s *ConfigurationService) update(ctx context.Context, fn func(cluster.State) (cluster.State, error)) error {
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		st, err := s.Snapshot(ctx)
		if err != nil {
			return err
		}
		next, err := fn(st)
		if err != nil {
			s.metrics.CommitsTotal.WithLabelValues("rejected").Inc()
			return err
		}
		committed := next.WithVersion(st.Version + 1)

		doc := committed.Document()
		// The shape we persist must be the shape we re-validate on load.
		if _, err := s.validation.ValidateValue(schema.SchemaClusterConfiguration, doc); err != nil {
			return fmt.Errorf("rendered configuration does not validate: %w", err)
		}
		raw, err := document.Encode(doc)
		if err != nil {
			return err
		}

		newVersion, err := s.store.Save(ctx, raw, st.Version)
		if errors.Is(err, ports.ErrVersionConflict) {
			s.metrics.CommitConflicts.Inc()
			s.logger.Debug().Uint64("expected", st.Version).Msg("commit conflict, re-validating against fresh snapshot")
			continue
		}
		if err != nil {
			s.metrics.CommitsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("save configuration: %w", err)
		}
		s.metrics.CommitsTotal.WithLabelValues("committed").Inc()
		s.metrics.ConfigVersion.Set(float64(newVersion))
		s.logger.Info().Uint64("version", newVersion).Msg("configuration committed")
		return nil
	}
	s.metrics.CommitsTotal.WithLabelValues("conflict").Inc()
	return ErrTooManyConflicts
}

// CreateDataset validates a dataset_configuration submission and commits
// the new dataset. An omitted dataset_id is generated.
func (s *ConfigurationService) CreateDataset(ctx context.Context, raw []byte) (dataset.Dataset, error) {
	v, err := s.validation.Validate(schema.SchemaDatasetConfiguration, raw)
	if err != nil {
		return dataset.Dataset{}, err
	}
	built, err := s.validation.Build(schema.SchemaDatasetConfiguration, v)
	if err != nil {
		return dataset.Dataset{}, err
	}
	d := built.(dataset.Dataset)

	err = s.update(ctx, func(st cluster.State) (cluster.State, error) {
		if err := s.validation.CheckInvariants(d, st); err != nil {
			return cluster.State{}, err
		}
		return st.WithDataset(d), nil
	})
	if err != nil {
		return dataset.Dataset{}, err
	}
	return d, nil
}

// UpdateDataset applies the restricted update schema: only the primary
// node may be reassigned.
func (s *ConfigurationService) UpdateDataset(ctx context.Context, datasetID string, raw []byte) (dataset.Dataset, error) {
	v, err := s.validation.Validate(schema.SchemaDatasetUpdate, raw)
	if err != nil {
		return dataset.Dataset{}, err
	}
	primary := v.(map[string]any)["primary"].(string)

	var updated dataset.Dataset
	err = s.update(ctx, func(st cluster.State) (cluster.State, error) {
		current, ok := st.Datasets[datasetID]
		if !ok {
			return cluster.State{}, fmt.Errorf("%w: %s", ErrDatasetNotFound, datasetID)
		}
		updated = current.WithPrimary(primary)
		if err := s.validation.CheckInvariants(updated, st); err != nil {
			return cluster.State{}, err
		}
		return st.WithDataset(updated), nil
	})
	if err != nil {
		return dataset.Dataset{}, err
	}
	return updated, nil
}

// DeleteDataset tombstones a dataset. The entry stays in the
// configuration; nothing is physically removed.
func (s *ConfigurationService) DeleteDataset(ctx context.Context, datasetID string) (dataset.Dataset, error) {
	var deleted dataset.Dataset
	err := s.update(ctx, func(st cluster.State) (cluster.State, error) {
		current, ok := st.Datasets[datasetID]
		if !ok {
			return cluster.State{}, fmt.Errorf("%w: %s", ErrDatasetNotFound, datasetID)
		}
		deleted = current.WithDeleted()
		return st.WithDataset(deleted), nil
	})
	if err != nil {
		return dataset.Dataset{}, err
	}
	return deleted, nil
}

// AcquireLease validates a lease submission and commits the claim. The
// relative expires lifetime resolves against the commit attempt's
// clock reading; conflicts re-resolve it on retry.
func (s *ConfigurationService) AcquireLease(ctx context.Context, raw []byte) (cluster.HeldLease, error) {
	v, err := s.validation.Validate(schema.SchemaLease, raw)
	if err != nil {
		return cluster.HeldLease{}, err
	}
	built, err := s.validation.Build(schema.SchemaLease, v)
	if err != nil {
		return cluster.HeldLease{}, err
	}
	l := built.(lease.Lease)

	var held cluster.HeldLease
	err = s.update(ctx, func(st cluster.State) (cluster.State, error) {
		if err := s.validation.CheckInvariants(l, st); err != nil {
			return cluster.State{}, err
		}
		held = cluster.HeldLease{
			DatasetID: l.DatasetID,
			NodeUUID:  l.NodeUUID,
		}
		if t := l.ExpirationAt(s.clock.Now()); t != nil {
			exp := cluster.UnixSeconds(*t)
			held.Expiration = &exp
		}
		return st.WithLease(held), nil
	})
	if err != nil {
		return cluster.HeldLease{}, err
	}
	return held, nil
}

// ReleaseLease removes any lease held on the dataset.
func (s *ConfigurationService) ReleaseLease(ctx context.Context, datasetID string) error {
	return s.update(ctx, func(st cluster.State) (cluster.State, error) {
		if _, ok := st.Leases[datasetID]; !ok {
			return cluster.State{}, fmt.Errorf("%w: dataset %s", ErrNoLease, datasetID)
		}
		return st.WithoutLease(datasetID), nil
	})
}

// AddContainer validates a container_configuration submission and
// commits the container. Submissions cannot carry the running flag; it
// starts false and is only changed by observed-state reports.
func (s *ConfigurationService) AddContainer(ctx context.Context, raw []byte) (container.Container, error) {
	v, err := s.validation.Validate(schema.SchemaContainerConfiguration, raw)
	if err != nil {
		return container.Container{}, err
	}
	built, err := s.validation.Build(schema.SchemaContainerConfiguration, v)
	if err != nil {
		return container.Container{}, err
	}
	c := built.(container.Container)

	err = s.update(ctx, func(st cluster.State) (cluster.State, error) {
		if err := s.validation.CheckInvariants(c, st); err != nil {
			return cluster.State{}, err
		}
		return st.WithContainer(c), nil
	})
	if err != nil {
		return container.Container{}, err
	}
	return c, nil
}

// SetContainerRunning records externally observed run state for a
// committed container.
func (s *ConfigurationService) SetContainerRunning(ctx context.Context, name string, running bool) error {
	return s.update(ctx, func(st cluster.State) (cluster.State, error) {
		current, ok := st.Containers[name]
		if !ok {
			return cluster.State{}, fmt.Errorf("%w: %s", ErrContainerNotFound, name)
		}
		current.Running = running
		return st.WithContainer(current), nil
	})
}

// RegisterNode validates a node_state document and commits the node.
func (s *ConfigurationService) RegisterNode(ctx context.Context, raw []byte) (node.Node, error) {
	v, err := s.validation.Validate(schema.SchemaNodeState, raw)
	if err != nil {
		return node.Node{}, err
	}
	built, err := s.validation.Build(schema.SchemaNodeState, v)
	if err != nil {
		return node.Node{}, err
	}
	n := built.(node.Node)

	err = s.update(ctx, func(st cluster.State) (cluster.State, error) {
		return st.WithNode(n), nil
	})
	if err != nil {
		return node.Node{}, err
	}
	return n, nil
}
