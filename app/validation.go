// Package app composes the validation core into services: structural
// validation, entity building, invariant checking, and the optimistic
// commit path for the configuration document.
package app

import (
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

// ValidationService validates untrusted documents against the cluster
// schemas and builds typed entities from the ones that pass. It is a
// pure pipeline over the compiled registry; concurrent use is safe.
type ValidationService struct {
	registry *schema.Registry
	idgen    ports.IDGenerator
	clock    ports.Clock
	metrics  *metrics.Collector
	logger   zerolog.Logger
}

// NewValidationService creates the validation pipeline.
func NewValidationService(registry *schema.Registry, idgen ports.IDGenerator, clk ports.Clock, collector *metrics.Collector, logger zerolog.Logger) *ValidationService {
	return &ValidationService{
		registry: registry,
		idgen:    idgen,
		clock:    clk,
		metrics:  collector,
		logger:   logger,
	}
}

// Validate checks raw JSON against a named schema and returns the
// normalized document. Failures are *schema.StructuralError or
// *schema.VariantError; anything else is a registry defect.
func (s *ValidationService) Validate(schemaName string, raw []byte) (document.Value, error) {
	v, err := s.registry.ValidateJSON(schemaName, raw)
	s.observe(schemaName, err)
	return v, err
}

// ValidateValue is Validate for an already-decoded document.
func (s *ValidationService) ValidateValue(schemaName string, v document.Value) (document.Value, error) {
	normalized, err := s.registry.Validate(schemaName, v)
	s.observe(schemaName, err)
	return normalized, err
}

func (s *ValidationService) observe(schemaName string, err error) {
	result := "valid"
	switch e := err.(type) {
	case nil:
	case *schema.StructuralError:
		result = "invalid"
		for _, v := range e.Violations {
			s.metrics.ViolationsTotal.WithLabelValues(string(v.Code)).Inc()
		}
		s.logger.Debug().Str("schema", schemaName).Int("violations", len(e.Violations)).Msg("document rejected")
	case *schema.VariantError:
		result = "invalid"
		s.metrics.ViolationsTotal.WithLabelValues(string(schema.CodeVariant)).Inc()
		s.logger.Debug().Str("schema", schemaName).Int("candidates", len(e.Candidates)).Msg("variant unresolved")
	default:
		result = "defect"
		s.logger.Error().Err(err).Str("schema", schemaName).Msg("registry defect during validation")
	}
	s.metrics.ValidationsTotal.WithLabelValues(schemaName, result).Inc()
}

// Build turns a validated, normalized document into its typed entity.
// Schema-defined defaults are filled here: a dataset submitted without
// an id receives a fresh UUIDv4. No coercion happens beyond what the
// schema already normalized.
func (s *ValidationService) Build(schemaName string, v document.Value) (any, error) {
	switch schemaName {
	case schema.SchemaDatasetConfiguration, "dataset_state":
		d, err := dataset.FromDocument(v)
		if err != nil {
			return nil, err
		}
		if d.DatasetID == "" {
			d.DatasetID = s.idgen.New()
		}
		return d, nil
	case schema.SchemaLease:
		return lease.FromDocument(v)
	case schema.SchemaContainerConfiguration, "container_state":
		return container.FromDocument(v)
	case schema.SchemaNodeState:
		return node.FromDocument(v)
	case schema.SchemaClusterConfiguration:
		return cluster.FromDocument(v)
	}
	return nil, fmt.Errorf("%w: no entity for %q", schema.ErrUnknownSchema, schemaName)
}

// CheckInvariants evaluates every cross-entity rule for the entity
// against an immutable snapshot. All failures are reported together as
// a *cluster.SemanticError.
func (s *ValidationService) CheckInvariants(entity any, st cluster.State) error {
	violations := cluster.Check(entity, st, s.clock.Now())
	if len(violations) == 0 {
		return nil
	}
	for _, v := range violations {
		s.metrics.InvariantFailures.WithLabelValues(string(v.Rule)).Inc()
		if v.Rule == cluster.RuleLeaseConflict {
			s.metrics.LeaseConflicts.Inc()
		}
	}
	s.logger.Debug().Int("violations", len(violations)).Msg("invariants rejected entity")
	return &cluster.SemanticError{Violations: violations}
}

// IsRecoverable reports whether an error from the pipeline is
// correctable by the submitter (structural, variant or semantic), as
// opposed to a registry defect or infrastructure failure.
func IsRecoverable(err error) bool {
	var structural *schema.StructuralError
	var variant *schema.VariantError
	var semantic *cluster.SemanticError
	return errors.As(err, &structural) || errors.As(err, &variant) || errors.As(err, &semantic)
}
