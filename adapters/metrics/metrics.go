// Package metrics provides Prometheus metrics collection for Volplane.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics for the validation core.
type Collector struct {
	// Validation metrics
	ValidationsTotal *prometheus.CounterVec
	ViolationsTotal  *prometheus.CounterVec

	// Invariant metrics
	InvariantFailures *prometheus.CounterVec
	LeaseConflicts    prometheus.Counter

	// Commit metrics
	CommitsTotal     *prometheus.CounterVec
	CommitConflicts  prometheus.Counter
	ConfigVersion    prometheus.Gauge
}

// New creates a collector registered on its own registry, so tests can
// construct collectors independently.
func New() *Collector {
	return NewWith(prometheus.NewRegistry())
}

// NewWith creates a collector registered on the given registerer.
func NewWith(reg prometheus.Registerer) *Collector {
	factory := func(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
		c := prometheus.NewCounterVec(opts, labels)
		reg.MustRegister(c)
		return c
	}

	c := &Collector{
		ValidationsTotal: factory(prometheus.CounterOpts{
			Namespace: "volplane",
			Name:      "validations_total",
			Help:      "Validation calls by schema and result",
		}, []string{"schema", "result"}),
		ViolationsTotal: factory(prometheus.CounterOpts{
			Namespace: "volplane",
			Name:      "violations_total",
			Help:      "Structural violations by reason code",
		}, []string{"code"}),
		InvariantFailures: factory(prometheus.CounterOpts{
			Namespace: "volplane",
			Name:      "invariant_failures_total",
			Help:      "Invariant checker failures by rule",
		}, []string{"rule"}),
		CommitsTotal: factory(prometheus.CounterOpts{
			Namespace: "volplane",
			Name:      "commits_total",
			Help:      "Configuration commit attempts by result",
		}, []string{"result"}),
	}

	c.LeaseConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "volplane",
		Name:      "lease_conflicts_total",
		Help:      "Lease acquisitions rejected because another node holds the lease",
	})
	c.CommitConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "volplane",
		Name:      "commit_conflicts_total",
		Help:      "Commits retried after an optimistic version conflict",
	})
	c.ConfigVersion = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "volplane",
		Name:      "configuration_version",
		Help:      "Version of the last committed configuration",
	})
	reg.MustRegister(c.LeaseConflicts, c.CommitConflicts, c.ConfigVersion)

	return c
}
