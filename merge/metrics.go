package merge

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for a reconciliation run.
type Metrics struct {
	Registry         *prometheus.Registry
	RecordsIn        *prometheus.CounterVec
	ExactDuplicates  prometheus.Counter
	UniqueTotal      prometheus.Counter
	DuplicatesTotal  prometheus.Counter
	GroupsTotal      *prometheus.CounterVec
	ResidualTotal    prometheus.Counter
	SkippedRowsTotal *prometheus.CounterVec
	InvalidLeaves    prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	recordsIn := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mangamerge_records_in_total",
			Help: "Records handed to the merge, by source.",
		},
		[]string{"source"},
	)
	exact := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mangamerge_exact_duplicates_total",
			Help: "Records dropped because an identical record was already present.",
		},
	)
	unique := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mangamerge_unique_total",
			Help: "Records emitted as unique.",
		},
	)
	duplicates := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mangamerge_duplicates_total",
			Help: "Records emitted in duplicate groups.",
		},
	)
	groups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mangamerge_duplicate_groups_total",
			Help: "Duplicate groups, by the key they were built from.",
		},
		[]string{"key"},
	)
	residual := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mangamerge_residual_total",
			Help: "Records that fell through reconciliation.",
		},
	)
	skipped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mangamerge_snapshot_rows_skipped_total",
			Help: "Prior snapshot rows skipped, by error kind.",
		},
		[]string{"kind"},
	)
	invalid := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mangamerge_invalid_leaves_total",
			Help: "Bookmark leaves that could not become records.",
		},
	)

	registry.MustRegister(recordsIn, exact, unique, duplicates, groups, residual, skipped, invalid)

	return &Metrics{
		Registry:         registry,
		RecordsIn:        recordsIn,
		ExactDuplicates:  exact,
		UniqueTotal:      unique,
		DuplicatesTotal:  duplicates,
		GroupsTotal:      groups,
		ResidualTotal:    residual,
		SkippedRowsTotal: skipped,
		InvalidLeaves:    invalid,
	}
}

// Observe records the counts of a finished merge.
func (m *Metrics) Observe(res *Result) {
	if m == nil || res == nil {
		return
	}
	m.RecordsIn.WithLabelValues("fresh").Add(float64(res.Stats.Fresh))
	m.RecordsIn.WithLabelValues("prior").Add(float64(res.Stats.Prior))
	m.ExactDuplicates.Add(float64(res.Stats.ExactDuplicates))
	m.UniqueTotal.Add(float64(res.Stats.Unique))
	m.DuplicatesTotal.Add(float64(res.Stats.Duplicates))
	for _, g := range res.Groups {
		m.GroupsTotal.WithLabelValues(string(g.Source)).Inc()
	}
	m.ResidualTotal.Add(float64(res.Stats.Residual))
}

// IncSkippedRow counts a skipped snapshot row.
func (m *Metrics) IncSkippedRow(kind string) {
	if m == nil {
		return
	}
	m.SkippedRowsTotal.WithLabelValues(kind).Inc()
}

// IncInvalidLeaf counts a bookmark leaf that produced no record.
func (m *Metrics) IncInvalidLeaf() {
	if m == nil {
		return
	}
	m.InvalidLeaves.Inc()
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
