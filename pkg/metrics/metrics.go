package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Atom store metrics
	AtomsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "datafold_atoms_total",
			Help: "Total number of atoms ever created",
		},
	)

	AtomsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "datafold_atoms_by_status",
			Help: "Number of atoms by status",
		},
		[]string{"status"},
	)

	AtomRefsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "datafold_atom_refs_total",
			Help: "Total number of atom refs by kind",
		},
		[]string{"kind"},
	)

	// Schema metrics
	SchemasTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "datafold_schemas_total",
			Help: "Total number of registered schemas by lifecycle state",
		},
		[]string{"state"},
	)

	// Mutation metrics
	MutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datafold_mutations_total",
			Help: "Total number of mutations applied by schema and kind",
		},
		[]string{"schema", "kind"},
	)

	MutationDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datafold_mutation_denials_total",
			Help: "Total number of mutations denied by permission check",
		},
		[]string{"schema", "field"},
	)

	MutationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datafold_mutation_duration_seconds",
			Help:    "Time taken to apply a mutation in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"schema"},
	)

	// Query metrics
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datafold_queries_total",
			Help: "Total number of queries executed by schema",
		},
		[]string{"schema"},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datafold_query_duration_seconds",
			Help:    "Time taken to resolve a query in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"schema"},
	)

	// Transform metrics
	TransformExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datafold_transform_executions_total",
			Help: "Total number of transform executions by transform id and outcome",
		},
		[]string{"transform_id", "outcome"},
	)

	TransformExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datafold_transform_execution_duration_seconds",
			Help:    "Time taken to execute a transform in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"transform_id"},
	)

	// Orchestrator metrics
	OrchestratorQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "datafold_orchestrator_queue_depth",
			Help: "Number of transform tasks currently queued",
		},
	)

	OrchestratorDeadLettersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datafold_orchestrator_dead_letters_total",
			Help: "Total number of transform tasks moved to the dead-letter queue",
		},
	)

	OrchestratorRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datafold_orchestrator_retries_total",
			Help: "Total number of transform task retries",
		},
	)

	// Message bus metrics
	BusEventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datafold_bus_events_published_total",
			Help: "Total number of events published by topic",
		},
		[]string{"topic"},
	)

	BusDeadLettersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datafold_bus_dead_letters_total",
			Help: "Total number of events that exhausted their retry budget",
		},
	)

	BusSubscribersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "datafold_bus_subscribers_total",
			Help: "Number of active subscribers by topic",
		},
		[]string{"topic"},
	)

	// Security metrics
	SignedMessagesVerifiedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datafold_signed_messages_verified_total",
			Help: "Total number of signed messages verified by outcome",
		},
		[]string{"outcome"},
	)

	RegisteredKeysTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "datafold_registered_keys_total",
			Help: "Total number of registered public keys",
		},
	)
)

func init() {
	prometheus.MustRegister(AtomsTotal)
	prometheus.MustRegister(AtomsByStatus)
	prometheus.MustRegister(AtomRefsTotal)
	prometheus.MustRegister(SchemasTotal)
	prometheus.MustRegister(MutationsTotal)
	prometheus.MustRegister(MutationDenialsTotal)
	prometheus.MustRegister(MutationDuration)
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(TransformExecutionsTotal)
	prometheus.MustRegister(TransformExecutionDuration)
	prometheus.MustRegister(OrchestratorQueueDepth)
	prometheus.MustRegister(OrchestratorDeadLettersTotal)
	prometheus.MustRegister(OrchestratorRetriesTotal)
	prometheus.MustRegister(BusEventsPublishedTotal)
	prometheus.MustRegister(BusDeadLettersTotal)
	prometheus.MustRegister(BusSubscribersTotal)
	prometheus.MustRegister(SignedMessagesVerifiedTotal)
	prometheus.MustRegister(RegisteredKeysTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
