package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/medtrack/data-ingress/pkg/model"
)

// Metrics exposes pipeline counters to Prometheus
type Metrics struct {
	runs            *prometheus.CounterVec
	records         *prometheus.CounterVec
	chunks          *prometheus.CounterVec
	errors          *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	validationScore *prometheus.GaugeVec
}

// NewMetrics creates the pipeline metrics and registers them with reg.
// A nil registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medtrack",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Entity runs by outcome.",
		}, []string{"entity", "outcome"}),
		records: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medtrack",
			Subsystem: "pipeline",
			Name:      "records_extracted_total",
			Help:      "Raw records extracted per entity.",
		}, []string{"entity"}),
		chunks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medtrack",
			Subsystem: "pipeline",
			Name:      "chunks_written_total",
			Help:      "Chunks written to the canonical store per table.",
		}, []string{"table"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medtrack",
			Subsystem: "pipeline",
			Name:      "errors_total",
			Help:      "Stage failures by category.",
		}, []string{"category"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medtrack",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Duration of entity runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"entity"}),
		validationScore: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "medtrack",
			Subsystem: "pipeline",
			Name:      "validation_score",
			Help:      "Latest structural validation score per entity.",
		}, []string{"entity"}),
	}
}

func (m *Metrics) observeRun(entity model.EntityType, outcome model.EntityOutcome, seconds float64) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(entity.String(), string(outcome)).Inc()
	m.duration.WithLabelValues(entity.String()).Observe(seconds)
}

func (m *Metrics) observeRecords(entity model.EntityType, n int) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(entity.String()).Add(float64(n))
}

func (m *Metrics) observeChunk(table string, _, _ int) {
	if m == nil {
		return
	}
	m.chunks.WithLabelValues(table).Inc()
}

func (m *Metrics) observeError(cat ErrorCategory) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(cat.String()).Inc()
}

func (m *Metrics) observeValidation(entity model.EntityType, score float64) {
	if m == nil {
		return
	}
	m.validationScore.WithLabelValues(entity.String()).Set(score)
}
