package quality

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/medtrack/data-ingress/pkg/model"
)

// Metrics exposes audit scores and applied fixes to Prometheus
type Metrics struct {
	score        *prometheus.GaugeVec
	completeness *prometheus.GaugeVec
	fixes        *prometheus.CounterVec
	fixFailures  prometheus.Counter
}

// NewMetrics creates the quality metrics and registers them with reg.
// A nil registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		score: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "medtrack",
			Subsystem: "quality",
			Name:      "score",
			Help:      "Latest quality score per dimension.",
		}, []string{"dimension"}),
		completeness: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "medtrack",
			Subsystem: "quality",
			Name:      "completeness_rate",
			Help:      "Latest completeness rate per table.",
		}, []string{"table"}),
		fixes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medtrack",
			Subsystem: "quality",
			Name:      "fixes_applied_total",
			Help:      "Auto-fixes applied by type.",
		}, []string{"fix_type"}),
		fixFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "medtrack",
			Subsystem: "quality",
			Name:      "fix_failures_total",
			Help:      "Auto-fix passes rolled back.",
		}),
	}
}

func (m *Metrics) observeAudit(r *model.QualityAuditReport) {
	if m == nil {
		return
	}
	m.score.WithLabelValues("overall").Set(r.Score.Overall)
	m.score.WithLabelValues("completeness").Set(r.Score.Completeness)
	m.score.WithLabelValues("consistency").Set(r.Score.Consistency)
	m.score.WithLabelValues("accuracy").Set(r.Score.Accuracy)
	m.score.WithLabelValues("timeliness").Set(r.Score.Timeliness)
	for _, c := range r.Completeness {
		m.completeness.WithLabelValues(c.Table).Set(c.CompletenessRate)
	}
}

func (m *Metrics) observeFixes(fixes []model.FixRecord) {
	if m == nil {
		return
	}
	for _, f := range fixes {
		m.fixes.WithLabelValues(string(f.FixType)).Inc()
	}
}

func (m *Metrics) observeFixFailure() {
	if m == nil {
		return
	}
	m.fixFailures.Inc()
}
