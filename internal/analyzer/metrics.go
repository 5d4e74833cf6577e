package analyzer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pdflearn/internal/model"
)

// Metrics are the analyzer collectors.
type Metrics struct {
	submitted prometheus.Counter
	finished  *prometheus.CounterVec
	stages    *prometheus.HistogramVec
	actions   *prometheus.CounterVec
}

// NewMetrics registers the analyzer collectors on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_jobs_submitted_total",
			Help: "Analysis jobs accepted for processing.",
		}),
		finished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyzer_jobs_finished_total",
				Help: "Analysis jobs by terminal status.",
			},
			[]string{"status"},
		),
		stages: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analyzer_stage_duration_seconds",
				Help:    "Duration of each analysis stage.",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyzer_user_actions_total",
				Help: "User actions received by the audit endpoint.",
			},
			[]string{"level"},
		),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.submitted, m.finished, m.stages, m.actions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) submit() {
	if m != nil {
		m.submitted.Inc()
	}
}

func (m *Metrics) finish(s model.JobStatus) {
	if m != nil {
		m.finished.WithLabelValues(string(s)).Inc()
	}
}

// ObserveStage records how long an analysis stage took.
func (m *Metrics) ObserveStage(name string, d time.Duration) {
	if m != nil {
		m.stages.WithLabelValues(name).Observe(d.Seconds())
	}
}

func (m *Metrics) action(level string) {
	if m != nil {
		m.actions.WithLabelValues(level).Inc()
	}
}
