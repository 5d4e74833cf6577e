package workflow

import (
	"github.com/prometheus/client_golang/prometheus"

	"pdflearn/internal/model"
)

// Metrics are the upload workflow collectors.
type Metrics struct {
	transitions *prometheus.CounterVec
	outcomes    *prometheus.CounterVec
	activePolls prometheus.Gauge
}

// NewMetrics registers the workflow collectors on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upload_phase_transitions_total",
				Help: "Upload workflow transitions by target phase.",
			},
			[]string{"phase"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analysis_outcomes_total",
				Help: "Terminal outcomes of polled analysis jobs.",
			},
			[]string{"outcome"},
		),
		activePolls: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analysis_active_polls",
			Help: "Analysis jobs currently being polled.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.transitions, m.outcomes, m.activePolls} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) transition(p model.UploadPhase) {
	m.transitions.WithLabelValues(string(p)).Inc()
}

func (m *Metrics) outcome(o string) {
	m.outcomes.WithLabelValues(o).Inc()
}
