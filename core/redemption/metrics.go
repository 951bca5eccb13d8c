package redemption

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the redemption counters exported on /metrics.
type Metrics struct {
	Redemptions  *prometheus.CounterVec
	StepDuration *prometheus.SummaryVec
}

// NewMetrics builds and registers the redemption metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Redemptions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "healthsnap_redemptions_total",
				Help: "Redemption attempts by outcome.",
			},
			[]string{"outcome"},
		),
		StepDuration: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Name: "healthsnap_verification_step_seconds",
				Help: "Time spent in each verification step.",
			},
			[]string{"step"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Redemptions, m.StepDuration)
	}
	return m
}

func (m *Metrics) outcome(label string) {
	if m == nil {
		return
	}
	m.Redemptions.WithLabelValues(label).Inc()
}

func (m *Metrics) step(step string, seconds float64) {
	if m == nil {
		return
	}
	m.StepDuration.WithLabelValues(step).Observe(seconds)
}
