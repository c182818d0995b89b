package core

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	sourceNetwork = "network"
	sourceCache   = "cache"
	sourceOffline = "offline"
	sourceError   = "error"
)

type metrics struct {
	responses *prometheus.CounterVec
	syncs     *prometheus.CounterVec
}

// newMetrics registers the worker's collectors. A nil registerer disables
// metrics; all methods are nil-safe.
func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}
	m := &metrics{
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "study_worker",
			Name:      "fetch_responses_total",
			Help:      "Fetch responses by strategy and source.",
		}, []string{"strategy", "source"}),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "study_worker",
			Name:      "sync_drains_total",
			Help:      "Background sync drain attempts by tag and outcome.",
		}, []string{"tag", "outcome"}),
	}
	reg.MustRegister(m.responses, m.syncs)
	return m
}

func (m *metrics) response(strategy Strategy, source string) {
	if m == nil {
		return
	}
	m.responses.WithLabelValues(string(strategy), source).Inc()
}

func (m *metrics) sync(tag, outcome string) {
	if m == nil {
		return
	}
	m.syncs.WithLabelValues(tag, outcome).Inc()
}
