package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rejected    *prometheus.CounterVec
	StoreErrors *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tripkey_ratelimit_rejected_total",
			Help: "Requests rejected with 429, by scope",
		}, []string{"scope"}),
		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tripkey_ratelimit_store_errors_total",
			Help: "Counter store failures that let a request through, by scope",
		}, []string{"scope"}),
	}
}

func (m *Metrics) IncRejected(scope Scope) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(string(scope)).Inc()
}

func (m *Metrics) IncStoreError(scope Scope) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(string(scope)).Inc()
}
