package access

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rejections *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tripkey_access_rejections_total",
			Help: "Requests rejected by the access pipeline, by step and reason",
		}, []string{"step", "reason"}),
	}
}

func (m *Metrics) IncRejection(step, reason string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(step, reason).Inc()
}
