package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	TripsCreated    prometheus.Counter
	Joins           *prometheus.CounterVec
	PINRotations    prometheus.Counter
	MembersRemoved  prometheus.Counter
	ResolveDuration prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TripsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "tripkey_trips_created_total",
			Help: "Total number of trips created",
		}),
		Joins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tripkey_joins_total",
			Help: "Join attempts by outcome",
		}, []string{"outcome"}),
		PINRotations: f.NewCounter(prometheus.CounterOpts{
			Name: "tripkey_pin_rotations_total",
			Help: "Total number of PIN rotations",
		}),
		MembersRemoved: f.NewCounter(prometheus.CounterOpts{
			Name: "tripkey_members_removed_total",
			Help: "Total number of members removed by an organizer",
		}),
		ResolveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tripkey_pin_resolve_duration_seconds",
			Help:    "Duration of PIN resolution, including the full scan when no trip is given",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

func (m *Metrics) IncTripCreated() {
	if m == nil {
		return
	}
	m.TripsCreated.Inc()
}

func (m *Metrics) IncJoin(outcome string) {
	if m == nil {
		return
	}
	m.Joins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncPINRotation() {
	if m == nil {
		return
	}
	m.PINRotations.Inc()
}

func (m *Metrics) IncMemberRemoved() {
	if m == nil {
		return
	}
	m.MembersRemoved.Inc()
}

func (m *Metrics) ObserveResolve(start time.Time) {
	if m == nil {
		return
	}
	m.ResolveDuration.Observe(time.Since(start).Seconds())
}
