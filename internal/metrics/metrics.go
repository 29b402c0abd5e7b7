package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of the edge node. All methods are
// safe to call on a nil *Metrics.
type Metrics struct {
	SyncAttempts          *prometheus.CounterVec
	SyncDuration          prometheus.Histogram
	MergedEntities        *prometheus.CounterVec
	VaccinationsCommitted *prometheus.CounterVec
	ValidationRejections  *prometheus.CounterVec
}

// New creates the metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SyncAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "episync_sync_attempts_total",
			Help: "Sync attempts by outcome: success, offline, busy, canceled or error",
		}, []string{"outcome"}),
		SyncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "episync_sync_duration_seconds",
			Help:    "Duration of successful sync attempts",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		MergedEntities: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "episync_sync_merged_entities_total",
			Help: "Entities written back by sync, by collection and winning side",
		}, []string{"collection", "source"}),
		VaccinationsCommitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "episync_vaccinations_committed_total",
			Help: "Vaccination records committed, by kind (new, correction)",
		}, []string{"kind"}),
		ValidationRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "episync_validation_rejections_total",
			Help: "Administration events rejected by the date validator, by rule",
		}, []string{"rule"}),
	}
}

func (m *Metrics) ObserveSync(outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.SyncAttempts.WithLabelValues(outcome).Inc()
	if outcome == "success" {
		m.SyncDuration.Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) AddMerged(collection, source string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.MergedEntities.WithLabelValues(collection, source).Add(float64(n))
}

func (m *Metrics) AddCommitted(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.VaccinationsCommitted.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) IncrementRejected(rule string) {
	if m == nil {
		return
	}
	m.ValidationRejections.WithLabelValues(rule).Inc()
}
