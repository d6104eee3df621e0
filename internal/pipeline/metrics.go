package pipeline

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusEmpty   = "empty"
	StatusFailed  = "failed"
)

// Metrics holds Prometheus metrics for pipeline runs. A nil *Metrics
// records nothing.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	StageItemsTotal *prometheus.CounterVec
	FallbacksTotal  *prometheus.CounterVec
}

// NewMetrics registers pipeline metrics with reg.
//
// Metrics:
//   - actiond_runs_total{status} - pipeline runs by outcome
//   - actiond_stage_duration_seconds{stage} - wall-clock time per stage
//   - actiond_stage_items_total{stage} - items produced by each stage
//   - actiond_stage_fallbacks_total{stage} - degraded chunk, batch or item results
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "actiond_runs_total",
				Help: "Total number of pipeline runs",
			},
			[]string{"status"}, // "success", "empty" or "failed"
		),
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "actiond_stage_duration_seconds",
				Help:    "Duration of each pipeline stage in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
			[]string{"stage"},
		),
		StageItemsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "actiond_stage_items_total",
				Help: "Total number of items produced by each stage",
			},
			[]string{"stage"},
		),
		FallbacksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "actiond_stage_fallbacks_total",
				Help: "Total number of stage results that fell back to a default",
			},
			[]string{"stage"},
		),
	}
}

// DefaultMetrics returns metrics registered once with the default
// Prometheus registry.
func DefaultMetrics() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func (m *Metrics) recordRun(status string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) recordStage(stage string, d time.Duration, items int) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	m.StageItemsTotal.WithLabelValues(stage).Add(float64(items))
}

func (m *Metrics) recordFallbacks(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FallbacksTotal.WithLabelValues(stage).Add(float64(n))
}
