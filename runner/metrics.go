package runner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for scraper runs.
type Metrics struct {
	RunsTotal      *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec
	RecordsScraped *prometheus.CounterVec
}

// NewMetrics constructs the run collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runner_runs_total",
			Help: "Scraper runs by table, mode and result.",
		},
		[]string{"table", "mode", "result"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "runner_run_duration_seconds",
			Help:    "Wall time of a scraper run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"table"},
	)
	scraped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runner_records_scraped_total",
			Help: "Records extracted by scrapers, before deduplication.",
		},
		[]string{"table"},
	)

	if reg != nil {
		reg.MustRegister(runs, duration, scraped)
	}

	return &Metrics{
		RunsTotal:      runs,
		RunDuration:    duration,
		RecordsScraped: scraped,
	}
}

func (m *Metrics) observeRun(table, mode string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.RunsTotal.WithLabelValues(table, mode, result).Inc()
	m.RunDuration.WithLabelValues(table).Observe(d.Seconds())
}

func (m *Metrics) addScraped(table string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsScraped.WithLabelValues(table).Add(float64(n))
}
