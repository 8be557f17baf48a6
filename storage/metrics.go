package storage

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the record store.
type Metrics struct {
	CleansTotal  *prometheus.CounterVec
	RowsTotal    *prometheus.CounterVec
	RetriesTotal prometheus.Counter
	ErrorsTotal  *prometheus.CounterVec
}

// NewMetrics constructs the store collectors and registers them on reg.
// A nil registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	cleans := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_cleans_total",
			Help: "Table clean attempts by table and outcome.",
		},
		[]string{"table", "outcome"},
	)
	rows := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_rows_total",
			Help: "Rows handled by the store by table and outcome.",
		},
		[]string{"table", "outcome"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "store_insert_retries_total",
			Help: "Insert attempts retried after a transient failure.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_errors_total",
			Help: "Store errors by phase and type.",
		},
		[]string{"phase", "error_type"},
	)

	if reg != nil {
		reg.MustRegister(cleans, rows, retries, errorsTotal)
	}

	return &Metrics{
		CleansTotal:  cleans,
		RowsTotal:    rows,
		RetriesTotal: retries,
		ErrorsTotal:  errorsTotal,
	}
}

func (m *Metrics) incClean(table, outcome string) {
	if m == nil {
		return
	}
	m.CleansTotal.WithLabelValues(table, outcome).Inc()
}

func (m *Metrics) addRows(table, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RowsTotal.WithLabelValues(table, outcome).Add(float64(n))
}

func (m *Metrics) incRetry() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

func (m *Metrics) incError(phase string, err error) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(phase, errorTypeLabel(err)).Inc()
}
