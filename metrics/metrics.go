// Package metrics exposes Prometheus counters for the sync pipeline. Nothing
// here serves HTTP; callers decide how (or whether) to expose the registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	records = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mercury_sync_records_total",
		Help: "Records handled by sync runs, by type and outcome.",
	}, []string{"sync_type", "outcome"})

	chunks = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mercury_sync_chunk_duration_seconds",
		Help:    "Wall time of one sync chunk.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"sync_type"})

	dumpRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mercury_dump_rows_total",
		Help: "Rows read from legacy dump files, by table and outcome.",
	}, []string{"table", "outcome"})
)

func ObserveChunk(syncType string, d time.Duration) {
	chunks.WithLabelValues(syncType).Observe(d.Seconds())
}

func CountRecords(syncType string, inserted, updated, skipped, errored int) {
	records.WithLabelValues(syncType, "inserted").Add(float64(inserted))
	records.WithLabelValues(syncType, "updated").Add(float64(updated))
	records.WithLabelValues(syncType, "skipped").Add(float64(skipped))
	records.WithLabelValues(syncType, "error").Add(float64(errored))
}

func CountDumpRows(table, outcome string, n int) {
	dumpRows.WithLabelValues(table, outcome).Add(float64(n))
}
