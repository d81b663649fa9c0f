// Package metrics wires the parser's progress into Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector bundles the counters and histogram described in SPEC_FULL.md
// §4.8. Register it against a prometheus.Registerer of the caller's
// choosing; a nil *Collector is never constructed, callers instead pass a
// nil pointer through heapstat.Config to disable metrics entirely.
type Collector struct {
	bytesRead     prometheus.Counter
	recordsTotal  *prometheus.CounterVec
	warningsTotal *prometheus.CounterVec
	parseDuration prometheus.Histogram
}

// NewCollector builds a Collector and registers it with reg. Passing
// prometheus.NewRegistry() keeps metrics isolated; cmd/heapstat does this
// and serves that registry on its own /metrics endpoint.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heapstat_bytes_read_total",
			Help: "Total bytes consumed from the input hprof stream.",
		}),
		recordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "heapstat_records_total",
			Help: "Records observed, partitioned by kind.",
		}, []string{"tag"}),
		warningsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "heapstat_warnings_total",
			Help: "Non-fatal warnings observed during parsing, partitioned by kind.",
		}, []string{"kind"}),
		parseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "heapstat_parse_duration_seconds",
			Help:    "Wall-clock time to parse a complete hprof stream.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(c.bytesRead, c.recordsTotal, c.warningsTotal, c.parseDuration)
	return c
}

// IncRecord increments the records-total counter for the given top-level
// record tag (e.g. "STRING", "LOAD_CLASS", "HEAP_DUMP").
func (c *Collector) IncRecord(tag string) {
	if c == nil {
		return
	}
	c.recordsTotal.WithLabelValues(tag).Inc()
}

// IncWarning increments the warnings-total counter for the given kind.
func (c *Collector) IncWarning(kind string) {
	if c == nil {
		return
	}
	c.warningsTotal.WithLabelValues(kind).Inc()
}

// AddBytesRead adds n to the cumulative bytes-read counter.
func (c *Collector) AddBytesRead(n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.bytesRead.Add(float64(n))
}

// ObserveDuration records a completed parse's wall-clock duration.
func (c *Collector) ObserveDuration(d time.Duration) {
	if c == nil {
		return
	}
	c.parseDuration.Observe(d.Seconds())
}
