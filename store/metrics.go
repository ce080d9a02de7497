package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	cacheHits  prometheus.Counter
	bytesIn    prometheus.Counter
	bytesOut   prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logstorage",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total number of archive store operations",
		}, []string{"operation", "result"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "logstorage",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Duration of archive store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: "logstorage",
			Subsystem: "store",
			Name:      "cache_hits_total",
			Help:      "Total number of archive downloads served from cache",
		}),
		bytesIn: f.NewCounter(prometheus.CounterOpts{
			Namespace: "logstorage",
			Subsystem: "store",
			Name:      "uploaded_bytes_total",
			Help:      "Total archive bytes written to the backend",
		}),
		bytesOut: f.NewCounter(prometheus.CounterOpts{
			Namespace: "logstorage",
			Subsystem: "store",
			Name:      "downloaded_bytes_total",
			Help:      "Total archive bytes read from the backend",
		}),
	}
}

// observe records one operation. A nil receiver records nothing.
func (m *metrics) observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, resultLabel(err)).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *metrics) cacheHit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

func (m *metrics) uploaded(n int64) {
	if m != nil {
		m.bytesIn.Add(float64(n))
	}
}

func (m *metrics) downloaded(n int64) {
	if m != nil {
		m.bytesOut.Add(float64(n))
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case isNotFound(err):
		return "not_found"
	default:
		return "error"
	}
}
