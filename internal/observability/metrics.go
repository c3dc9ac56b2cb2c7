package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveStreams        prometheus.Gauge
	Turns                *prometheus.CounterVec
	RetrievalFailures    prometheus.Counter
	MemoryWriteFailures  prometheus.Counter
	FirstFragmentLatency prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveStreams: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Number of chat responses currently being streamed.",
		}),
		Turns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Chat turns by kind and outcome.",
		}, []string{"kind", "outcome"}),
		RetrievalFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_failures_total",
			Help:      "Retrieval queries that failed and degraded to no grounding.",
		}),
		MemoryWriteFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_write_failures_total",
			Help:      "Post-stream memory writes that failed (response already delivered).",
		}),
		FirstFragmentLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_fragment_latency_ms",
			Help:      "Latency to the first streamed assistant fragment in milliseconds.",
			Buckets:   []float64{100, 200, 300, 500, 700, 900, 1200, 2000, 5000},
		}),
	}
}

func (m *Metrics) ObserveFirstFragmentLatency(d time.Duration) {
	m.FirstFragmentLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
