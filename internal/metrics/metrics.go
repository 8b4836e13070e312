package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks gateway operations. A nil *Metrics records nothing.
type Metrics struct {
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	fragments prometheus.Counter
	streamed  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatgw",
			Name:      "operations_total",
			Help:      "Gateway operations by name and outcome.",
		}, []string{"operation", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chatgw",
			Name:      "operation_duration_seconds",
			Help:      "Time taken to complete a gateway operation, including stream draining.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"operation"}),
		fragments: f.NewCounter(prometheus.CounterOpts{
			Namespace: "chatgw",
			Name:      "stream_fragments_total",
			Help:      "Completion fragments received from the provider.",
		}),
		streamed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "chatgw",
			Name:      "stream_bytes_total",
			Help:      "Bytes of completion text received from the provider.",
		}),
	}
}

// Operation records one finished operation.
func (m *Metrics) Operation(name, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(name, status).Inc()
	m.duration.WithLabelValues(name).Observe(took.Seconds())
}

// Fragment records one completion fragment of n bytes.
func (m *Metrics) Fragment(n int) {
	if m == nil {
		return
	}
	m.fragments.Inc()
	m.streamed.Add(float64(n))
}
