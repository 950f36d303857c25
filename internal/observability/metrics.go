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
	MemoriesExtracted   *prometheus.CounterVec
	ExtractionFailures  *prometheus.CounterVec
	MemoryRetrievals    prometheus.Counter
	MemoryTouchFailures prometheus.Counter
	ChatTurns           *prometheus.CounterVec
	ChatTurnLatency     prometheus.Histogram
	ActiveWSChats       prometheus.Gauge
	AuthFailures        *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		MemoriesExtracted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memories_extracted_total",
			Help:      "Memories saved by extraction rule and created/updated status.",
		}, []string{"rule", "status"}),
		ExtractionFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_failures_total",
			Help:      "Extraction rule evaluations or upserts that failed and were skipped.",
		}, []string{"rule"}),
		MemoryRetrievals: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_retrievals_total",
			Help:      "Relevant-memory retrievals for context assembly.",
		}),
		MemoryTouchFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_touch_failures_total",
			Help:      "Best-effort access-count updates that could not be applied.",
		}),
		ChatTurns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Chat turns by outcome.",
		}, []string{"outcome"}),
		ChatTurnLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_turn_latency_ms",
			Help:      "End-to-end send pipeline latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}),
		ActiveWSChats: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_ws_chats",
			Help:      "Number of open websocket chat connections.",
		}),
		AuthFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Authentication failures by reason.",
		}, []string{"reason"}),
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}
}

func (m *Metrics) ObserveChatTurn(d time.Duration) {
	m.ChatTurnLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
