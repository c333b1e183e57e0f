package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the screening chat
// client and the dev relay.
type Metrics struct {
	ChatEvents     *prometheus.CounterVec
	ActiveStreams  prometheus.Gauge
	StreamTokens   prometheus.Counter
	StreamOutcomes *prometheus.CounterVec
	WSWatchers     prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ChatEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_events_total",
			Help:      "Chat session events by type.",
		}, []string{"event"}),
		ActiveStreams: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Number of chat response streams currently open.",
		}),
		StreamTokens: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_tokens_total",
			Help:      "Assistant text fragments delivered over streams.",
		}),
		StreamOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_outcomes_total",
			Help:      "Completed streams by outcome.",
		}, []string{"outcome"}),
		WSWatchers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_watchers",
			Help:      "Connected live-transcript watchers.",
		}),
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
