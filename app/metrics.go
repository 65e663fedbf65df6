package peerchat

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are exposed on the local API. Every method is safe on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	framesReceived *prometheus.CounterVec
	framesSent     *prometheus.CounterVec
	ingested       *prometheus.CounterVec
	foldDuration   prometheus.Histogram
	foldEntries    prometheus.Histogram
	connected      prometheus.Gauge
	connections    prometheus.Counter
	callEvents     *prometheus.CounterVec
	dialogs        prometheus.Gauge
	peers          prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerchat",
			Name:      "frames_received_total",
			Help:      "Frames received from the backend by type.",
		}, []string{"type"}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerchat",
			Name:      "frames_sent_total",
			Help:      "Frames sent to the backend by type.",
		}, []string{"type"}),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerchat",
			Name:      "messages_ingested_total",
			Help:      "Messages offered to the room logs by outcome.",
		}, []string{"result"}),
		foldDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "peerchat",
			Name:      "fold_duration_seconds",
			Help:      "Time spent refolding a room log.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		foldEntries: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "peerchat",
			Name:      "fold_log_entries",
			Help:      "Length of the room log at refold time.",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "peerchat",
			Name:      "backend_connected",
			Help:      "1 while connected to the backend.",
		}),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "peerchat",
			Name:      "backend_connections_total",
			Help:      "Successful connections to the backend.",
		}),
		callEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerchat",
			Name:      "call_events_total",
			Help:      "Call session events.",
		}, []string{"event"}),
		dialogs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "peerchat",
			Name:      "dialogs_queued",
			Help:      "Dialogs shown or waiting to be shown.",
		}),
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "peerchat",
			Name:      "swarm_peers",
			Help:      "Peers the backend reported as connected.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.framesReceived,
		m.framesSent,
		m.ingested,
		m.foldDuration,
		m.foldEntries,
		m.connected,
		m.connections,
		m.callEvents,
		m.dialogs,
		m.peers,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) FrameReceived(frameType string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(frameType).Inc()
}

func (m *Metrics) FrameSent(frameType string) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(frameType).Inc()
}

func (m *Metrics) Ingested(accepted, duplicates int) {
	if m == nil {
		return
	}
	m.ingested.WithLabelValues("accepted").Add(float64(accepted))
	m.ingested.WithLabelValues("duplicate").Add(float64(duplicates))
}

// ObserveFold has the signature of core.FoldObserver.
func (m *Metrics) ObserveFold(_ string, entries int, took time.Duration) {
	if m == nil {
		return
	}
	m.foldDuration.Observe(took.Seconds())
	m.foldEntries.Observe(float64(entries))
}

func (m *Metrics) Connected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connections.Inc()
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}

func (m *Metrics) CallEvent(event string) {
	if m == nil {
		return
	}
	m.callEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) Dialogs(n int) {
	if m == nil {
		return
	}
	m.dialogs.Set(float64(n))
}

func (m *Metrics) Peers(n int) {
	if m == nil {
		return
	}
	m.peers.Set(float64(n))
}
