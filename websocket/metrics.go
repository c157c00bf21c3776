package websocket

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus metrics for the transport.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "tether").
	Namespace string

	// Subsystem is the metrics subsystem (default: "websocket").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for connect duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Metrics holds the Prometheus collectors for the transport. Create one
// with NewMetrics and attach it to connections via Config.Metrics; a
// single Metrics may be shared by any number of connections. A nil
// *Metrics disables collection.
type Metrics struct {
	connectsTotal    *prometheus.CounterVec
	connectDuration  prometheus.Histogram
	openConnections  prometheus.Gauge
	messagesSent     prometheus.Counter
	messagesReceived prometheus.Counter
	bytesSent        prometheus.Counter
	bytesReceived    prometheus.Counter
	pingsAnswered    prometheus.Counter
	framesDropped    *prometheus.CounterVec
	closesTotal      *prometheus.CounterVec
}

// NewMetrics creates and registers the transport collectors.
//
// Metrics collected:
//   - tether_websocket_connects_total: Counter of connect attempts by result
//   - tether_websocket_connect_duration_seconds: Histogram of connect duration
//   - tether_websocket_open_connections: Gauge of currently open connections
//   - tether_websocket_messages_sent_total: Counter of text messages sent
//   - tether_websocket_messages_received_total: Counter of text messages received
//   - tether_websocket_bytes_sent_total: Counter of wire bytes written
//   - tether_websocket_bytes_received_total: Counter of wire bytes read
//   - tether_websocket_pings_answered_total: Counter of pings answered with a pong
//   - tether_websocket_frames_dropped_total: Counter of ignored frames by opcode
//   - tether_websocket_closes_total: Counter of closed connections by initiator
func NewMetrics(config MetricsConfig) *Metrics {
	if config.Namespace == "" {
		config.Namespace = "tether"
	}
	if config.Subsystem == "" {
		config.Subsystem = "websocket"
	}
	if config.Buckets == nil {
		config.Buckets = prometheus.DefBuckets
	}
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(config.Registry)

	return &Metrics{
		connectsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connects_total",
			Help:        "Total number of connect attempts by result",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		connectDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connect_duration_seconds",
			Help:        "Duration of the dial and opening handshake in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		openConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "open_connections",
			Help:        "Number of currently open connections",
			ConstLabels: config.ConstLabels,
		}),

		messagesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "messages_sent_total",
			Help:        "Total number of text messages sent",
			ConstLabels: config.ConstLabels,
		}),

		messagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "messages_received_total",
			Help:        "Total number of text messages received",
			ConstLabels: config.ConstLabels,
		}),

		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "bytes_sent_total",
			Help:        "Total wire bytes written, including frame headers",
			ConstLabels: config.ConstLabels,
		}),

		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "bytes_received_total",
			Help:        "Total wire bytes read from the socket",
			ConstLabels: config.ConstLabels,
		}),

		pingsAnswered: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "pings_answered_total",
			Help:        "Total number of ping frames answered with a pong",
			ConstLabels: config.ConstLabels,
		}),

		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frames_dropped_total",
			Help:        "Total number of frames ignored by opcode",
			ConstLabels: config.ConstLabels,
		}, []string{"opcode"}),

		closesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "closes_total",
			Help:        "Total number of closed connections by initiator",
			ConstLabels: config.ConstLabels,
		}, []string{"initiator"}),
	}
}

// connectResult buckets a connect error into a low-cardinality label.
func connectResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrHandshakeTimeout):
		return "timeout"
	case errors.Is(err, ErrBadHandshake):
		return "handshake"
	default:
		return "transport"
	}
}

func (m *Metrics) observeConnect(err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.connectsTotal.WithLabelValues(connectResult(err)).Inc()
	m.connectDuration.Observe(duration.Seconds())
}

func (m *Metrics) connOpened() {
	if m == nil {
		return
	}
	m.openConnections.Inc()
}

func (m *Metrics) connClosed(initiator string) {
	if m == nil {
		return
	}
	m.openConnections.Dec()
	m.closesTotal.WithLabelValues(initiator).Inc()
}

func (m *Metrics) messageSent(wireBytes int) {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
	m.bytesSent.Add(float64(wireBytes))
}

func (m *Metrics) messageReceived() {
	if m == nil {
		return
	}
	m.messagesReceived.Inc()
}

func (m *Metrics) bytesRead(n int) {
	if m == nil {
		return
	}
	m.bytesReceived.Add(float64(n))
}

func (m *Metrics) pongSent(wireBytes int) {
	if m == nil {
		return
	}
	m.pingsAnswered.Inc()
	m.bytesSent.Add(float64(wireBytes))
}

func (m *Metrics) frameDropped(opcode string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(opcode).Inc()
}
