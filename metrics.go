package slamon

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the channel's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	connected         prometheus.Gauge
	connectAttempts   *prometheus.CounterVec
	reconnectsPlanned prometheus.Counter
	messagesReceived  *prometheus.CounterVec
	malformedMessages prometheus.Counter
	authProbes        *prometheus.CounterVec
	cacheWrites       *prometheus.CounterVec
	framesSent        *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slamon_channel_connected",
			Help: "1 while the real-time channel is connected, 0 otherwise.",
		}),
		connectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slamon_channel_connect_attempts_total",
			Help: "Connect sequences by outcome.",
		}, []string{"result"}),
		reconnectsPlanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slamon_channel_reconnects_scheduled_total",
			Help: "Reconnect retries armed after a transport close.",
		}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slamon_channel_messages_received_total",
			Help: "Inbound frames by message type.",
		}, []string{"type"}),
		malformedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slamon_channel_malformed_messages_total",
			Help: "Inbound frames dropped because they could not be decoded.",
		}),
		authProbes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slamon_auth_probes_total",
			Help: "Authorization probes by result.",
		}, []string{"result"}),
		cacheWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slamon_snapshot_cache_writes_total",
			Help: "Snapshot cache persistence attempts by result.",
		}, []string{"result"}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slamon_channel_frames_sent_total",
			Help: "Outbound frames by message type.",
		}, []string{"type"}),
	}

	reg.MustRegister(
		m.connected,
		m.connectAttempts,
		m.reconnectsPlanned,
		m.messagesReceived,
		m.malformedMessages,
		m.authProbes,
		m.cacheWrites,
		m.framesSent,
	)
	return m
}

func (m *Metrics) setConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}

func (m *Metrics) connectAttempt(result string) {
	if m == nil {
		return
	}
	m.connectAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) reconnectScheduled() {
	if m == nil {
		return
	}
	m.reconnectsPlanned.Inc()
}

// unknownTypeLabel stands in for any type outside the protocol vocabulary so
// a misbehaving server cannot grow the label set.
const unknownTypeLabel = "unknown"

func (m *Metrics) messageReceived(msg InboundMessage) {
	if m == nil {
		return
	}
	label := string(msg.Type())
	if _, ok := msg.(*UnknownMessage); ok {
		label = unknownTypeLabel
	}
	m.messagesReceived.WithLabelValues(label).Inc()
}

func (m *Metrics) malformed() {
	if m == nil {
		return
	}
	m.malformedMessages.Inc()
}

func (m *Metrics) authProbe(result string) {
	if m == nil {
		return
	}
	m.authProbes.WithLabelValues(result).Inc()
}

func (m *Metrics) cacheWrite(result string) {
	if m == nil {
		return
	}
	m.cacheWrites.WithLabelValues(result).Inc()
}

func (m *Metrics) frameSent(t MessageType) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(string(t)).Inc()
}
