package metrics

import "github.com/prometheus/client_golang/prometheus"

// GatewayMetrics exposes counters/gauges for the messaging gateway.
type GatewayMetrics struct {
	outboundTotal      *prometheus.CounterVec
	registrationChecks *prometheus.CounterVec
	sessionEvents      *prometheus.CounterVec
	reconnects         *prometheus.CounterVec
	pushClients        prometheus.Gauge
}

func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	m := &GatewayMetrics{
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wa_relay",
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Total outbound sends by kind and status",
		}, []string{"kind", "status"}),
		registrationChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wa_relay",
			Subsystem: "messaging",
			Name:      "registration_checks_total",
			Help:      "Recipient registration lookups by result",
		}, []string{"result"}),
		sessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wa_relay",
			Subsystem: "session",
			Name:      "events_total",
			Help:      "Session lifecycle events by type",
		}, []string{"type"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wa_relay",
			Subsystem: "session",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts by outcome",
		}, []string{"outcome"}),
		pushClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wa_relay",
			Subsystem: "realtime",
			Name:      "clients",
			Help:      "Connected push channel clients",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.outboundTotal, m.registrationChecks, m.sessionEvents, m.reconnects, m.pushClients)
	return m
}

// ObserveOutbound counts a send attempt; kind is "text" or "media".
func (m *GatewayMetrics) ObserveOutbound(kind, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(kind, status).Inc()
}

func (m *GatewayMetrics) ObserveRegistrationCheck(result string) {
	if m == nil {
		return
	}
	m.registrationChecks.WithLabelValues(result).Inc()
}

func (m *GatewayMetrics) ObserveSessionEvent(eventType string) {
	if m == nil {
		return
	}
	m.sessionEvents.WithLabelValues(eventType).Inc()
}

func (m *GatewayMetrics) ObserveReconnect(outcome string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(outcome).Inc()
}

func (m *GatewayMetrics) PushClientConnected() {
	if m == nil {
		return
	}
	m.pushClients.Inc()
}

func (m *GatewayMetrics) PushClientDisconnected() {
	if m == nil {
		return
	}
	m.pushClients.Dec()
}
