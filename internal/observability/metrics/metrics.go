package metrics

import "github.com/prometheus/client_golang/prometheus"

// GatewayMetrics exposes counters/histograms for the webhook pipeline and outbound sends.
type GatewayMetrics struct {
	inboundTotal    *prometheus.CounterVec
	outboundTotal   *prometheus.CounterVec
	pipelineLatency *prometheus.HistogramVec
	leadsCreated    *prometheus.CounterVec
}

func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	m := &GatewayMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "messaging",
			Name:      "inbound_webhook_total",
			Help:      "Inbound provider webhooks by source and outcome",
		}, []string{"source", "outcome"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Outbound sends by transport and status",
		}, []string{"transport", "status"}),
		pipelineLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gateway",
			Subsystem: "messaging",
			Name:      "pipeline_latency_seconds",
			Help:      "Latency of inbound webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		leadsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "conversation",
			Name:      "leads_created_total",
			Help:      "Leads created from inbound messages",
		}, []string{"source"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.pipelineLatency, m.leadsCreated)
	return m
}

func (m *GatewayMetrics) ObserveInbound(source, outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(source, outcome).Inc()
}

func (m *GatewayMetrics) ObserveOutbound(transport, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(transport, status).Inc()
}

func (m *GatewayMetrics) ObservePipelineLatency(source string, seconds float64) {
	if m == nil {
		return
	}
	m.pipelineLatency.WithLabelValues(source).Observe(seconds)
}

func (m *GatewayMetrics) ObserveLeadCreated(source string) {
	if m == nil {
		return
	}
	m.leadsCreated.WithLabelValues(source).Inc()
}
