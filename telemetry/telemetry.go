// Package telemetry exposes the reactor's counters, gauges, and histograms
// (spec §6 "telemetry") through a Metrics facade backed by
// prometheus/client_golang, the way warp's server package exposes
// promhttp.Handler off a registry rather than hand-rolled counters.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

// Metrics is the stable set of instruments named by spec §6/§9: connection
// lifecycle counters, zero-copy/kTLS outcome counters, and timing
// histograms for the maintenance tick and handshake latency.
type Metrics struct {
	reg *prometheus.Registry

	ConnectionsAccepted  prometheus.Counter
	ConnectionsClosed    *prometheus.CounterVec // label "reason"
	BytesRead            prometheus.Counter
	BytesWritten         prometheus.Counter
	ZeroCopySubmitted    prometheus.Counter
	ZeroCopyCompleted    prometheus.Counter
	ZeroCopyFallback     prometheus.Counter
	KTLSEnabled          prometheus.Counter
	KTLSUnsupported      prometheus.Counter
	KTLSSendForcedFallback prometheus.Counter
	KTLSSendForcedShutdown prometheus.Counter
	HandshakeDuration    prometheus.Histogram
	MaintenanceTickDuration prometheus.Histogram
	HandshakeRateLimited prometheus.Counter
	WebSocketMessages    *prometheus.CounterVec // label "opcode"
}

// New builds a Metrics bound to a fresh registry; call Handler to expose it.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "connections_accepted_total",
			Help: "Total accepted connections.",
		}),
		ConnectionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "connections_closed_total",
			Help: "Total closed connections, by reason.",
		}, []string{"reason"}),
		BytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bytes_read_total",
			Help: "Total bytes read from all transports.",
		}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bytes_written_total",
			Help: "Total bytes written to all transports.",
		}),
		ZeroCopySubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "zerocopy_submitted_total",
			Help: "Total MSG_ZEROCOPY sends submitted.",
		}),
		ZeroCopyCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "zerocopy_completed_total",
			Help: "Total MSG_ZEROCOPY completions observed via MSG_ERRQUEUE.",
		}),
		ZeroCopyFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "zerocopy_fallback_total",
			Help: "Total writes that fell back from zero-copy to a copying send.",
		}),
		KTLSEnabled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ktls_enabled_total",
			Help: "Total connections where kTLS offload was enabled.",
		}),
		KTLSUnsupported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ktls_unsupported_total",
			Help: "Total connections where kTLS offload was requested but unsupported.",
		}),
		KTLSSendForcedFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ktls_send_enable_fallbacks_total",
			Help: "Total kTLS-send enablement failures that fell back to userspace TLS.",
		}),
		KTLSSendForcedShutdown: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ktls_send_forced_shutdowns_total",
			Help: "Total connections force-closed after a Required-policy kTLS-send failure.",
		}),
		HandshakeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tls_handshake_duration_seconds",
			Help:    "TLS handshake duration.",
			Buckets: prometheus.DefBuckets,
		}),
		MaintenanceTickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "maintenance_tick_duration_seconds",
			Help:    "Duration of each maintenance tick pass.",
			Buckets: prometheus.DefBuckets,
		}),
		HandshakeRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "handshake_rate_limited_total",
			Help: "Total TLS handshakes rejected by the handshake rate limiter.",
		}),
		WebSocketMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "websocket_messages_total",
			Help: "Total WebSocket messages processed, by opcode.",
		}, []string{"opcode"}),
	}
	reg.MustRegister(
		m.ConnectionsAccepted, m.ConnectionsClosed, m.BytesRead, m.BytesWritten,
		m.ZeroCopySubmitted, m.ZeroCopyCompleted, m.ZeroCopyFallback,
		m.KTLSEnabled, m.KTLSUnsupported, m.KTLSSendForcedFallback, m.KTLSSendForcedShutdown,
		m.HandshakeDuration, m.MaintenanceTickDuration, m.HandshakeRateLimited,
		m.WebSocketMessages,
	)
	return m
}

// Handler exposes the registry on /metrics, the way promhttp.Handler is
// wired off a custom registry rather than the global default one.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry returns the underlying prometheus registry, for callers that
// need to register additional collectors (e.g. process/runtime stats).
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }
