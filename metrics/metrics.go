// Package metrics exposes prometheus counters/gauges describing a debug
// session's traffic and lifecycle, following the teacher family's
// sync.Once-guarded singleton Registry pattern.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all debug session metrics.
type Registry struct {
	FramesSent     *prometheus.CounterVec
	FramesReceived *prometheus.CounterVec
	CommandsIssued *prometheus.CounterVec
	StopsHandled   *prometheus.CounterVec

	BreakpointsActive prometheus.Gauge
	StepIterations    prometheus.Counter

	VmState prometheus.Gauge

	ConnectionErrors    prometheus.Counter
	ProtocolViolations  prometheus.Counter
	HandshakeRetries    prometheus.Counter
	HandshakeDurationMs prometheus.Histogram
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.FramesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vmdbg_frames_sent_total",
		Help: "Total outbound frames written to the VM connection",
	}, []string{"code"})

	r.FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vmdbg_frames_received_total",
		Help: "Total inbound frames read from the VM connection",
	}, []string{"code"})

	r.CommandsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vmdbg_commands_issued_total",
		Help: "Total high-level operations issued against the session",
	}, []string{"operation"})

	r.StopsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vmdbg_stops_handled_total",
		Help: "Total process-stop replies handled, by stop reason",
	}, []string{"reason"})

	r.BreakpointsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vmdbg_breakpoints_active",
		Help: "Number of breakpoints currently installed",
	})

	r.StepIterations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vmdbg_step_iterations_total",
		Help: "Total bytecode-step iterations issued across all source-level steps",
	})

	r.VmState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vmdbg_vm_state",
		Help: "Current session VmState as an ordinal (initial=0 .. terminated=5)",
	})

	r.ConnectionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vmdbg_connection_errors_total",
		Help: "Total ConnectionError sentinels materialized",
	})

	r.ProtocolViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vmdbg_protocol_violations_total",
		Help: "Total fatal protocol violations observed",
	})

	r.HandshakeRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vmdbg_handshake_retries_total",
		Help: "Total HandShake retransmissions sent while awaiting a reply",
	})

	r.HandshakeDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vmdbg_handshake_duration_ms",
		Help:    "Time from first HandShake send to HandShakeResult receipt",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	})

	return r
}
