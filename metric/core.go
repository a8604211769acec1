package metric

import "github.com/prometheus/client_golang/prometheus"

// CoreMetrics contains the bridge-wide metrics shared by the pipeline stages.
// Stage-specific metrics register separately through Registry.Register.
type CoreMetrics struct {
	// Frame flow
	FramesReceived    prometheus.Counter
	FramesValidated   prometheus.Counter
	FramesPublished   prometheus.Counter
	ValidationDropped *prometheus.CounterVec // by failure reason

	// Decode and mapping
	FramesDecoded      prometheus.Counter
	DecodeFallbacks    prometheus.Counter
	UnknownIdentifiers prometheus.Counter
	SamplesMapped      prometheus.Counter

	// Transport
	ConnectionsAccepted prometheus.Counter
	SendFailures        prometheus.Counter
	Reconnects          prometheus.Counter

	// Persistence
	StoreErrors prometheus.Counter

	// Pipeline state (0=idle 1=initializing 2=running 3=stopping 4=stopped)
	PipelineState prometheus.Gauge
}

func newCoreMetrics() *CoreMetrics {
	return &CoreMetrics{
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "frames",
			Name:      "received_total",
			Help:      "Total frame envelopes received from the transport",
		}),
		FramesValidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "frames",
			Name:      "validated_total",
			Help:      "Total frame envelopes that passed validation",
		}),
		FramesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "frames",
			Name:      "published_total",
			Help:      "Total frame envelopes broadcast to subscribers",
		}),
		ValidationDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "frames",
			Name:      "validation_dropped_total",
			Help:      "Frame envelopes dropped by the validator, by failure reason",
		}, []string{"reason"}),
		FramesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "decode",
			Name:      "frames_total",
			Help:      "Total frames decoded against a signal table layout",
		}),
		DecodeFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "decode",
			Name:      "fallbacks_total",
			Help:      "Frames decoded through the manual fallback layout",
		}),
		UnknownIdentifiers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "decode",
			Name:      "unknown_identifiers_total",
			Help:      "Frames skipped because no layout exists for their identifier",
		}),
		SamplesMapped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "vss",
			Name:      "samples_mapped_total",
			Help:      "Decoded signals mapped onto VSS paths",
		}),
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "transport",
			Name:      "connections_accepted_total",
			Help:      "Client connections accepted by the distribution server",
		}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "transport",
			Name:      "send_failures_total",
			Help:      "Envelope sends that failed after exhausting reconnect attempts",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "transport",
			Name:      "reconnects_total",
			Help:      "Transport client reconnection attempts",
		}),
		StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "store",
			Name:      "errors_total",
			Help:      "Persistence sink write failures (non-fatal)",
		}),
		PipelineState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "state",
			Help:      "Pipeline coordinator state (0=idle 1=initializing 2=running 3=stopping 4=stopped)",
		}),
	}
}

func (m *CoreMetrics) register(reg *prometheus.Registry) {
	reg.MustRegister(
		m.FramesReceived,
		m.FramesValidated,
		m.FramesPublished,
		m.ValidationDropped,
		m.FramesDecoded,
		m.DecodeFallbacks,
		m.UnknownIdentifiers,
		m.SamplesMapped,
		m.ConnectionsAccepted,
		m.SendFailures,
		m.Reconnects,
		m.StoreErrors,
		m.PipelineState,
	)
}
