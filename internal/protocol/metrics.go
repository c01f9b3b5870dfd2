package protocol

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("dpgraph.protocol")

// Call outcomes used as the "outcome" label.
const (
	outcomeOK        = "ok"
	outcomeEngine    = "engine_error"
	outcomeTransport = "transport_error"
	outcomeEncoding  = "encoding_error"
)

var (
	// engineCalls counts engine round trips by method and outcome.
	engineCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dpgraph_engine_calls_total",
		Help: "Engine round trips by method and outcome",
	}, []string{"method", "outcome"})

	// engineCallDuration tracks round-trip latency.
	engineCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dpgraph_engine_call_duration_seconds",
		Help:    "Engine round-trip duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	}, []string{"method"})

	// engineRequestBytes tracks request payload size.
	engineRequestBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dpgraph_engine_request_bytes",
		Help:    "Engine request payload size in bytes",
		Buckets: prometheus.ExponentialBuckets(256, 4, 10),
	}, []string{"method"})
)
