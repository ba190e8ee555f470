package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	// Document metrics
	DocumentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_documents_total",
			Help: "Total number of documents handled by the core",
		},
		[]string{"event", "status"}, // status: accepted, rejected, ignored
	)

	ValidationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_validation_errors_total",
			Help: "Total number of field-level validation errors",
		},
		[]string{"schema"},
	)

	DecodeErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_decode_errors_total",
			Help: "Total number of malformed wire messages",
		},
	)

	FanoutEnvelopesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_fanout_envelopes_total",
			Help: "Total number of envelopes produced by fanout",
		},
	)

	// Dispatcher metrics
	DispatchEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_dispatch_enqueued_total",
			Help: "Total number of messages enqueued for dispatch",
		},
		[]string{"destination"},
	)

	DispatchFlushTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_dispatch_flush_total",
			Help: "Total number of batch flushes",
		},
		[]string{"destination", "status"}, // status: success, failed
	)

	DispatchBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_dispatch_batch_size",
			Help:    "Number of messages per flushed batch",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 250, 500},
		},
	)

	DispatchFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_dispatch_flush_duration_seconds",
			Help:    "Time taken to hand a batch to the producer",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	DispatchRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_dispatch_retries_total",
			Help: "Total number of producer retries",
		},
	)

	// Kafka producer metrics
	KafkaSendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_kafka_send_total",
			Help: "Total number of messages written to Kafka",
		},
		[]string{"status"}, // status: success, failed
	)

	KafkaBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_kafka_bytes_written_total",
			Help: "Total bytes written to Kafka",
		},
	)

	// Error reporting
	ErrorReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_error_reports_total",
			Help: "Total number of error envelopes routed to the error topic",
		},
		[]string{"kind"}, // kind: validation, decode, dispatch, other
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
