package report

import (
	"context"
	"errors"
	"time"

	"pipeline/internal/dispatch"
	"pipeline/internal/envelope"
	"pipeline/internal/logger"
	"pipeline/internal/metrics"
	"pipeline/internal/schema"
)

// ErrorEvent is the event tag of error envelopes.
const ErrorEvent = "pipeline.error"

const reportTimeout = 5 * time.Second

// Reporter builds error envelopes and routes them through the
// dispatcher to the error destination. Reporting failures are logged,
// never retried.
type Reporter struct {
	dispatcher  *dispatch.Dispatcher
	builder     *envelope.Builder
	destination string
}

// New returns a Reporter routing error envelopes to destination.
func New(d *dispatch.Dispatcher, b *envelope.Builder, destination string) *Reporter {
	return &Reporter{
		dispatcher:  d,
		builder:     b,
		destination: destination,
	}
}

// Report builds an error envelope for the original message and enqueues
// it. The payload carries the original job id and event plus the
// structured error detail.
func (r *Reporter) Report(ctx context.Context, original *envelope.Envelope, cause error) {
	log := logger.WithComponent("error_reporter")

	payload := map[string]any{
		"error": cause.Error(),
	}
	if original != nil {
		payload["job_id"] = original.JobID
		payload["event"] = original.Event
	}

	kind := "other"
	var verr *schema.ValidationError
	var derr *dispatch.DispatchError
	var cerr *envelope.DecodeError
	switch {
	case errors.As(cause, &verr):
		kind = "validation"
		payload["fields"] = verr.Fields
	case errors.As(cause, &derr):
		kind = "dispatch"
		payload["destination"] = derr.Destination
		payload["attempts"] = derr.Attempts
		payload["dropped_messages"] = len(derr.Batch)
	case errors.As(cause, &cerr):
		kind = "decode"
	}
	payload["kind"] = kind

	env := r.builder.PrepareOutgoing(ErrorEvent, payload, original)
	env.RoutingKey = r.destination

	data, err := envelope.Encode(env)
	if err != nil {
		log.Error().Err(err).Str("kind", kind).Msg("failed to encode error envelope")
		return
	}

	if err := r.dispatcher.Enqueue(ctx, r.destination, data); err != nil {
		log.Error().
			Err(err).
			Str("kind", kind).
			Str("destination", r.destination).
			Msg("failed to enqueue error envelope")
		return
	}

	metrics.ErrorReportsTotal.WithLabelValues(kind).Inc()
}

// ReportDispatch adapts Report to the dispatcher's error handler so
// timer-flush failures are accounted for on the error destination.
func (r *Reporter) ReportDispatch(derr *dispatch.DispatchError) {
	// Never loop dispatch failures of the error destination back into
	// itself.
	if derr.Destination == r.destination {
		log := logger.WithComponent("error_reporter")
		log.Error().
			Err(derr).
			Msg("error destination dispatch failed")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()
	r.Report(ctx, nil, derr)
}
