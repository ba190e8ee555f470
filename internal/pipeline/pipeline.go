package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"pipeline/internal/config"
	"pipeline/internal/dispatch"
	"pipeline/internal/envelope"
	"pipeline/internal/filter"
	"pipeline/internal/logger"
	"pipeline/internal/metrics"
	"pipeline/internal/report"
	"pipeline/internal/schema"
)

// ErrProviderIgnored marks documents from providers excluded by the
// provider filter. They are skipped, not failed.
var ErrProviderIgnored = errors.New("provider ignored")

// Pipeline is the message-handling core shared by the pipeline
// services: it decodes and validates inbound documents, builds
// canonical envelopes, and dispatches validated outgoing envelopes in
// batches.
type Pipeline struct {
	registry   *schema.Registry
	builder    *envelope.Builder
	dispatcher *dispatch.Dispatcher
	reporter   *report.Reporter
	providers  config.ProviderFilter

	accepted atomic.Uint64
	rejected atomic.Uint64
	ignored  atomic.Uint64
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithReporter routes validation and dispatch failures to r.
func WithReporter(r *report.Reporter) Option {
	return func(p *Pipeline) { p.reporter = r }
}

// WithProviderFilter skips documents from filtered providers.
func WithProviderFilter(f config.ProviderFilter) Option {
	return func(p *Pipeline) { p.providers = f }
}

// New wires a Pipeline from its collaborators.
func New(registry *schema.Registry, builder *envelope.Builder, dispatcher *dispatch.Dispatcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry:   registry,
		builder:    builder,
		dispatcher: dispatcher,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Receive turns raw inbound bytes into a canonical incoming envelope:
// decode, provider filter, schema validation (selected by the envelope
// event), then correlation metadata. Validation collects every field
// violation before failing. Decode and validation failures are routed
// to the error reporter when one is configured.
func (p *Pipeline) Receive(ctx context.Context, raw []byte) (*envelope.Envelope, error) {
	env, err := envelope.Decode(raw)
	if err != nil {
		metrics.DecodeErrorsTotal.Inc()
		p.rejected.Add(1)
		p.report(ctx, nil, err)
		return nil, err
	}

	if name, ok := providerName(env.Payload); ok {
		if filter.Ignore(name, p.providers.Included, p.providers.Excluded) {
			p.ignored.Add(1)
			metrics.DocumentsTotal.WithLabelValues(env.Event, "ignored").Inc()
			log := logger.WithJob(env.JobID)
			log.Debug().
				Str("provider", name).
				Msg("document ignored by provider filter")
			return nil, fmt.Errorf("%w: %s", ErrProviderIgnored, name)
		}
	}

	validated, err := p.registry.Validate(env.Payload, env.Event)
	if err != nil {
		p.rejected.Add(1)
		metrics.DocumentsTotal.WithLabelValues(env.Event, "rejected").Inc()
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			metrics.ValidationErrorsTotal.WithLabelValues(verr.Schema).Add(float64(len(verr.Fields)))
		}
		p.report(ctx, env, err)
		return nil, err
	}

	env.Payload = validated
	p.builder.PrepareIncoming(env)

	p.accepted.Add(1)
	metrics.DocumentsTotal.WithLabelValues(env.Event, "accepted").Inc()
	return env, nil
}

// Send validates an outgoing envelope's payload against its event
// schema, serializes it, and enqueues it for batched dispatch to its
// routing key. Dispatch failures surfaced by the enqueue (immediate
// mode or count-triggered flush) are reported and returned.
func (p *Pipeline) Send(ctx context.Context, env *envelope.Envelope) error {
	validated, err := p.registry.Validate(env.Payload, env.Event)
	if err != nil {
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			metrics.ValidationErrorsTotal.WithLabelValues(verr.Schema).Add(float64(len(verr.Fields)))
		}
		p.report(ctx, env, err)
		return err
	}
	env.Payload = validated

	data, err := envelope.Encode(env)
	if err != nil {
		return err
	}

	if err := p.dispatcher.Enqueue(ctx, env.RoutingKey, data); err != nil {
		var derr *dispatch.DispatchError
		if errors.As(err, &derr) {
			p.report(ctx, env, derr)
		}
		return err
	}
	return nil
}

// SendAll sends every envelope, collecting errors instead of stopping
// at the first one.
func (p *Pipeline) SendAll(ctx context.Context, envs []*envelope.Envelope) error {
	var errs []error
	for _, env := range envs {
		if err := p.Send(ctx, env); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("send errors: %v", errs)
	}
	return nil
}

// Forward relays an incoming envelope as a single outgoing envelope
// correlated through its job id.
func (p *Pipeline) Forward(ctx context.Context, env *envelope.Envelope) error {
	out := p.builder.PrepareOutgoing(env.Event, env.Payload, env)
	return p.Send(ctx, out)
}

// FanOut builds one correlated outgoing envelope per payload and sends
// them all.
func (p *Pipeline) FanOut(ctx context.Context, event string, payloads []map[string]any, parent *envelope.Envelope) error {
	envs := p.builder.FanOut(event, payloads, parent)
	metrics.FanoutEnvelopesTotal.Add(float64(len(envs)))
	return p.SendAll(ctx, envs)
}

func (p *Pipeline) report(ctx context.Context, env *envelope.Envelope, err error) {
	if p.reporter != nil {
		p.reporter.Report(ctx, env, err)
	}
}

// providerName digs the provider name out of a document payload.
func providerName(payload map[string]any) (string, bool) {
	prov, ok := payload["provider"].(map[string]any)
	if !ok {
		return "", false
	}
	name, ok := prov["name"].(string)
	return name, ok
}

// Stats returns document counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Accepted: p.accepted.Load(),
		Rejected: p.rejected.Load(),
		Ignored:  p.ignored.Load(),
	}
}

// Stats holds document counters.
type Stats struct {
	Accepted uint64
	Rejected uint64
	Ignored  uint64
}
