package envelope

import (
	"time"

	"github.com/google/uuid"
)

// Envelope is the canonical wrapped form of a message exchanged between
// pipeline services. Once serialized an envelope is treated as
// immutable.
type Envelope struct {
	// JobID uniquely identifies this message.
	JobID string `json:"job_id"`

	// ParentJobID references the message that caused this one. It is
	// set on fanned-out outgoing messages and absent on top-level
	// incoming messages.
	ParentJobID string `json:"parent_job_id,omitempty"`

	// Event names the document type and selects the applicable schema.
	Event string `json:"event"`

	// RoutingKey is the destination-routing string. The dispatcher
	// never mutates it.
	RoutingKey string `json:"routing_key"`

	// Timestamp is the creation time, stamped once at build time.
	Timestamp time.Time `json:"timestamp"`

	// Payload is the validated, normalized document body.
	Payload map[string]any `json:"payload"`
}

// Builder constructs canonical incoming and outgoing envelopes.
type Builder struct {
	defaultRoute string
	routes       map[string]string
	now          func() time.Time
	newID        func() string
}

// BuilderOption customizes a Builder.
type BuilderOption func(*Builder)

// WithRoute maps an event name to a routing key.
func WithRoute(event, routingKey string) BuilderOption {
	return func(b *Builder) { b.routes[event] = routingKey }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// NewBuilder returns a Builder that routes envelopes without an
// explicit route to defaultRoute.
func NewBuilder(defaultRoute string, opts ...BuilderOption) *Builder {
	b := &Builder{
		defaultRoute: defaultRoute,
		routes:       make(map[string]string),
		now:          func() time.Time { return time.Now().UTC() },
		newID:        func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// PrepareIncoming canonicalizes a freshly decoded envelope: a job id is
// assigned when the upstream service did not provide one (existing ids
// are preserved so correlation survives hops), the timestamp is stamped
// once, and an empty routing key is filled from the route table.
// ParentJobID is never set on incoming envelopes.
func (b *Builder) PrepareIncoming(e *Envelope) *Envelope {
	if e.JobID == "" {
		e.JobID = b.newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = b.now()
	}
	if e.RoutingKey == "" {
		e.RoutingKey = b.route(e.Event)
	}
	return e
}

// PrepareOutgoing builds exactly one outgoing envelope. When parent is
// non-nil the new envelope inherits parent.JobID as its ParentJobID.
func (b *Builder) PrepareOutgoing(event string, payload map[string]any, parent *Envelope) *Envelope {
	e := &Envelope{
		JobID:      b.newID(),
		Event:      event,
		RoutingKey: b.route(event),
		Timestamp:  b.now(),
		Payload:    payload,
	}
	if parent != nil {
		e.ParentJobID = parent.JobID
	}
	return e
}

// FanOut builds one outgoing envelope per payload. Every envelope gets
// a distinct fresh job id; all of them carry parent.JobID as their
// ParentJobID. Used when one incoming message logically produces
// multiple independent outgoing messages, e.g. one release yielding one
// message per track.
func (b *Builder) FanOut(event string, payloads []map[string]any, parent *Envelope) []*Envelope {
	out := make([]*Envelope, len(payloads))
	for i, payload := range payloads {
		out[i] = b.PrepareOutgoing(event, payload, parent)
	}
	return out
}

func (b *Builder) route(event string) string {
	if r, ok := b.routes[event]; ok {
		return r
	}
	return b.defaultRoute
}
