package envelope_test

import (
	"testing"
	"time"

	"pipeline/internal/envelope"
)

func TestPrepareIncomingAssignsJobID(t *testing.T) {
	b := envelope.NewBuilder("outbound")
	e := b.PrepareIncoming(&envelope.Envelope{Event: "takedown"})

	if e.JobID == "" {
		t.Error("job id not assigned")
	}
	if e.ParentJobID != "" {
		t.Errorf("incoming envelope must not have a parent job id, got %q", e.ParentJobID)
	}
}

func TestPrepareIncomingPreservesJobID(t *testing.T) {
	b := envelope.NewBuilder("outbound")
	e := b.PrepareIncoming(&envelope.Envelope{JobID: "job-1", Event: "takedown"})

	if e.JobID != "job-1" {
		t.Errorf("existing job id not preserved: %q", e.JobID)
	}
}

func TestPrepareIncomingStampsTimestamp(t *testing.T) {
	fixed := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	b := envelope.NewBuilder("outbound", envelope.WithClock(func() time.Time { return fixed }))

	e := b.PrepareIncoming(&envelope.Envelope{Event: "takedown"})
	if !e.Timestamp.Equal(fixed) {
		t.Errorf("timestamp not stamped: %v", e.Timestamp)
	}

	// An existing timestamp is never overwritten.
	earlier := fixed.Add(-time.Hour)
	e = b.PrepareIncoming(&envelope.Envelope{Event: "takedown", Timestamp: earlier})
	if !e.Timestamp.Equal(earlier) {
		t.Errorf("existing timestamp overwritten: %v", e.Timestamp)
	}
}

func TestPrepareIncomingRouting(t *testing.T) {
	b := envelope.NewBuilder("outbound", envelope.WithRoute("takedown", "takedowns"))

	e := b.PrepareIncoming(&envelope.Envelope{Event: "takedown"})
	if e.RoutingKey != "takedowns" {
		t.Errorf("routing key = %q, want %q", e.RoutingKey, "takedowns")
	}

	e = b.PrepareIncoming(&envelope.Envelope{Event: "track_bundle"})
	if e.RoutingKey != "outbound" {
		t.Errorf("routing key = %q, want default %q", e.RoutingKey, "outbound")
	}

	// An explicit routing key is preserved.
	e = b.PrepareIncoming(&envelope.Envelope{Event: "takedown", RoutingKey: "custom"})
	if e.RoutingKey != "custom" {
		t.Errorf("explicit routing key overwritten: %q", e.RoutingKey)
	}
}

func TestPrepareOutgoing(t *testing.T) {
	b := envelope.NewBuilder("outbound")
	parent := b.PrepareIncoming(&envelope.Envelope{Event: "track_bundle"})

	out := b.PrepareOutgoing("track", map[string]any{"isrc": "QM9K31200284"}, parent)

	if out.JobID == "" || out.JobID == parent.JobID {
		t.Errorf("outgoing envelope needs a fresh job id, got %q", out.JobID)
	}
	if out.ParentJobID != parent.JobID {
		t.Errorf("parent job id = %q, want %q", out.ParentJobID, parent.JobID)
	}
	if out.Event != "track" {
		t.Errorf("event = %q", out.Event)
	}
	if out.Timestamp.IsZero() {
		t.Error("timestamp not stamped")
	}
}

func TestPrepareOutgoingWithoutParent(t *testing.T) {
	b := envelope.NewBuilder("outbound")
	out := b.PrepareOutgoing("track", nil, nil)

	if out.ParentJobID != "" {
		t.Errorf("unexpected parent job id %q", out.ParentJobID)
	}
}

func TestFanOut(t *testing.T) {
	b := envelope.NewBuilder("outbound")
	parent := b.PrepareIncoming(&envelope.Envelope{Event: "track_bundle"})

	payloads := make([]map[string]any, 5)
	for i := range payloads {
		payloads[i] = map[string]any{"number": i + 1}
	}

	envs := b.FanOut("track", payloads, parent)
	if len(envs) != len(payloads) {
		t.Fatalf("expected %d envelopes, got %d", len(payloads), len(envs))
	}

	seen := make(map[string]bool)
	for i, e := range envs {
		if e.JobID == "" || seen[e.JobID] {
			t.Errorf("envelope %d: job id %q not distinct", i, e.JobID)
		}
		seen[e.JobID] = true

		if e.ParentJobID != parent.JobID {
			t.Errorf("envelope %d: parent job id = %q, want %q", i, e.ParentJobID, parent.JobID)
		}
		if e.Payload["number"] != i+1 {
			t.Errorf("envelope %d: wrong payload %v", i, e.Payload)
		}
	}
}

func TestFanOutEmpty(t *testing.T) {
	b := envelope.NewBuilder("outbound")
	envs := b.FanOut("track", nil, nil)
	if len(envs) != 0 {
		t.Errorf("expected no envelopes, got %d", len(envs))
	}
}
