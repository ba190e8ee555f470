package envelope_test

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"pipeline/internal/envelope"
)

func TestRoundTrip(t *testing.T) {
	tests := []*envelope.Envelope{
		{
			JobID:      "job-1",
			Event:      "takedown",
			RoutingKey: "outbound",
			Timestamp:  time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
			Payload:    map[string]any{"action": "takedown", "amw_key": "123"},
		},
		{
			JobID:       "job-2",
			ParentJobID: "job-1",
			Event:       "track",
			RoutingKey:  "tracks",
			Timestamp:   time.Date(2024, 6, 1, 0, 0, 0, 123456789, time.UTC),
			Payload: map[string]any{
				"isrc":            "QM9K31200284",
				"number":          float64(3),
				"explicit_lyrics": false,
				"artist":          map[string]any{"name": "Example Artist"},
				"tags":            []any{"a", "b"},
			},
		},
	}

	for _, e := range tests {
		t.Run(e.Event, func(t *testing.T) {
			data, err := envelope.Encode(e)
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}

			decoded, err := envelope.Decode(data)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}

			if decoded.JobID != e.JobID ||
				decoded.ParentJobID != e.ParentJobID ||
				decoded.Event != e.Event ||
				decoded.RoutingKey != e.RoutingKey {
				t.Errorf("metadata mismatch: %+v != %+v", decoded, e)
			}
			if !decoded.Timestamp.Equal(e.Timestamp) {
				t.Errorf("timestamp mismatch: %v != %v", decoded.Timestamp, e.Timestamp)
			}
			if !reflect.DeepEqual(decoded.Payload, e.Payload) {
				t.Errorf("payload mismatch: %#v != %#v", decoded.Payload, e.Payload)
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated", []byte(`{"job_id": "job-1"`)},
		{"not json", []byte("::nope::")},
		{"wrong shape", []byte(`[1, 2, 3]`)},
		{"scalar", []byte(`42`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := envelope.Decode(tt.data)
			if err == nil {
				t.Fatal("expected decode error")
			}

			var derr *envelope.DecodeError
			if !errors.As(err, &derr) {
				t.Errorf("expected *DecodeError, got %T", err)
			}
		})
	}
}

func TestEncodeNil(t *testing.T) {
	if _, err := envelope.Encode(nil); err == nil {
		t.Error("expected error for nil envelope")
	}
}
