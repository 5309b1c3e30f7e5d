package stores

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfed/openfed/pkg/telemetry"
)

// TestEventRecorder tests conversion and persistence of bus events
func TestEventRecorder(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	recorder := NewEventRecorder(store, zerolog.Nop())

	recorder.Record(telemetry.Event{
		ID:        "evt-rec-001",
		Timestamp: time.Now().UTC(),
		Type:      telemetry.EventTypeArtifactLoaded,
		Source:    "artifact-cache",
		Remote:    "checkout",
		Location:  "https://cdn.example.com/checkout.wasm",
		Message:   "artifact loaded",
		Level:     telemetry.EventLevelInfo,
		Data: map[string]interface{}{
			"container": "checkout",
		},
	})

	recorder.Record(telemetry.Event{
		ID:        "evt-rec-002",
		Timestamp: time.Now().UTC(),
		Type:      telemetry.EventTypePolicyViolation,
		Source:    "policy-engine",
		Remote:    "checkout",
		Message:   "policy violation",
		Level:     telemetry.EventLevelError,
	})

	ctx := context.Background()
	events, err := store.GetEvents(ctx, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 persisted events, got %d", len(events))
	}

	for _, event := range events {
		switch event.EventID {
		case "evt-rec-001":
			if event.Level != EventLevelInfo {
				t.Errorf("expected info level, got %s", event.Level)
			}
			if event.Remote == nil || *event.Remote != "checkout" {
				t.Errorf("expected remote checkout, got %v", event.Remote)
			}
			if event.Location == nil {
				t.Error("expected location to be set")
			}
			if event.Details == nil {
				t.Error("expected details from event data")
			}
		case "evt-rec-002":
			if event.Level != EventLevelError {
				t.Errorf("expected error level, got %s", event.Level)
			}
			if event.Location != nil {
				t.Errorf("expected no location, got %v", *event.Location)
			}
			if event.Details != nil {
				t.Errorf("expected no details, got %v", *event.Details)
			}
		default:
			t.Errorf("unexpected event %s", event.EventID)
		}
	}
}
