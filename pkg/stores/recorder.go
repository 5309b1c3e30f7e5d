package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfed/openfed/pkg/telemetry"
)

// EventRecorder persists bus events to a store. Attach it to an event
// bus to build a durable log of host activity.
type EventRecorder struct {
	store   Store
	logger  zerolog.Logger
	timeout time.Duration
}

// NewEventRecorder creates a recorder writing to the given store.
func NewEventRecorder(store Store, logger zerolog.Logger) *EventRecorder {
	return &EventRecorder{
		store:   store,
		logger:  logger.With().Str("component", "event-recorder").Logger(),
		timeout: 5 * time.Second,
	}
}

// Attach subscribes the recorder to the bus. All events are persisted;
// filtering happens at query time. Artifact lifecycle events are
// additionally mirrored into the artifacts table.
func (r *EventRecorder) Attach(bus *telemetry.EventBus) {
	bus.Subscribe(r.Record, nil)
	bus.Subscribe(r.RecordArtifact, telemetry.FilterByType(
		telemetry.EventTypeArtifactLoaded,
		telemetry.EventTypeArtifactFailed,
	))
}

// Record converts a bus event to a store record and appends it.
// Persistence failures are logged, never propagated, so a broken store
// cannot take down event delivery.
func (r *EventRecorder) Record(event telemetry.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	record := &EventRecord{
		EventID:   event.ID,
		Type:      event.Type,
		Source:    event.Source,
		Remote:    optional(event.Remote),
		Export:    optional(event.Export),
		Location:  optional(event.Location),
		Shared:    optional(event.Shared),
		Level:     eventLevel(event.Level),
		Message:   event.Message,
		Timestamp: event.Timestamp,
	}

	if len(event.Data) > 0 {
		if data, err := json.Marshal(event.Data); err == nil {
			details := string(data)
			record.Details = &details
		}
	}

	if err := r.store.AppendEvent(ctx, record); err != nil {
		r.logger.Error().
			Err(err).
			Str("event_type", event.Type).
			Msg("failed to persist event")
	}
}

// RecordArtifact upserts an artifact history row from a lifecycle event.
func (r *EventRecorder) RecordArtifact(event telemetry.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	record := &ArtifactRecord{
		Location:  event.Location,
		FetchedAt: event.Timestamp,
		CreatedAt: event.Timestamp,
		UpdatedAt: event.Timestamp,
	}

	switch event.Type {
	case telemetry.EventTypeArtifactLoaded:
		record.State = ArtifactStateLoaded
		if container, ok := event.Data["container"].(string); ok {
			record.Container = container
		}
	case telemetry.EventTypeArtifactFailed:
		record.State = ArtifactStateFailed
		if reason, ok := event.Data["reason"].(string); ok {
			record.Error = &reason
		}
	default:
		return
	}

	if err := r.store.UpsertArtifact(ctx, record); err != nil {
		r.logger.Error().
			Err(err).
			Str("location", event.Location).
			Msg("failed to persist artifact history")
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func eventLevel(level string) EventLevel {
	switch level {
	case telemetry.EventLevelWarning:
		return EventLevelWarning
	case telemetry.EventLevelError:
		return EventLevelError
	case "debug":
		return EventLevelDebug
	default:
		return EventLevelInfo
	}
}
