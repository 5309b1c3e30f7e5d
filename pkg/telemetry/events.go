package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event in the OpenFed system.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// RequestID is the associated resolution request ID, if applicable.
	RequestID string `json:"request_id,omitempty"`

	// Remote is the associated logical remote name, if applicable.
	Remote string `json:"remote,omitempty"`

	// Export is the associated export name, if applicable.
	Export string `json:"export,omitempty"`

	// Location is the associated artifact location, if applicable.
	Location string `json:"location,omitempty"`

	// Shared is the associated shared dependency name, if applicable.
	Shared string `json:"shared,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypeRemoteRegistered = "remote.registered"
	EventTypeArtifactFetching = "artifact.fetching"
	EventTypeArtifactLoaded   = "artifact.loaded"
	EventTypeArtifactFailed   = "artifact.failed"
	EventTypeArtifactReset    = "artifact.reset"
	EventTypeResolutionDone   = "resolution.done"
	EventTypeResolutionFailed = "resolution.failed"
	EventTypeSharedProvided   = "shared.provided"
	EventTypeSharedBound      = "shared.bound"
	EventTypePolicyViolation  = "policy.violation"
	EventTypeError            = "error"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventBus manages event publishing and subscriptions.
type EventBus struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventBus creates a new event bus with the given configuration.
func NewEventBus(cfg EventsConfig) (*EventBus, error) {
	if !cfg.Enabled {
		return &EventBus{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	eb := &EventBus{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	// Start the event processing goroutine
	if cfg.EnableAsync {
		eb.wg.Add(1)
		go eb.processEvents()
	}

	return eb, nil
}

// Publish publishes an event to all subscribers.
func (eb *EventBus) Publish(event Event) error {
	if !eb.config.Enabled {
		return nil
	}

	// Set ID and timestamp if not already set
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Apply global filters
	eb.mu.RLock()
	for _, filter := range eb.filters {
		if !filter(event) {
			eb.mu.RUnlock()
			return nil // Event filtered out
		}
	}
	eb.mu.RUnlock()

	// Send to buffer if async, otherwise process immediately
	if eb.config.EnableAsync {
		select {
		case eb.buffer <- event:
			return nil
		case <-eb.ctx.Done():
			return fmt.Errorf("event bus stopped")
		default:
			// Buffer full, drop event
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	// Synchronous publishing
	eb.deliverEvent(event)
	return nil
}

// PublishArtifactLoaded publishes an artifact loaded event.
func (eb *EventBus) PublishArtifactLoaded(location, container string) error {
	return eb.Publish(Event{
		Type:     EventTypeArtifactLoaded,
		Source:   "artifact-cache",
		Location: location,
		Message:  fmt.Sprintf("artifact %s loaded", location),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"container": container,
		},
	})
}

// PublishArtifactFailed publishes an artifact load failure event.
func (eb *EventBus) PublishArtifactFailed(location, reason string) error {
	return eb.Publish(Event{
		Type:     EventTypeArtifactFailed,
		Source:   "artifact-cache",
		Location: location,
		Message:  fmt.Sprintf("artifact %s failed to load: %s", location, reason),
		Level:    EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishSharedProvided publishes a shared dependency materialization event.
func (eb *EventBus) PublishSharedProvided(name, origin string) error {
	return eb.Publish(Event{
		Type:    EventTypeSharedProvided,
		Source:  "shared-registry",
		Shared:  name,
		Message: fmt.Sprintf("shared dependency %s provided by %s", name, origin),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"origin": origin,
		},
	})
}

// PublishPolicyViolation publishes a policy violation event.
func (eb *EventBus) PublishPolicyViolation(remote, policyName, reason string) error {
	return eb.Publish(Event{
		Type:    EventTypePolicyViolation,
		Source:  "policy-engine",
		Remote:  remote,
		Message: fmt.Sprintf("policy violation for remote %s: %s - %s", remote, policyName, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"policy": policyName,
			"reason": reason,
		},
	})
}

// Subscribe adds a new event subscriber.
func (eb *EventBus) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers = append(eb.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (eb *EventBus) AddFilter(filter EventFilter) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.filters = append(eb.filters, filter)
}

// processEvents processes events from the buffer asynchronously.
func (eb *EventBus) processEvents() {
	defer eb.wg.Done()

	batch := make([]Event, 0, eb.config.MaxBatchSize)

	for {
		select {
		case event := <-eb.buffer:
			batch = append(batch, event)

			// Flush batch if it reaches max size
			if len(batch) >= eb.config.MaxBatchSize {
				eb.flushBatch(batch)
				batch = make([]Event, 0, eb.config.MaxBatchSize)
			}

		case <-eb.ctx.Done():
			// Flush remaining events before shutting down
			if len(batch) > 0 {
				eb.flushBatch(batch)
			}
			return
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (eb *EventBus) flushBatch(events []Event) {
	for _, event := range events {
		eb.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers.
func (eb *EventBus) deliverEvent(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, entry := range eb.subscribers {
		// Apply subscriber-specific filter
		if entry.filter != nil && !entry.filter(event) {
			continue
		}

		// Call subscriber in a goroutine to avoid blocking
		go entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event bus.
func (eb *EventBus) Shutdown(ctx context.Context) error {
	if !eb.config.Enabled {
		return nil
	}

	// Signal shutdown
	eb.cancel()

	// Wait for processing to complete with timeout
	done := make(chan struct{})
	go func() {
		eb.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event bus shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByRemote creates a filter that only allows events for a specific remote.
func FilterByRemote(remote string) EventFilter {
	return func(event Event) bool {
		return event.Remote == remote
	}
}

// FilterByLocation creates a filter that only allows events for a specific artifact location.
func FilterByLocation(location string) EventFilter {
	return func(event Event) bool {
		return event.Location == location
	}
}
