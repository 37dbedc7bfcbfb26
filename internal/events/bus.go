// Package events provides the in-process publish/subscribe bus used to fan
// unit state changes and job transitions out to the manager's supplemental
// surfaces (the status HTTP mux and the websocket telemetry feed) without
// those surfaces ever touching job/unit state directly, which would break
// the single-threaded cooperative invariant of the reactor (see
// SPEC_FULL.md §5).
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Type identifies the kind of event carried on the bus.
type Type string

const (
	// UnitStateChanged fires whenever a unit's ActiveState transitions.
	UnitStateChanged Type = "unit_state_changed"
	// JobStageChanged fires whenever a job's Stage transitions.
	JobStageChanged Type = "job_stage_changed"
	// ManagerLifecycle fires on startup/reload/reexec/shutdown transitions.
	ManagerLifecycle Type = "manager_lifecycle"
)

// Event is a single published record. Data is intentionally a loosely typed
// map rather than a per-event struct: subscribers are diagnostic surfaces
// (status mux, websocket feed, tests) that serialize it as-is, never logic
// that must branch on the payload's exact shape.
type Event struct {
	Type      Type
	Timestamp time.Time
	Source    string
	Data      map[string]interface{}
}

// Handler processes one event. Handlers run on their own goroutine (see
// Emit) and must not block the caller.
type Handler func(*Event)

// Subscription identifies a registered handler so it can be removed later.
type Subscription struct {
	eventType Type
	id        uint64
}

// Bus is a minimal, mutex-guarded pub/sub hub. Safe for concurrent use.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Type]map[uint64]Handler
	nextID      uint64
	log         zerolog.Logger
}

// NewBus creates a Bus that logs subscriber fan-out at debug level.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[Type]map[uint64]Handler),
		log:         log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers handler for eventType and returns a token usable with
// Unsubscribe.
func (b *Bus) Subscribe(eventType Type, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID

	if _, ok := b.subscribers[eventType]; !ok {
		b.subscribers[eventType] = make(map[uint64]Handler)
	}
	b.subscribers[eventType][id] = handler

	return Subscription{eventType: eventType, id: id}
}

// Unsubscribe removes a previously registered handler. Safe to call more
// than once with the same Subscription.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if handlers, ok := b.subscribers[sub.eventType]; ok {
		delete(handlers, sub.id)
		if len(handlers) == 0 {
			delete(b.subscribers, sub.eventType)
		}
	}
}

// Emit publishes an event to every current subscriber of eventType. The
// subscriber list is snapshotted under the read lock so handlers never run
// while holding it, and each handler runs on its own goroutine so a slow or
// blocking subscriber (e.g. a websocket write to a stalled client) can never
// delay the reactor thread that calls Emit.
func (b *Bus) Emit(eventType Type, source string, data map[string]interface{}) {
	ev := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
	}

	b.mu.RLock()
	registered := b.subscribers[eventType]
	var handlers []Handler
	if len(registered) > 0 {
		handlers = make([]Handler, 0, len(registered))
		for _, h := range registered {
			handlers = append(handlers, h)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		go h(ev)
	}

	b.log.Debug().
		Str("event_type", string(eventType)).
		Str("source", source).
		Int("subscribers", len(handlers)).
		Msg("event emitted")
}
