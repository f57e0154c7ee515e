// Package eventbus implements the append-only agent event log and the sweep
// that dispatches pending events to their subscribers.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/julianstephens/daylitd/internal/constants"
	"github.com/julianstephens/daylitd/internal/logger"
	"github.com/julianstephens/daylitd/internal/models"
)

// Store is the slice of storage.Provider the bus needs.
type Store interface {
	AddEvent(ctx context.Context, event models.AgentEvent) error
	ListUnprocessedEvents(ctx context.Context, limit int) ([]models.AgentEvent, error)
	MarkProcessed(ctx context.Context, eventID, subscriber string) (bool, error)
	MarkAttempted(ctx context.Context, eventID string, at time.Time) error
}

// Bus publishes events and sweeps pending ones to subscribers.
type Bus struct {
	store      Store
	subs       Subscriptions
	dispatcher Dispatcher
	batchSize  int
	now        func() time.Time
	newID      func() string
	log        *log.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithBatchSize bounds the number of events examined per sweep.
func WithBatchSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// WithIDs overrides the event id generator.
func WithIDs(newID func() string) Option {
	return func(b *Bus) { b.newID = newID }
}

func New(store Store, subs Subscriptions, dispatcher Dispatcher, opts ...Option) *Bus {
	if subs == nil {
		subs = Subscriptions{}
	}
	b := &Bus{
		store:      store,
		subs:       subs,
		dispatcher: dispatcher,
		batchSize:  constants.DefaultSweepBatchSize,
		now:        time.Now,
		newID:      uuid.NewString,
		log:        logger.For("eventbus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscriptions returns the table the bus routes with.
func (b *Bus) Subscriptions() Subscriptions {
	return b.subs
}

// NewEvent builds an unsaved event with a fresh id. Callers that need the
// event written alongside other rows persist it themselves.
func (b *Bus) NewEvent(userID string, eventType constants.EventType, source string, payload interface{}) (models.AgentEvent, error) {
	if !eventType.Valid() {
		return models.AgentEvent{}, fmt.Errorf("unknown event type %q", eventType)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return models.AgentEvent{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return models.AgentEvent{
		ID:          b.newID(),
		UserID:      userID,
		EventType:   eventType,
		EventSource: source,
		Payload:     raw,
		ProcessedBy: []string{},
		CreatedAt:   b.now().UTC(),
	}, nil
}

// Publish appends an event and returns its id. It never fails: any problem
// is logged and reported as an empty id so emitting code keeps going.
func (b *Bus) Publish(ctx context.Context, userID string, eventType constants.EventType, source string, payload interface{}) string {
	event, err := b.NewEvent(userID, eventType, source, payload)
	if err != nil {
		b.log.Error("Rejected event", "type", eventType, "source", source, "error", err)
		return ""
	}
	if err := b.store.AddEvent(ctx, event); err != nil {
		b.log.Error("Failed to publish event", "type", eventType, "source", source, "error", err)
		return ""
	}
	b.log.Debug("Published event", "id", event.ID, "type", eventType, "source", source)
	return event.ID
}

// ProcessEvents runs one sweep over at most batchSize pending events and
// returns how many reached the "all" state during it. A subscriber failure
// leaves the event pending for the next sweep, queued behind events that
// have not failed yet; acknowledged subscribers are never dispatched again.
func (b *Bus) ProcessEvents(ctx context.Context) (int, error) {
	events, err := b.store.ListUnprocessedEvents(ctx, b.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending events: %w", err)
	}

	completed := 0
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return completed, err
		}
		if b.processEvent(ctx, event) {
			completed++
		}
	}

	if len(events) > 0 {
		b.log.Info("Finished sweep", "examined", len(events), "completed", completed)
	}
	return completed, nil
}

func (b *Bus) processEvent(ctx context.Context, event models.AgentEvent) bool {
	subscribers := b.subs.For(event.EventType)
	if len(subscribers) == 0 {
		logger.Decision(b.log, "Completed event with no subscribers", "id", event.ID, "type", event.EventType)
		return b.markAll(ctx, event)
	}

	pending := 0
	for _, name := range subscribers {
		if event.IsProcessedBy(name) {
			continue
		}
		if err := b.dispatcher.Dispatch(ctx, name, event); err != nil {
			b.log.Warn("Failed to dispatch event", "id", event.ID, "type", event.EventType, "subscriber", name, "error", err)
			pending++
			continue
		}
		if _, err := b.store.MarkProcessed(ctx, event.ID, name); err != nil {
			b.log.Error("Failed to record ack", "id", event.ID, "subscriber", name, "error", err)
			pending++
		}
	}

	if pending > 0 {
		if err := b.store.MarkAttempted(ctx, event.ID, b.now().UTC()); err != nil {
			b.log.Error("Failed to record delivery attempt", "id", event.ID, "error", err)
		}
		return false
	}
	return b.markAll(ctx, event)
}

func (b *Bus) markAll(ctx context.Context, event models.AgentEvent) bool {
	added, err := b.store.MarkProcessed(ctx, event.ID, constants.ProcessedAllSentinel)
	if err != nil {
		b.log.Error("Failed to complete event", "id", event.ID, "error", err)
		return false
	}
	return added
}
