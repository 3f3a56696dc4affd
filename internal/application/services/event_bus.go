package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/careflow/approvals/internal/domain/events"
	"github.com/careflow/approvals/internal/domain/models"
	"github.com/careflow/approvals/internal/domain/ports"
)

// EventType is an alias to the domain type
type EventType = events.EventType

// EventHandler is a function that handles an event.
type EventHandler = ports.EventHandler

// RequestEvent is the payload published after every committed request transition.
type RequestEvent struct {
	Type      EventType               `json:"type"`
	Request   *models.ApprovalRequest `json:"request"`
	ActorID   string                  `json:"actor_id,omitempty"`
	Timestamp int64                   `json:"timestamp"`
}

type subscription struct {
	id      uint64
	handler EventHandler
}

// EventBus manages publish-subscribe of request events.
// It implements ports.EventPublisher interface.
type EventBus struct {
	handlers map[EventType][]subscription
	nextID   uint64
	mu       sync.RWMutex
	logger   *zap.Logger
}

// Ensure EventBus implements ports.EventPublisher at compile time
var _ ports.EventPublisher = (*EventBus)(nil)

// NewEventBus creates a new EventBus instance
func NewEventBus(logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{
		handlers: make(map[EventType][]subscription),
		logger:   logger,
	}
}

// Subscribe registers a handler for a specific event type
// Returns an unsubscribe function
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.nextID++
	id := eb.nextID
	eb.handlers[eventType] = append(eb.handlers[eventType], subscription{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() {
			eb.mu.Lock()
			defer eb.mu.Unlock()

			subs := eb.handlers[eventType]
			for i, s := range subs {
				if s.id == id {
					eb.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish dispatches payload to every handler of eventType in subscription order.
// All handlers run; the first failure is returned.
func (eb *EventBus) Publish(ctx context.Context, eventType EventType, payload interface{}) error {
	eb.mu.RLock()
	subs := append([]subscription(nil), eb.handlers[eventType]...)
	eb.mu.RUnlock()

	var firstErr error
	for _, s := range subs {
		if err := s.handler(ctx, payload); err != nil {
			eb.logger.Warn("event handler failed", zap.String("event", eventType.String()), zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("EventBus handler error for %s: %w", eventType, err)
			}
		}
	}
	return firstErr
}

// PublishRequest publishes a RequestEvent for req.
func (eb *EventBus) PublishRequest(ctx context.Context, eventType EventType, req *models.ApprovalRequest, actorID string) error {
	return eb.Publish(ctx, eventType, RequestEvent{
		Type:      eventType,
		Request:   req.Clone(),
		ActorID:   actorID,
		Timestamp: time.Now().Unix(),
	})
}

