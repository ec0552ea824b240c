package runtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/glasswing/glasswing/internal/runtime/errors"
	idspkg "github.com/glasswing/glasswing/internal/runtime/ids"
	"github.com/glasswing/glasswing/internal/runtime/jsoncodec"
	loggingpkg "github.com/glasswing/glasswing/internal/runtime/logging"
)

// EventHandler receives one delivered event payload as raw JSON.
type EventHandler func(payload json.RawMessage)

type eventSubscription struct {
	id      string
	handler EventHandler
}

// EventBus carries fire-and-forget notifications in one direction across the
// bridge. An event published before the other side subscribed is gone; there
// is no replay. Subscribers for one event name run in subscription order, and
// events from a single emitting side arrive in emission order.
type EventBus struct {
	publisher message.Publisher
	topic     string
	logger    loggingpkg.ServiceLogger

	mu   sync.RWMutex
	subs map[string][]eventSubscription
}

func newEventBus(publisher message.Publisher, topic string, logger loggingpkg.ServiceLogger) *EventBus {
	return &EventBus{
		publisher: publisher,
		topic:     topic,
		logger:    logger,
		subs:      make(map[string][]eventSubscription),
	}
}

// Emit publishes the named event to the other side of the bridge. The
// payload is marshalled once at emission, so later mutation of the value is
// invisible to subscribers. Emit does not wait for, or report on, delivery.
func (e *EventBus) Emit(ctx context.Context, name string, payload any) error {
	if name == "" {
		return errspkg.ErrEventNameRequired
	}

	var raw json.RawMessage
	if payload != nil {
		encoded, err := jsoncodec.Marshal(payload)
		if err != nil {
			return err
		}
		raw = encoded
	}

	env := &Envelope{
		Kind:      KindEvent,
		EventName: name,
		Payload:   raw,
	}
	msg, err := env.toMessage()
	if err != nil {
		return err
	}
	msg.SetContext(ctx)
	return e.publisher.Publish(e.topic, msg)
}

// Subscribe registers a handler for the named event and returns a
// subscription ID for Unsubscribe. It observes only events emitted after it
// returns.
func (e *EventBus) Subscribe(name string, handler EventHandler) (string, error) {
	if name == "" {
		return "", errspkg.ErrEventNameRequired
	}
	if handler == nil {
		return "", errspkg.ErrHandlerRequired
	}

	id := idspkg.SubscriptionID()

	e.mu.Lock()
	e.subs[name] = append(e.subs[name], eventSubscription{id: id, handler: handler})
	e.mu.Unlock()

	return id, nil
}

// Unsubscribe removes the subscription with the given ID. Unknown IDs are
// ignored, so double unsubscription is harmless.
func (e *EventBus) Unsubscribe(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for name, subs := range e.subs {
		for i, sub := range subs {
			if sub.id != id {
				continue
			}
			e.subs[name] = append(subs[:i:i], subs[i+1:]...)
			if len(e.subs[name]) == 0 {
				delete(e.subs, name)
			}
			return
		}
	}
}

// deliver runs the handlers subscribed to name, in subscription order, on
// the calling goroutine. A handler panic is logged and does not stop the
// remaining handlers.
func (e *EventBus) deliver(name string, payload json.RawMessage) {
	e.mu.RLock()
	subs := append([]eventSubscription(nil), e.subs[name]...)
	e.mu.RUnlock()

	for _, sub := range subs {
		e.invokeHandler(name, sub, payload)
	}
}

func (e *EventBus) invokeHandler(name string, sub eventSubscription, payload json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Event handler panicked", nil, loggingpkg.LogFields{
				"event":        name,
				"subscription": sub.id,
				"panic":        r,
			})
		}
	}()
	sub.handler(payload)
}
