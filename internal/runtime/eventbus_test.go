package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	errspkg "github.com/glasswing/glasswing/internal/runtime/errors"
	loggingpkg "github.com/glasswing/glasswing/internal/runtime/logging"
)

func newTestEventBus() (*EventBus, *testPublisher) {
	pub := &testPublisher{}
	return newEventBus(pub, "test.topic", loggingpkg.Nop()), pub
}

func TestEmitPublishesEventEnvelope(t *testing.T) {
	bus, pub := newTestEventBus()

	if err := bus.Emit(context.Background(), "task.done", map[string]int{"count": 3}); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	msgs := pub.Messages()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages", len(msgs))
	}
	if topics := pub.Topics(); topics[0] != "test.topic" {
		t.Fatalf("topic = %q", topics[0])
	}

	env, err := decodeEnvelope(msgs[0].Payload)
	if err != nil {
		t.Fatalf("decodeEnvelope: %v", err)
	}
	if env.Kind != KindEvent || env.EventName != "task.done" {
		t.Fatalf("envelope = %+v", env)
	}
	var body map[string]int
	if err := json.Unmarshal(env.Payload, &body); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if body["count"] != 3 {
		t.Fatalf("payload = %v", body)
	}
}

func TestEmitRequiresName(t *testing.T) {
	bus, _ := newTestEventBus()
	if err := bus.Emit(context.Background(), "", nil); !errors.Is(err, errspkg.ErrEventNameRequired) {
		t.Fatalf("Emit with empty name: %v", err)
	}
}

func TestEmitSurfacesPublisherError(t *testing.T) {
	pub := &testPublisher{err: errors.New("transport gone")}
	bus := newEventBus(pub, "test.topic", loggingpkg.Nop())
	if err := bus.Emit(context.Background(), "x", nil); err == nil {
		t.Fatalf("expected publisher error to surface")
	}
}

func TestSubscribeValidation(t *testing.T) {
	bus, _ := newTestEventBus()
	if _, err := bus.Subscribe("", func(json.RawMessage) {}); !errors.Is(err, errspkg.ErrEventNameRequired) {
		t.Fatalf("empty name: %v", err)
	}
	if _, err := bus.Subscribe("x", nil); !errors.Is(err, errspkg.ErrHandlerRequired) {
		t.Fatalf("nil handler: %v", err)
	}
}

func TestDeliverRunsHandlersInSubscriptionOrder(t *testing.T) {
	bus, _ := newTestEventBus()

	var order []int
	for i := 0; i < 3; i++ {
		n := i
		if _, err := bus.Subscribe("tick", func(json.RawMessage) {
			order = append(order, n)
		}); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
	}

	bus.deliver("tick", nil)
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Fatalf("order = %v", order)
	}
}

func TestDeliverSkipsOtherNames(t *testing.T) {
	bus, _ := newTestEventBus()
	called := false
	if _, err := bus.Subscribe("wanted", func(json.RawMessage) { called = true }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	bus.deliver("other", nil)
	if called {
		t.Fatalf("handler ran for a different event name")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	bus, _ := newTestEventBus()

	calls := 0
	id, err := bus.Subscribe("tick", func(json.RawMessage) { calls++ })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	bus.Unsubscribe(id)
	bus.Unsubscribe(id)
	bus.Unsubscribe("no-such-id")

	bus.deliver("tick", nil)
	if calls != 0 {
		t.Fatalf("handler ran after unsubscribe")
	}
}

func TestHandlerPanicDoesNotStopDelivery(t *testing.T) {
	bus, _ := newTestEventBus()

	survived := false
	if _, err := bus.Subscribe("tick", func(json.RawMessage) { panic("bad handler") }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := bus.Subscribe("tick", func(json.RawMessage) { survived = true }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	bus.deliver("tick", nil)
	if !survived {
		t.Fatalf("panic in one handler stopped the rest")
	}
}

func TestSubscriptionIDsAreUnique(t *testing.T) {
	bus, _ := newTestEventBus()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := bus.Subscribe("tick", func(json.RawMessage) {})
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate subscription id %q", id)
		}
		seen[id] = true
	}
}
