package transport

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/glasswing/glasswing/internal/runtime/config"
)

func buildChannelTransport(t *testing.T) Transport {
	t.Helper()

	conf := &config.Config{Transport: "channel"}
	tr, err := DefaultRegistry.Build(context.Background(), conf, watermill.NopLogger{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestChannelRoundTrip(t *testing.T) {
	tr := buildChannelTransport(t)

	ch, err := tr.Subscriber.Subscribe(context.Background(), "calls")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	sent := message.NewMessage("msg-1", []byte("payload"))
	if err := tr.Publisher.Publish("calls", sent); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got := receiveMessage(t, ch)
	if got.UUID != "msg-1" || string(got.Payload) != "payload" {
		t.Fatalf("msg = %q %q", got.UUID, got.Payload)
	}
	got.Ack()
}

func TestChannelDoesNotReplay(t *testing.T) {
	tr := buildChannelTransport(t)

	if err := tr.Publisher.Publish("calls", message.NewMessage("early", []byte("x"))); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	ch, err := tr.Subscriber.Subscribe(context.Background(), "calls")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	select {
	case msg := <-ch:
		t.Fatalf("replayed %q to a late subscriber", msg.UUID)
	case <-time.After(50 * time.Millisecond):
	}
}
