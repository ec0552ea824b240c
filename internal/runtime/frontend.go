package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	configpkg "github.com/glasswing/glasswing/internal/runtime/config"
	errspkg "github.com/glasswing/glasswing/internal/runtime/errors"
	idspkg "github.com/glasswing/glasswing/internal/runtime/ids"
	"github.com/glasswing/glasswing/internal/runtime/jsoncodec"
	loggingpkg "github.com/glasswing/glasswing/internal/runtime/logging"
	transportpkg "github.com/glasswing/glasswing/internal/runtime/transport"
)

// Frontend is the surface-side counterpart of a Bridge, used by hosts and
// tests that drive the bridge from Go instead of from generated JavaScript
// stubs. It multiplexes any number of concurrent calls over the shared
// channel and correlates responses by call ID.
type Frontend struct {
	conf      *configpkg.Config
	logger    loggingpkg.ServiceLogger
	transport transportpkg.Transport

	events *EventBus

	mu      sync.Mutex
	pending map[string]chan *CallResponse
	closed  bool

	cancel context.CancelFunc
	done   chan struct{}
}

// PendingCall is one in-flight call. Await blocks until the matching
// response arrives.
type PendingCall struct {
	ID string

	fe *Frontend
	ch chan *CallResponse
}

// NewFrontend attaches to the surface side of the given transport. Pass the
// bridge's own Transport to drive it in process; responses and events begin
// flowing before NewFrontend returns.
func NewFrontend(ctx context.Context, tr transportpkg.Transport, conf *configpkg.Config, log loggingpkg.ServiceLogger) (*Frontend, error) {
	if err := configpkg.ValidateConfig(conf); err != nil {
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	messages, err := tr.Subscriber.Subscribe(loopCtx, conf.GetFrontendTopic())
	if err != nil {
		cancel()
		return nil, err
	}

	fe := &Frontend{
		conf:      conf,
		logger:    log,
		transport: tr,
		events:    newEventBus(tr.Publisher, conf.GetBackendTopic(), log),
		pending:   make(map[string]chan *CallResponse),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	go fe.receiveLoop(messages)
	return fe, nil
}

func (fe *Frontend) receiveLoop(messages <-chan *message.Message) {
	defer close(fe.done)
	for msg := range messages {
		env, err := decodeEnvelope(msg.Payload)
		if err != nil {
			fe.logger.Error("Dropping malformed envelope", err, loggingpkg.LogFields{"message_uuid": msg.UUID})
			msg.Ack()
			continue
		}

		switch env.Kind {
		case KindCallResponse:
			fe.resolve(env)
		case KindEvent:
			fe.events.deliver(env.EventName, env.Payload)
		default:
			fe.logger.Info("Ignoring envelope of unexpected kind", loggingpkg.LogFields{"kind": env.Kind})
		}
		msg.Ack()
	}
}

func (fe *Frontend) resolve(env *Envelope) {
	fe.mu.Lock()
	ch, ok := fe.pending[env.ID]
	delete(fe.pending, env.ID)
	fe.mu.Unlock()

	if !ok {
		fe.logger.Info("Response without a pending call", loggingpkg.LogFields{"call_id": env.ID})
		return
	}
	ch <- &CallResponse{ID: env.ID, Result: env.Result, Failure: env.Error}
}

// Call encodes the arguments and sends a call request, returning immediately
// with a PendingCall. Calls issued concurrently resolve independently; a
// slow method does not delay responses to calls issued after it.
func (fe *Frontend) Call(ctx context.Context, service, method string, args ...any) (*PendingCall, error) {
	encoded := make([]json.RawMessage, len(args))
	for i, arg := range args {
		data, err := jsoncodec.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("glasswing: encoding argument %d of %s.%s: %w", i, service, method, err)
		}
		encoded[i] = data
	}

	id := idspkg.CallID()
	ch := make(chan *CallResponse, 1)

	fe.mu.Lock()
	if fe.closed {
		fe.mu.Unlock()
		return nil, errspkg.ErrFrontendClosed
	}
	fe.pending[id] = ch
	fe.mu.Unlock()

	env := &Envelope{
		Kind:    KindCallRequest,
		ID:      id,
		Service: service,
		Method:  method,
		Args:    encoded,
	}
	msg, err := env.toMessage()
	if err != nil {
		fe.forget(id)
		return nil, err
	}
	msg.SetContext(ctx)
	if err := fe.transport.Publisher.Publish(fe.conf.GetBackendTopic(), msg); err != nil {
		fe.forget(id)
		return nil, err
	}

	return &PendingCall{ID: id, fe: fe, ch: ch}, nil
}

// Invoke is Call followed by Await, for callers that want a synchronous
// round trip.
func (fe *Frontend) Invoke(ctx context.Context, service, method string, args ...any) (json.RawMessage, error) {
	call, err := fe.Call(ctx, service, method, args...)
	if err != nil {
		return nil, err
	}
	return call.Await(ctx)
}

func (fe *Frontend) forget(id string) {
	fe.mu.Lock()
	delete(fe.pending, id)
	fe.mu.Unlock()
}

// Await blocks until the response arrives or the context ends. On failure
// the returned error is the *Failure carried in the response, so callers can
// branch on its kind with errors.As.
func (c *PendingCall) Await(ctx context.Context) (json.RawMessage, error) {
	select {
	case resp := <-c.ch:
		if resp.Failure != nil {
			return nil, resp.Failure
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.fe.forget(c.ID)
		return nil, ctx.Err()
	case <-c.fe.done:
		return nil, errspkg.ErrFrontendClosed
	}
}

// Events returns the surface-side event bus. Emitted events reach backend
// subscribers; Subscribe observes backend-emitted events.
func (fe *Frontend) Events() *EventBus { return fe.events }

// Close stops the receive loop. Pending Awaits fail with ErrFrontendClosed.
func (fe *Frontend) Close() {
	fe.mu.Lock()
	if fe.closed {
		fe.mu.Unlock()
		return
	}
	fe.closed = true
	fe.mu.Unlock()

	fe.cancel()
}
