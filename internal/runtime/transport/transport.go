// Package transport attaches the rendering surface to the bridge. Every
// implementation presents the same contract: an ordered, reliable,
// direction-agnostic pub/sub pair the bridge multiplexes call and event
// envelopes over.
package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/glasswing/glasswing/internal/runtime/config"
)

// Transport combines the publisher and subscriber pair produced by a builder.
// Both sides of the bridge must share one Transport instance for the
// in-process channel variant to connect them.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close releases both halves of the transport.
func (t Transport) Close() error {
	var errs []error
	if t.Publisher != nil {
		if err := t.Publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if t.Subscriber != nil {
		if err := t.Subscriber.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// BuilderFunc constructs a transport from config.
type BuilderFunc func(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)

// Factory abstracts how the bridge initialises its transport, so tests and
// embedders can inject a prebuilt pair.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)
}

// Registry maps transport names to builders. Builders register themselves in
// their file's init.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]BuilderFunc
}

// DefaultRegistry is the process-wide transport registry.
var DefaultRegistry = NewRegistry()

// Register adds a builder to the default registry.
func Register(name string, builder BuilderFunc) {
	DefaultRegistry.Register(name, builder)
}

// Names lists the transport names known to the default registry.
func Names() []string {
	return DefaultRegistry.Names()
}

func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]BuilderFunc)}
}

// Register adds a builder under the name matched against Config.Transport.
func (r *Registry) Register(name string, builder BuilderFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[name] = builder
}

// Names lists the registered transport names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	return names
}

// Build constructs the transport selected by the config.
func (r *Registry) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	if conf == nil {
		return Transport{}, fmt.Errorf("config is required")
	}

	name := conf.GetTransport()
	r.mu.RLock()
	builder, ok := r.builders[name]
	r.mu.RUnlock()
	if !ok {
		return Transport{}, fmt.Errorf("unknown transport: %q (registered: %v)", name, r.Names())
	}

	return builder(ctx, conf, logger)
}

// streamSubscription is one subscriber channel on a frame-stream transport
// (pipe, websocket). The sending mutex serialises delivery against close, so
// the output channel is closed when the subscribe context or the transport
// ends, as the Subscriber contract requires, without racing an in-flight
// send.
type streamSubscription struct {
	ch      chan *message.Message
	closing chan struct{}
	sending sync.Mutex
}

func newStreamSubscription() *streamSubscription {
	return &streamSubscription{
		ch:      make(chan *message.Message),
		closing: make(chan struct{}),
	}
}

// deliver hands the subscriber a private copy and waits for the ack, keeping
// per-direction ordering end to end. A subscription that is closing is
// skipped; a close during delivery releases the blocked send.
func (s *streamSubscription) deliver(msg *message.Message, transportClosed <-chan struct{}, logger watermill.LoggerAdapter) {
	s.sending.Lock()
	defer s.sending.Unlock()

	select {
	case <-s.closing:
		return
	default:
	}

	delivered := msg.Copy()
	select {
	case s.ch <- delivered:
		select {
		case <-delivered.Acked():
		case <-delivered.Nacked():
			logger.Info("glasswing: message nacked by subscriber", watermill.LogFields{"uuid": msg.UUID})
		case <-s.closing:
		case <-transportClosed:
		}
	case <-s.closing:
	case <-transportClosed:
	}
}

// close stops delivery and closes the output channel. Taking the sending
// mutex after closing ensures no sender is mid-flight when the channel
// closes.
func (s *streamSubscription) close() {
	close(s.closing)
	s.sending.Lock()
	close(s.ch)
	s.sending.Unlock()
}

type registryFactory struct {
	registry *Registry
}

func (f registryFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	return f.registry.Build(ctx, conf, logger)
}

// DefaultFactory returns the factory backed by the default registry.
func DefaultFactory() Factory {
	return registryFactory{registry: DefaultRegistry}
}

// Static wraps a prebuilt transport in a Factory.
func Static(t Transport) Factory {
	return staticFactory{t: t}
}

type staticFactory struct{ t Transport }

func (f staticFactory) Build(context.Context, *config.Config, watermill.LoggerAdapter) (Transport, error) {
	return f.t, nil
}
