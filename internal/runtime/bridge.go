package runtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"

	configpkg "github.com/glasswing/glasswing/internal/runtime/config"
	errspkg "github.com/glasswing/glasswing/internal/runtime/errors"
	loggingpkg "github.com/glasswing/glasswing/internal/runtime/logging"
	"github.com/glasswing/glasswing/internal/runtime/schema"
	transportpkg "github.com/glasswing/glasswing/internal/runtime/transport"
)

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// Dependencies holds the optional collaborators a Bridge can use. Leave
// fields nil for the defaults.
type Dependencies struct {
	TransportFactory          transportpkg.Factory
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	Hooks                     CallHooks
	Types                     *schema.Registry // Shared type declarations; a fresh registry when nil.
}

// Bridge is the explicit handle connecting bound backend services to the
// rendering surface. It owns the transport, the routing table built from each
// binding's schema, and the event bus; nothing about it lives in process-wide
// state.
type Bridge struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	transport transportpkg.Transport
	router    *message.Router

	types   *schema.Registry
	builder *schema.Builder

	bindings   map[string]*binding
	bindingsMu sync.RWMutex

	events *EventBus
	hooks  CallHooks

	started  atomic.Bool
	inflight sync.WaitGroup

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex
}

// NewBridge constructs a Bridge for the supplied configuration, panicking on
// construction failure. Bind services on the returned Bridge before calling
// Start.
func NewBridge(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps Dependencies) *Bridge {
	b, err := TryNewBridge(conf, log, ctx, deps)
	if err != nil {
		panic(err)
	}
	return b
}

// TryNewBridge is NewBridge with an error return for embedders that want to
// surface construction failure instead of crashing the shell.
func TryNewBridge(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps Dependencies) (*Bridge, error) {
	if err := configpkg.ValidateConfig(conf); err != nil {
		return nil, err
	}
	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating bridge", loggingpkg.LogFields{
		"transport":      conf.GetTransport(),
		"backend_topic":  conf.GetBackendTopic(),
		"frontend_topic": conf.GetFrontendTopic(),
	})

	types := deps.Types
	if types == nil {
		types = schema.NewRegistry()
	}

	b := &Bridge{
		Conf:     conf,
		Logger:   log,
		types:    types,
		builder:  schema.NewBuilder(types),
		bindings: make(map[string]*binding),
		hooks:    deps.Hooks,
	}

	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	tr, err := factory.Build(ctx, conf, wmLogger)
	if err != nil {
		return nil, err
	}
	b.transport = tr

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, err
	}
	b.router = router
	b.router.AddPlugin(plugin.SignalsHandler)

	if err := b.registerConfiguredMiddlewares(deps); err != nil {
		return nil, err
	}

	b.router.AddNoPublisherHandler(
		"glasswing_inbound",
		conf.GetBackendTopic(),
		tr.Subscriber,
		b.handleInbound,
	)

	b.events = newEventBus(tr.Publisher, conf.GetFrontendTopic(), log)

	return b, nil
}

func (b *Bridge) registerConfiguredMiddlewares(deps Dependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := b.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("failed to register middleware %s: %w", name, err)
		}
	}
	return nil
}

// Types returns the struct/enum registry shared by every binding on this
// bridge.
func (b *Bridge) Types() *schema.Registry { return b.types }

// RegisterStruct declares a struct's wire shape on the bridge's registry.
func (b *Bridge) RegisterStruct(sample any, fields []schema.Field) error {
	return b.types.RegisterStruct(sample, fields)
}

// RegisterEnum declares an enum's value/tag pairs on the bridge's registry.
func (b *Bridge) RegisterEnum(sample any, values []schema.EnumValue) error {
	return b.types.RegisterEnum(sample, values)
}

// Events returns the bridge-side event bus. Emitted events reach the
// rendering surface; subscriptions observe surface-emitted events.
func (b *Bridge) Events() *EventBus { return b.events }

// Transport exposes the built transport so an in-process frontend can attach
// to the same channel.
func (b *Bridge) Transport() transportpkg.Transport { return b.transport }

// Schema returns an immutable snapshot of everything bound so far. Snapshots
// are safe to hand to the stub generator while dispatch keeps running.
func (b *Bridge) Schema() *schema.Schema {
	b.bindingsMu.RLock()
	defer b.bindingsMu.RUnlock()
	return b.builder.Snapshot()
}

// Start runs the bridge until the provided context is cancelled. This is the
// startup hook the host's window layer invokes once the surface exists.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return errspkg.ErrBridgeStarted
	}
	b.startDevToolsServer()
	b.startHTTPServers()
	return routerRun(b.router, ctx)
}

// Running closes when the router has started consuming, which tests and
// embedders use to sequence the surface side.
func (b *Bridge) Running() <-chan struct{} {
	return b.router.Running()
}

// Shutdown is the matching shutdown hook: it stops consuming, waits for
// in-flight calls up to the timeout, then releases the transport. Calls still
// running at the deadline are abandoned; their responses never leave the
// process.
func (b *Bridge) Shutdown(timeout time.Duration) error {
	routerErr := b.router.Close()

	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()

	var waitErr error
	select {
	case <-done:
	case <-time.After(timeout):
		waitErr = fmt.Errorf("glasswing: timed out waiting for in-flight calls")
	}

	b.transport.Close()
	if routerErr != nil {
		return routerErr
	}
	return waitErr
}

// handleInbound is the single ordered consumer of frontend-originated
// envelopes. Call requests fan out to their own goroutines so a slow method
// stalls only its own response; events stay on this goroutine so their
// delivery order survives.
func (b *Bridge) handleInbound(msg *message.Message) error {
	env, err := decodeEnvelope(msg.Payload)
	if err != nil {
		b.Logger.Error("Dropping malformed envelope", err, loggingpkg.LogFields{"message_uuid": msg.UUID})
		return nil
	}

	switch env.Kind {
	case KindCallRequest:
		req := env.toCallRequest()
		b.inflight.Add(1)
		go func(ctx context.Context) {
			defer b.inflight.Done()
			b.respond(ctx, b.Dispatch(ctx, req))
		}(msg.Context())

	case KindEvent:
		b.events.deliver(env.EventName, env.Payload)

	default:
		b.Logger.Info("Ignoring envelope of unexpected kind", loggingpkg.LogFields{
			"kind":         env.Kind,
			"message_uuid": msg.UUID,
		})
	}
	return nil
}

func (b *Bridge) respond(ctx context.Context, resp *CallResponse) {
	msg, err := resp.envelope().toMessage()
	if err != nil {
		b.Logger.Error("Failed to encode call response", err, loggingpkg.LogFields{"call_id": resp.ID})
		return
	}
	msg.SetContext(ctx)
	if err := b.transport.Publisher.Publish(b.Conf.GetFrontendTopic(), msg); err != nil {
		b.Logger.Error("Failed to publish call response", err, loggingpkg.LogFields{"call_id": resp.ID})
	}
}

// RegisterHTTPHandler mounts a handler on the shared dev HTTP server for the
// given port. Servers start lazily on Start.
func (b *Bridge) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	b.httpServersMu.Lock()
	defer b.httpServersMu.Unlock()

	if b.httpServers == nil {
		b.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := b.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		b.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (b *Bridge) startHTTPServers() {
	b.httpServersMu.Lock()
	defer b.httpServersMu.Unlock()

	for port, mux := range b.httpServers {
		addr := fmt.Sprintf(":%d", port)
		b.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": addr})
		go func(addr string, handler http.Handler) {
			if err := http.ListenAndServe(addr, handler); err != nil {
				b.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": addr})
			}
		}(addr, mux)
	}
}
