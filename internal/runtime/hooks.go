package runtime

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	loggingpkg "github.com/glasswing/glasswing/internal/runtime/logging"
)

// CallContext provides information about a dispatched call to hooks.
type CallContext struct {
	// CallID is the correlation identifier of the call.
	CallID string
	// Service is the bound service name.
	Service string
	// Method is the invoked method name.
	Method string
	// Context is the context the call runs under.
	Context context.Context
	// StartedAt is when the dispatcher accepted the call.
	StartedAt time.Time
	// Duration is how long the call took (only set in OnCallDone and OnCallError).
	Duration time.Duration
}

// CallHooks defines callbacks for call lifecycle events.
// All hooks are optional - nil hooks are simply not called.
type CallHooks struct {
	// OnCallStart is called when the dispatcher accepts a call, before the
	// arguments are decoded.
	OnCallStart func(ctx CallContext)

	// OnCallDone is called when a call completes successfully.
	// Duration will be set to how long the call took.
	OnCallDone func(ctx CallContext)

	// OnCallError is called when a call fails for any reason, including
	// argument decoding and backend failures. Duration will be set to how
	// long the call took before failing.
	OnCallError func(ctx CallContext, failure *Failure)
}

// Merge combines two CallHooks, creating a new CallHooks that calls both.
// The hooks from 'other' are called after the hooks from 'h'.
func (h CallHooks) Merge(other CallHooks) CallHooks {
	return CallHooks{
		OnCallStart: chainStartHooks(h.OnCallStart, other.OnCallStart),
		OnCallDone:  chainDoneHooks(h.OnCallDone, other.OnCallDone),
		OnCallError: chainErrorHooks(h.OnCallError, other.OnCallError),
	}
}

func chainStartHooks(a, b func(CallContext)) func(CallContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx CallContext) {
		a(ctx)
		b(ctx)
	}
}

func chainDoneHooks(a, b func(CallContext)) func(CallContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx CallContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(CallContext, *Failure)) func(CallContext, *Failure) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx CallContext, failure *Failure) {
		a(ctx, failure)
		b(ctx, failure)
	}
}

func (h CallHooks) callStart(ctx CallContext) {
	if h.OnCallStart != nil {
		h.OnCallStart(ctx)
	}
}

func (h CallHooks) callDone(ctx CallContext) {
	if h.OnCallDone != nil {
		h.OnCallDone(ctx)
	}
}

func (h CallHooks) callError(ctx CallContext, failure *Failure) {
	if h.OnCallError != nil {
		h.OnCallError(ctx, failure)
	}
}

// LoggingHooks returns hooks that log every call's outcome through the given
// logger.
func LoggingHooks(log loggingpkg.ServiceLogger) CallHooks {
	return CallHooks{
		OnCallDone: func(ctx CallContext) {
			log.Debug("Call completed", loggingpkg.LogFields{
				"call_id":     ctx.CallID,
				"service":     ctx.Service,
				"method":      ctx.Method,
				"duration_ms": ctx.Duration.Milliseconds(),
			})
		},
		OnCallError: func(ctx CallContext, failure *Failure) {
			log.Error("Call failed", failure, loggingpkg.LogFields{
				"call_id":     ctx.CallID,
				"service":     ctx.Service,
				"method":      ctx.Method,
				"error_kind":  string(failure.Kind),
				"duration_ms": ctx.Duration.Milliseconds(),
			})
		},
	}
}

// MetricsHooks returns hooks that record per-service call counters and a
// latency histogram on the default Prometheus registry. Safe to construct
// repeatedly; already registered collectors are reused.
func MetricsHooks() CallHooks {
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "glasswing",
		Name:      "calls_total",
		Help:      "Total number of dispatched calls by outcome.",
	}, []string{"service", "method", "outcome"})
	calls = registerOrReuseCounter(calls)

	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "glasswing",
		Name:      "call_duration_seconds",
		Help:      "Wall time spent dispatching a call, decode to encode.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"service", "method"})
	latency = registerOrReuseHistogram(latency)

	return CallHooks{
		OnCallDone: func(ctx CallContext) {
			calls.WithLabelValues(ctx.Service, ctx.Method, "ok").Inc()
			latency.WithLabelValues(ctx.Service, ctx.Method).Observe(ctx.Duration.Seconds())
		},
		OnCallError: func(ctx CallContext, failure *Failure) {
			calls.WithLabelValues(ctx.Service, ctx.Method, string(failure.Kind)).Inc()
			latency.WithLabelValues(ctx.Service, ctx.Method).Observe(ctx.Duration.Seconds())
		},
	}
}

func registerOrReuseCounter(c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	return c
}

func registerOrReuseHistogram(h *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := prometheus.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.HistogramVec)
		}
	}
	return h
}
