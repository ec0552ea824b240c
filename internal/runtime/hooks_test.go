package runtime

import (
	"testing"
	"time"

	loggingpkg "github.com/glasswing/glasswing/internal/runtime/logging"
)

func TestCallHooksMergeCallsBothInOrder(t *testing.T) {
	var order []string
	a := CallHooks{
		OnCallStart: func(CallContext) { order = append(order, "a.start") },
		OnCallDone:  func(CallContext) { order = append(order, "a.done") },
	}
	b := CallHooks{
		OnCallStart: func(CallContext) { order = append(order, "b.start") },
		OnCallError: func(CallContext, *Failure) { order = append(order, "b.error") },
	}

	merged := a.Merge(b)
	merged.callStart(CallContext{})
	merged.callDone(CallContext{})
	merged.callError(CallContext{}, &Failure{Kind: ErrorKindInternal})

	want := []string{"a.start", "b.start", "a.done", "b.error"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestNilHooksAreSafe(t *testing.T) {
	var hooks CallHooks
	hooks.callStart(CallContext{})
	hooks.callDone(CallContext{})
	hooks.callError(CallContext{}, &Failure{Kind: ErrorKindInternal})
}

func TestLoggingHooksDoNotPanic(t *testing.T) {
	hooks := LoggingHooks(loggingpkg.Nop())
	ctx := CallContext{Service: "Greeter", Method: "Greet", CallID: "x", Duration: time.Millisecond}
	hooks.callDone(ctx)
	hooks.callError(ctx, &Failure{Kind: ErrorKindBackend, Message: "nope"})
}

func TestMetricsHooksSurviveReconstruction(t *testing.T) {
	first := MetricsHooks()
	second := MetricsHooks()

	ctx := CallContext{Service: "Greeter", Method: "Greet", Duration: time.Millisecond}
	first.callDone(ctx)
	second.callDone(ctx)
	second.callError(ctx, &Failure{Kind: ErrorKindBackend, Message: "nope"})
}
