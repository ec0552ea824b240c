package runtime

import (
	"context"
	"encoding/json"
	"testing"

	loggingpkg "github.com/glasswing/glasswing/internal/runtime/logging"
)

func rawArgs(args ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(args))
	for i, a := range args {
		out[i] = json.RawMessage(a)
	}
	return out
}

func dispatch(t *testing.T, b *Bridge, service, method string, args ...string) *CallResponse {
	t.Helper()
	resp := b.Dispatch(context.Background(), &CallRequest{
		ID:      "call-1",
		Service: service,
		Method:  method,
		Args:    rawArgs(args...),
	})
	if resp.ID != "call-1" {
		t.Fatalf("response ID = %q, want call-1", resp.ID)
	}
	return resp
}

func wantFailure(t *testing.T, resp *CallResponse, kind ErrorKind) *Failure {
	t.Helper()
	if resp.Failure == nil {
		t.Fatalf("expected %s failure, got success: %s", kind, resp.Result)
	}
	if resp.Failure.Kind != kind {
		t.Fatalf("failure kind = %s, want %s (message: %s)", resp.Failure.Kind, kind, resp.Failure.Message)
	}
	return resp.Failure
}

func TestDispatchSuccess(t *testing.T) {
	b, _ := newTestBridge(t)
	resp := dispatch(t, b, "Greeter", "Greet", `"Ada"`)
	if resp.Failure != nil {
		t.Fatalf("Dispatch failed: %v", resp.Failure)
	}
	if string(resp.Result) != `"Hello Ada!"` {
		t.Fatalf("result = %s", resp.Result)
	}
}

func TestDispatchContextMethod(t *testing.T) {
	b, _ := newTestBridge(t)
	resp := dispatch(t, b, "Greeter", "Add", "2", "3")
	if resp.Failure != nil {
		t.Fatalf("Dispatch failed: %v", resp.Failure)
	}
	if string(resp.Result) != "5" {
		t.Fatalf("result = %s", resp.Result)
	}
}

func TestDispatchStructAndEnumArgs(t *testing.T) {
	b, _ := newTestBridge(t)
	resp := dispatch(t, b, "Greeter", "Move", `{"x":1,"y":2}`, `"green"`)
	if resp.Failure != nil {
		t.Fatalf("Dispatch failed: %v", resp.Failure)
	}
	if string(resp.Result) != `{"x":2,"y":3}` {
		t.Fatalf("result = %s", resp.Result)
	}
}

func TestDispatchServiceNotFound(t *testing.T) {
	b, _ := newTestBridge(t)
	resp := dispatch(t, b, "Nope", "Greet", `"Ada"`)
	wantFailure(t, resp, ErrorKindServiceNotFound)
}

func TestDispatchMethodNotFound(t *testing.T) {
	b, _ := newTestBridge(t)
	resp := dispatch(t, b, "Greeter", "Vanish")
	wantFailure(t, resp, ErrorKindMethodNotFound)
}

func TestDispatchWrongArgumentCount(t *testing.T) {
	b, _ := newTestBridge(t)
	resp := dispatch(t, b, "Greeter", "Greet", `"Ada"`, `"extra"`)
	wantFailure(t, resp, ErrorKindArgument)
}

func TestDispatchWrongArgumentType(t *testing.T) {
	b, _ := newTestBridge(t)
	resp := dispatch(t, b, "Greeter", "Greet", "42")
	failure := wantFailure(t, resp, ErrorKindTypeMismatch)

	details, ok := failure.Details.(map[string]any)
	if !ok {
		t.Fatalf("details = %T", failure.Details)
	}
	if details["argument"] != 0 {
		t.Fatalf("details should name argument 0, got %v", details["argument"])
	}
}

func TestDispatchNestedMismatchNamesPath(t *testing.T) {
	b, _ := newTestBridge(t)
	resp := dispatch(t, b, "Greeter", "Move", `{"x":"one","y":2}`, `"red"`)
	failure := wantFailure(t, resp, ErrorKindTypeMismatch)
	details := failure.Details.(map[string]any)
	if details["path"] != "$.x" {
		t.Fatalf("path = %v, want $.x", details["path"])
	}
}

func TestDispatchUnknownEnumTag(t *testing.T) {
	b, _ := newTestBridge(t)
	resp := dispatch(t, b, "Greeter", "Move", `{"x":1,"y":2}`, `"magenta"`)
	failure := wantFailure(t, resp, ErrorKindUnknownEnumValue)
	details := failure.Details.(map[string]any)
	if details["tag"] != "magenta" || details["argument"] != 1 {
		t.Fatalf("details = %v", details)
	}
}

func TestDispatchBackendErrorVerbatim(t *testing.T) {
	b, _ := newTestBridge(t)
	resp := dispatch(t, b, "Greeter", "Fail", `"disk is on fire"`)
	failure := wantFailure(t, resp, ErrorKindBackend)
	if failure.Message != "disk is on fire" {
		t.Fatalf("backend message = %q", failure.Message)
	}
}

func TestDispatchPanicBecomesInternal(t *testing.T) {
	b, _ := newTestBridge(t)
	resp := dispatch(t, b, "Greeter", "Boom")
	failure := wantFailure(t, resp, ErrorKindInternal)

	// The panic value must not leak to the surface.
	if failure.Message == "kaboom" {
		t.Fatalf("panic text leaked into the failure message")
	}
}

func TestDispatchTextStructArgument(t *testing.T) {
	b, _ := newTestBridge(t)
	resp := dispatch(t, b, "Greeter", "Move", `"{\"x\":1,\"y\":2}"`, `"blue"`)
	if resp.Failure != nil {
		t.Fatalf("text struct argument rejected: %v", resp.Failure)
	}
	if string(resp.Result) != `{"x":2,"y":3}` {
		t.Fatalf("result = %s", resp.Result)
	}
}

func TestDispatchRecordsStats(t *testing.T) {
	b, _ := newTestBridge(t)
	dispatch(t, b, "Greeter", "Greet", `"Ada"`)
	dispatch(t, b, "Greeter", "Fail", `"nope"`)

	infos := b.Bindings()
	if len(infos) != 1 {
		t.Fatalf("bindings = %d", len(infos))
	}
	stats := infos[0].Stats
	if stats.CallsHandled != 2 || stats.CallsFailed != 1 {
		t.Fatalf("handled=%d failed=%d", stats.CallsHandled, stats.CallsFailed)
	}
	if stats.Failures.Backend != 1 {
		t.Fatalf("backend failures = %d", stats.Failures.Backend)
	}
}

func TestDispatchInvokesHooks(t *testing.T) {
	var started, done, failed int
	hooks := CallHooks{
		OnCallStart: func(CallContext) { started++ },
		OnCallDone:  func(CallContext) { done++ },
		OnCallError: func(CallContext, *Failure) { failed++ },
	}

	b, err := TryNewBridge(testConfig(), loggingpkg.Nop(), context.Background(), Dependencies{Hooks: hooks})
	if err != nil {
		t.Fatalf("TryNewBridge: %v", err)
	}
	registerTestTypes(t, b)
	if err := b.Bind("Greeter", &testGreeter{}, "Greet", "Fail"); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	dispatch(t, b, "Greeter", "Greet", `"Ada"`)
	dispatch(t, b, "Greeter", "Fail", `"nope"`)

	if started != 2 || done != 1 || failed != 1 {
		t.Fatalf("started=%d done=%d failed=%d", started, done, failed)
	}
}
