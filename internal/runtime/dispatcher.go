package runtime

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"time"

	loggingpkg "github.com/glasswing/glasswing/internal/runtime/logging"
	"github.com/glasswing/glasswing/internal/runtime/marshal"
	"github.com/glasswing/glasswing/internal/runtime/schema"
)

// decodeOptions governs how frontend-supplied arguments are parsed. Struct
// arguments may arrive as JSON text because surface code sometimes
// stringifies payloads before handing them to a stub.
var decodeOptions = marshal.Options{TextStructs: true}

// Dispatch resolves and invokes one call request against the bound services,
// always producing exactly one response carrying the request's ID. It never
// panics: backend panics are caught and reported as internal failures.
func (b *Bridge) Dispatch(ctx context.Context, req *CallRequest) *CallResponse {
	started := time.Now()
	callCtx := CallContext{
		CallID:    req.ID,
		Service:   req.Service,
		Method:    req.Method,
		Context:   ctx,
		StartedAt: started,
	}
	b.hooks.callStart(callCtx)

	b.bindingsMu.RLock()
	bound, ok := b.bindings[req.Service]
	b.bindingsMu.RUnlock()
	if !ok {
		return b.fail(callCtx, &Failure{
			Kind:    ErrorKindServiceNotFound,
			Message: fmt.Sprintf("no service bound under %q", req.Service),
		})
	}

	bound.stats.onCallStart()
	resp := b.dispatchBound(ctx, req, bound)

	callCtx.Duration = time.Since(started)
	bound.stats.onCallFinish(callCtx.Duration, resp.Failure)
	if resp.Failure != nil {
		b.hooks.callError(callCtx, resp.Failure)
	} else {
		b.hooks.callDone(callCtx)
	}
	return resp
}

func (b *Bridge) fail(callCtx CallContext, failure *Failure) *CallResponse {
	callCtx.Duration = time.Since(callCtx.StartedAt)
	b.hooks.callError(callCtx, failure)
	return &CallResponse{ID: callCtx.CallID, Failure: failure}
}

func (b *Bridge) dispatchBound(ctx context.Context, req *CallRequest, bound *binding) *CallResponse {
	md, ok := bound.svc.Method(req.Method)
	if !ok {
		return &CallResponse{ID: req.ID, Failure: &Failure{
			Kind:    ErrorKindMethodNotFound,
			Message: fmt.Sprintf("service %q has no method %q", req.Service, req.Method),
		}}
	}

	if len(req.Args) != len(md.Params) {
		return &CallResponse{ID: req.ID, Failure: &Failure{
			Kind:    ErrorKindArgument,
			Message: fmt.Sprintf("%s.%s takes %d arguments, got %d", req.Service, req.Method, len(md.Params), len(req.Args)),
		}}
	}

	args := make([]reflect.Value, len(md.Params))
	for i, param := range md.Params {
		v, err := marshal.Decode(req.Args[i], param, decodeOptions)
		if err != nil {
			return &CallResponse{ID: req.ID, Failure: argumentFailure(i, param, err)}
		}
		args[i] = v
	}

	result, failure := b.invoke(ctx, req, md, args)
	if failure != nil {
		return &CallResponse{ID: req.ID, Failure: failure}
	}

	resp := &CallResponse{ID: req.ID}
	if md.Result != nil {
		encoded, err := marshal.Encode(result, md.Result)
		if err != nil {
			b.Logger.Error("Failed to encode method result", err, loggingpkg.LogFields{
				"service": req.Service,
				"method":  req.Method,
				"call_id": req.ID,
			})
			return &CallResponse{ID: req.ID, Failure: &Failure{
				Kind:    ErrorKindInternal,
				Message: fmt.Sprintf("result of %s.%s could not be encoded", req.Service, req.Method),
			}}
		}
		resp.Result = encoded
	}
	return resp
}

// argumentFailure classifies a decode error: shape violations surface as
// TypeMismatch, unknown enum tags as UnknownEnumValue, both naming the
// zero-based argument position.
func argumentFailure(index int, param *schema.TypeRef, err error) *Failure {
	var mismatch *marshal.TypeMismatchError
	if errors.As(err, &mismatch) {
		return &Failure{
			Kind:    ErrorKindTypeMismatch,
			Message: fmt.Sprintf("argument %d: expected %s at %s, got %s", index, mismatch.Expected, mismatch.Path, mismatch.Got),
			Details: map[string]any{
				"argument": index,
				"expected": mismatch.Expected,
				"got":      mismatch.Got,
				"path":     mismatch.Path,
			},
		}
	}
	var unknown *marshal.UnknownEnumValueError
	if errors.As(err, &unknown) {
		return &Failure{
			Kind:    ErrorKindUnknownEnumValue,
			Message: fmt.Sprintf("argument %d: %q is not a value of enum %s", index, unknown.Tag, unknown.Enum),
			Details: map[string]any{
				"argument": index,
				"enum":     unknown.Enum,
				"tag":      unknown.Tag,
				"path":     unknown.Path,
			},
		}
	}
	return &Failure{
		Kind:    ErrorKindArgument,
		Message: fmt.Sprintf("argument %d: %v (expected %s)", index, err, param),
	}
}

func (b *Bridge) invoke(ctx context.Context, req *CallRequest, md *schema.Method, args []reflect.Value) (result reflect.Value, failure *Failure) {
	defer func() {
		if r := recover(); r != nil {
			b.Logger.Error("Method panicked", fmt.Errorf("%v", r), loggingpkg.LogFields{
				"service": req.Service,
				"method":  req.Method,
				"call_id": req.ID,
				"stack":   string(debug.Stack()),
			})
			result = reflect.Value{}
			failure = &Failure{
				Kind:    ErrorKindInternal,
				Message: fmt.Sprintf("%s.%s failed unexpectedly", req.Service, req.Method),
			}
		}
	}()

	out := md.Invoke(ctx, args)

	if md.Fallible {
		errv := out[len(out)-1]
		if !errv.IsNil() {
			return reflect.Value{}, &Failure{
				Kind:    ErrorKindBackend,
				Message: errv.Interface().(error).Error(),
			}
		}
	}
	if md.Result != nil {
		return out[0], nil
	}
	return reflect.Value{}, nil
}
