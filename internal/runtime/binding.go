package runtime

import (
	"fmt"
	"reflect"

	errspkg "github.com/glasswing/glasswing/internal/runtime/errors"
	loggingpkg "github.com/glasswing/glasswing/internal/runtime/logging"
	"github.com/glasswing/glasswing/internal/runtime/schema"
)

// binding is one exposed backend service: its extracted schema plus the live
// receiver the dispatcher invokes against.
type binding struct {
	name     string
	svc      *schema.Service
	receiver reflect.Value
	stats    *CallStats
}

// Bind exposes the named methods of receiver to the rendering surface under
// the given service name. The method set is explicit; nothing is exported by
// omission. Binding is only legal before Start, and each name binds once.
func (b *Bridge) Bind(name string, receiver any, methods ...string) error {
	if b.started.Load() {
		return errspkg.ErrBridgeStarted
	}
	if name == "" {
		return errspkg.ErrServiceNameRequired
	}
	if receiver == nil {
		return errspkg.ErrReceiverRequired
	}
	rv := reflect.ValueOf(receiver)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: got %T", errspkg.ErrReceiverPointer, receiver)
	}
	if len(methods) == 0 {
		return fmt.Errorf("%w: service %q", errspkg.ErrNoMethodsExposed, name)
	}

	b.bindingsMu.Lock()
	defer b.bindingsMu.Unlock()

	if _, exists := b.bindings[name]; exists {
		return fmt.Errorf("%w: %q", errspkg.ErrAlreadyBound, name)
	}

	svc, err := b.builder.AddService(name, receiver, methods)
	if err != nil {
		return err
	}

	b.bindings[name] = &binding{
		name:     name,
		svc:      svc,
		receiver: rv,
		stats:    newCallStats(name),
	}
	b.Logger.Info("Bound service", loggingpkg.LogFields{
		"service": name,
		"methods": len(methods),
	})
	return nil
}

// Bindings reports the bound services with their live call statistics,
// ordered by service name.
func (b *Bridge) Bindings() []BindingInfo {
	snapshot := b.Schema()

	b.bindingsMu.RLock()
	defer b.bindingsMu.RUnlock()

	infos := make([]BindingInfo, 0, len(snapshot.Services))
	for _, svc := range snapshot.Services {
		bound, ok := b.bindings[svc.Name]
		if !ok {
			continue
		}
		methods := make([]string, 0, len(svc.Methods))
		for _, m := range svc.Methods {
			methods = append(methods, m.Name)
		}
		infos = append(infos, BindingInfo{
			Name:    svc.Name,
			Methods: methods,
			Stats:   bound.stats,
		})
	}
	return infos
}
