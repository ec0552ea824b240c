package schema

import (
	"context"
	"reflect"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	byteSlice   = reflect.TypeOf([]byte(nil))
)

// Builder accumulates service schemas and the struct/enum table they reach.
// Each AddService call extends the table; Snapshot returns an immutable view
// for generation and dispatch.
type Builder struct {
	reg      *Registry
	services []*Service
	structs  []*StructSchema
	enums    []*EnumSchema

	resolvedStructs map[reflect.Type]*StructSchema
	resolvedEnums   map[reflect.Type]*EnumSchema
}

func NewBuilder(reg *Registry) *Builder {
	return &Builder{
		reg:             reg,
		resolvedStructs: make(map[reflect.Type]*StructSchema),
		resolvedEnums:   make(map[reflect.Type]*EnumSchema),
	}
}

// AddService extracts the schema of one bound service. Methods are
// enumerated deliberately by name; extraction verifies each against the
// receiver's reflected signature and resolves every referenced type, closing
// the table under reference. Extraction is deterministic: methods keep the
// order given here and fields keep registration order. A failed extraction
// leaves no trace: types resolved for earlier methods are evicted with it,
// so snapshots and stubs never see a half-added service.
func (b *Builder) AddService(name string, receiver any, methods []string) (*Service, error) {
	structMark, enumMark := len(b.structs), len(b.enums)

	svc, err := b.extractService(name, receiver, methods)
	if err != nil {
		b.evictAfter(structMark, enumMark)
		return nil, err
	}
	return svc, nil
}

func (b *Builder) extractService(name string, receiver any, methods []string) (*Service, error) {
	rv := reflect.ValueOf(receiver)
	svc := &Service{Name: name}

	for _, methodName := range methods {
		m := rv.MethodByName(methodName)
		if !m.IsValid() {
			return nil, schemaErrorf(rv.Type().String(), "no exported method named %s", methodName)
		}
		md, err := b.extractMethod(methodName, m)
		if err != nil {
			return nil, err
		}
		if _, dup := svc.Method(methodName); dup {
			return nil, schemaErrorf(rv.Type().String(), "method %s listed twice", methodName)
		}
		svc.Methods = append(svc.Methods, md)
	}

	b.services = append(b.services, svc)
	return svc, nil
}

// evictAfter rolls the struct and enum tables back to the given marks,
// removing both the slice entries and their resolution cache keys so a later
// AddService can resolve them fresh.
func (b *Builder) evictAfter(structMark, enumMark int) {
	for _, ss := range b.structs[structMark:] {
		delete(b.resolvedStructs, ss.GoType())
	}
	b.structs = b.structs[:structMark]

	for _, es := range b.enums[enumMark:] {
		delete(b.resolvedEnums, es.GoType())
	}
	b.enums = b.enums[:enumMark]
}

func (b *Builder) extractMethod(name string, fn reflect.Value) (*Method, error) {
	ft := fn.Type()
	md := &Method{Name: name, fn: fn}

	start := 0
	if ft.NumIn() > 0 && ft.In(0) == contextType {
		md.wantContext = true
		start = 1
	}
	for i := start; i < ft.NumIn(); i++ {
		ref, err := b.typeRefFor(ft.In(i))
		if err != nil {
			return nil, err
		}
		md.Params = append(md.Params, ref)
	}

	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == errorType {
			md.Fallible = true
		} else {
			ref, err := b.typeRefFor(ft.Out(0))
			if err != nil {
				return nil, err
			}
			md.Result = ref
		}
	case 2:
		if ft.Out(1) != errorType {
			return nil, schemaErrorf(ft.String(), "method %s: second result must be error", name)
		}
		ref, err := b.typeRefFor(ft.Out(0))
		if err != nil {
			return nil, err
		}
		md.Result = ref
		md.Fallible = true
	default:
		return nil, schemaErrorf(ft.String(), "method %s: too many results", name)
	}

	return md, nil
}

// typeRefFor reduces a Go type to the closed TypeRef variant set. Anything
// outside the set is rejected here, at schema build time, rather than at some
// arbitrary point during dispatch.
func (b *Builder) typeRefFor(t reflect.Type) (*TypeRef, error) {
	switch t.Kind() {
	case reflect.Bool:
		return &TypeRef{Kind: Bool, goType: t}, nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if es, err := b.resolveEnum(t); es != nil || err != nil {
			if err != nil {
				return nil, err
			}
			return &TypeRef{Kind: Enum, Name: es.Name, goType: t, enum: es}, nil
		}
		return &TypeRef{Kind: Number, goType: t}, nil

	case reflect.Float32, reflect.Float64:
		return &TypeRef{Kind: Number, goType: t}, nil

	case reflect.String:
		return &TypeRef{Kind: String, goType: t}, nil

	case reflect.Pointer:
		elem, err := b.typeRefFor(t.Elem())
		if err != nil {
			return nil, err
		}
		return &TypeRef{Kind: Optional, Elem: elem, goType: t}, nil

	case reflect.Slice:
		if t == byteSlice || (t.Elem().Kind() == reflect.Uint8 && t.Elem().PkgPath() == "") {
			return &TypeRef{Kind: Bytes, goType: t}, nil
		}
		elem, err := b.typeRefFor(t.Elem())
		if err != nil {
			return nil, err
		}
		return &TypeRef{Kind: List, Elem: elem, goType: t}, nil

	case reflect.Struct:
		if t.Name() == "" {
			return nil, schemaErrorf(t.String(), "anonymous structs cannot cross the bridge")
		}
		ss, err := b.resolveStruct(t)
		if err != nil {
			return nil, err
		}
		return &TypeRef{Kind: Struct, Name: ss.Name, goType: t, strct: ss}, nil

	default:
		return nil, schemaErrorf(t.String(), "%s types cannot cross the bridge", t.Kind())
	}
}

// resolveStruct adds a registered struct to the table exactly once. The table
// entry is published before its field refs are resolved so self-referencing
// shapes (via optional or list) terminate.
func (b *Builder) resolveStruct(t reflect.Type) (*StructSchema, error) {
	if ss, done := b.resolvedStructs[t]; done {
		return ss, nil
	}
	ss, ok := b.reg.structFor(t)
	if !ok {
		return nil, schemaErrorf(t.String(),
			"external field names cannot be determined; declare the type with RegisterStruct")
	}

	b.resolvedStructs[t] = ss
	b.structs = append(b.structs, ss)

	for i := range ss.Fields {
		f := &ss.Fields[i]
		goField := t.FieldByIndex(f.index)
		ref, err := b.typeRefFor(goField.Type)
		if err != nil {
			return nil, err
		}
		if f.Optional && ref.Kind != Optional {
			return nil, schemaErrorf(t.String(), "optional field %s must be a pointer in Go", f.goName)
		}
		f.Type = ref
	}
	return ss, nil
}

func (b *Builder) resolveEnum(t reflect.Type) (*EnumSchema, error) {
	if es, done := b.resolvedEnums[t]; done {
		return es, nil
	}
	es, ok := b.reg.enumFor(t)
	if !ok {
		return nil, nil
	}
	b.resolvedEnums[t] = es
	b.enums = append(b.enums, es)
	return es, nil
}

// Snapshot returns the schema accumulated so far. The slices are copied so a
// snapshot handed to the stub generator stays stable while further services
// are bound.
func (b *Builder) Snapshot() *Schema {
	return &Schema{
		Services: append([]*Service(nil), b.services...),
		Structs:  append([]*StructSchema(nil), b.structs...),
		Enums:    append([]*EnumSchema(nil), b.enums...),
	}
}
