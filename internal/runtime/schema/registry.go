package schema

import (
	"reflect"
	"sync"
)

// Field declares how one Go struct field appears on the wire. Declarations
// are deliberate: the registry never infers external names from tags or
// identifier casing.
type Field struct {
	Name     string // Go field name
	External string // wire name
	Optional bool   // must be a pointer field in Go
}

// Registry holds the struct and enum declarations that schema extraction
// resolves references against. A single registry is typically shared by every
// binding on a bridge.
type Registry struct {
	mu      sync.RWMutex
	structs map[reflect.Type]*StructSchema
	enums   map[reflect.Type]*EnumSchema
}

func NewRegistry() *Registry {
	return &Registry{
		structs: make(map[reflect.Type]*StructSchema),
		enums:   make(map[reflect.Type]*EnumSchema),
	}
}

// RegisterStruct declares the wire shape of a struct type. The sample may be
// a struct value or a pointer to one. Field order is preserved as declared
// here, not as laid out in Go. Field types are resolved lazily during
// extraction, so structs may reference each other or themselves.
func (r *Registry) RegisterStruct(sample any, fields []Field) error {
	t := reflect.TypeOf(sample)
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return schemaErrorf(typeName(t), "struct registration requires a struct sample")
	}
	if t.Name() == "" {
		return schemaErrorf(t.String(), "anonymous structs cannot be registered")
	}
	if len(fields) == 0 {
		return schemaErrorf(t.String(), "at least one field must be declared")
	}

	ss := &StructSchema{Name: t.String(), goType: t}
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f.External == "" {
			return schemaErrorf(t.String(), "field %s: external name is required", f.Name)
		}
		if _, dup := seen[f.External]; dup {
			return schemaErrorf(t.String(), "duplicate external field name %q", f.External)
		}
		seen[f.External] = struct{}{}

		sf, ok := t.FieldByName(f.Name)
		if !ok || sf.PkgPath != "" {
			return schemaErrorf(t.String(), "no exported field named %s", f.Name)
		}
		if f.Optional && sf.Type.Kind() != reflect.Pointer {
			return schemaErrorf(t.String(), "optional field %s must be a pointer in Go", f.Name)
		}
		ss.Fields = append(ss.Fields, StructField{
			Name:     f.External,
			Optional: f.Optional,
			goName:   f.Name,
			index:    sf.Index,
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.structs[t]; exists {
		return schemaErrorf(t.String(), "struct is already registered")
	}
	r.structs[t] = ss
	return nil
}

// RegisterEnum declares the value/tag pairs of a named integer type. Every
// internal value must map to exactly one external tag and vice versa; the
// bijection is enforced here so nothing downstream ever sees a partial enum.
func (r *Registry) RegisterEnum(sample any, values []EnumValue) error {
	t := reflect.TypeOf(sample)
	if t == nil || !isIntegerKind(t.Kind()) || t.Name() == "" {
		return schemaErrorf(typeName(t), "enum registration requires a named integer type")
	}
	if len(values) == 0 {
		return schemaErrorf(t.String(), "at least one enum value must be declared")
	}

	es := &EnumSchema{
		Name:    t.String(),
		Values:  append([]EnumValue(nil), values...),
		goType:  t,
		byTag:   make(map[string]int64, len(values)),
		byValue: make(map[int64]string, len(values)),
	}
	for _, v := range values {
		if v.Tag == "" {
			return schemaErrorf(t.String(), "enum value %d: external tag is required", v.Value)
		}
		if _, dup := es.byTag[v.Tag]; dup {
			return schemaErrorf(t.String(), "duplicate enum tag %q", v.Tag)
		}
		if _, dup := es.byValue[v.Value]; dup {
			return schemaErrorf(t.String(), "duplicate enum value %d", v.Value)
		}
		es.byTag[v.Tag] = v.Value
		es.byValue[v.Value] = v.Tag
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.enums[t]; exists {
		return schemaErrorf(t.String(), "enum is already registered")
	}
	r.enums[t] = es
	return nil
}

func (r *Registry) structFor(t reflect.Type) (*StructSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ss, ok := r.structs[t]
	return ss, ok
}

func (r *Registry) enumFor(t reflect.Type) (*EnumSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	es, ok := r.enums[t]
	return es, ok
}

func isIntegerKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
