// Package schema models the services, structs, and enums exposed over the
// bridge. A schema is built once per bound service at registration time and is
// immutable afterwards: the dispatcher uses it as its routing table and the
// stub generator renders it into frontend code, so extraction must be
// deterministic (declared order, byte-identical JSON across runs).
package schema

import (
	"context"
	"fmt"
	"reflect"

	"github.com/glasswing/glasswing/internal/runtime/jsoncodec"
)

// Kind identifies a TypeRef variant. The set is closed: anything a bound
// method touches must reduce to one of these or schema extraction fails.
type Kind uint8

const (
	Invalid Kind = iota
	Bool
	Number
	String
	Bytes
	Struct
	Enum
	Optional
	List
)

func (k Kind) String() string {
	switch k {
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Bytes:
		return "bytes"
	case Struct:
		return "struct"
	case Enum:
		return "enum"
	case Optional:
		return "optional"
	case List:
		return "list"
	default:
		return "invalid"
	}
}

// TypeRef describes one value position: a parameter, result, field, or
// element type. Struct and Enum refs resolve into the schema table.
type TypeRef struct {
	Kind Kind
	Name string   // fully-qualified type name, Struct and Enum only
	Elem *TypeRef // element type, Optional and List only

	goType reflect.Type
	strct  *StructSchema
	enum   *EnumSchema
}

// GoType returns the backing Go type. It is runtime-only information and is
// never serialised.
func (t *TypeRef) GoType() reflect.Type { return t.goType }

// StructSchema returns the resolved struct table entry for a Struct ref.
func (t *TypeRef) StructSchema() *StructSchema { return t.strct }

// EnumSchema returns the resolved enum table entry for an Enum ref.
func (t *TypeRef) EnumSchema() *EnumSchema { return t.enum }

// String renders the ref the way error messages and generated code name
// types, e.g. "optional<main.Address>" or "list<string>".
func (t *TypeRef) String() string {
	switch t.Kind {
	case Struct, Enum:
		return t.Name
	case Optional:
		return "optional<" + t.Elem.String() + ">"
	case List:
		return "list<" + t.Elem.String() + ">"
	default:
		return t.Kind.String()
	}
}

func (t *TypeRef) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind string   `json:"kind"`
		Name string   `json:"name,omitempty"`
		Elem *TypeRef `json:"elem,omitempty"`
	}{Kind: t.Kind.String(), Name: t.Name, Elem: t.Elem}
	return jsoncodec.Marshal(out)
}

// StructField pairs an explicit external name with the backing Go field. The
// external name is declared at registration time and is decoupled from the Go
// identifier.
type StructField struct {
	Name     string   `json:"name"` // external name on the wire
	Type     *TypeRef `json:"type"`
	Optional bool     `json:"optional,omitempty"`

	goName string
	index  []int
}

// GoName returns the Go struct field backing this schema field.
func (f *StructField) GoName() string { return f.goName }

// Index returns the reflect field index path for value access.
func (f *StructField) Index() []int { return f.index }

// StructSchema is an ordered set of named fields. Order is the declaration
// order given at registration and is preserved on the wire and in generated
// stubs.
type StructSchema struct {
	Name   string        `json:"name"`
	Fields []StructField `json:"fields"`

	goType reflect.Type
}

// GoType returns the Go struct type described by the schema.
func (s *StructSchema) GoType() reflect.Type { return s.goType }

// EnumValue is one (internal value, external tag) pair.
type EnumValue struct {
	Value int64  `json:"value"`
	Tag   string `json:"tag"`
}

// EnumSchema is a finite bijection between internal integer values and
// external string tags. The bijection is checked at registration time.
type EnumSchema struct {
	Name   string      `json:"name"`
	Values []EnumValue `json:"values"`

	goType  reflect.Type
	byTag   map[string]int64
	byValue map[int64]string
}

// GoType returns the named integer type backing the enum.
func (e *EnumSchema) GoType() reflect.Type { return e.goType }

// TagOf maps an internal value to its external tag.
func (e *EnumSchema) TagOf(value int64) (string, bool) {
	tag, ok := e.byValue[value]
	return tag, ok
}

// ValueOf maps an external tag back to the internal value.
func (e *EnumSchema) ValueOf(tag string) (int64, bool) {
	v, ok := e.byTag[tag]
	return v, ok
}

// Method describes one callable operation of a bound service: ordered
// parameter refs, an optional result ref, and whether the method can fail
// through the declared error channel.
type Method struct {
	Name     string     `json:"name"`
	Params   []*TypeRef `json:"params"`
	Result   *TypeRef   `json:"result,omitempty"`
	Fallible bool       `json:"fallible,omitempty"`

	fn          reflect.Value
	wantContext bool
}

// Invoke calls the bound Go method with the decoded arguments. When the
// method declares a leading context.Context it is prepended automatically.
// Output interpretation is up to the caller: if Fallible, the trailing value
// is the error; if Result is non-nil, the first value is the result.
func (m *Method) Invoke(ctx context.Context, args []reflect.Value) []reflect.Value {
	if m.wantContext {
		in := make([]reflect.Value, 0, len(args)+1)
		in = append(in, reflect.ValueOf(ctx))
		in = append(in, args...)
		return m.fn.Call(in)
	}
	return m.fn.Call(args)
}

// Service is the schema of one bound backend object.
type Service struct {
	Name    string    `json:"name"`
	Methods []*Method `json:"methods"`
}

// Method looks a method up by its schema name.
func (s *Service) Method(name string) (*Method, bool) {
	for _, m := range s.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// Schema is the closed, deterministic description of every bound service and
// each struct/enum reachable from their method signatures, keyed by
// fully-qualified type name and listed in first-reachable order.
type Schema struct {
	Services []*Service      `json:"services"`
	Structs  []*StructSchema `json:"structs"`
	Enums    []*EnumSchema   `json:"enums"`
}

// Struct looks a struct table entry up by its fully-qualified name.
func (s *Schema) Struct(name string) (*StructSchema, bool) {
	for _, st := range s.Structs {
		if st.Name == name {
			return st, true
		}
	}
	return nil, false
}

// Enum looks an enum table entry up by its fully-qualified name.
func (s *Schema) Enum(name string) (*EnumSchema, bool) {
	for _, e := range s.Enums {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}

// MarshalJSON renders the schema deterministically: repeated calls on the
// same schema produce byte-identical output.
func (s *Schema) MarshalJSON() ([]byte, error) {
	type alias Schema
	return jsoncodec.Marshal((*alias)(s))
}

// SchemaError reports a service shape that cannot be represented. These are
// developer errors, fatal at registration time.
type SchemaError struct {
	Type   string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: type %s: %s", e.Type, e.Reason)
}

func schemaErrorf(typeName, format string, args ...any) *SchemaError {
	return &SchemaError{Type: typeName, Reason: fmt.Sprintf(format, args...)}
}
