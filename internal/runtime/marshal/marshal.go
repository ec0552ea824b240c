// Package marshal converts values between their in-memory Go representation
// and the interchange JSON described by a schema TypeRef. Encode and Decode
// are inverses: for any value conforming to T, Decode(Encode(v, T), T)
// reproduces v, and Decode rejects interchange that does not conform to T.
package marshal

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"github.com/glasswing/glasswing/internal/runtime/jsoncodec"
	"github.com/glasswing/glasswing/internal/runtime/schema"
)

// Options tunes decoding. The zero value is strict.
type Options struct {
	// TextStructs accepts a JSON string where a struct is expected and parses
	// its contents as the field map. This is a deliberate concession to
	// callers that assemble payloads as text outside the generated stubs; it
	// is opt-in, never implicit.
	TextStructs bool
}

// TypeMismatchError reports interchange that does not conform to the
// expected TypeRef. Path names the offending position, rooted at "$".
type TypeMismatchError struct {
	Path     string
	Expected string
	Got      string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("marshal: %s: expected %s, got %s", e.Path, e.Expected, e.Got)
}

// UnknownEnumValueError reports an external tag outside the enum's declared
// set.
type UnknownEnumValueError struct {
	Enum string
	Tag  string
	Path string
}

func (e *UnknownEnumValueError) Error() string {
	return fmt.Sprintf("marshal: %s: unknown %s tag %q", e.Path, e.Enum, e.Tag)
}

// Encode renders v, which must conform to t, as interchange JSON. Struct
// fields are written in schema order so output is deterministic; optional
// absence is written as an explicit null.
func Encode(v reflect.Value, t *schema.TypeRef) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v, t, "$"); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v reflect.Value, t *schema.TypeRef, path string) error {
	switch t.Kind {
	case schema.Bool:
		buf.WriteString(strconv.FormatBool(v.Bool()))
		return nil

	case schema.Number:
		switch v.Kind() {
		case reflect.Float32, reflect.Float64:
			b, err := jsoncodec.Marshal(v.Float())
			if err != nil {
				return err
			}
			buf.Write(b)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			buf.WriteString(strconv.FormatUint(v.Uint(), 10))
		default:
			buf.WriteString(strconv.FormatInt(v.Int(), 10))
		}
		return nil

	case schema.String:
		b, err := jsoncodec.Marshal(v.String())
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil

	case schema.Bytes:
		b, err := jsoncodec.Marshal(base64.StdEncoding.EncodeToString(v.Bytes()))
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil

	case schema.Enum:
		es := t.EnumSchema()
		var raw int64
		if isUnsigned(v.Kind()) {
			raw = int64(v.Uint())
		} else {
			raw = v.Int()
		}
		tag, ok := es.TagOf(raw)
		if !ok {
			return fmt.Errorf("marshal: %s: value %d is outside enum %s", path, raw, es.Name)
		}
		b, err := jsoncodec.Marshal(tag)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil

	case schema.Optional:
		if v.IsNil() {
			buf.WriteString("null")
			return nil
		}
		return encodeValue(buf, v.Elem(), t.Elem, path)

	case schema.List:
		buf.WriteByte('[')
		for i := 0; i < v.Len(); i++ {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, v.Index(i), t.Elem, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	case schema.Struct:
		ss := t.StructSchema()
		buf.WriteByte('{')
		for i := range ss.Fields {
			f := &ss.Fields[i]
			if i > 0 {
				buf.WriteByte(',')
			}
			name, err := jsoncodec.Marshal(f.Name)
			if err != nil {
				return err
			}
			buf.Write(name)
			buf.WriteByte(':')
			fv := v.FieldByIndex(f.Index())
			if err := encodeValue(buf, fv, f.Type, path+"."+f.Name); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	default:
		return fmt.Errorf("marshal: %s: cannot encode %s", path, t.Kind)
	}
}

// Decode parses interchange JSON against t and materialises a Go value of
// t's backing type. Non-conforming interchange fails with TypeMismatchError
// or UnknownEnumValueError; it never half-applies.
func Decode(data []byte, t *schema.TypeRef, opts Options) (reflect.Value, error) {
	// Numbers stay as json.Number tokens; sending every number through
	// float64 would silently corrupt integers past 2^53.
	var raw any
	if err := jsoncodec.UnmarshalUseNumber(data, &raw); err != nil {
		return reflect.Value{}, &TypeMismatchError{Path: "$", Expected: t.String(), Got: "malformed JSON"}
	}
	return decodeValue(raw, t, "$", opts)
}

func decodeValue(raw any, t *schema.TypeRef, path string, opts Options) (reflect.Value, error) {
	switch t.Kind {
	case schema.Bool:
		b, ok := raw.(bool)
		if !ok {
			return reflect.Value{}, mismatch(path, t, raw)
		}
		out := reflect.New(t.GoType()).Elem()
		out.SetBool(b)
		return out, nil

	case schema.Number:
		n, ok := raw.(json.Number)
		if !ok {
			return reflect.Value{}, mismatch(path, t, raw)
		}
		return decodeNumber(n, t, path)

	case schema.String:
		s, ok := raw.(string)
		if !ok {
			return reflect.Value{}, mismatch(path, t, raw)
		}
		out := reflect.New(t.GoType()).Elem()
		out.SetString(s)
		return out, nil

	case schema.Bytes:
		s, ok := raw.(string)
		if !ok {
			return reflect.Value{}, mismatch(path, t, raw)
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return reflect.Value{}, &TypeMismatchError{Path: path, Expected: "bytes", Got: "non-base64 string"}
		}
		out := reflect.New(t.GoType()).Elem()
		out.SetBytes(decoded)
		return out, nil

	case schema.Enum:
		s, ok := raw.(string)
		if !ok {
			return reflect.Value{}, mismatch(path, t, raw)
		}
		es := t.EnumSchema()
		value, known := es.ValueOf(s)
		if !known {
			return reflect.Value{}, &UnknownEnumValueError{Enum: es.Name, Tag: s, Path: path}
		}
		out := reflect.New(t.GoType()).Elem()
		if isUnsigned(out.Kind()) {
			out.SetUint(uint64(value))
		} else {
			out.SetInt(value)
		}
		return out, nil

	case schema.Optional:
		if raw == nil {
			return reflect.Zero(t.GoType()), nil
		}
		elem, err := decodeValue(raw, t.Elem, path, opts)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(t.Elem.GoType())
		out.Elem().Set(elem)
		return out, nil

	case schema.List:
		items, ok := raw.([]any)
		if !ok {
			return reflect.Value{}, mismatch(path, t, raw)
		}
		out := reflect.MakeSlice(t.GoType(), len(items), len(items))
		for i, item := range items {
			ev, err := decodeValue(item, t.Elem, fmt.Sprintf("%s[%d]", path, i), opts)
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(ev)
		}
		return out, nil

	case schema.Struct:
		return decodeStruct(raw, t, path, opts)

	default:
		return reflect.Value{}, mismatch(path, t, raw)
	}
}

func decodeStruct(raw any, t *schema.TypeRef, path string, opts Options) (reflect.Value, error) {
	if s, isText := raw.(string); isText && opts.TextStructs {
		var inner any
		if err := jsoncodec.UnmarshalUseNumber([]byte(s), &inner); err != nil {
			return reflect.Value{}, &TypeMismatchError{Path: path, Expected: t.Name, Got: "unparseable text"}
		}
		raw = inner
	}

	fields, ok := raw.(map[string]any)
	if !ok {
		return reflect.Value{}, mismatch(path, t, raw)
	}

	ss := t.StructSchema()
	out := reflect.New(ss.GoType()).Elem()
	for i := range ss.Fields {
		f := &ss.Fields[i]
		fieldPath := path + "." + f.Name
		rawField, present := fields[f.Name]
		if !present || rawField == nil {
			if f.Type.Kind == schema.Optional {
				// Absence decodes to the explicit unset state, not an error
				// and not a zero value posing as present.
				continue
			}
			if !present {
				return reflect.Value{}, &TypeMismatchError{Path: fieldPath, Expected: f.Type.String(), Got: "missing field"}
			}
			return reflect.Value{}, &TypeMismatchError{Path: fieldPath, Expected: f.Type.String(), Got: "null"}
		}
		fv, err := decodeValue(rawField, f.Type, fieldPath, opts)
		if err != nil {
			return reflect.Value{}, err
		}
		out.FieldByIndex(f.Index()).Set(fv)
	}
	return out, nil
}

// decodeNumber materialises a number token from its literal. Integer-backed
// refs parse the token directly so 64-bit values keep full precision;
// fractional or out-of-range literals fail closed.
func decodeNumber(n json.Number, t *schema.TypeRef, path string) (reflect.Value, error) {
	out := reflect.New(t.GoType()).Elem()
	switch out.Kind() {
	case reflect.Float32, reflect.Float64:
		f, err := n.Float64()
		if err != nil {
			return reflect.Value{}, &TypeMismatchError{Path: path, Expected: "number", Got: n.String()}
		}
		out.SetFloat(f)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(n.String(), 10, 64)
		if err != nil || out.OverflowUint(u) {
			return reflect.Value{}, &TypeMismatchError{Path: path, Expected: "unsigned integer", Got: n.String()}
		}
		out.SetUint(u)
	default:
		i, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil || out.OverflowInt(i) {
			return reflect.Value{}, &TypeMismatchError{Path: path, Expected: "integer", Got: n.String()}
		}
		out.SetInt(i)
	}
	return out, nil
}

func mismatch(path string, t *schema.TypeRef, raw any) *TypeMismatchError {
	return &TypeMismatchError{Path: path, Expected: t.String(), Got: jsonTypeName(raw)}
}

func jsonTypeName(raw any) string {
	switch raw.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case json.Number, float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", raw)
	}
}

func isUnsigned(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}
