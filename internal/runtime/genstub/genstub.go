// Package genstub renders a schema snapshot into a frontend ES module. The
// output is a pure function of the snapshot: same schema in, byte-identical
// source out, so build pipelines can diff and cache it.
package genstub

import (
	"fmt"
	"strings"

	"github.com/glasswing/glasswing/internal/runtime/schema"
)

// RuntimeGlobal is the property on globalThis the generated module expects
// the host to have attached before import: an object with a call(service,
// method, args) function returning a promise, and subscribe/unsubscribe/emit
// for events.
const RuntimeGlobal = "glasswing"

// Generate renders the complete stub module for a schema snapshot: one
// frozen object per enum, one class per struct, one frozen object of async
// methods per service.
func Generate(s *schema.Schema) (string, error) {
	g := &generator{
		names:        make(map[string]string),
		serviceNames: make(map[string]string),
	}
	if err := g.assignNames(s); err != nil {
		return "", err
	}

	var b strings.Builder
	g.writeHeader(&b)
	for _, e := range s.Enums {
		g.writeEnum(&b, e)
	}
	for _, st := range s.Structs {
		g.writeStruct(&b, st)
	}
	for _, svc := range s.Services {
		g.writeService(&b, svc)
	}
	return b.String(), nil
}

type generator struct {
	// names maps a fully-qualified schema type name to its exported
	// JavaScript identifier; serviceNames does the same for services. Both
	// draw from one identifier namespace since every entry becomes a
	// module-level export.
	names        map[string]string
	serviceNames map[string]string
}

// assignNames gives every struct, enum, and service a JavaScript
// identifier. The short name wins; when two declarations sanitise to the
// same identifier, the later one falls back to the underscore-joined
// qualified name.
func (g *generator) assignNames(s *schema.Schema) error {
	taken := make(map[string]bool)
	claim := func(qualified string, into map[string]string) error {
		name := identifier(shortName(qualified))
		if taken[name] {
			name = identifier(qualified)
		}
		if taken[name] {
			return fmt.Errorf("genstub: cannot derive a unique identifier for %q", qualified)
		}
		taken[name] = true
		into[qualified] = name
		return nil
	}
	for _, e := range s.Enums {
		if err := claim(e.Name, g.names); err != nil {
			return err
		}
	}
	for _, st := range s.Structs {
		if err := claim(st.Name, g.names); err != nil {
			return err
		}
	}
	for _, svc := range s.Services {
		if err := claim(svc.Name, g.serviceNames); err != nil {
			return err
		}
	}
	return nil
}

func (g *generator) writeHeader(b *strings.Builder) {
	b.WriteString("// Code generated by glasswing. DO NOT EDIT.\n\n")
	fmt.Fprintf(b, "const runtime = globalThis.%s;\n", RuntimeGlobal)
	b.WriteString("if (!runtime || typeof runtime.call !== \"function\") {\n")
	fmt.Fprintf(b, "  throw new Error(\"%s runtime is not attached\");\n", RuntimeGlobal)
	b.WriteString("}\n\n")
	b.WriteString("export function subscribe(name, handler) {\n")
	b.WriteString("  return runtime.subscribe(name, handler);\n")
	b.WriteString("}\n\n")
	b.WriteString("export function unsubscribe(id) {\n")
	b.WriteString("  runtime.unsubscribe(id);\n")
	b.WriteString("}\n\n")
	b.WriteString("export function emit(name, payload) {\n")
	b.WriteString("  runtime.emit(name, payload);\n")
	b.WriteString("}\n\n")
}

// writeEnum renders an enum as a frozen tag table. Wire values are the tags,
// so the table maps each tag to itself.
func (g *generator) writeEnum(b *strings.Builder, e *schema.EnumSchema) {
	fmt.Fprintf(b, "export const %s = Object.freeze({\n", g.names[e.Name])
	for _, v := range e.Values {
		fmt.Fprintf(b, "  %s: %s,\n", jsString(v.Tag), jsString(v.Tag))
	}
	b.WriteString("});\n\n")
}

func (g *generator) writeStruct(b *strings.Builder, st *schema.StructSchema) {
	name := g.names[st.Name]
	fmt.Fprintf(b, "export class %s {\n", name)
	b.WriteString("  constructor(source = {}) {\n")
	for _, f := range st.Fields {
		src := fmt.Sprintf("source[%s]", jsString(f.Name))
		fmt.Fprintf(b, "    this[%s] = %s;\n", jsString(f.Name), g.hydrateExpr(f.Type, src))
	}
	b.WriteString("  }\n\n")
	b.WriteString("  static createFrom(source) {\n")
	b.WriteString("    if (source == null) {\n")
	b.WriteString("      return null;\n")
	b.WriteString("    }\n")
	b.WriteString("    if (typeof source === \"string\") {\n")
	b.WriteString("      source = JSON.parse(source);\n")
	b.WriteString("    }\n")
	fmt.Fprintf(b, "    return new %s(source);\n", name)
	b.WriteString("  }\n")
	b.WriteString("}\n\n")
}

// hydrateExpr produces the expression that turns a decoded JSON value into
// the field's runtime shape: struct fields become class instances, lists map
// their elements, everything else passes through. Nullish values always pass
// through untouched, which is what makes optional fields work.
func (g *generator) hydrateExpr(t *schema.TypeRef, src string) string {
	switch t.Kind {
	case schema.Struct:
		return fmt.Sprintf("%s.createFrom(%s)", g.names[t.Name], src)
	case schema.Optional:
		return g.hydrateExpr(t.Elem, src)
	case schema.List:
		if !needsHydration(t.Elem) {
			return src
		}
		elem := g.hydrateExpr(t.Elem, "item")
		return fmt.Sprintf("Array.isArray(%s) ? %s.map((item) => %s) : %s", src, src, elem, src)
	default:
		return src
	}
}

func needsHydration(t *schema.TypeRef) bool {
	switch t.Kind {
	case schema.Struct:
		return true
	case schema.Optional, schema.List:
		return needsHydration(t.Elem)
	default:
		return false
	}
}

// writeService renders a frozen object of async methods. Method names are
// lower-camel in JavaScript but the wire keeps the backend's own spelling.
// Struct results are hydrated into their generated classes before return.
func (g *generator) writeService(b *strings.Builder, svc *schema.Service) {
	fmt.Fprintf(b, "export const %s = Object.freeze({\n", g.serviceNames[svc.Name])
	for _, m := range svc.Methods {
		params := paramList(len(m.Params))
		fmt.Fprintf(b, "  async %s(%s) {\n", lowerFirst(m.Name), strings.Join(params, ", "))
		call := fmt.Sprintf("runtime.call(%s, %s, [%s])",
			jsString(svc.Name), jsString(m.Name), strings.Join(params, ", "))
		switch {
		case m.Result == nil:
			fmt.Fprintf(b, "    await %s;\n", call)
		case needsHydration(m.Result):
			fmt.Fprintf(b, "    const result = await %s;\n", call)
			fmt.Fprintf(b, "    return %s;\n", g.hydrateExpr(m.Result, "result"))
		default:
			fmt.Fprintf(b, "    return %s;\n", call)
		}
		b.WriteString("  },\n")
	}
	b.WriteString("});\n\n")
}

func paramList(n int) []string {
	params := make([]string, n)
	for i := range params {
		params[i] = fmt.Sprintf("arg%d", i)
	}
	return params
}

func shortName(qualified string) string {
	if idx := strings.LastIndexByte(qualified, '.'); idx >= 0 {
		return qualified[idx+1:]
	}
	return qualified
}

// identifier sanitises a schema name into a JavaScript identifier.
func identifier(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9' && i > 0:
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

func lowerFirst(name string) string {
	if name == "" {
		return name
	}
	if name[0] >= 'A' && name[0] <= 'Z' {
		return string(name[0]+'a'-'A') + name[1:]
	}
	return name
}

// jsString renders a double-quoted JavaScript string literal.
func jsString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
