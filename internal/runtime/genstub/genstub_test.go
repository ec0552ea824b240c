package genstub

import (
	"strings"
	"testing"

	"github.com/glasswing/glasswing/internal/runtime/schema"
)

type mood int

const (
	moodNeutral mood = iota
	moodHappy
)

type profile struct {
	Name     string
	Mood     mood
	Nickname *string
	Friends  []profile
}

type profiles struct{}

func (profiles) Lookup(name string) (profile, error) { return profile{}, nil }
func (profiles) All() ([]profile, error)             { return nil, nil }
func (profiles) Touch()                              {}
func (profiles) Count() int                          { return 0 }

func buildSchema(t *testing.T) *schema.Schema {
	t.Helper()
	reg := schema.NewRegistry()
	if err := reg.RegisterEnum(moodNeutral, []schema.EnumValue{
		{Value: int64(moodNeutral), Tag: "neutral"},
		{Value: int64(moodHappy), Tag: "happy"},
	}); err != nil {
		t.Fatalf("RegisterEnum: %v", err)
	}
	if err := reg.RegisterStruct(profile{}, []schema.Field{
		{Name: "Name", External: "name"},
		{Name: "Mood", External: "mood"},
		{Name: "Nickname", External: "nickname", Optional: true},
		{Name: "Friends", External: "friends"},
	}); err != nil {
		t.Fatalf("RegisterStruct: %v", err)
	}

	b := schema.NewBuilder(reg)
	if _, err := b.AddService("Profiles", &profiles{}, []string{"Lookup", "All", "Touch", "Count"}); err != nil {
		t.Fatalf("AddService: %v", err)
	}
	return b.Snapshot()
}

func TestGenerateIsDeterministic(t *testing.T) {
	snap := buildSchema(t)
	first, err := Generate(snap)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	second, err := Generate(snap)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if first != second {
		t.Fatalf("two generations of the same schema differ")
	}
}

func TestGeneratedEnum(t *testing.T) {
	source, err := Generate(buildSchema(t))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(source, "export const mood = Object.freeze({") {
		t.Fatalf("enum export missing:\n%s", source)
	}
	if !strings.Contains(source, `"happy": "happy",`) {
		t.Fatalf("enum tag table missing:\n%s", source)
	}
}

func TestGeneratedStructClass(t *testing.T) {
	source, err := Generate(buildSchema(t))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(source, "export class profile {") {
		t.Fatalf("struct class missing:\n%s", source)
	}
	if !strings.Contains(source, "static createFrom(source)") {
		t.Fatalf("createFrom missing:\n%s", source)
	}
	// Self-referencing list field hydrates its elements.
	if !strings.Contains(source, `source["friends"].map((item) => profile.createFrom(item))`) {
		t.Fatalf("nested hydration missing:\n%s", source)
	}
}

func TestGeneratedServiceMethods(t *testing.T) {
	source, err := Generate(buildSchema(t))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(source, "export const Profiles = Object.freeze({") {
		t.Fatalf("service export missing:\n%s", source)
	}
	// Lower-camel locally, backend spelling on the wire.
	if !strings.Contains(source, "async lookup(arg0)") {
		t.Fatalf("method name not lowered:\n%s", source)
	}
	if !strings.Contains(source, `runtime.call("Profiles", "Lookup", [arg0])`) {
		t.Fatalf("wire method name changed:\n%s", source)
	}
	// Struct result hydrates, void method just awaits, plain result returns.
	if !strings.Contains(source, "return profile.createFrom(result)") {
		t.Fatalf("struct result not hydrated:\n%s", source)
	}
	if !strings.Contains(source, `await runtime.call("Profiles", "Touch", [])`) {
		t.Fatalf("void method missing:\n%s", source)
	}
	if !strings.Contains(source, `return runtime.call("Profiles", "Count", [])`) {
		t.Fatalf("plain result method missing:\n%s", source)
	}
}

func TestGeneratedEventHelpers(t *testing.T) {
	source, err := Generate(buildSchema(t))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, helper := range []string{"export function subscribe", "export function unsubscribe", "export function emit"} {
		if !strings.Contains(source, helper) {
			t.Fatalf("%s missing:\n%s", helper, source)
		}
	}
}

func TestNameCollisionFallsBackToQualifiedName(t *testing.T) {
	s := &schema.Schema{
		Enums: []*schema.EnumSchema{
			{Name: "alpha.Status", Values: []schema.EnumValue{{Value: 0, Tag: "ok"}}},
			{Name: "beta.Status", Values: []schema.EnumValue{{Value: 0, Tag: "ok"}}},
		},
	}
	source, err := Generate(s)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(source, "export const Status") {
		t.Fatalf("first claimant lost its short name:\n%s", source)
	}
	if !strings.Contains(source, "export const beta_Status") {
		t.Fatalf("collision fallback missing:\n%s", source)
	}
}

func TestServiceNameCollisionFallsBackToQualifiedName(t *testing.T) {
	s := &schema.Schema{
		Services: []*schema.Service{
			{Name: "Admin"},
			{Name: "ui.Admin"},
		},
	}
	source, err := Generate(s)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(source, "export const Admin = Object.freeze({") {
		t.Fatalf("first claimant lost its short name:\n%s", source)
	}
	if !strings.Contains(source, "export const ui_Admin = Object.freeze({") {
		t.Fatalf("service collision fallback missing:\n%s", source)
	}
}

func TestServiceAndTypeShareOneExportNamespace(t *testing.T) {
	s := &schema.Schema{
		Structs: []*schema.StructSchema{{Name: "app.Device"}},
		Services: []*schema.Service{
			{Name: "Device"},
		},
	}
	// The struct claims "Device"; a service of the same bare name has no
	// qualifier to fall back to, so generation must refuse rather than
	// emit duplicate export declarations.
	if _, err := Generate(s); err == nil {
		t.Fatalf("duplicate export name accepted")
	}
}
