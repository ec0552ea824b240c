package jsoncodec

import (
	"bytes"
	"strings"
	"testing"
)

type sample struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Tags  []string `json:"tags,omitempty"`
}

func TestMarshalMatchesStdShape(t *testing.T) {
	b, err := Marshal(sample{Name: "ada", Count: 2})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != `{"name":"ada","count":2}` {
		t.Fatalf("Marshal = %s", b)
	}
}

func TestMarshalEscapesHTMLLikeStd(t *testing.T) {
	b, err := Marshal(sample{Name: "<b>"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(b), `<b>`) {
		t.Fatalf("expected std-compatible HTML escaping, got %s", b)
	}
}

func TestMarshalRawEmbedsWithoutReencoding(t *testing.T) {
	raw, err := MarshalRaw(map[string]int{"n": 1})
	if err != nil {
		t.Fatalf("MarshalRaw: %v", err)
	}

	wrapped, err := Marshal(struct {
		Payload any `json:"payload"`
	}{Payload: raw})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(wrapped) != `{"payload":{"n":1}}` {
		t.Fatalf("wrapped = %s", wrapped)
	}
}

func TestUnmarshalRoundTrip(t *testing.T) {
	in := sample{Name: "ada", Count: 3, Tags: []string{"a", "b"}}
	b, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out sample
	if err := Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Name != in.Name || out.Count != in.Count || len(out.Tags) != 2 {
		t.Fatalf("round trip = %+v", out)
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	var out sample
	if err := Unmarshal([]byte("{nope"), &out); err == nil {
		t.Fatalf("garbage accepted")
	}
}

func TestEncodeDecodeStream(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, sample{Name: "stream"}); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var out sample
	if err := Decode(&buf, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Name != "stream" {
		t.Fatalf("out = %+v", out)
	}
}

func TestMarshalIndent(t *testing.T) {
	b, err := MarshalIndent(sample{Name: "ada"}, "", "  ")
	if err != nil {
		t.Fatalf("MarshalIndent: %v", err)
	}
	if !strings.Contains(string(b), "\n  \"name\": \"ada\"") {
		t.Fatalf("MarshalIndent = %s", b)
	}
}
