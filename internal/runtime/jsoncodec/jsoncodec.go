// Package jsoncodec centralises the interchange encoding. Everything that
// crosses the bridge goes through sonic in std-compatible mode so encoding
// behaviour stays identical to encoding/json while decode stays fast enough
// for chatty frontends.
package jsoncodec

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/bytedance/sonic"
)

var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

// MarshalRaw marshals v into a RawMessage suitable for embedding in an
// envelope without a second encoding pass.
func MarshalRaw(v any) (json.RawMessage, error) {
	b, err := defaultConfig.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

// UnmarshalUseNumber decodes like Unmarshal but leaves JSON numbers as
// json.Number, so integer values wider than float64's 53-bit mantissa reach
// the caller intact.
func UnmarshalUseNumber(data []byte, v any) error {
	dec := defaultConfig.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func Encode(w io.Writer, v any) error {
	enc := defaultConfig.NewEncoder(w)
	return enc.Encode(v)
}

func Decode(r io.Reader, v any) error {
	dec := defaultConfig.NewDecoder(r)
	return dec.Decode(v)
}
