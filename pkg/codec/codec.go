// Package codec encodes saga data, saga records and command payloads.
package codec

import (
	"encoding/json"
	"errors"
)

// ErrNilTarget is returned when Unmarshal is given nowhere to write.
var ErrNilTarget = errors.New("codec: nil target")

// JSON is the codec used when none is configured.
var JSON Codec = jsonCodec{}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal leaves out at its zero value when b is empty, so events without a
// payload and instances without data decode cleanly.
func (jsonCodec) Unmarshal(b []byte, out any) error {
	if out == nil {
		return ErrNilTarget
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, out)
}

// Codec turns values into bytes and back. Implementations must be safe for
// concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(b []byte, out any) error
}
