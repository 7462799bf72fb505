// Package codec defines the serialization contract stores use to persist
// job inputs and outputs, with JSON and msgpack implementations.
//
// Stores encode values with a Codec on write and hand them back as [Raw]
// on read, so the concrete type is only recovered where it is known: inside
// the typed handler wrapper built by job.New.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec serializes values to bytes and back.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Raw is an undecoded payload read back from a store.
type Raw struct {
	Codec Codec
	Data  []byte
}

// Decode unmarshals the payload into v with the codec that produced it.
func (r Raw) Decode(v any) error {
	c := r.Codec
	if c == nil {
		c = JSON{}
	}
	return c.Unmarshal(r.Data, v)
}

// MarshalJSON lets a Raw produced by the JSON codec be re-emitted verbatim
// in API responses. Other codecs are decoded to a generic value first.
func (r Raw) MarshalJSON() ([]byte, error) {
	if len(r.Data) == 0 {
		return []byte("null"), nil
	}
	if r.Codec == nil || r.Codec.Name() == "json" {
		return r.Data, nil
	}
	var v any
	if err := r.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// JSON is the default codec.
type JSON struct{}

func (JSON) Name() string                       { return "json" }
func (JSON) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Msgpack is a compact binary codec.
type Msgpack struct{}

func (Msgpack) Name() string                       { return "msgpack" }
func (Msgpack) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (Msgpack) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

// ByName returns the codec registered under name.
func ByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON{}, nil
	case "msgpack":
		return Msgpack{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}

// Encode marshals v with c, passing through values that are already
// encoded. A nil value encodes to nil.
func Encode(c Codec, v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case Raw:
		if t.Codec != nil && c != nil && t.Codec.Name() == c.Name() {
			return t.Data, nil
		}
		var decoded any
		if err := t.Decode(&decoded); err != nil {
			return nil, err
		}
		v = decoded
	case json.RawMessage:
		if c == nil || c.Name() == "json" {
			return t, nil
		}
		var decoded any
		if err := json.Unmarshal(t, &decoded); err != nil {
			return nil, err
		}
		v = decoded
	}
	if c == nil {
		c = JSON{}
	}
	return c.Marshal(v)
}

// Wrap returns data as a Raw for c, or nil when data is empty.
func Wrap(c Codec, data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return Raw{Codec: c, Data: data}
}
