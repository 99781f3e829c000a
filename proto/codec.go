package proto

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is registered with grpc so plain Go structs travel as JSON.
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// Codec returns the JSON codec for explicit server or dial options.
func Codec() encoding.Codec { return jsonCodec{} }
