package codec

import (
	"encoding/json"

	"github.com/pkg/errors"

	"mini-dap/message"
)

// JSONCodec uses Go's standard library encoding/json for serialization.
// Payload bytes travel base64 encoded; use it for debugging, not bulk data.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	if _, ok := v.(*message.Message); !ok {
		return nil, errors.WithStack(ErrWrongType)
	}
	data, err := json.Marshal(v)
	return data, errors.WithStack(err)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	msg, ok := v.(*message.Message)
	if !ok {
		return errors.WithStack(ErrWrongType)
	}
	*msg = message.Message{}
	return errors.WithStack(json.Unmarshal(data, msg))
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
