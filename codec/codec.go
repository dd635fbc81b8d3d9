package codec

import (
	"strings"

	"github.com/pkg/errors"
)

type CodecType byte

const (
	CodecTypeJSON   CodecType = 0
	CodecTypeBinary CodecType = 1
)

var (
	ErrUnknownCodec = errors.New("unknown codec")
	ErrWrongType    = errors.New("codec: value must be *message.Message")
	ErrTruncated    = errors.New("codec: truncated message")
	ErrFieldTooLong = errors.New("codec: field too long")
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType // 0=JSON, 1=Binary
}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeJSON {
		return &JSONCodec{}
	}

	return &BinaryCodec{}
}

func (t CodecType) String() string {
	switch t {
	case CodecTypeJSON:
		return "json"
	case CodecTypeBinary:
		return "binary"
	}
	return "unknown"
}

// Parse maps a configuration name ("json" or "binary") to a codec type.
func Parse(name string) (CodecType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json":
		return CodecTypeJSON, nil
	case "binary", "":
		return CodecTypeBinary, nil
	}
	return 0, errors.Wrapf(ErrUnknownCodec, "%q", name)
}
