package protocol

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	header := Header{
		CodecType: CodecTypeJSON,
		MsgType:   MsgTypeRequest,
		Seq:       12345,
	}
	body := []byte("hello world")

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &header, body))
	assert.Equal(t, HeaderSize+len(body), buf.Len())

	decodedHeader, decodedBody, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, header.CodecType, decodedHeader.CodecType)
	assert.Equal(t, header.MsgType, decodedHeader.MsgType)
	assert.Equal(t, header.Seq, decodedHeader.Seq)
	assert.Equal(t, uint32(len(body)), decodedHeader.BodyLen)
	assert.Equal(t, body, decodedBody)
}

func frame(magic [3]byte, version, codec, msgType byte, bodyLen uint32) []byte {
	return []byte{
		magic[0], magic[1], magic[2],
		version, codec, msgType,
		0, 0, 0x30, 0x39,
		byte(bodyLen >> 24), byte(bodyLen >> 16), byte(bodyLen >> 8), byte(bodyLen),
	}
}

var magic = [3]byte{MagicNumber, MagicByte2, MagicByte3}

func TestDecodeRejectsBadHeaders(t *testing.T) {
	cases := []struct {
		name  string
		frame []byte
		want  error
	}{
		{"magic", frame([3]byte{'m', 'r', 'p'}, Version, CodecTypeJSON, byte(MsgTypeRequest), 0), ErrInvalidMagic},
		{"version", frame(magic, 0xFF, CodecTypeJSON, byte(MsgTypeRequest), 0), ErrUnsupportedVersion},
		{"codec", frame(magic, Version, 7, byte(MsgTypeRequest), 0), ErrUnsupportedCodec},
		{"msg type", frame(magic, Version, CodecTypeBinary, 9, 0), ErrUnsupportedMsgType},
		{"body too large", frame(magic, Version, CodecTypeBinary, byte(MsgTypeRequest), DefaultMaxBodyLen+1), ErrBodyTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Decode(bytes.NewReader(tc.frame))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestDecodeWithLimit(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &Header{MsgType: MsgTypeResponse}, make([]byte, 100)))

	_, _, err := DecodeWithLimit(bytes.NewReader(buf.Bytes()), 99)
	assert.ErrorIs(t, err, ErrBodyTooLarge)

	_, body, err := DecodeWithLimit(bytes.NewReader(buf.Bytes()), 100)
	require.NoError(t, err)
	assert.Len(t, body, 100)
}

func TestDecodeEmptyBody(t *testing.T) {
	header := Header{CodecType: CodecTypeJSON, MsgType: MsgTypeHeartbeat, Seq: 12345}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &header, nil))

	decodedHeader, decodedBody, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, MsgTypeHeartbeat, decodedHeader.MsgType)
	assert.Zero(t, decodedHeader.BodyLen)
	assert.Empty(t, decodedBody)
}

func TestDecodeEOF(t *testing.T) {
	_, _, err := Decode(bytes.NewReader(nil))
	assert.Equal(t, io.EOF, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &Header{}, []byte("hello")))
	_, _, err = Decode(bytes.NewReader(buf.Bytes()[:HeaderSize+2]))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDecodeLargeBody(t *testing.T) {
	largeBody := make([]byte, 1024*1024)
	for i := range largeBody {
		largeBody[i] = byte(i % 256)
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &Header{CodecType: CodecTypeBinary, MsgType: MsgTypeRequest, Seq: 999}, largeBody))

	_, decodedBody, err := Decode(&buf)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(decodedBody, largeBody))
}
