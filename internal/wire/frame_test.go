package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	payload := []byte("hello world")
	buf, err := Encode(TagPing, payload)
	require.NoError(t, err)
	require.Equal(t, ProtocolVersion, buf[0])
	require.Equal(t, TagPing, buf[1])

	frame, err := DecodeStream(bytes.NewReader(buf))
	require.NoError(t, err)
	require.Equal(t, TagPing, frame.MsgType)
	require.Equal(t, payload, frame.Payload)
}

func TestFrameEmptyPayload(t *testing.T) {
	buf, err := Encode(TagSyncComplete, nil)
	require.NoError(t, err)

	frame, err := DecodeStream(bytes.NewReader(buf))
	require.NoError(t, err)
	require.Equal(t, 0, len(frame.Payload))
}

func TestFrameVersionMismatch(t *testing.T) {
	buf, err := Encode(TagPing, []byte("x"))
	require.NoError(t, err)
	buf[0] = ProtocolVersion + 1

	_, err = DecodeStream(bytes.NewReader(buf))
	require.ErrorIs(t, err, ErrVersionMismatch)
}

func TestFrameOversizePayloadRejected(t *testing.T) {
	_, err := Encode(TagPing, make([]byte, MaxPayload+1))
	require.ErrorIs(t, err, ErrInvalidMessage)
}

func TestFrameTruncatedHeader(t *testing.T) {
	_, err := DecodeStream(bytes.NewReader([]byte{ProtocolVersion, TagPing}))
	require.Error(t, err)
}

func TestFrameTruncatedPayload(t *testing.T) {
	buf, err := Encode(TagPing, []byte("hello"))
	require.NoError(t, err)

	_, err = DecodeStream(bytes.NewReader(buf[:len(buf)-2]))
	require.Error(t, err)
}
