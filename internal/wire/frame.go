// Package wire implements the length-prefixed binary frame and tagged-union
// message codecs described by the sync protocol.
package wire

import (
	"io"

	"github.com/pkg/errors"
)

// ProtocolVersion is the only frame version this codec accepts.
const ProtocolVersion uint8 = 1

// MaxPayload is the largest payload a frame may carry: 16MiB minus the 5 byte header.
const MaxPayload = 16*1024*1024 - 5

const frameHeaderLen = 5

// ErrVersionMismatch is returned when a frame's version byte is not ProtocolVersion.
var ErrVersionMismatch = errors.New("wire: version mismatch")

// ErrInvalidMessage is returned when a frame's payload length is out of
// bounds, and is the wrapped cause of every message-codec decode failure
// (unknown tag, truncated payload, invalid UTF-8, trailing bytes).
var ErrInvalidMessage = errors.New("wire: invalid message")

// Encode frames a payload with the given message type tag.
//
// A payload longer than MaxPayload is rejected with ErrInvalidMessage; the
// message codec does not check the bound itself, so this is where it is
// enforced.
func Encode(msgType uint8, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, errors.Wrapf(ErrInvalidMessage, "payload of %d bytes exceeds max %d", len(payload), MaxPayload)
	}
	buf := make([]byte, frameHeaderLen+len(payload))
	buf[0] = ProtocolVersion
	buf[1] = msgType
	putUint24(buf[2:5], uint32(len(payload)))
	copy(buf[frameHeaderLen:], payload)
	return buf, nil
}

// Frame is one decoded length-prefixed message.
type Frame struct {
	MsgType uint8
	Payload []byte
}

// DecodeStream reads exactly one frame from r.
//
// It always consumes the 5 header bytes before validating them, then reads
// exactly payload_len bytes. A short read on either stage is a fatal error
// for the caller's connection, per the spec: the decoder never resyncs.
func DecodeStream(r io.Reader) (Frame, error) {
	var header [frameHeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, errors.Wrap(err, "wire: read frame header")
	}

	version := header[0]
	if version != ProtocolVersion {
		return Frame{}, errors.Wrapf(ErrVersionMismatch, "got version %d, want %d", version, ProtocolVersion)
	}

	msgType := header[1]
	payloadLen := getUint24(header[2:5])
	if payloadLen > MaxPayload {
		return Frame{}, errors.Wrapf(ErrInvalidMessage, "payload length %d exceeds max %d", payloadLen, MaxPayload)
	}

	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, errors.Wrap(err, "wire: read frame payload")
		}
	}

	return Frame{MsgType: msgType, Payload: payload}, nil
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func getUint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}
