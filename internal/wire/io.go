package wire

import "io"

// FrameClient encodes a ClientMessage into a length-prefixed frame ready to
// write to a connection.
func FrameClient(msg ClientMessage) ([]byte, error) {
	payload, err := EncodeClient(msg)
	if err != nil {
		return nil, err
	}
	return Encode(msg.clientTag(), payload)
}

// FrameServer encodes a ServerMessage into a length-prefixed frame ready to
// write to a connection.
func FrameServer(msg ServerMessage) ([]byte, error) {
	payload, err := EncodeServer(msg)
	if err != nil {
		return nil, err
	}
	return Encode(msg.serverTag(), payload)
}

// ReadClientMessage reads and decodes one client frame from r.
func ReadClientMessage(r io.Reader) (ClientMessage, error) {
	frame, err := DecodeStream(r)
	if err != nil {
		return nil, err
	}
	return DecodeClient(frame.Payload)
}

// ReadServerMessage reads and decodes one server frame from r.
func ReadServerMessage(r io.Reader) (ServerMessage, error) {
	frame, err := DecodeStream(r)
	if err != nil {
		return nil, err
	}
	return DecodeServer(frame.Payload)
}
