package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func TestClientHelloRoundTrip(t *testing.T) {
	msg := ClientHello{
		ProtocolVersion: 1,
		ClientID:        strptr("peer-1"),
		ClientName:      "ada",
		SessionToken:    nil,
	}
	buf, err := EncodeClient(msg)
	require.NoError(t, err)

	decoded, err := DecodeClient(buf)
	require.NoError(t, err)
	require.Equal(t, msg, decoded)
}

func TestClientCursorUpdateRoundTripWithSelection(t *testing.T) {
	msg := ClientCursorUpdate{
		ProjectID:    "proj-1",
		FilePath:     "src/main.go",
		Line:         4,
		Column:       12,
		SelectionEnd: &Position{Line: 4, Column: 20},
	}
	buf, err := EncodeClient(msg)
	require.NoError(t, err)

	decoded, err := DecodeClient(buf)
	require.NoError(t, err)
	require.Equal(t, msg, decoded)
}

func TestClientCursorUpdateRoundTripNoSelection(t *testing.T) {
	msg := ClientCursorUpdate{ProjectID: "proj-1", FilePath: "a.go", Line: 0, Column: 0}
	buf, err := EncodeClient(msg)
	require.NoError(t, err)

	decoded, err := DecodeClient(buf)
	require.NoError(t, err)
	require.Equal(t, msg, decoded)
	require.Nil(t, decoded.(ClientCursorUpdate).SelectionEnd)
}

func TestClientSyncMessageRoundTrip(t *testing.T) {
	msg := ClientSyncMessage{ProjectID: "proj-1", SyncData: []byte{0x01, 0x02, 0x03}}
	buf, err := EncodeClient(msg)
	require.NoError(t, err)

	decoded, err := DecodeClient(buf)
	require.NoError(t, err)
	require.Equal(t, msg, decoded)
}

func TestClientPingRoundTrip(t *testing.T) {
	msg := ClientPing{Timestamp: 1234567890}
	buf, err := EncodeClient(msg)
	require.NoError(t, err)

	decoded, err := DecodeClient(buf)
	require.NoError(t, err)
	require.Equal(t, msg, decoded)
}

func TestServerWelcomeRoundTrip(t *testing.T) {
	msg := ServerWelcome{
		ProtocolVersion: 1,
		PeerID:          "peer-1",
		Color:           "#ff0000",
		SessionToken:    "tok-abc",
		ServerTime:      1700000000,
	}
	buf, err := EncodeServer(msg)
	require.NoError(t, err)

	decoded, err := DecodeServer(buf)
	require.NoError(t, err)
	require.Equal(t, msg, decoded)
}

func TestServerErrorRoundTrip(t *testing.T) {
	msg := ServerError{Code: ErrorProjectNotFound, Message: "no such project", ProjectID: strptr("proj-1")}
	buf, err := EncodeServer(msg)
	require.NoError(t, err)

	decoded, err := DecodeServer(buf)
	require.NoError(t, err)
	require.Equal(t, msg, decoded)
}

func TestServerProjectJoinedRoundTripWithPeersAndState(t *testing.T) {
	msg := ServerProjectJoined{
		ProjectID: "proj-1",
		Peers: []PeerInfo{
			{PeerID: "p1", Name: "ada", Color: "#fff", Status: StatusActive, ActiveFile: strptr("a.go"), JoinedAt: 1},
			{PeerID: "p2", Name: "grace", Color: "#000", Status: StatusIdle, JoinedAt: 2},
		},
		DocumentState: []byte{0xde, 0xad, 0xbe, 0xef},
	}
	buf, err := EncodeServer(msg)
	require.NoError(t, err)

	decoded, err := DecodeServer(buf)
	require.NoError(t, err)
	require.Equal(t, msg, decoded)
}

func TestServerProjectJoinedRoundTripNoState(t *testing.T) {
	msg := ServerProjectJoined{ProjectID: "proj-1", Peers: nil, DocumentState: nil}
	buf, err := EncodeServer(msg)
	require.NoError(t, err)

	decoded, err := DecodeServer(buf)
	require.NoError(t, err)
	require.Equal(t, "proj-1", decoded.(ServerProjectJoined).ProjectID)
	require.Nil(t, decoded.(ServerProjectJoined).DocumentState)
}

func TestServerChatHistoryRoundTrip(t *testing.T) {
	msg := ServerChatHistory{
		ProjectID: "proj-1",
		Messages: []ChatHistoryItem{
			{PeerID: "p1", PeerName: "ada", Content: "hi", Timestamp: 1},
			{PeerID: "p2", PeerName: "grace", Content: "hello", Timestamp: 2},
		},
	}
	buf, err := EncodeServer(msg)
	require.NoError(t, err)

	decoded, err := DecodeServer(buf)
	require.NoError(t, err)
	require.Equal(t, msg, decoded)
}

func TestServerStatsRoundTrip(t *testing.T) {
	msg := ServerStats{ActiveProjects: 3, ActivePeers: 12, UptimeSeconds: 86400}
	buf, err := EncodeServer(msg)
	require.NoError(t, err)

	decoded, err := DecodeServer(buf)
	require.NoError(t, err)
	require.Equal(t, msg, decoded)
}

func TestDecodeClientUnknownTag(t *testing.T) {
	e := newEncoder()
	e.u32(0xff)
	_, err := DecodeClient(e.Bytes())
	require.ErrorIs(t, err, ErrInvalidMessage)
}

func TestDecodeClientTrailingBytes(t *testing.T) {
	buf, err := EncodeClient(ClientPing{Timestamp: 1})
	require.NoError(t, err)
	buf = append(buf, 0xff)

	_, err = DecodeClient(buf)
	require.Error(t, err)
}

func TestFrameAndMessageRoundTripViaIO(t *testing.T) {
	msg := ClientJoinProject{ProjectID: "proj-1", RequestState: true}
	framed, err := FrameClient(msg)
	require.NoError(t, err)

	decoded, err := ReadClientMessage(bytes.NewReader(framed))
	require.NoError(t, err)
	require.Equal(t, msg, decoded)
}

func TestFrameAndServerMessageRoundTripViaIO(t *testing.T) {
	msg := ServerPong{Timestamp: 42, ServerTime: 1700000000}
	framed, err := FrameServer(msg)
	require.NoError(t, err)

	decoded, err := ReadServerMessage(bytes.NewReader(framed))
	require.NoError(t, err)
	require.Equal(t, msg, decoded)
}
