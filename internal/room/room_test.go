package room

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/automerge/automerge-go"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/codecollab/internal/document"
	"github.com/astromechza/codecollab/internal/presence"
	"github.com/astromechza/codecollab/internal/store"
	"github.com/astromechza/codecollab/internal/wire"
)

func newTestRoom(t *testing.T) *Room {
	t.Helper()
	doc, err := document.New("demo", "owner-1")
	require.NoError(t, err)
	r := New("proj-1", doc, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go r.Run(ctx)
	return r
}

func TestJoinAndLeave(t *testing.T) {
	r := newTestRoom(t)

	peers, _, outbox, err := r.Join("p1", "ada", "#fff", false)
	require.NoError(t, err)
	require.Empty(t, peers)
	require.NotNil(t, outbox.Messages())
	require.Equal(t, 1, r.PeerCount())

	peers2, docState, _, err := r.Join("p2", "grace", "#000", true)
	require.NoError(t, err)
	require.Len(t, peers2, 1)
	require.NotEmpty(t, docState)
	require.Equal(t, 2, r.PeerCount())

	r.Leave("p1", nil)
	require.Equal(t, 1, r.PeerCount())
}

func TestJoinRejectsDuplicatePeer(t *testing.T) {
	r := newTestRoom(t)
	_, _, _, err := r.Join("p1", "ada", "#fff", false)
	require.NoError(t, err)

	_, _, _, err = r.Join("p1", "ada", "#fff", false)
	require.ErrorIs(t, err, ErrAlreadyJoined)
}

func TestJoinBroadcastsPeerJoinedToExistingPeers(t *testing.T) {
	r := newTestRoom(t)
	_, _, outbox1, err := r.Join("p1", "ada", "#fff", false)
	require.NoError(t, err)

	_, _, _, err = r.Join("p2", "grace", "#000", false)
	require.NoError(t, err)

	select {
	case framed := <-outbox1.Messages():
		msg, err := wire.ReadServerMessage(bytes.NewReader(framed))
		require.NoError(t, err)
		joined, ok := msg.(wire.ServerPeerJoined)
		require.True(t, ok)
		require.Equal(t, "p2", joined.Peer.PeerID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestOpenFileReturnsContentOrNotFound(t *testing.T) {
	r := newTestRoom(t)
	doc := r.Document()
	_, err := doc.CreateFile(document.RootNodeID, "a.go")
	require.NoError(t, err)

	msg := r.OpenFile("p1", "a.go")
	content, ok := msg.(wire.ServerFileContent)
	require.True(t, ok)
	require.Equal(t, "a.go", content.FilePath)

	notFound := r.OpenFile("p1", "missing.go")
	_, ok = notFound.(wire.ServerFileNotFound)
	require.True(t, ok)
}

func TestUpdateCursorBroadcasts(t *testing.T) {
	r := newTestRoom(t)
	_, _, outbox1, err := r.Join("p1", "ada", "#fff", false)
	require.NoError(t, err)
	_, _, _, err = r.Join("p2", "grace", "#000", false)
	require.NoError(t, err)

	// drain the PeerJoined broadcast from p2 joining
	<-outbox1.Messages()

	r.UpdateCursor("p2", "a.go", 1, 2, nil)

	select {
	case framed := <-outbox1.Messages():
		msg, err := wire.ReadServerMessage(bytes.NewReader(framed))
		require.NoError(t, err)
		cb, ok := msg.(wire.ServerCursorBroadcast)
		require.True(t, ok)
		require.Equal(t, "p2", cb.PeerID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cursor broadcast")
	}
}

func TestReceiveSyncPersistsBeforeBroadcast(t *testing.T) {
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "test.sqlite3")})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	doc, err := st.CreateProject(context.Background(), "proj-1", "demo", "owner-1")
	require.NoError(t, err)

	r := New("proj-1", doc, st, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go r.Run(ctx)

	_, docState, _, err := r.Join("p1", "ada", "#fff", true)
	require.NoError(t, err)

	// Simulate a client holding its own independent replica, forked from
	// the snapshot handed out at join time.
	clientDoc, err := document.Load(docState)
	require.NoError(t, err)
	clientSync := automerge.NewSyncState(clientDoc.Automerge())

	_, err = clientDoc.CreateFile(document.RootNodeID, "new.go")
	require.NoError(t, err)

	// Drive the anti-entropy handshake to completion: automerge's sync
	// protocol may need a probe round trip before the actual change bytes
	// are sent, so keep exchanging messages until the client has nothing
	// left to send.
	for i := 0; i < 10; i++ {
		clientMsg, hasMsg := clientSync.GenerateMessage()
		if !hasMsg {
			break
		}
		outgoing, recvErr := r.ReceiveSync("p1", clientMsg.Bytes())
		require.NoError(t, recvErr)
		for _, data := range outgoing {
			_, recvErr := clientSync.ReceiveMessage(data)
			require.NoError(t, recvErr)
		}
	}

	loaded, err := st.LoadDocument(context.Background(), "proj-1")
	require.NoError(t, err)
	nodes, err := loaded.GetAllNodes()
	require.NoError(t, err)
	var found bool
	for _, n := range nodes {
		if n.Path == "new.go" {
			found = true
		}
	}
	require.True(t, found, "expected new.go to be durably persisted by ReceiveSync")
}

func TestSweepDisconnectsStalePeers(t *testing.T) {
	r := newTestRoom(t)
	_, _, _, err := r.Join("p1", "ada", "#fff", false)
	require.NoError(t, err)

	stale := r.Sweep(time.Now().Add(SessionTimeout + time.Second))
	require.Contains(t, stale, "p1")
	require.Equal(t, 0, r.PeerCount())
}

func TestSweepBroadcastsAutomaticPresenceTransitions(t *testing.T) {
	r := newTestRoom(t)
	_, _, outbox1, err := r.Join("p1", "ada", "#fff", false)
	require.NoError(t, err)
	_, _, _, err = r.Join("p2", "grace", "#000", false)
	require.NoError(t, err)

	// drain the PeerJoined broadcast from p2 joining
	<-outbox1.Messages()

	r.Sweep(time.Now().Add(presence.IdleTimeout + time.Second))

	select {
	case framed := <-outbox1.Messages():
		msg, err := wire.ReadServerMessage(bytes.NewReader(framed))
		require.NoError(t, err)
		pb, ok := msg.(wire.ServerPresenceBroadcast)
		require.True(t, ok)
		require.Equal(t, wire.StatusIdle, pb.Status)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for presence broadcast")
	}
}
