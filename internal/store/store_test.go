package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.sqlite3")
	s, err := Open(Config{Path: dbPath})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndLoadProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc, err := s.CreateProject(ctx, "proj-1", "demo", "owner-1")
	require.NoError(t, err)
	require.NotNil(t, doc)

	exists, err := s.ProjectExists(ctx, "proj-1")
	require.NoError(t, err)
	require.True(t, exists)

	loaded, err := s.LoadDocument(ctx, "proj-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	meta, err := s.GetProjectMeta(ctx, "proj-1")
	require.NoError(t, err)
	require.Equal(t, "demo", meta.Name)
	require.Equal(t, "owner-1", meta.OwnerID)
}

func TestLoadDocumentMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LoadDocument(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaveDocumentPersistsChanges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc, err := s.CreateProject(ctx, "proj-1", "demo", "owner-1")
	require.NoError(t, err)

	_, err = doc.CreateFile("root", "a.go")
	require.NoError(t, err)

	require.NoError(t, s.SaveDocument(ctx, "proj-1", doc))

	reloaded, err := s.LoadDocument(ctx, "proj-1")
	require.NoError(t, err)
	nodes, err := reloaded.GetAllNodes()
	require.NoError(t, err)
	require.Len(t, nodes, 2)
}

func TestListProjects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateProject(ctx, "proj-1", "demo1", "owner-1")
	require.NoError(t, err)
	_, err = s.CreateProject(ctx, "proj-2", "demo2", "owner-1")
	require.NoError(t, err)

	projects, err := s.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 2)
}

func TestChatAppendAndHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateProject(ctx, "proj-1", "demo", "owner-1")
	require.NoError(t, err)

	_, err = s.AppendChatMessage(ctx, "proj-1", "p1", "ada", "hi", 1)
	require.NoError(t, err)
	_, err = s.AppendChatMessage(ctx, "proj-1", "p2", "grace", "hello", 2)
	require.NoError(t, err)

	history, err := s.ChatHistory(ctx, "proj-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "hi", history[0].Content)
	require.Equal(t, "hello", history[1].Content)
}

func TestSessionPutGetAndExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSession(ctx, Session{
		Token: "tok-1", PeerID: "p1", Name: "ada", Color: "#fff",
		ExpiresAt: mustFutureMillis(),
	}))

	sess, err := s.GetSession(ctx, "tok-1")
	require.NoError(t, err)
	require.Equal(t, "p1", sess.PeerID)

	require.NoError(t, s.PutSession(ctx, Session{
		Token: "tok-expired", PeerID: "p2", Name: "grace", Color: "#000",
		ExpiresAt: 1,
	}))
	_, err = s.GetSession(ctx, "tok-expired")
	require.ErrorIs(t, err, ErrNotFound)

	n, err := s.DeleteExpiredSessions(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func mustFutureMillis() int64 {
	return (1 << 62)
}
