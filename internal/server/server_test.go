package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/codecollab/internal/wire"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := Config{Addr: ":0", StoragePath: t.TempDir()}
	s, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.store.Close() })
	return s
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "healthy", body.Status)
	require.Equal(t, ServiceName, body.Service)
}

func TestCreateAndGetProject(t *testing.T) {
	s := newTestServer(t)

	createReq := httptest.NewRequest(http.MethodPost, "/api/projects", strings.NewReader(`{"name":"demo"}`))
	createRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(createRec, createReq)
	require.Equal(t, http.StatusCreated, createRec.Code)

	var created createProjectResponse
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))
	require.Equal(t, "demo", created.Name)
	require.NotEmpty(t, created.ProjectID)

	getReq := httptest.NewRequest(http.MethodGet, "/api/projects/"+created.ProjectID, nil)
	getRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)
}

func TestGetUnknownProjectReturns404(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/projects/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStoragePathIsCreated(t *testing.T) {
	s := newTestServer(t)
	require.FileExists(t, filepath.Join(s.cfg.StoragePath, "collab.sqlite3"))
}

// TestWebsocketVersionMismatchRepliesErrorAndCloses exercises end-to-end
// scenario 6: a client that sends a frame with an unsupported version byte
// gets back an Error{VersionMismatch} frame and the connection closes.
func TestWebsocketVersionMismatchRepliesErrorAndCloses(t *testing.T) {
	s := newTestServer(t)
	httpServer := httptest.NewServer(s.Handler())
	defer httpServer.Close()

	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws/does-not-matter"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	badFrame := []byte{0x02, 0x00, 0x00, 0x00, 0x00}
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, badFrame))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	mt, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, mt)

	frame, err := wire.DecodeStream(bytes.NewReader(payload))
	require.NoError(t, err)
	msg, err := wire.DecodeServer(frame.Payload)
	require.NoError(t, err)
	srvErr, ok := msg.(wire.ServerError)
	require.True(t, ok)
	require.Equal(t, wire.ErrorVersionMismatch, srvErr.Code)

	_, _, err = conn.ReadMessage()
	require.Error(t, err)
}
