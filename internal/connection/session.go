package connection

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/astromechza/codecollab/internal/room"
	"github.com/astromechza/codecollab/internal/store"
	"github.com/astromechza/codecollab/internal/voice"
	"github.com/astromechza/codecollab/internal/wire"
)

// ProtocolVersion is the wire protocol version this server speaks.
const ProtocolVersion uint8 = 1

var peerColors = []string{
	"#e06c75", "#98c379", "#e5c07b", "#61afef", "#c678dd", "#56b6c2", "#d19a66", "#be5046",
}

func randomColor() string {
	return peerColors[rand.Intn(len(peerColors))]
}

// Session drives one connection's protocol state machine: handshake,
// project join/leave, sync relay, and chat/presence/voice fan-out. Exactly
// one Session exists per Conn for its lifetime.
type Session struct {
	conn     *Conn
	registry *room.Registry
	store    *store.Store
	voice    voice.Issuer
	logger   *slog.Logger

	mu         sync.Mutex
	peerID     string
	name       string
	color      string
	projectID  *string
	activeRoom *room.Room
	stopSync   context.CancelFunc

	voiceServerURL string
}

// NewSession constructs a protocol session around an accepted connection.
func NewSession(conn *Conn, registry *room.Registry, st *store.Store, issuer voice.Issuer, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{conn: conn, registry: registry, store: st, voice: issuer, logger: logger}
}

// WithVoiceServerURL records the external media server address reported
// alongside every issued voice token (§6.2 VoiceToken.server_url).
func (sess *Session) WithVoiceServerURL(url string) *Session {
	sess.voiceServerURL = url
	return sess
}

// Run blocks for the lifetime of the connection, driving its read and
// write loops and handling decoded client messages inline on the read loop
// goroutine (mirroring the teacher's single-goroutine-per-side pattern,
// with a second goroutine dedicated to writes).
func (sess *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var writeErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		// Closing the socket once the write loop ends also unblocks a
		// ReadLoop still waiting in ReadMessage (stale timeout, write error).
		defer func() { _ = sess.conn.Close() }()
		writeErr = sess.conn.WriteLoop(ctx)
	}()

	sess.conn.SetState(StateWaitingJoin)
	readErr := sess.conn.ReadLoop(ctx, sess.handle)
	sess.teardown()
	cancel()
	wg.Wait()

	if readErr != nil {
		return readErr
	}
	return writeErr
}

func (sess *Session) send(msg wire.ServerMessage) {
	framed, err := wire.FrameServer(msg)
	if err != nil {
		sess.logger.Error("failed to frame outbound message", "err", err)
		return
	}
	if !sess.conn.Enqueue(framed) {
		sess.logger.Warn("outbound queue full, dropping connection", "peer_id", sess.peerID)
		_ = sess.conn.Close()
	}
}

func (sess *Session) sendError(code wire.ErrorCode, message string, projectID *string) {
	sess.send(wire.ServerError{Code: code, Message: message, ProjectID: projectID})
}

func (sess *Session) handle(msg wire.ClientMessage) error {
	switch m := msg.(type) {
	case wire.ClientHello:
		return sess.handleHello(m)
	case wire.ClientPing:
		sess.send(wire.ServerPong{Timestamp: m.Timestamp, ServerTime: time.Now().UnixMilli()})
		return nil
	}

	if sess.conn.State() != StateJoined && sess.peerID == "" {
		sess.sendError(wire.ErrorUnauthorized, "hello required before any other message", nil)
		return errors.New("connection: message before handshake")
	}

	switch m := msg.(type) {
	case wire.ClientGoodbye:
		return errors.New("connection: client goodbye")
	case wire.ClientJoinProject:
		return sess.handleJoinProject(m)
	case wire.ClientLeaveProject:
		return sess.handleLeaveProject(m)
	case wire.ClientSyncMessage:
		return sess.handleSyncMessage(m)
	case wire.ClientSyncRequest:
		return sess.handleSyncRequest(m)
	case wire.ClientOpenFile:
		return sess.handleOpenFile(m)
	case wire.ClientCloseFile:
		sess.withRoom(m.ProjectID, func(r *room.Room) { r.CloseFile(sess.peerID, m.FilePath) })
		return nil
	case wire.ClientCursorUpdate:
		sess.withRoom(m.ProjectID, func(r *room.Room) {
			r.UpdateCursor(sess.peerID, m.FilePath, m.Line, m.Column, m.SelectionEnd)
		})
		return nil
	case wire.ClientPresenceUpdate:
		sess.withRoom(m.ProjectID, func(r *room.Room) { r.UpdatePresence(sess.peerID, m.Status, m.ActiveFile) })
		return nil
	case wire.ClientChatMessage:
		return sess.handleChatMessage(m)
	case wire.ClientVoiceJoin:
		return sess.handleVoiceJoin(m)
	case wire.ClientVoiceLeave:
		return nil
	default:
		sess.sendError(wire.ErrorInvalidMessage, "unrecognized message", nil)
		return nil
	}
}

func (sess *Session) handleHello(m wire.ClientHello) error {
	if m.ProtocolVersion != ProtocolVersion {
		sess.sendError(wire.ErrorVersionMismatch, "unsupported protocol version", nil)
		return errors.New("connection: protocol version mismatch")
	}

	sess.mu.Lock()
	if m.SessionToken != nil && sess.store != nil {
		if restored, err := sess.store.GetSession(context.Background(), *m.SessionToken); err == nil {
			sess.peerID = restored.PeerID
			sess.name = restored.Name
			sess.color = restored.Color
		}
	}
	if sess.peerID == "" {
		if m.ClientID != nil {
			sess.peerID = *m.ClientID
		} else {
			sess.peerID = uuid.NewString()
		}
		sess.name = m.ClientName
		sess.color = randomColor()
	}
	peerID, color := sess.peerID, sess.color
	sess.mu.Unlock()

	token := uuid.NewString()
	if sess.store != nil {
		_ = sess.store.PutSession(context.Background(), store.Session{
			Token:     token,
			PeerID:    peerID,
			Name:      sess.name,
			Color:     color,
			ExpiresAt: time.Now().Add(store.SessionTTL).UnixMilli(),
		})
	}

	sess.send(wire.ServerWelcome{
		ProtocolVersion: ProtocolVersion,
		PeerID:          peerID,
		Color:           color,
		SessionToken:    token,
		ServerTime:      time.Now().UnixMilli(),
	})
	return nil
}

func (sess *Session) handleJoinProject(m wire.ClientJoinProject) error {
	r, err := sess.registry.GetOrCreate(context.Background(), m.ProjectID)
	if err != nil {
		sess.sendError(wire.ErrorProjectNotFound, err.Error(), &m.ProjectID)
		return nil
	}

	peers, docState, outbox, err := r.Join(sess.peerID, sess.name, sess.color, m.RequestState)
	if err != nil {
		switch {
		case errors.Is(err, room.ErrProjectFull):
			sess.sendError(wire.ErrorProjectFull, err.Error(), &m.ProjectID)
		case errors.Is(err, room.ErrAlreadyJoined):
			sess.sendError(wire.ErrorAlreadyJoined, err.Error(), &m.ProjectID)
		default:
			sess.sendError(wire.ErrorServerError, err.Error(), &m.ProjectID)
		}
		return nil
	}

	sess.mu.Lock()
	sess.projectID = &m.ProjectID
	sess.activeRoom = r
	sess.mu.Unlock()
	sess.conn.SetState(StateJoined)

	sess.send(wire.ServerProjectJoined{ProjectID: m.ProjectID, Peers: peers, DocumentState: docState})
	sess.pumpOutbox(r, outbox)

	if history, err := sess.chatHistory(m.ProjectID); err == nil && len(history) > 0 {
		sess.send(wire.ServerChatHistory{ProjectID: m.ProjectID, Messages: history})
	}
	return nil
}

func (sess *Session) chatHistory(projectID string) ([]wire.ChatHistoryItem, error) {
	if sess.store == nil {
		return nil, nil
	}
	msgs, err := sess.store.ChatHistory(context.Background(), projectID, store.ChatRingSize)
	if err != nil {
		return nil, err
	}
	out := make([]wire.ChatHistoryItem, len(msgs))
	for i, m := range msgs {
		out[i] = wire.ChatHistoryItem{PeerID: m.PeerID, PeerName: m.PeerName, Content: m.Content, Timestamp: m.Timestamp}
	}
	return out, nil
}

// pumpOutbox starts a goroutine relaying a joined room's per-peer outbox
// onto the connection's send queue until the room closes it (backpressure)
// or the session tears down.
func (sess *Session) pumpOutbox(r *room.Room, outbox room.Outbox) {
	ctx, cancel := context.WithCancel(context.Background())
	sess.mu.Lock()
	sess.stopSync = cancel
	sess.mu.Unlock()

	go func() {
		for {
			select {
			case framed, ok := <-outbox.Messages():
				if !ok {
					return
				}
				delivered := sess.conn.Enqueue(framed)
				outbox.Release(len(framed))
				if !delivered {
					_ = sess.conn.Close()
					return
				}
			case <-outbox.Closed():
				_ = sess.conn.Close()
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	if outgoing, err := r.GenerateSyncFor(sess.peerID); err == nil {
		for _, data := range outgoing {
			sess.send(wire.ServerSyncMessage{ProjectID: r.ProjectID, SyncData: data})
		}
	}
}

func (sess *Session) handleLeaveProject(m wire.ClientLeaveProject) error {
	sess.withRoom(m.ProjectID, func(r *room.Room) { r.Leave(sess.peerID, nil) })
	sess.mu.Lock()
	sess.projectID = nil
	sess.activeRoom = nil
	if sess.stopSync != nil {
		sess.stopSync()
	}
	sess.mu.Unlock()
	sess.send(wire.ServerProjectLeft{ProjectID: m.ProjectID})
	return nil
}

func (sess *Session) handleSyncMessage(m wire.ClientSyncMessage) error {
	var outgoing [][]byte
	var err error
	sess.withRoom(m.ProjectID, func(r *room.Room) {
		outgoing, err = r.ReceiveSync(sess.peerID, m.SyncData)
	})
	if err != nil {
		sess.sendError(wire.ErrorServerError, err.Error(), &m.ProjectID)
		return nil
	}
	for _, data := range outgoing {
		sess.send(wire.ServerSyncMessage{ProjectID: m.ProjectID, SyncData: data})
	}
	if len(outgoing) == 0 {
		sess.send(wire.ServerSyncComplete{ProjectID: m.ProjectID})
	}
	return nil
}

func (sess *Session) handleSyncRequest(m wire.ClientSyncRequest) error {
	var outgoing [][]byte
	var err error
	sess.withRoom(m.ProjectID, func(r *room.Room) {
		outgoing, err = r.GenerateSyncFor(sess.peerID)
	})
	if err != nil {
		sess.sendError(wire.ErrorServerError, err.Error(), &m.ProjectID)
		return nil
	}
	for _, data := range outgoing {
		sess.send(wire.ServerSyncMessage{ProjectID: m.ProjectID, SyncData: data})
	}
	return nil
}

func (sess *Session) handleOpenFile(m wire.ClientOpenFile) error {
	var out wire.ServerMessage
	sess.withRoom(m.ProjectID, func(r *room.Room) { out = r.OpenFile(sess.peerID, m.FilePath) })
	if out != nil {
		sess.send(out)
	}
	return nil
}

func (sess *Session) handleChatMessage(m wire.ClientChatMessage) error {
	timestamp := time.Now().UnixMilli()
	if sess.store != nil {
		if _, err := sess.store.AppendChatMessage(context.Background(), m.ProjectID, sess.peerID, sess.name, m.Content, timestamp); err != nil {
			sess.logger.Error("failed to persist chat message", "err", err)
		}
	}
	sess.withRoom(m.ProjectID, func(r *room.Room) { r.ChatBroadcast(sess.peerID, sess.name, m.Content, timestamp) })
	return nil
}

func (sess *Session) handleVoiceJoin(m wire.ClientVoiceJoin) error {
	if sess.voice == nil {
		sess.sendError(wire.ErrorServerError, "voice is not configured", &m.ProjectID)
		return nil
	}
	token, err := sess.voice.IssueToken(m.ProjectID, sess.peerID, sess.name, voice.Full())
	if err != nil {
		sess.sendError(wire.ErrorServerError, err.Error(), &m.ProjectID)
		return nil
	}
	sess.send(wire.ServerVoiceToken{
		ProjectID: m.ProjectID,
		Token:     token,
		RoomName:  m.ProjectID,
		ServerURL: sess.voiceServerURL,
	})
	return nil
}

func (sess *Session) withRoom(projectID string, fn func(r *room.Room)) {
	sess.mu.Lock()
	r := sess.activeRoom
	active := sess.projectID != nil && *sess.projectID == projectID
	sess.mu.Unlock()
	if !active || r == nil {
		sess.sendError(wire.ErrorNotJoined, "not joined to project", &projectID)
		return
	}
	fn(r)
}

func (sess *Session) teardown() {
	sess.mu.Lock()
	r := sess.activeRoom
	peerID := sess.peerID
	stop := sess.stopSync
	sess.activeRoom = nil
	sess.projectID = nil
	sess.mu.Unlock()

	if stop != nil {
		stop()
	}
	if r != nil && peerID != "" {
		r.Leave(peerID, nil)
	}
	sess.conn.SetState(StateClosed)
}
