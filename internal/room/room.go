// Package room implements the per-project command-mailbox actor: one
// goroutine owns a project's CRDT document and serializes every mutation
// and broadcast through a single channel, the way the teacher's sync loop
// serializes reads and writes around one *automerge.SyncState per peer.
package room

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/automerge/automerge-go"
	"github.com/pkg/errors"

	"github.com/astromechza/codecollab/internal/document"
	"github.com/astromechza/codecollab/internal/presence"
	"github.com/astromechza/codecollab/internal/store"
	"github.com/astromechza/codecollab/internal/wire"
)

// OutboxSize is the bounded buffer depth for a subscriber's outbound
// message queue. A peer that falls this far behind is disconnected rather
// than allowed to stall the room's broadcast loop. Matches the protocol's
// default high-water mark of 1024 messages in flight (§4.4/§5); the 8 MiB
// byte-size half of that mark is enforced by OutboxByteLimit instead, since
// a channel depth alone can't bound total buffered bytes.
const OutboxSize = 1024

// OutboxByteLimit is the other half of the protocol's default high-water
// mark: a peer is disconnected once this many bytes of framed messages sit
// unread in its outbox, even if OutboxSize hasn't been reached.
const OutboxByteLimit = 8 * 1024 * 1024

// ErrProjectFull is returned when a room is already at MaxPeers.
var ErrProjectFull = errors.New("room: project full")

// ErrAlreadyJoined is returned when a peer id is already present in the room.
var ErrAlreadyJoined = errors.New("room: already joined")

// ErrNotJoined is returned when an operation names a peer not in the room.
var ErrNotJoined = errors.New("room: not joined")

// MaxPeers bounds how many peers may be simultaneously joined to one room.
const MaxPeers = 64

// SessionTimeout is how long a peer may go without a sync message before the
// room's sweep considers it stale and forcibly removes it. A peer's last-seen
// time is set on Join and on each ReceiveSync; cursor, presence, chat and
// file messages do not reset it.
const SessionTimeout = 300 * time.Second

// subscriber is one joined peer's live connection handle, as seen by the room.
type subscriber struct {
	peerID      string
	name        string
	color       string
	outbox      chan []byte
	outboxBytes int64
	sync        *automerge.SyncState
	joinedAt    time.Time
	lastSeen    time.Time
	closeOnce   sync.Once
	closed      chan struct{}
}

// send enqueues framed for delivery, disconnecting the peer instead of
// blocking once it's past the outbox's message-count or byte high-water
// mark (§4.4/§5's default: 1024 messages or 8 MiB in flight).
func (s *subscriber) send(framed []byte) {
	if atomic.LoadInt64(&s.outboxBytes)+int64(len(framed)) > OutboxByteLimit {
		s.closeOnce.Do(func() { close(s.closed) })
		return
	}
	select {
	case s.outbox <- framed:
		atomic.AddInt64(&s.outboxBytes, int64(len(framed)))
	default:
		s.closeOnce.Do(func() { close(s.closed) })
	}
}

// release returns n bytes to the outbox's byte budget once a consumer has
// finished handling a dequeued message.
func (s *subscriber) release(n int) {
	atomic.AddInt64(&s.outboxBytes, -int64(n))
}

// Room owns one project's document and broadcasts changes to its joined peers.
type Room struct {
	ProjectID string

	mu        sync.Mutex
	doc       *document.Document
	peers     map[string]*subscriber
	presence  *presence.Table
	dirty     bool
	createdAt time.Time
	lastSeen  time.Time

	store    *store.Store
	commands chan func()
	logger   *slog.Logger
	maxPeers int
}

// New creates a Room around an already-loaded document, capped at
// MaxPeers simultaneously joined peers. st is used to durably persist every
// accepted Sync message before it is broadcast (§4.3/§4.5); a nil st
// disables that persistence, for tests that only exercise in-memory
// broadcast behavior.
func New(projectID string, doc *document.Document, st *store.Store, logger *slog.Logger) *Room {
	return NewWithMaxPeers(projectID, doc, st, logger, MaxPeers)
}

// NewWithMaxPeers creates a Room with a non-default peer cap, for
// deployments that configure Registry.MaxPeersPerProject away from the
// package default (spec.md §9's "configurable parameter" open question).
func NewWithMaxPeers(projectID string, doc *document.Document, st *store.Store, logger *slog.Logger, maxPeers int) *Room {
	if logger == nil {
		logger = slog.Default()
	}
	if maxPeers <= 0 {
		maxPeers = MaxPeers
	}
	r := &Room{
		ProjectID: projectID,
		doc:       doc,
		peers:     make(map[string]*subscriber),
		presence:  presence.NewTable(),
		createdAt: time.Now(),
		lastSeen:  time.Now(),
		store:     st,
		commands:  make(chan func(), 64),
		logger:    logger.With("project_id", projectID),
		maxPeers:  maxPeers,
	}
	return r
}

// Run executes the room's command loop until ctx is cancelled. Exactly one
// goroutine must call Run for a given Room.
func (r *Room) Run(ctx context.Context) {
	r.logger.Info("room started")
	for {
		select {
		case cmd := <-r.commands:
			cmd()
		case <-ctx.Done():
			r.logger.Info("room stopped")
			return
		}
	}
}

// do enqueues fn on the command loop and blocks until it has run.
func (r *Room) do(fn func()) {
	done := make(chan struct{})
	r.commands <- func() {
		fn()
		close(done)
	}
	<-done
}

// Document returns the room's live document. Callers outside the command
// loop must only use this for read-only snapshotting (e.g. admin debug
// rendering); mutation goes through Room's own methods.
func (r *Room) Document() *document.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc
}

// Presence exposes the room's presence table for read access.
func (r *Room) Presence() *presence.Table { return r.presence }

// PeerCount reports how many peers are currently joined.
func (r *Room) PeerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// IsEmpty reports whether the room currently has no joined peers.
func (r *Room) IsEmpty() bool { return r.PeerCount() == 0 }

// Dirty reports whether the document has unsaved changes since the last
// MarkSaved call.
func (r *Room) Dirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dirty
}

// MarkSaved clears the dirty flag after a successful persistence flush.
func (r *Room) MarkSaved() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirty = false
}

// LastActive reports the last time any peer interacted with this room.
func (r *Room) LastActive() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeen
}

// Outbox is the per-connection handle a Connection reads framed outbound
// bytes from after joining a room.
type Outbox struct {
	ch      <-chan []byte
	closed  <-chan struct{}
	release func(n int)
}

// Messages returns the channel of framed server messages destined for this peer.
func (o Outbox) Messages() <-chan []byte { return o.ch }

// Closed signals when the room has disconnected this peer for backpressure.
func (o Outbox) Closed() <-chan struct{} { return o.closed }

// Release returns n bytes (the framed size of a message just read from
// Messages) to the room's per-peer byte budget, so OutboxByteLimit tracks
// bytes actually in flight rather than every byte ever sent.
func (o Outbox) Release(n int) {
	if o.release != nil {
		o.release(n)
	}
}

// peerInfoLocked snapshots one joined peer for ProjectJoined/PeerJoined messages.
func (r *Room) peerInfoLocked(s *subscriber) wire.PeerInfo {
	p, _ := r.presence.Get(s.peerID)
	return wire.PeerInfo{
		PeerID:     s.peerID,
		Name:       s.name,
		Color:      s.color,
		Status:     p.Status,
		ActiveFile: p.ActiveFile,
		JoinedAt:   s.joinedAt.UnixMilli(),
	}
}

// Join registers a new peer, returning the current peer roster (excluding
// itself) and, if requested, a full snapshot of the document for the
// joining peer to fork from.
func (r *Room) Join(peerID, name, color string, requestState bool) (peers []wire.PeerInfo, docState []byte, outbox Outbox, err error) {
	r.do(func() {
		if _, ok := r.peers[peerID]; ok {
			err = errors.Wrapf(ErrAlreadyJoined, "peer %s", peerID)
			return
		}
		if len(r.peers) >= r.maxPeers {
			err = errors.Wrapf(ErrProjectFull, "project %s", r.ProjectID)
			return
		}
		s := &subscriber{
			peerID:   peerID,
			name:     name,
			color:    color,
			outbox:   make(chan []byte, OutboxSize),
			sync:     automerge.NewSyncState(r.doc.Automerge()),
			joinedAt: time.Now(),
			lastSeen: time.Now(),
			closed:   make(chan struct{}),
		}
		r.peers[peerID] = s
		r.presence.Join(peerID, name, color)
		r.lastSeen = time.Now()

		for _, other := range r.peers {
			if other.peerID == peerID {
				continue
			}
			peers = append(peers, r.peerInfoLocked(other))
		}
		if requestState {
			docState = r.doc.Save()
		}
		outbox = Outbox{ch: s.outbox, closed: s.closed, release: s.release}

		joinedInfo := r.peerInfoLocked(s)
		r.broadcastLocked(wire.ServerPeerJoined{ProjectID: r.ProjectID, Peer: joinedInfo}, peerID)
	})
	return peers, docState, outbox, err
}

// Leave removes a peer from the room and broadcasts its departure.
func (r *Room) Leave(peerID string, reason *string) {
	r.do(func() {
		if _, ok := r.peers[peerID]; !ok {
			return
		}
		delete(r.peers, peerID)
		r.presence.Leave(peerID)
		r.broadcastLocked(wire.ServerPeerLeft{ProjectID: r.ProjectID, PeerID: peerID, Reason: reason}, "")
	})
}

// broadcastLocked frames msg and fans it out to every peer except excludePeerID.
// Must be called from within the command loop.
func (r *Room) broadcastLocked(msg wire.ServerMessage, excludePeerID string) {
	framed, err := wire.FrameServer(msg)
	if err != nil {
		r.logger.Error("failed to frame broadcast", "err", err)
		return
	}
	for id, s := range r.peers {
		if id == excludePeerID {
			continue
		}
		s.send(framed)
	}
}

// Broadcast fans a server message out to every joined peer except excludePeerID.
func (r *Room) Broadcast(msg wire.ServerMessage, excludePeerID string) {
	r.do(func() { r.broadcastLocked(msg, excludePeerID) })
}

// SendTo frames and enqueues msg for exactly one peer.
func (r *Room) SendTo(peerID string, msg wire.ServerMessage) {
	r.do(func() {
		s, ok := r.peers[peerID]
		if !ok {
			return
		}
		framed, err := wire.FrameServer(msg)
		if err != nil {
			r.logger.Error("failed to frame message", "err", err)
			return
		}
		s.send(framed)
	})
}

// ReceiveSync applies an incoming sync message from peerID against its
// tracked SyncState. If that message carried new document changes, they are
// persisted synchronously before anything is broadcast: §4.3/§4.5 require
// every accepted append to be durable before the room acknowledges it into
// the in-memory document, and §8 requires that a non-empty change batch is
// never broadcast without first being saved. A persistence failure is
// returned to the caller as err, and nothing is broadcast.
func (r *Room) ReceiveSync(peerID string, data []byte) (outgoing [][]byte, err error) {
	r.do(func() {
		s, ok := r.peers[peerID]
		if !ok {
			err = errors.Wrapf(ErrNotJoined, "peer %s", peerID)
			return
		}
		s.lastSeen = time.Now()
		r.lastSeen = time.Now()

		headsBefore := r.doc.Heads()
		if _, recvErr := s.sync.ReceiveMessage(data); recvErr != nil {
			err = errors.Wrap(recvErr, "room: receive sync message")
			return
		}

		if !headsEqual(headsBefore, r.doc.Heads()) {
			r.dirty = true
			if r.store != nil {
				if saveErr := r.store.SaveDocument(context.Background(), r.ProjectID, r.doc); saveErr != nil {
					err = errors.Wrap(saveErr, "room: persist sync changes")
					return
				}
			}
			r.dirty = false
		}

		outgoing = r.generateSyncLocked(s)

		for id, other := range r.peers {
			if id == peerID {
				continue
			}
			for _, msg := range r.generateSyncLocked(other) {
				other.send(msg)
			}
		}
	})
	return outgoing, err
}

// headsEqual reports whether two change-hash sets are identical, regardless
// of order, used to detect whether a received sync message actually carried
// new changes worth persisting.
func headsEqual(a, b []automerge.ChangeHash) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, h := range a {
		seen[h.String()] = struct{}{}
	}
	for _, h := range b {
		if _, ok := seen[h.String()]; !ok {
			return false
		}
	}
	return true
}

// GenerateSyncFor produces any pending outgoing sync messages for peerID
// without first applying an incoming message (used right after join, or on
// a periodic anti-entropy tick).
func (r *Room) GenerateSyncFor(peerID string) (outgoing [][]byte, err error) {
	r.do(func() {
		s, ok := r.peers[peerID]
		if !ok {
			err = errors.Wrapf(ErrNotJoined, "peer %s", peerID)
			return
		}
		outgoing = r.generateSyncLocked(s)
	})
	return outgoing, err
}

func (r *Room) generateSyncLocked(s *subscriber) [][]byte {
	var out [][]byte
	for {
		msg, valid := s.sync.GenerateMessage()
		if !valid {
			break
		}
		out = append(out, msg.Bytes())
	}
	return out
}

// UpdateCursor records a peer's cursor and broadcasts it to the room.
func (r *Room) UpdateCursor(peerID, filePath string, line, column uint32, selectionEnd *wire.Position) {
	r.do(func() {
		s, ok := r.peers[peerID]
		if !ok {
			return
		}
		var stable document.Cursor
		if fileID, resolveErr := r.resolveFileIDLocked(filePath); resolveErr == nil {
			if c, cErr := r.doc.ResolveCursor(fileID, int(column)); cErr == nil {
				stable = c
			}
		}
		r.presence.SetCursor(peerID, presence.Cursor{
			FilePath:     filePath,
			Line:         line,
			Column:       column,
			SelectionEnd: selectionEnd,
			Stable:       stable,
		})
		r.broadcastLocked(wire.ServerCursorBroadcast{
			ProjectID:    r.ProjectID,
			PeerID:       peerID,
			PeerName:     s.name,
			PeerColor:    s.color,
			FilePath:     filePath,
			Line:         line,
			Column:       column,
			SelectionEnd: selectionEnd,
		}, peerID)
	})
}

// UpdatePresence records an explicit status/active-file change and broadcasts it.
func (r *Room) UpdatePresence(peerID string, status wire.PresenceStatus, activeFile *string) {
	r.do(func() {
		s, ok := r.peers[peerID]
		if !ok {
			return
		}
		r.presence.SetStatus(peerID, status)
		r.presence.SetActiveFile(peerID, activeFile)
		p, _ := r.presence.Get(peerID)
		r.broadcastLocked(wire.ServerPresenceBroadcast{
			ProjectID:  r.ProjectID,
			PeerID:     peerID,
			PeerName:   s.name,
			Status:     p.Status,
			ActiveFile: p.ActiveFile,
			LastActive: p.LastActive.UnixMilli(),
		}, "")
	})
}

// resolveFileIDLocked walks the tree to find the node id for a path. Must
// be called from within the command loop.
func (r *Room) resolveFileIDLocked(filePath string) (string, error) {
	nodes, err := r.doc.GetAllNodes()
	if err != nil {
		return "", err
	}
	for _, n := range nodes {
		if !n.IsDir && n.Path == filePath {
			return n.ID, nil
		}
	}
	return "", errors.Wrapf(document.ErrNotFound, "path %s", filePath)
}

// OpenFile resolves filePath to its content, or reports FileNotFound.
func (r *Room) OpenFile(peerID, filePath string) (msg wire.ServerMessage) {
	r.do(func() {
		s, ok := r.peers[peerID]
		if ok {
			r.presence.OpenFile(peerID, filePath)
		}
		fileID, err := r.resolveFileIDLocked(filePath)
		if err != nil {
			msg = wire.ServerFileNotFound{ProjectID: r.ProjectID, FilePath: filePath}
			return
		}
		info, err := r.doc.GetFileContent(fileID)
		if err != nil {
			msg = wire.ServerFileNotFound{ProjectID: r.ProjectID, FilePath: filePath}
			return
		}
		_ = s
		msg = wire.ServerFileContent{
			ProjectID: r.ProjectID,
			FilePath:  filePath,
			Content:   info.Content,
			Language:  info.Language,
			Version:   info.Version,
		}
	})
	return msg
}

// CloseFile clears a peer's open-file tracking for filePath.
func (r *Room) CloseFile(peerID, filePath string) {
	r.do(func() {
		r.presence.CloseFile(peerID, filePath)
	})
}

// ChatBroadcast fans a chat entry out to every joined peer; persistence to
// the store happens in the caller (connection.Session), which owns the store
// handle.
func (r *Room) ChatBroadcast(peerID, peerName, content string, timestamp int64) {
	r.do(func() {
		r.broadcastLocked(wire.ServerChatBroadcast{
			ProjectID: r.ProjectID,
			PeerID:    peerID,
			PeerName:  peerName,
			Content:   content,
			Timestamp: timestamp,
		}, "")
	})
}

// Sweep advances presence status transitions, broadcasting PresenceBroadcast
// for every peer the staleness sweep demoted to Idle or Away (§4.7), and
// removes peers whose last-seen time is older than SessionTimeout.
func (r *Room) Sweep(now time.Time) (stale []string) {
	r.do(func() {
		for _, p := range r.presence.Sweep(now) {
			r.broadcastLocked(wire.ServerPresenceBroadcast{
				ProjectID:  r.ProjectID,
				PeerID:     p.PeerID,
				PeerName:   p.Name,
				Status:     p.Status,
				ActiveFile: p.ActiveFile,
				LastActive: p.LastActive.UnixMilli(),
			}, "")
		}
		for id, s := range r.peers {
			if now.Sub(s.lastSeen) > SessionTimeout {
				stale = append(stale, id)
			}
		}
	})
	for _, id := range stale {
		reason := "session timed out"
		r.Leave(id, &reason)
	}
	return stale
}
