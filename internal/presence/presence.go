// Package presence tracks peer activity state within a room: coarse status
// transitions (active/idle/away), the currently open file, a typing flag,
// and the last line/column cursor a peer reported.
package presence

import (
	"sync"
	"time"

	"github.com/astromechza/codecollab/internal/document"
	"github.com/astromechza/codecollab/internal/wire"
)

// Timeouts for automatic status transitions, unchanged from the protocol's
// staleness rules: a peer idles after IdleTimeout of inactivity and goes
// away after AwayTimeout. Status never auto-transitions out of Offline.
const (
	IdleTimeout = 60 * time.Second
	AwayTimeout = 300 * time.Second
)

// Cursor is a peer's last-known cursor position within one file.
type Cursor struct {
	FilePath     string
	Line         uint32
	Column       uint32
	SelectionEnd *wire.Position
	Stable       document.Cursor
	UpdatedAt    time.Time
}

// Presence is one peer's activity record within a room.
type Presence struct {
	PeerID     string
	Name       string
	Color      string
	Status     wire.PresenceStatus
	ActiveFile *string
	Cursor     *Cursor
	JoinedAt   time.Time
	LastActive time.Time
	IsTyping   bool
	OpenFiles  []string
}

func newPresence(peerID, name, color string) *Presence {
	now := time.Now()
	return &Presence{
		PeerID:     peerID,
		Name:       name,
		Color:      color,
		Status:     wire.StatusActive,
		JoinedAt:   now,
		LastActive: now,
	}
}

// touch resets a presence to Active and bumps its last-active timestamp.
func (p *Presence) touch() {
	p.LastActive = time.Now()
	if p.Status != wire.StatusOffline {
		p.Status = wire.StatusActive
	}
}

// refreshStatus recomputes Idle/Away transitions based on elapsed time since
// last activity. It never moves a peer out of Offline.
func (p *Presence) refreshStatus(now time.Time) {
	if p.Status == wire.StatusOffline {
		return
	}
	elapsed := now.Sub(p.LastActive)
	switch {
	case elapsed >= AwayTimeout:
		p.Status = wire.StatusAway
	case elapsed >= IdleTimeout:
		p.Status = wire.StatusIdle
	default:
		p.Status = wire.StatusActive
	}
}

// Table is a room-scoped, concurrency-safe presence table.
type Table struct {
	mu    sync.RWMutex
	peers map[string]*Presence
}

// NewTable creates an empty presence table.
func NewTable() *Table {
	return &Table{peers: make(map[string]*Presence)}
}

// Join registers a new peer's presence, replacing any stale entry for the
// same id (a reconnect under the same session).
func (t *Table) Join(peerID, name, color string) *Presence {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := newPresence(peerID, name, color)
	t.peers[peerID] = p
	return p
}

// Leave removes a peer's presence entirely.
func (t *Table) Leave(peerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, peerID)
}

// Get returns a snapshot copy of a peer's presence, if present.
func (t *Table) Get(peerID string) (Presence, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[peerID]
	if !ok {
		return Presence{}, false
	}
	return *p, true
}

// All returns a snapshot of every tracked presence.
func (t *Table) All() []Presence {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Presence, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, *p)
	}
	return out
}

// Touch marks a peer active, clearing any idle/away status.
func (t *Table) Touch(peerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.peers[peerID]; ok {
		p.touch()
	}
}

// SetStatus explicitly sets a peer's status (used for an explicit client
// PresenceUpdate, distinct from the automatic staleness sweep).
func (t *Table) SetStatus(peerID string, status wire.PresenceStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.peers[peerID]; ok {
		p.Status = status
		p.LastActive = time.Now()
	}
}

// SetActiveFile records which file a peer currently has open/focused.
func (t *Table) SetActiveFile(peerID string, file *string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.peers[peerID]; ok {
		p.ActiveFile = file
		p.touch()
	}
}

// SetTyping flips a peer's typing indicator.
func (t *Table) SetTyping(peerID string, typing bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.peers[peerID]; ok {
		p.IsTyping = typing
		p.touch()
	}
}

// OpenFile adds path to a peer's open-files list if not already present.
func (t *Table) OpenFile(peerID, path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[peerID]
	if !ok {
		return
	}
	for _, f := range p.OpenFiles {
		if f == path {
			return
		}
	}
	p.OpenFiles = append(p.OpenFiles, path)
}

// CloseFile removes path from a peer's open-files list.
func (t *Table) CloseFile(peerID, path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[peerID]
	if !ok {
		return
	}
	for i, f := range p.OpenFiles {
		if f == path {
			p.OpenFiles = append(p.OpenFiles[:i], p.OpenFiles[i+1:]...)
			return
		}
	}
}

// SetCursor records a peer's latest cursor. Cursors are never validated
// against line/column bounds. The Stable field is stored as given; the room
// fills it from document.ResolveCursor, which yields an empty Cursor.
func (t *Table) SetCursor(peerID string, c Cursor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.peers[peerID]; ok {
		c.UpdatedAt = time.Now()
		p.Cursor = &c
		p.touch()
	}
}

// ClearCursor drops a peer's cursor. The room does not call it: closing a
// file leaves the cursor in place, and leaving the room removes the whole
// entry through Leave.
func (t *Table) ClearCursor(peerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.peers[peerID]; ok {
		p.Cursor = nil
	}
}

// Sweep recomputes status transitions for every peer against now and
// returns a snapshot of every peer whose Status changed, so the caller can
// broadcast the transition (§4.7's automatic Idle/Away demotion). It never
// removes offline peers; the room is responsible for eviction after its own
// session-timeout grace period.
func (t *Table) Sweep(now time.Time) []Presence {
	t.mu.Lock()
	defer t.mu.Unlock()
	var changed []Presence
	for _, p := range t.peers {
		before := p.Status
		p.refreshStatus(now)
		if p.Status != before {
			changed = append(changed, *p)
		}
	}
	return changed
}

// MarkOffline forces a peer's status to Offline and drops its cursor without
// removing the entry. The room does not call it: a departing peer is removed
// through Leave.
func (t *Table) MarkOffline(peerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.peers[peerID]; ok {
		p.Status = wire.StatusOffline
		p.Cursor = nil
	}
}

// Len reports how many peers are tracked.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}
