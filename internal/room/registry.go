package room

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/astromechza/codecollab/internal/document"
	"github.com/astromechza/codecollab/internal/store"
)

// EvictionGrace is how long a room may sit with zero joined peers before
// the registry saves and evicts it from memory.
const EvictionGrace = 300 * time.Second

// CleanupInterval is how often the registry sweeps for stale peers and
// idle rooms.
const CleanupInterval = 60 * time.Second

// SaveInterval is how often dirty rooms are flushed to the store.
const SaveInterval = 5 * time.Second

type entry struct {
	room   *Room
	cancel context.CancelFunc
}

// Registry is the process-wide map from project id to its single active
// Room, guaranteeing exactly one command loop per project at a time.
type Registry struct {
	store  *store.Store
	logger *slog.Logger

	// MaxPeersPerProject caps how many peers any spawned room accepts,
	// per spec.md §9's open question on a per-room peer cap. Zero means
	// MaxPeers (the package default).
	MaxPeersPerProject int

	mu    sync.Mutex
	rooms map[string]*entry
}

// NewRegistry creates an empty room registry backed by store, with the
// default per-room peer cap.
func NewRegistry(st *store.Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: st, logger: logger, rooms: make(map[string]*entry)}
}

// GetOrCreate returns the active Room for projectID, loading its document
// from the store and spawning its command loop if the project has no room in
// memory (first request since startup or since eviction). A project that is
// not registered in the store yields a wrapped store.ErrNotFound; no project
// or document is created here (see Create).
func (reg *Registry) GetOrCreate(ctx context.Context, projectID string) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if e, ok := reg.rooms[projectID]; ok {
		return e.room, nil
	}

	exists, err := reg.store.ProjectExists(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.Wrapf(store.ErrNotFound, "project %s", projectID)
	}
	doc, err := reg.store.LoadDocument(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return reg.spawnLocked(projectID, doc), nil
}

// Create registers a brand new project (document + catalog entry) and
// spawns its room immediately.
func (reg *Registry) Create(ctx context.Context, projectID, name, ownerID string) (*Room, error) {
	doc, err := reg.store.CreateProject(ctx, projectID, name, ownerID)
	if err != nil {
		return nil, err
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if e, ok := reg.rooms[projectID]; ok {
		return e.room, nil
	}
	return reg.spawnLocked(projectID, doc), nil
}

// spawnLocked constructs a Room around doc, starts its command loop, and
// registers it. Callers must hold reg.mu.
func (reg *Registry) spawnLocked(projectID string, doc *document.Document) *Room {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewWithMaxPeers(projectID, doc, reg.store, reg.logger, reg.MaxPeersPerProject)
	reg.rooms[projectID] = &entry{room: r, cancel: cancel}
	go r.Run(ctx)
	return r
}

// Get returns the already-active room for projectID without loading it, or
// nil if the project has no room in memory right now.
func (reg *Registry) Get(projectID string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	e, ok := reg.rooms[projectID]
	if !ok {
		return nil, false
	}
	return e.room, true
}

// Rooms returns a snapshot of every currently active room.
func (reg *Registry) Rooms() []*Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make([]*Room, 0, len(reg.rooms))
	for _, e := range reg.rooms {
		out = append(out, e.room)
	}
	return out
}

// SaveDirty flushes every active room with unsaved changes to the store.
func (reg *Registry) SaveDirty(ctx context.Context) {
	for _, r := range reg.Rooms() {
		if !r.Dirty() {
			continue
		}
		if err := reg.store.SaveDocument(ctx, r.ProjectID, r.Document()); err != nil {
			reg.logger.Error("failed to save document", "project_id", r.ProjectID, "err", err)
			continue
		}
		r.MarkSaved()
	}
}

// Sweep advances presence/session staleness on every active room and evicts
// rooms that have been empty for longer than EvictionGrace, saving first.
func (reg *Registry) Sweep(ctx context.Context) {
	now := time.Now()
	for _, r := range reg.Rooms() {
		r.Sweep(now)
	}

	reg.mu.Lock()
	var toEvict []string
	for projectID, e := range reg.rooms {
		if e.room.IsEmpty() && now.Sub(e.room.LastActive()) > EvictionGrace {
			toEvict = append(toEvict, projectID)
		}
	}
	reg.mu.Unlock()

	for _, projectID := range toEvict {
		reg.evict(ctx, projectID)
	}
}

func (reg *Registry) evict(ctx context.Context, projectID string) {
	reg.mu.Lock()
	e, ok := reg.rooms[projectID]
	if ok {
		delete(reg.rooms, projectID)
	}
	reg.mu.Unlock()
	if !ok {
		return
	}
	if e.room.Dirty() {
		if err := reg.store.SaveDocument(ctx, projectID, e.room.Document()); err != nil {
			reg.logger.Error("failed to save document on eviction", "project_id", projectID, "err", err)
		}
	}
	e.cancel()
	reg.logger.Info("room evicted", "project_id", projectID)
}

// RunBackgroundTasks spawns the periodic save and cleanup loops, returning
// once ctx is cancelled.
func (reg *Registry) RunBackgroundTasks(ctx context.Context) {
	saveTicker := time.NewTicker(SaveInterval)
	defer saveTicker.Stop()
	cleanupTicker := time.NewTicker(CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-saveTicker.C:
			reg.SaveDirty(ctx)
		case <-cleanupTicker.C:
			reg.Sweep(ctx)
		case <-ctx.Done():
			reg.SaveDirty(context.Background())
			return
		}
	}
}

// Stats summarizes the registry's current load, mirroring the protocol's
// Stats wire message.
type Stats struct {
	ActiveProjects uint32
	ActivePeers    uint32
}

// Stats reports how many rooms and peers are currently active.
func (reg *Registry) Stats() Stats {
	rooms := reg.Rooms()
	var peers uint32
	for _, r := range rooms {
		peers += uint32(r.PeerCount())
	}
	return Stats{ActiveProjects: uint32(len(rooms)), ActivePeers: peers}
}
