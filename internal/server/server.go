// Package server wires the store, room registry, and voice issuer into
// the process-wide HTTP admin surface and the /ws/{project_id} upgrade
// point, the way the teacher's cmd/four/server/main.go wires a *sql.DB and
// a gorilla/mux router around a handful of plain handler methods.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	pkgerrors "github.com/pkg/errors"

	"github.com/astromechza/codecollab/internal/connection"
	"github.com/astromechza/codecollab/internal/graphviz"
	"github.com/astromechza/codecollab/internal/room"
	"github.com/astromechza/codecollab/internal/store"
	"github.com/astromechza/codecollab/internal/voice"
)

// ServiceName is reported in the /health payload.
const ServiceName = "codecollab"

// Version is the server's reported release; overridden at build time in a
// real release pipeline, left constant here.
const Version = "0.1.0"

// sessionSweepInterval governs how often expired reconnection tokens are
// purged from the store.
const sessionSweepInterval = time.Hour

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the process-wide collaboration server: one store, one room
// registry, one voice issuer, one HTTP router.
type Server struct {
	cfg      Config
	store    *store.Store
	registry *room.Registry
	voice    voice.Issuer
	logger   *slog.Logger
	router   *mux.Router
	started  time.Time
}

// New opens the store and constructs the server around it. The voice
// issuer is nil (VoiceJoin replies ServerError) when LiveKit credentials
// are not configured.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.StoragePath, 0o755); err != nil {
		return nil, pkgerrors.Wrap(err, "server: create storage path")
	}
	st, err := store.Open(store.Config{Path: filepath.Join(cfg.StoragePath, "collab.sqlite3")})
	if err != nil {
		return nil, err
	}

	var issuer voice.Issuer
	if cfg.LiveKitAPIKey != "" && cfg.LiveKitAPISecret != "" {
		issuer = voice.NewLiveKitIssuer(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, cfg.LiveKitURL)
	}

	s := &Server{
		cfg:      cfg,
		store:    st,
		registry: room.NewRegistry(st, logger),
		voice:    issuer,
		logger:   logger,
		started:  time.Now(),
	}
	s.router = s.buildRouter()
	return s, nil
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, req)
			s.logger.Info("handled", "method", req.Method, "path", req.URL.Path, "status", m.Code, "duration", m.Duration)
		})
	})

	r.Methods(http.MethodGet).Path("/health").HandlerFunc(s.handleHealth)
	r.Methods(http.MethodGet).Path("/api/projects").HandlerFunc(s.handleListProjects)
	r.Methods(http.MethodPost).Path("/api/projects").HandlerFunc(s.handleCreateProject)
	r.Methods(http.MethodGet).Path("/api/projects/{id}").HandlerFunc(s.handleGetProject)
	r.Methods(http.MethodGet).Path("/api/projects/{id}/debug/graph.svg").HandlerFunc(s.handleDebugGraph)
	r.Methods(http.MethodGet).Path("/ws/{project_id}").HandlerFunc(s.handleWebsocket)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type healthResponse struct {
	Status         string `json:"status"`
	Service        string `json:"service"`
	Version        string `json:"version"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	ActiveProjects uint32 `json:"active_projects"`
	ActivePeers    uint32 `json:"active_peers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.registry.Stats()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "healthy",
		Service:        ServiceName,
		Version:        Version,
		UptimeSeconds:  int64(time.Since(s.started).Seconds()),
		ActiveProjects: stats.ActiveProjects,
		ActivePeers:    stats.ActivePeers,
	})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		s.logger.Error("failed to list projects", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

type createProjectRequest struct {
	Name string `json:"name"`
}

type createProjectResponse struct {
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	projectID := uuid.NewString()
	if _, err := s.registry.Create(r.Context(), projectID, req.Name, "admin"); err != nil {
		s.logger.Error("failed to create project", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	meta, err := s.store.GetProjectMeta(r.Context(), projectID)
	if err != nil {
		s.logger.Error("failed to read back created project", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, createProjectResponse{ProjectID: meta.ID, Name: meta.Name, CreatedAt: meta.CreatedAt})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	meta, err := s.store.GetProjectMeta(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("failed to get project", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// handleDebugGraph renders the live room's change DAG, falling back to the
// persisted snapshot's history when the project has no active room. This
// endpoint is ops-only: it adds no wire-visible protocol behavior.
func (s *Server) handleDebugGraph(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var svg []byte
	if active, ok := s.registry.Get(id); ok {
		rendered, err := graphviz.RenderChangeGraph(active.Document())
		if err != nil {
			s.logger.Error("failed to render change graph", "project_id", id, "err", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		svg = rendered
	} else {
		loaded, err := s.store.LoadDocument(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err != nil {
			s.logger.Error("failed to load document for debug graph", "project_id", id, "err", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		rendered, err := graphviz.RenderChangeGraph(loaded)
		if err != nil {
			s.logger.Error("failed to render change graph", "project_id", id, "err", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		svg = rendered
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	_, _ = w.Write(svg)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade websocket", "err", err)
		return
	}

	conn := connection.New(ws, s.logger)
	sess := connection.NewSession(conn, s.registry, s.store, s.voice, s.logger).WithVoiceServerURL(s.cfg.LiveKitURL)
	if err := sess.Run(r.Context()); err != nil {
		s.logger.Info("connection closed", "err", err)
	}
}

// Handler returns the server's HTTP handler, for use with httptest or a
// custom http.Server.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves HTTP until ctx is cancelled, then drains background tasks and
// closes the store. Mirrors the teacher's signal-driven shutdown sequence
// in cmd/four/server/main.go, generalized to a caller-supplied context.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{Addr: s.cfg.Addr, Handler: s.router}

	bgCtx, cancelBG := context.WithCancel(context.Background())
	defer cancelBG()
	go s.registry.RunBackgroundTasks(bgCtx)
	go s.sweepSessions(bgCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		cancelBG()
		<-errCh
		return s.store.Close()
	case err := <-errCh:
		cancelBG()
		_ = s.store.Close()
		return err
	}
}

func (s *Server) sweepSessions(ctx context.Context) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n, err := s.store.DeleteExpiredSessions(ctx); err != nil {
				s.logger.Error("failed to sweep expired sessions", "err", err)
			} else if n > 0 {
				s.logger.Info("swept expired sessions", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
