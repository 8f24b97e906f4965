// Package store persists project documents, chat history, and session
// tokens to a local sqlite database, the single-node durability layer
// standing in for the original's embedded log-structured store.
package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/astromechza/codecollab/internal/document"
)

// ErrNotFound is returned when a lookup misses.
var ErrNotFound = errors.New("store: not found")

// Config controls where and how the store persists data.
type Config struct {
	// Path is the sqlite database file path, e.g. "./data/collab.sqlite3".
	Path string
	// FlushInterval is carried in the config but read by nothing in this
	// module: the room registry's save loop runs on room.SaveInterval. The
	// store itself is always write-through per call.
	FlushInterval time.Duration
}

// DefaultConfig mirrors the original's storage defaults, adapted to sqlite.
func DefaultConfig() Config {
	return Config{Path: "./data/collab.sqlite3", FlushInterval: 500 * time.Millisecond}
}

// Store is a sqlite-backed durable KV layer for projects.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at cfg.Path and
// ensures its schema exists.
func Open(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, errors.Wrap(err, "store: open")
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT NOT NULL PRIMARY KEY,
			name TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			project_id TEXT NOT NULL PRIMARY KEY,
			snapshot BLOB NOT NULL,
			change_count INTEGER NOT NULL DEFAULT 0,
			size_bytes INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL,
			FOREIGN KEY(project_id) REFERENCES projects(id)
		)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			project_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			peer_id TEXT NOT NULL,
			peer_name TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			PRIMARY KEY(project_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT NOT NULL PRIMARY KEY,
			peer_id TEXT NOT NULL,
			name TEXT NOT NULL,
			color TEXT NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrapf(err, "store: init schema: %s", stmt)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// ProjectMeta describes a project's catalog entry independent of its
// document content.
type ProjectMeta struct {
	ID        string `json:"project_id"`
	Name      string `json:"name"`
	OwnerID   string `json:"owner_id"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// CreateProject registers a new project and its initial empty document.
func (s *Store) CreateProject(ctx context.Context, id, name, ownerID string) (*document.Document, error) {
	doc, err := document.New(name, ownerID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "store: begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO projects (id, name, owner_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, name, ownerID, now, now,
	); err != nil {
		return nil, errors.Wrap(err, "store: insert project")
	}

	snapshot := doc.Save()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (project_id, snapshot, change_count, size_bytes, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, snapshot, 1, len(snapshot), now,
	); err != nil {
		return nil, errors.Wrap(err, "store: insert document")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "store: commit")
	}
	return doc, nil
}

// LoadDocument loads a project's current document snapshot.
func (s *Store) LoadDocument(ctx context.Context, projectID string) (*document.Document, error) {
	var snapshot []byte
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM documents WHERE project_id = ?`, projectID).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "project %s", projectID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "store: load document")
	}
	return document.Load(snapshot)
}

// SaveDocument writes a project's current document state, atomically
// replacing the prior snapshot within a single transaction.
func (s *Store) SaveDocument(ctx context.Context, projectID string, doc *document.Document) error {
	snapshot := doc.Save()
	changes, err := doc.Changes()
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "store: begin tx")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE documents SET snapshot = ?, change_count = ?, size_bytes = ?, updated_at = ? WHERE project_id = ?`,
		snapshot, len(changes), len(snapshot), now, projectID,
	)
	if err != nil {
		return errors.Wrap(err, "store: update document")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "project %s", projectID)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE projects SET updated_at = ? WHERE id = ?`, now, projectID); err != nil {
		return errors.Wrap(err, "store: touch project")
	}
	return tx.Commit()
}

// ProjectExists reports whether a project id is already registered.
func (s *Store) ProjectExists(ctx context.Context, id string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM projects WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, errors.Wrap(err, "store: exists")
	}
	return count > 0, nil
}

// GetProjectMeta returns a project's catalog entry.
func (s *Store) GetProjectMeta(ctx context.Context, id string) (ProjectMeta, error) {
	var m ProjectMeta
	m.ID = id
	err := s.db.QueryRowContext(ctx,
		`SELECT name, owner_id, created_at, updated_at FROM projects WHERE id = ?`, id,
	).Scan(&m.Name, &m.OwnerID, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ProjectMeta{}, errors.Wrapf(ErrNotFound, "project %s", id)
	}
	if err != nil {
		return ProjectMeta{}, errors.Wrap(err, "store: get project meta")
	}
	return m, nil
}

// ListProjects returns every registered project's catalog entry.
func (s *Store) ListProjects(ctx context.Context) ([]ProjectMeta, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, owner_id, created_at, updated_at FROM projects ORDER BY created_at`)
	if err != nil {
		return nil, errors.Wrap(err, "store: list projects")
	}
	defer rows.Close()

	var out []ProjectMeta
	for rows.Next() {
		var m ProjectMeta
		if err := rows.Scan(&m.ID, &m.Name, &m.OwnerID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "store: scan project")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
