package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// Session is a reconnection record binding a session token to the
// peer identity and display color it was originally issued with.
type Session struct {
	Token     string
	PeerID    string
	Name      string
	Color     string
	ExpiresAt int64
}

// SessionTTL is how long a session token remains eligible for restore after
// issuance, per the protocol's reconnection window.
const SessionTTL = 24 * time.Hour

// PutSession upserts a session token's reconnection record.
func (s *Store) PutSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, peer_id, name, color, expires_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(token) DO UPDATE SET peer_id = excluded.peer_id, name = excluded.name,
		 color = excluded.color, expires_at = excluded.expires_at`,
		sess.Token, sess.PeerID, sess.Name, sess.Color, sess.ExpiresAt,
	)
	if err != nil {
		return errors.Wrap(err, "store: put session")
	}
	return nil
}

// GetSession looks up a still-valid session by token.
func (s *Store) GetSession(ctx context.Context, token string) (Session, error) {
	var sess Session
	sess.Token = token
	err := s.db.QueryRowContext(ctx,
		`SELECT peer_id, name, color, expires_at FROM sessions WHERE token = ?`, token,
	).Scan(&sess.PeerID, &sess.Name, &sess.Color, &sess.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, errors.Wrapf(ErrNotFound, "session %s", token)
	}
	if err != nil {
		return Session{}, errors.Wrap(err, "store: get session")
	}
	if sess.ExpiresAt < time.Now().UnixMilli() {
		return Session{}, errors.Wrapf(ErrNotFound, "session %s expired", token)
	}
	return sess, nil
}

// DeleteExpiredSessions removes every session token past its expiry,
// returning how many were removed.
func (s *Store) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, time.Now().UnixMilli())
	if err != nil {
		return 0, errors.Wrap(err, "store: delete expired sessions")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "store: rows affected")
	}
	return n, nil
}
