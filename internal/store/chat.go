package store

import (
	"context"

	"github.com/pkg/errors"
)

// ChatRingSize is the default number of chat entries a room retains (§3
// ChatEntry: "A room retains the last N (default 200)").
const ChatRingSize = 200

// ChatMessage is one retained entry in a project's chat history.
type ChatMessage struct {
	Seq       int64
	PeerID    string
	PeerName  string
	Content   string
	Timestamp int64
}

// AppendChatMessage appends a chat entry, assigning it the next sequence
// number for the project.
func (s *Store) AppendChatMessage(ctx context.Context, projectID, peerID, peerName, content string, timestamp int64) (ChatMessage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ChatMessage{}, errors.Wrap(err, "store: begin tx")
	}
	defer tx.Rollback()

	var maxSeq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM chat_messages WHERE project_id = ?`, projectID).Scan(&maxSeq); err != nil {
		return ChatMessage{}, errors.Wrap(err, "store: max seq")
	}
	seq := maxSeq + 1

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chat_messages (project_id, seq, peer_id, peer_name, content, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		projectID, seq, peerID, peerName, content, timestamp,
	); err != nil {
		return ChatMessage{}, errors.Wrap(err, "store: insert chat")
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chat_messages WHERE project_id = ? AND seq <= ?`,
		projectID, seq-ChatRingSize,
	); err != nil {
		return ChatMessage{}, errors.Wrap(err, "store: trim chat ring")
	}
	if err := tx.Commit(); err != nil {
		return ChatMessage{}, errors.Wrap(err, "store: commit")
	}
	return ChatMessage{Seq: seq, PeerID: peerID, PeerName: peerName, Content: content, Timestamp: timestamp}, nil
}

// ChatHistory returns the most recent limit chat entries for a project, in
// chronological order.
func (s *Store) ChatHistory(ctx context.Context, projectID string, limit int) ([]ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, peer_id, peer_name, content, timestamp FROM chat_messages
		 WHERE project_id = ? ORDER BY seq DESC LIMIT ?`, projectID, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "store: chat history")
	}
	defer rows.Close()

	var out []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.Seq, &m.PeerID, &m.PeerName, &m.Content, &m.Timestamp); err != nil {
			return nil, errors.Wrap(err, "store: scan chat")
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
