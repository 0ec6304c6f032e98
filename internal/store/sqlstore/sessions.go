package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/zhouzirui/acoda/backend/internal/model/chat"
	"github.com/zhouzirui/acoda/backend/internal/store"
)

func (s *Store) CreateSession(ctx context.Context, session *chat.Session) error {
	_, err := s.exec(ctx, `INSERT INTO sessions (id, user_id, created_at) VALUES (?, ?, ?)`,
		session.ID, session.UserID, session.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	if isForeignKeyViolation(err) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*chat.Session, error) {
	var session chat.Session
	err := s.queryRow(ctx, `SELECT id, user_id, created_at FROM sessions WHERE id = ?`, id).
		Scan(&session.ID, &session.UserID, &session.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &session, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) AppendMessage(ctx context.Context, message *chat.Message) error {
	_, err := s.exec(ctx,
		`INSERT INTO messages (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		message.ID, message.SessionID, string(message.Role), message.Content, message.CreatedAt.UTC())
	if isForeignKeyViolation(err) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.query(ctx, `
		SELECT id, session_id, role, content, created_at FROM messages
		WHERE session_id = ?
		ORDER BY created_at ASC, seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]chat.Message, 0, 16)
	for rows.Next() {
		var (
			msg  chat.Message
			role string
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = chat.Role(role)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "foreign key")
}
