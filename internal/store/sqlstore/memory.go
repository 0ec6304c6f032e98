package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/acoda/backend/internal/model/memory"
	"github.com/zhouzirui/acoda/backend/internal/store"
)

const memoryColumns = `id, user_id, summary, expires_at, created_at, updated_at`

func (s *Store) LatestActiveMemory(ctx context.Context, userID string, now time.Time) (*memory.Record, error) {
	row := s.queryRow(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE user_id = ? AND expires_at > ?
		ORDER BY updated_at DESC
		LIMIT 1`, userID, now.UTC())

	var r memory.Record
	err := row.Scan(&r.ID, &r.UserID, &r.Summary, &r.ExpiresAt, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan memory: %w", err)
	}
	return &r, nil
}

func (s *Store) UpsertMemory(ctx context.Context, userID, summary string, expiresAt, now time.Time) (*memory.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin memory upsert: %w", err)
	}
	defer tx.Rollback()

	var (
		id        string
		createdAt time.Time
	)
	err = tx.QueryRowContext(ctx, s.rebind(`
		SELECT id, created_at FROM memories
		WHERE user_id = ?
		ORDER BY updated_at DESC
		LIMIT 1`), userID).Scan(&id, &createdAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = uuid.NewString()
		createdAt = now.UTC()
		_, err = tx.ExecContext(ctx, s.rebind(`
			INSERT INTO memories (`+memoryColumns+`) VALUES (?, ?, ?, ?, ?, ?)`),
			id, userID, summary, expiresAt.UTC(), createdAt, now.UTC())
		if err != nil {
			return nil, fmt.Errorf("insert memory: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("select memory: %w", err)
	default:
		_, err = tx.ExecContext(ctx, s.rebind(`
			UPDATE memories SET summary = ?, expires_at = ?, updated_at = ? WHERE id = ?`),
			summary, expiresAt.UTC(), now.UTC(), id)
		if err != nil {
			return nil, fmt.Errorf("update memory: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit memory upsert: %w", err)
	}

	return &memory.Record{
		ID:        id,
		UserID:    userID,
		Summary:   summary,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: createdAt,
		UpdatedAt: now.UTC(),
	}, nil
}

func (s *Store) DeleteMemories(ctx context.Context, userID string) error {
	if _, err := s.exec(ctx, `DELETE FROM memories WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete memories: %w", err)
	}
	return nil
}
