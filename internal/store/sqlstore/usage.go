package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func (s *Store) GetVoiceCount(ctx context.Context, userID, day string) (int, error) {
	var count int
	err := s.queryRow(ctx, `SELECT voice_count FROM usages WHERE user_id = ? AND day = ?`, userID, day).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get voice count: %w", err)
	}
	return count, nil
}

// IncrementVoiceCount upserts and increments in one statement so concurrent
// callers never observe the same count.
func (s *Store) IncrementVoiceCount(ctx context.Context, userID, day string, now time.Time) (int, error) {
	var count int
	err := s.queryRow(ctx, `
		INSERT INTO usages (id, user_id, day, voice_count, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT (user_id, day)
		DO UPDATE SET voice_count = usages.voice_count + 1, updated_at = excluded.updated_at
		RETURNING voice_count`,
		uuid.NewString(), userID, day, now.UTC(), now.UTC(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment voice count: %w", err)
	}
	return count, nil
}
