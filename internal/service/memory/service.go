// Package memory keeps the rolling per-user conversation summary.
package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zhouzirui/acoda/backend/internal/logger"
	"github.com/zhouzirui/acoda/backend/internal/model/account"
	"github.com/zhouzirui/acoda/backend/internal/model/chat"
	"github.com/zhouzirui/acoda/backend/internal/model/memory"
	"github.com/zhouzirui/acoda/backend/internal/store"
)

const (
	DefaultFreeRetention = 24 * time.Hour
	DefaultProRetention  = 90 * 24 * time.Hour
)

// Config 控制保留期与摘要策略。
type Config struct {
	FreeRetention time.Duration
	ProRetention  time.Duration
	Summarizer    Summarizer
	Now           func() time.Time
}

// Service implements summary lookup, upsert and expiry.
type Service struct {
	store         store.MemoryStore
	summarizer    Summarizer
	freeRetention time.Duration
	proRetention  time.Duration
	now           func() time.Time
}

// NewService fills zero config values with the defaults.
func NewService(st store.MemoryStore, cfg Config) *Service {
	if cfg.FreeRetention <= 0 {
		cfg.FreeRetention = DefaultFreeRetention
	}
	if cfg.ProRetention <= 0 {
		cfg.ProRetention = DefaultProRetention
	}
	if cfg.Summarizer == nil {
		cfg.Summarizer = DigestSummarizer{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:         st,
		summarizer:    cfg.Summarizer,
		freeRetention: cfg.FreeRetention,
		proRetention:  cfg.ProRetention,
		now:           cfg.Now,
	}
}

// Retention returns how long a summary lives for the plan.
func (s *Service) Retention(plan account.Plan) time.Duration {
	if plan == account.PlanPro {
		return s.proRetention
	}
	return s.freeRetention
}

// GetSummary returns the latest active summary, or "" when none exists.
func (s *Service) GetSummary(ctx context.Context, userID string) (string, error) {
	record, err := s.store.LatestActiveMemory(ctx, userID, s.now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read memory: %w", err)
	}
	return record.Summary, nil
}

// UpdateSummary upserts the summary; expiry is always now + retention(plan).
func (s *Service) UpdateSummary(ctx context.Context, userID, summary string, plan account.Plan) (*memory.Record, error) {
	now := s.now().UTC()
	record, err := s.store.UpsertMemory(ctx, userID, summary, now.Add(s.Retention(plan)), now)
	if err != nil {
		return nil, fmt.Errorf("upsert memory: %w", err)
	}

	logger.WithComponent("memory").WithFields(map[string]any{
		"user_id":    userID,
		"plan":       plan,
		"expires_at": record.ExpiresAt,
	}).Debug("memory summary updated")
	return record, nil
}

// GenerateSummary condenses turns with the configured strategy.
func (s *Service) GenerateSummary(ctx context.Context, turns []chat.Turn) (string, error) {
	return s.summarizer.Summarize(ctx, turns)
}

// Clear deletes every memory record of the user. Idempotent.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.store.DeleteMemories(ctx, userID); err != nil {
		return fmt.Errorf("clear memory: %w", err)
	}
	logger.WithComponent("memory").WithField("user_id", userID).Info("memory cleared")
	return nil
}
