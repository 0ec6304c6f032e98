// Package store defines the persistence contracts shared by the in-memory and SQL backends.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/zhouzirui/acoda/backend/internal/model/account"
	"github.com/zhouzirui/acoda/backend/internal/model/chat"
	"github.com/zhouzirui/acoda/backend/internal/model/memory"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

// UserStore persists users and their plan.
type UserStore interface {
	CreateUser(ctx context.Context, user *account.User) error
	GetUser(ctx context.Context, id string) (*account.User, error)
	GetUserByEmail(ctx context.Context, email string) (*account.User, error)
	GetUserByStripeCustomer(ctx context.Context, customerID string) (*account.User, error)
	UpdateUserPlan(ctx context.Context, id string, plan account.Plan, now time.Time) error
	SetStripeCustomer(ctx context.Context, id, customerID string, now time.Time) error
	// DeleteUser removes the user and everything owned by it.
	DeleteUser(ctx context.Context, id string) error
}

// UsageStore keeps one counter per (user, day).
type UsageStore interface {
	// GetVoiceCount returns 0 when no record exists for the day.
	GetVoiceCount(ctx context.Context, userID, day string) (int, error)
	// IncrementVoiceCount atomically adds one and returns the new count.
	IncrementVoiceCount(ctx context.Context, userID, day string, now time.Time) (int, error)
}

// MemoryStore keeps rolling summaries.
type MemoryStore interface {
	// LatestActiveMemory returns the most recently updated record expiring after now.
	LatestActiveMemory(ctx context.Context, userID string, now time.Time) (*memory.Record, error)
	// UpsertMemory updates the most recent record in place (expired or not), or inserts one.
	UpsertMemory(ctx context.Context, userID, summary string, expiresAt, now time.Time) (*memory.Record, error)
	DeleteMemories(ctx context.Context, userID string) error
}

// SessionStore keeps sessions and their append-only messages.
type SessionStore interface {
	CreateSession(ctx context.Context, session *chat.Session) error
	GetSession(ctx context.Context, id string) (*chat.Session, error)
	DeleteSession(ctx context.Context, id string) error
	AppendMessage(ctx context.Context, message *chat.Message) error
	// ListMessages returns messages in creation order.
	ListMessages(ctx context.Context, sessionID string) ([]chat.Message, error)
}

// Store aggregates every persistence concern behind one handle.
type Store interface {
	UserStore
	UsageStore
	MemoryStore
	SessionStore
	Close() error
}
