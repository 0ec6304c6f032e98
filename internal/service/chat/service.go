package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/acoda/backend/internal/model/chat"
	"github.com/zhouzirui/acoda/backend/internal/store"
)

var (
	ErrUserRequired    = errors.New("user id is required")
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidRole     = errors.New("invalid message role")
	ErrEmptyContent    = errors.New("message content is empty")
)

// Service encapsulates conversation state management.
type Service struct {
	store store.SessionStore
	now   func() time.Time
}

// NewService builds the transcript service on top of a session store.
func NewService(st store.SessionStore) *Service {
	return &Service{store: st, now: time.Now}
}

// CreateSession provisions an empty session owned by userID.
func (s *Service) CreateSession(ctx context.Context, userID string) (chat.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return chat.Session{}, ErrUserRequired
	}

	session := chat.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: s.now().UTC(),
	}

	if err := s.store.CreateSession(ctx, &session); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return chat.Session{}, ErrUserNotFound
		}
		return chat.Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// GetSession retrieves a session together with its ordered messages.
func (s *Service) GetSession(ctx context.Context, sessionID string) (chat.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return chat.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return chat.Session{}, fmt.Errorf("get session: %w", err)
	}

	messages, err := s.LoadTranscript(ctx, sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	session.Messages = messages
	return *session, nil
}

// AppendMessage adds one entry to the session transcript.
func (s *Service) AppendMessage(ctx context.Context, sessionID string, role chat.Role, content string) (chat.Message, error) {
	if sessionID == "" {
		return chat.Message{}, ErrSessionNotFound
	}
	if _, ok := chat.ParseRole(string(role)); !ok {
		return chat.Message{}, ErrInvalidRole
	}
	if strings.TrimSpace(content) == "" {
		return chat.Message{}, ErrEmptyContent
	}

	message := chat.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: s.now().UTC(),
	}

	if err := s.store.AppendMessage(ctx, &message); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return chat.Message{}, ErrSessionNotFound
		}
		return chat.Message{}, fmt.Errorf("append message: %w", err)
	}
	return message, nil
}

// LoadTranscript returns stored messages for the provided session.
func (s *Service) LoadTranscript(ctx context.Context, sessionID string) ([]chat.Message, error) {
	messages, err := s.store.ListMessages(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// History returns the transcript as ordered role/content turns.
func (s *Service) History(ctx context.Context, sessionID string) ([]chat.Turn, error) {
	messages, err := s.LoadTranscript(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return chat.TurnsFromMessages(messages), nil
}

// DeleteSession removes the session and its messages.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	err := s.store.DeleteSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
