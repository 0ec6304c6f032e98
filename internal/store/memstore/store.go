// Package memstore keeps every entity in process memory. Suitable for local development and tests.
package memstore

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/acoda/backend/internal/model/account"
	"github.com/zhouzirui/acoda/backend/internal/model/chat"
	"github.com/zhouzirui/acoda/backend/internal/model/memory"
	"github.com/zhouzirui/acoda/backend/internal/store"
)

type usageKey struct {
	userID string
	day    string
}

// Store implements store.Store with RWMutex-guarded maps.
type Store struct {
	mu       sync.RWMutex
	users    map[string]account.User
	usages   map[usageKey]int
	memories map[string][]memory.Record
	sessions map[string]chat.Session
	messages map[string][]chat.Message
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		users:    make(map[string]account.User),
		usages:   make(map[usageKey]int),
		memories: make(map[string][]memory.Record),
		sessions: make(map[string]chat.Session),
		messages: make(map[string][]chat.Message),
	}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) CreateUser(_ context.Context, user *account.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return store.ErrConflict
	}
	if user.Email != "" {
		for _, existing := range s.users {
			if strings.EqualFold(existing.Email, user.Email) {
				return store.ErrConflict
			}
		}
	}
	s.users[user.ID] = *user
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (*account.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*account.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Email != "" && strings.EqualFold(user.Email, email) {
			found := user
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetUserByStripeCustomer(_ context.Context, customerID string) (*account.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.StripeCustomerID != "" && user.StripeCustomerID == customerID {
			found := user
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateUserPlan(_ context.Context, id string, plan account.Plan, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.Plan = plan
	user.UpdatedAt = now
	s.users[id] = user
	return nil
}

func (s *Store) SetStripeCustomer(_ context.Context, id, customerID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.StripeCustomerID = customerID
	user.UpdatedAt = now
	s.users[id] = user
	return nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.users, id)
	delete(s.memories, id)
	for key := range s.usages {
		if key.userID == id {
			delete(s.usages, key)
		}
	}
	for sessionID, session := range s.sessions {
		if session.UserID == id {
			delete(s.sessions, sessionID)
			delete(s.messages, sessionID)
		}
	}
	return nil
}

func (s *Store) GetVoiceCount(_ context.Context, userID, day string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usages[usageKey{userID: userID, day: day}], nil
}

func (s *Store) IncrementVoiceCount(_ context.Context, userID, day string, _ time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := usageKey{userID: userID, day: day}
	s.usages[key]++
	return s.usages[key], nil
}

func (s *Store) LatestActiveMemory(_ context.Context, userID string, now time.Time) (*memory.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *memory.Record
	for i := range s.memories[userID] {
		record := s.memories[userID][i]
		if !record.Active(now) {
			continue
		}
		if latest == nil || record.UpdatedAt.After(latest.UpdatedAt) {
			found := record
			latest = &found
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return latest, nil
}

func (s *Store) UpsertMemory(_ context.Context, userID, summary string, expiresAt, now time.Time) (*memory.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.memories[userID]
	latest := -1
	for i := range records {
		if latest == -1 || records[i].UpdatedAt.After(records[latest].UpdatedAt) {
			latest = i
		}
	}

	if latest >= 0 {
		records[latest].Summary = summary
		records[latest].ExpiresAt = expiresAt
		records[latest].UpdatedAt = now
		updated := records[latest]
		return &updated, nil
	}

	record := memory.Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		Summary:   summary,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.memories[userID] = append(records, record)
	return &record, nil
}

func (s *Store) DeleteMemories(_ context.Context, userID string) error {
	s.mu.Lock()
	delete(s.memories, userID)
	s.mu.Unlock()
	return nil
}

func (s *Store) CreateSession(_ context.Context, session *chat.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[session.UserID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := s.sessions[session.ID]; ok {
		return store.ErrConflict
	}

	stored := *session
	stored.Messages = nil
	s.sessions[session.ID] = stored
	s.messages[session.ID] = make([]chat.Message, 0, 16)
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (*chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &session, nil
}

func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.sessions, id)
	delete(s.messages, id)
	return nil
}

func (s *Store) AppendMessage(_ context.Context, message *chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[message.SessionID]; !ok {
		return store.ErrNotFound
	}
	s.messages[message.SessionID] = append(s.messages[message.SessionID], *message)
	return nil
}

func (s *Store) ListMessages(_ context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[sessionID]
	if !ok {
		return nil, store.ErrNotFound
	}

	// creation order; equal timestamps keep append order
	copied := slices.Clone(messages)
	slices.SortStableFunc(copied, func(a, b chat.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return copied, nil
}
