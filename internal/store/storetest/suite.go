// Package storetest holds behaviour checks shared by every store.Store implementation.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/acoda/backend/internal/model/account"
	"github.com/zhouzirui/acoda/backend/internal/model/chat"
	"github.com/zhouzirui/acoda/backend/internal/store"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run executes the shared checks against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("usage increments atomically", func(t *testing.T) { testUsageConcurrency(t, newStore(t)) })
	t.Run("memory upsert and expiry", func(t *testing.T) { testMemory(t, newStore(t)) })
	t.Run("sessions and messages", func(t *testing.T) { testSessions(t, newStore(t)) })
	t.Run("delete user cascades", func(t *testing.T) { testDeleteCascade(t, newStore(t)) })
}

// NewUser inserts a user with the given plan.
func NewUser(t *testing.T, s store.Store, plan account.Plan) *account.User {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	user := &account.User{ID: uuid.NewString(), Plan: plan, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateUser(context.Background(), user))
	return user
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC()

	user := &account.User{ID: uuid.NewString(), Email: "Someone@Example.com", Plan: account.PlanFree, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateUser(ctx, user))

	dup := &account.User{ID: uuid.NewString(), Email: "someone@example.com", Plan: account.PlanFree, CreatedAt: now, UpdatedAt: now}
	assert.ErrorIs(t, s.CreateUser(ctx, dup), store.ErrConflict)

	byEmail, err := s.GetUserByEmail(ctx, "someone@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	// anonymous users do not collide on the empty email
	NewUser(t, s, account.PlanFree)
	NewUser(t, s, account.PlanFree)

	require.NoError(t, s.UpdateUserPlan(ctx, user.ID, account.PlanPro, now))
	require.NoError(t, s.SetStripeCustomer(ctx, user.ID, "cus_123", now))

	got, err := s.GetUserByStripeCustomer(ctx, "cus_123")
	require.NoError(t, err)
	assert.Equal(t, account.PlanPro, got.Plan)
	assert.Equal(t, user.ID, got.ID)

	_, err = s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.UpdateUserPlan(ctx, "missing", account.PlanPro, now), store.ErrNotFound)
}

func testUsageConcurrency(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := NewUser(t, s, account.PlanFree)
	day := "2026-10-15"

	count, err := s.GetVoiceCount(ctx, user.ID, day)
	require.NoError(t, err)
	assert.Zero(t, count)

	const workers = 20
	var wg sync.WaitGroup
	results := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.IncrementVoiceCount(ctx, user.ID, day, time.Now())
			if assert.NoError(t, err) {
				results <- n
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int]bool, workers)
	for n := range results {
		assert.False(t, seen[n], "count %d observed twice", n)
		seen[n] = true
	}
	assert.Len(t, seen, workers)

	count, err = s.GetVoiceCount(ctx, user.ID, day)
	require.NoError(t, err)
	assert.Equal(t, workers, count)

	other, err := s.GetVoiceCount(ctx, user.ID, "2026-10-16")
	require.NoError(t, err)
	assert.Zero(t, other)
}

func testMemory(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := NewUser(t, s, account.PlanFree)
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	_, err := s.LatestActiveMemory(ctx, user.ID, now)
	assert.ErrorIs(t, err, store.ErrNotFound)

	first, err := s.UpsertMemory(ctx, user.ID, "first", now.Add(24*time.Hour), now)
	require.NoError(t, err)

	later := now.Add(time.Hour)
	second, err := s.UpsertMemory(ctx, user.ID, "second", later.Add(24*time.Hour), later)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "upsert must update the existing record")

	active, err := s.LatestActiveMemory(ctx, user.ID, later)
	require.NoError(t, err)
	assert.Equal(t, "second", active.Summary)
	assert.True(t, active.ExpiresAt.Equal(later.Add(24*time.Hour)))

	_, err = s.LatestActiveMemory(ctx, user.ID, later.Add(25*time.Hour))
	assert.ErrorIs(t, err, store.ErrNotFound)

	// expired records are still refreshed in place
	revived, err := s.UpsertMemory(ctx, user.ID, "third", later.Add(50*time.Hour), later.Add(26*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, first.ID, revived.ID)

	require.NoError(t, s.DeleteMemories(ctx, user.ID))
	require.NoError(t, s.DeleteMemories(ctx, user.ID))
	_, err = s.LatestActiveMemory(ctx, user.ID, later.Add(26*time.Hour))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testSessions(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := NewUser(t, s, account.PlanFree)
	now := time.Now().UTC().Truncate(time.Millisecond)

	assert.ErrorIs(t, s.CreateSession(ctx, &chat.Session{ID: uuid.NewString(), UserID: "missing", CreatedAt: now}), store.ErrNotFound)

	session := &chat.Session{ID: uuid.NewString(), UserID: user.ID, CreatedAt: now}
	require.NoError(t, s.CreateSession(ctx, session))

	// same timestamp keeps insertion order
	for i, role := range []chat.Role{chat.RoleUser, chat.RoleAssistant, chat.RoleUser} {
		msg := &chat.Message{ID: uuid.NewString(), SessionID: session.ID, Role: role, Content: string(rune('a' + i)), CreatedAt: now}
		require.NoError(t, s.AppendMessage(ctx, msg))
	}

	messages, err := s.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{messages[0].Content, messages[1].Content, messages[2].Content})
	assert.Equal(t, chat.RoleAssistant, messages[1].Role)

	// a message stamped earlier sorts before ones appended ahead of it
	late := &chat.Message{ID: uuid.NewString(), SessionID: session.ID, Role: chat.RoleUser, Content: "z", CreatedAt: now.Add(time.Minute)}
	early := &chat.Message{ID: uuid.NewString(), SessionID: session.ID, Role: chat.RoleAssistant, Content: "0", CreatedAt: now.Add(-time.Minute)}
	require.NoError(t, s.AppendMessage(ctx, late))
	require.NoError(t, s.AppendMessage(ctx, early))

	messages, err = s.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	contents := make([]string, 0, len(messages))
	for _, m := range messages {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"0", "a", "b", "c", "z"}, contents)

	assert.ErrorIs(t, s.AppendMessage(ctx, &chat.Message{ID: uuid.NewString(), SessionID: "missing", Role: chat.RoleUser, Content: "x", CreatedAt: now}), store.ErrNotFound)

	require.NoError(t, s.DeleteSession(ctx, session.ID))
	_, err = s.GetSession(ctx, session.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.ListMessages(ctx, session.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDeleteCascade(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := NewUser(t, s, account.PlanFree)
	now := time.Now().UTC()

	session := &chat.Session{ID: uuid.NewString(), UserID: user.ID, CreatedAt: now}
	require.NoError(t, s.CreateSession(ctx, session))
	require.NoError(t, s.AppendMessage(ctx, &chat.Message{ID: uuid.NewString(), SessionID: session.ID, Role: chat.RoleUser, Content: "hi", CreatedAt: now}))
	_, err := s.UpsertMemory(ctx, user.ID, "summary", now.Add(time.Hour), now)
	require.NoError(t, err)
	_, err = s.IncrementVoiceCount(ctx, user.ID, "2026-10-15", now)
	require.NoError(t, err)

	require.NoError(t, s.DeleteUser(ctx, user.ID))

	_, err = s.GetUser(ctx, user.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetSession(ctx, session.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.LatestActiveMemory(ctx, user.ID, now)
	assert.ErrorIs(t, err, store.ErrNotFound)
	count, err := s.GetVoiceCount(ctx, user.ID, "2026-10-15")
	require.NoError(t, err)
	assert.Zero(t, count)
}
