package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/acoda/backend/internal/config"
	"github.com/zhouzirui/acoda/backend/internal/service/emotion"
	"github.com/zhouzirui/acoda/backend/internal/service/orchestrator"
)

func TestOpenStoreDrivers(t *testing.T) {
	ctx := context.Background()

	st, err := OpenStore(ctx, config.StoreConfig{Driver: "memory"})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = OpenStore(ctx, config.StoreConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "acoda.db")})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = OpenStore(ctx, config.StoreConfig{Driver: "mongo"})
	assert.Error(t, err)
}

func TestNewServicesWithoutCredentials(t *testing.T) {
	ctx := context.Background()
	st, err := OpenStore(ctx, config.StoreConfig{Driver: "memory"})
	require.NoError(t, err)

	cfg := &config.Config{}
	svcs, err := NewServices(ctx, cfg, st)
	require.NoError(t, err)

	assert.False(t, svcs.Speech.Enabled())
	assert.False(t, svcs.Billing.Enabled())

	user, err := svcs.Accounts.CreateUser(ctx, "")
	require.NoError(t, err)
	session, err := svcs.Sessions.CreateSession(ctx, user.ID)
	require.NoError(t, err)

	// 无模型凭证时仍能完成一轮降级对话
	resp, err := svcs.Orchestrator.ProcessTurn(ctx, orchestrator.TurnRequest{UserID: user.ID, SessionID: session.ID, UserText: "hello"})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Equal(t, emotion.DefaultTags(), resp.ControlTags)

	deps := svcs.RouterDeps(cfg)
	assert.Same(t, svcs.Accounts, deps.Accounts)
}

func TestNewServicesRejectsUnknownTagMode(t *testing.T) {
	ctx := context.Background()
	st, err := OpenStore(ctx, config.StoreConfig{})
	require.NoError(t, err)

	_, err = NewServices(ctx, &config.Config{AI: config.AIConfig{ControlTagsMode: "vibes"}}, st)
	assert.Error(t, err)
}
