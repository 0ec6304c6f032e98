package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/acoda/backend/internal/model/account"
	"github.com/zhouzirui/acoda/backend/internal/model/chat"
	"github.com/zhouzirui/acoda/backend/internal/store/memstore"
	"github.com/zhouzirui/acoda/backend/internal/store/storetest"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func setup(t *testing.T) (*Service, *clock, string) {
	t.Helper()
	st := memstore.New()
	user := storetest.NewUser(t, st, account.PlanFree)
	c := &clock{now: time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)}
	return NewService(st, Config{Now: c.Now}), c, user.ID
}

func TestRetentionFreeShorterThanPro(t *testing.T) {
	svc, _, _ := setup(t)
	assert.Equal(t, 24*time.Hour, svc.Retention(account.PlanFree))
	assert.Equal(t, 90*24*time.Hour, svc.Retention(account.PlanPro))
	assert.Less(t, svc.Retention(account.PlanFree), svc.Retention(account.PlanPro))
}

func TestUpdateThenGetSummary(t *testing.T) {
	ctx := context.Background()
	svc, c, userID := setup(t)

	summary, err := svc.GetSummary(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, summary)

	record, err := svc.UpdateSummary(ctx, userID, "likes tea", account.PlanFree)
	require.NoError(t, err)
	assert.True(t, record.ExpiresAt.Equal(c.now.Add(24*time.Hour)))

	summary, err = svc.GetSummary(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "likes tea", summary)

	c.now = c.now.Add(24*time.Hour + time.Second)
	summary, err = svc.GetSummary(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, summary, "expired summaries are invisible")
}

func TestUpdateRecomputesExpiryFromNow(t *testing.T) {
	ctx := context.Background()
	svc, c, userID := setup(t)

	first, err := svc.UpdateSummary(ctx, userID, "v1", account.PlanPro)
	require.NoError(t, err)

	c.now = c.now.Add(time.Hour)
	second, err := svc.UpdateSummary(ctx, userID, "v2", account.PlanFree)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.ExpiresAt.Equal(c.now.Add(24*time.Hour)), "expiry is not extended from the old value")
}

func TestClearIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _, userID := setup(t)

	_, err := svc.UpdateSummary(ctx, userID, "something", account.PlanPro)
	require.NoError(t, err)

	require.NoError(t, svc.Clear(ctx, userID))
	require.NoError(t, svc.Clear(ctx, userID))

	summary, err := svc.GetSummary(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, summary)
}

func TestDigestSummarizer(t *testing.T) {
	turns := make([]chat.Turn, 0, 12)
	for i := 0; i < 12; i++ {
		turns = append(turns, chat.Turn{Role: "USER", Content: string(rune('a' + i))})
	}

	summary, err := DigestSummarizer{}.Summarize(context.Background(), turns)
	require.NoError(t, err)
	assert.Equal(t, "Recent conversation topics: c; d; e; f; g; h; i; j; k; l", summary)

	again, err := DigestSummarizer{}.Summarize(context.Background(), turns)
	require.NoError(t, err)
	assert.Equal(t, summary, again)

	long := chat.Turn{Role: "USER", Content: strings.Repeat("你好", 40)}
	summary, err = DigestSummarizer{}.Summarize(context.Background(), []chat.Turn{long})
	require.NoError(t, err)
	assert.Equal(t, "Recent conversation topics: "+strings.Repeat("你好", 25), summary)

	empty, err := DigestSummarizer{}.Summarize(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDigestSummarizerIsBounded(t *testing.T) {
	turns := make([]chat.Turn, 10)
	for i := range turns {
		turns[i] = chat.Turn{Role: "ASSISTANT", Content: strings.Repeat("x", 500)}
	}
	summary, err := DigestSummarizer{}.Summarize(context.Background(), turns)
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(summary)), 1000)
}

type stubGateway struct {
	reply string
	err   error
	seen  []*schema.Message
}

func (g *stubGateway) Complete(_ context.Context, messages []*schema.Message) (string, error) {
	g.seen = messages
	return g.reply, g.err
}

func TestLLMSummarizer(t *testing.T) {
	turns := []chat.Turn{{Role: "USER", Content: "I adopted a cat"}, {Role: "ASSISTANT", Content: "Lovely!"}}

	gw := &stubGateway{reply: "  The user adopted a cat.  "}
	summary, err := NewLLMSummarizer(gw).Summarize(context.Background(), turns)
	require.NoError(t, err)
	assert.Equal(t, "The user adopted a cat.", summary)
	require.Len(t, gw.seen, 2)
	assert.Contains(t, gw.seen[1].Content, "User: I adopted a cat\nCompanion: Lovely!")

	gw = &stubGateway{err: errors.New("offline")}
	summary, err = NewLLMSummarizer(gw).Summarize(context.Background(), turns)
	require.NoError(t, err)
	assert.Equal(t, "Recent conversation topics: I adopted a cat; Lovely!", summary)
}

func TestServiceUsesInjectedSummarizer(t *testing.T) {
	svc := NewService(memstore.New(), Config{Summarizer: NewLLMSummarizer(&stubGateway{reply: "digest"})})
	summary, err := svc.GenerateSummary(context.Background(), []chat.Turn{{Role: "USER", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "digest", summary)
}
