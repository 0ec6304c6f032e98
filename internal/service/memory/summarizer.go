package memory

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/acoda/backend/internal/logger"
	"github.com/zhouzirui/acoda/backend/internal/model/chat"
	"github.com/zhouzirui/acoda/backend/internal/service/ai"
)

const (
	summaryWindow     = 10
	digestSnippetLen  = 50
	maxSummaryLen     = 1000
	digestSummaryHead = "Recent conversation topics: "
)

// Summarizer turns recent turns into a short digest.
type Summarizer interface {
	Summarize(ctx context.Context, turns []chat.Turn) (string, error)
}

// DigestSummarizer keeps the first characters of each of the last turns.
// The output is deterministic for a given input.
type DigestSummarizer struct{}

func (DigestSummarizer) Summarize(_ context.Context, turns []chat.Turn) (string, error) {
	recent := lastTurns(turns, summaryWindow)
	if len(recent) == 0 {
		return "", nil
	}

	snippets := make([]string, 0, len(recent))
	for _, turn := range recent {
		content := strings.Join(strings.Fields(turn.Content), " ")
		if content == "" {
			continue
		}
		snippets = append(snippets, truncateRunes(content, digestSnippetLen))
	}
	if len(snippets) == 0 {
		return "", nil
	}
	return truncateRunes(digestSummaryHead+strings.Join(snippets, "; "), maxSummaryLen), nil
}

// LLMSummarizer asks the language model for a short digest and falls back to
// the deterministic digest when the model is unavailable.
type LLMSummarizer struct {
	gateway  ai.Gateway
	fallback Summarizer
}

// NewLLMSummarizer builds a model-backed summarizer.
func NewLLMSummarizer(gateway ai.Gateway) *LLMSummarizer {
	return &LLMSummarizer{gateway: gateway, fallback: DigestSummarizer{}}
}

const summarizerSystemPrompt = `You maintain a companion's memory of a user. Summarise this conversation in 2-3 sentences.
Keep names, preferences, ongoing situations and feelings the user shared. Do not add anything that was not said.
Reply with the summary only.`

func (s *LLMSummarizer) Summarize(ctx context.Context, turns []chat.Turn) (string, error) {
	recent := lastTurns(turns, summaryWindow)
	if len(recent) == 0 {
		return "", nil
	}

	var transcript strings.Builder
	for _, turn := range recent {
		speaker := "Companion"
		if turn.IsUser() {
			speaker = "User"
		}
		transcript.WriteString(speaker)
		transcript.WriteString(": ")
		transcript.WriteString(strings.TrimSpace(turn.Content))
		transcript.WriteString("\n")
	}

	summary, err := s.gateway.Complete(ctx, []*schema.Message{
		schema.SystemMessage(summarizerSystemPrompt),
		schema.UserMessage(transcript.String()),
	})
	summary = strings.TrimSpace(summary)
	if err != nil || summary == "" {
		logger.WithComponent("memory").WithError(err).Debug("llm summary unavailable, using digest")
		return s.fallback.Summarize(ctx, turns)
	}
	return truncateRunes(summary, maxSummaryLen), nil
}

func lastTurns(turns []chat.Turn, n int) []chat.Turn {
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
