package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/acoda/backend/internal/model/chat"
	"github.com/zhouzirui/acoda/backend/internal/model/persona"
)

// PromptBuilder assembles the ordered prompt sent to the gateway:
// system policy (with memory summary), prior turns, then the new user turn.
type PromptBuilder struct {
	persona  persona.Persona
	template prompt.ChatTemplate
}

// NewPromptBuilder creates a builder speaking as p.
func NewPromptBuilder(p persona.Persona) *PromptBuilder {
	if p.Name == "" {
		p = persona.Seed()[0]
	}

	return &PromptBuilder{
		persona: p,
		template: prompt.FromMessages(
			schema.FString,
			schema.SystemMessage("{system}"),
			schema.MessagesPlaceholder("history", true),
			schema.UserMessage("{query}"),
		),
	}
}

// Build renders the prompt for one turn.
func (b *PromptBuilder) Build(ctx context.Context, summary string, history []chat.Turn, userText string) ([]*schema.Message, error) {
	messages, err := b.template.Format(ctx, map[string]any{
		"system":  b.SystemPrompt(summary),
		"history": HistoryMessages(history),
		"query":   userText,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to format prompt: %w", err)
	}
	return messages, nil
}

// SystemPrompt returns the behavioural policy, embedding summary when present.
func (b *PromptBuilder) SystemPrompt(summary string) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "You are %s, a %s. You speak in a %s manner.\n\n", b.persona.Name, b.persona.Title, b.persona.Tone)

	if summary = strings.TrimSpace(summary); summary != "" {
		builder.WriteString("Context from previous conversations:\n")
		builder.WriteString(summary)
		builder.WriteString("\n\n")
	}

	builder.WriteString(`Guidelines:
- Be warm and brief in your responses
- Ask clarifying questions when needed
- Never claim to be human or have real experiences
- Do not provide medical, legal, or financial advice
- If you detect crisis or danger, suggest seeking professional help

Keep responses conversational and natural.`)
	return builder.String()
}

// HistoryMessages maps stored turns onto model roles; anything not spoken by
// the user is treated as the assistant.
func HistoryMessages(history []chat.Turn) []*schema.Message {
	if len(history) == 0 {
		return nil
	}

	messages := make([]*schema.Message, 0, len(history))
	for _, turn := range history {
		if turn.IsUser() {
			messages = append(messages, schema.UserMessage(turn.Content))
			continue
		}
		messages = append(messages, schema.AssistantMessage(turn.Content, nil))
	}
	return messages
}
