package chat

import (
	"strings"
	"time"
)

// Role 标识消息的发送方。
type Role string

const (
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
)

// ParseRole accepts both stored ("USER") and model-style ("user") spellings.
func ParseRole(raw string) (Role, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(RoleUser):
		return RoleUser, true
	case string(RoleAssistant):
		return RoleAssistant, true
	default:
		return "", false
	}
}

// Message is an append-only transcript entry.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Turn is the role/content pair used to rebuild prompt context.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// IsUser reports whether the turn was spoken by the user.
func (t Turn) IsUser() bool {
	return strings.EqualFold(strings.TrimSpace(t.Role), string(RoleUser))
}

// TurnsFromMessages converts stored messages into prompt turns.
func TurnsFromMessages(messages []Message) []Turn {
	turns := make([]Turn, 0, len(messages))
	for _, msg := range messages {
		turns = append(turns, Turn{Role: string(msg.Role), Content: msg.Content})
	}
	return turns
}
