package chat

import "time"

// Session 表示某个用户的一段连续对话。
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	Messages  []Message `json:"messages,omitempty"`
}
