package validation

import (
	"fmt"
)

const (
	MaxUserTextLength = 4000
	MaxHistoryTurns   = 100
	MaxTTSTextLength  = 5000
	MaxEmailLength    = 254
)

// HistoryTurn mirrors the role/content pair clients may send as history.
type HistoryTurn struct {
	Role    string
	Content string
}

// ValidateUserID checks a request carrying only a user id.
func ValidateUserID(userID string) error {
	var v Validator
	v.Required("userId", userID)
	return v.Err()
}

// ValidateCreateUser checks POST /api/users.
func ValidateCreateUser(email string) error {
	var v Validator
	v.MaxLength("email", email, MaxEmailLength)
	v.Email("email", email)
	return v.Err()
}

// ValidateChat checks a conversational turn request.
func ValidateChat(userID, sessionID, userText string, history []HistoryTurn) error {
	var v Validator
	v.Required("userId", userID)
	v.Required("sessionId", sessionID)
	v.Required("userText", userText)
	v.MaxLength("userText", userText, MaxUserTextLength)

	v.Check(len(history) <= MaxHistoryTurns, "history", fmt.Sprintf("must contain at most %d turns", MaxHistoryTurns))
	for i, turn := range history {
		field := fmt.Sprintf("history[%d]", i)
		v.OneOf(field+".role", turn.Role, "user", "assistant")
		v.Required(field+".role", turn.Role)
		v.Required(field+".content", turn.Content)
	}
	return v.Err()
}

// ValidateTTS checks a synthesis request.
func ValidateTTS(text string, rate, pitch, intensity *float64) error {
	var v Validator
	v.Required("text", text)
	v.MaxLength("text", text, MaxTTSTextLength)
	v.Range("rate", rate, 0.5, 2.0)
	v.Range("pitch", pitch, -50, 50)
	v.Range("intensity", intensity, 0, 1)
	return v.Err()
}
