package memory

import "time"

// Record holds one rolling conversation summary for a user.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Summary   string    `json:"summary"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Active reports whether the record is still inside its retention window.
func (r Record) Active(now time.Time) bool {
	return r.ExpiresAt.After(now)
}
