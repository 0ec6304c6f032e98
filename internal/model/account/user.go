package account

import (
	"strings"
	"time"
)

// Plan 表示订阅档位。
type Plan string

const (
	PlanFree Plan = "FREE"
	PlanPro  Plan = "PRO"
)

// ParsePlan normalises user input such as "pro" into a Plan.
func ParsePlan(raw string) (Plan, bool) {
	switch Plan(strings.ToUpper(strings.TrimSpace(raw))) {
	case PlanFree:
		return PlanFree, true
	case PlanPro:
		return PlanPro, true
	default:
		return "", false
	}
}

// User is either anonymous (no email) or identified by email.
type User struct {
	ID               string    `json:"id"`
	Email            string    `json:"email,omitempty"`
	Plan             Plan      `json:"plan"`
	StripeCustomerID string    `json:"stripeCustomerId,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
