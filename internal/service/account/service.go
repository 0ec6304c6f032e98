// Package account owns users, plans and the per-day voice usage gate.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/acoda/backend/internal/logger"
	"github.com/zhouzirui/acoda/backend/internal/model/account"
	"github.com/zhouzirui/acoda/backend/internal/store"
)

// DefaultDailyLimit is the FREE plan's daily voice allowance.
const DefaultDailyLimit = 10

var (
	ErrUserNotFound = errors.New("user not found")
	ErrInvalidPlan  = errors.New("invalid plan")
)

// Store is the persistence the service needs.
type Store interface {
	store.UserStore
	store.UsageStore
}

// Config 控制配额与计日方式。
type Config struct {
	DailyLimit int
	// Location decides where a calendar day starts. Defaults to UTC.
	Location *time.Location
	Now      func() time.Time
}

// Service implements the entitlement and usage gate.
type Service struct {
	store      Store
	dailyLimit int
	location   *time.Location
	now        func() time.Time
}

// NewService builds the service, filling defaults for zero config values.
func NewService(st Store, cfg Config) *Service {
	if cfg.DailyLimit <= 0 {
		cfg.DailyLimit = DefaultDailyLimit
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{store: st, dailyLimit: cfg.DailyLimit, location: cfg.Location, now: cfg.Now}
}

// DailyLimit returns the configured FREE allowance.
func (s *Service) DailyLimit() int {
	return s.dailyLimit
}

func (s *Service) today() string {
	return s.now().In(s.location).Format(account.DayLayout)
}

// CreateUser returns the existing user for email, or creates one. An empty
// email creates an anonymous user.
func (s *Service) CreateUser(ctx context.Context, email string) (*account.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email != "" {
		existing, err := s.store.GetUserByEmail(ctx, email)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("lookup user by email: %w", err)
		}
	}

	now := s.now().UTC()
	user := &account.User{
		ID:        uuid.NewString(),
		Email:     email,
		Plan:      account.PlanFree,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		// lost a race with a concurrent create for the same email
		if errors.Is(err, store.ErrConflict) && email != "" {
			return s.store.GetUserByEmail(ctx, email)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	logger.WithComponent("account").WithField("user_id", user.ID).Info("user created")
	return user, nil
}

// GetUser fetches a user by id.
func (s *Service) GetUser(ctx context.Context, userID string) (*account.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// GetPlan resolves the user's current plan.
func (s *Service) GetPlan(ctx context.Context, userID string) (account.Plan, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Plan, nil
}

// UpdatePlan changes the user's plan.
func (s *Service) UpdatePlan(ctx context.Context, userID string, plan account.Plan) error {
	if _, ok := account.ParsePlan(string(plan)); !ok {
		return ErrInvalidPlan
	}
	err := s.store.UpdateUserPlan(ctx, userID, plan, s.now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}

	logger.WithComponent("account").WithFields(map[string]any{"user_id": userID, "plan": plan}).Info("plan updated")
	return nil
}

// AttachStripeCustomer stores the billing customer id on the user.
func (s *Service) AttachStripeCustomer(ctx context.Context, userID, customerID string) error {
	err := s.store.SetStripeCustomer(ctx, userID, customerID, s.now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("attach stripe customer: %w", err)
	}
	return nil
}

// UpdatePlanByStripeCustomer applies a plan change coming from a billing event.
func (s *Service) UpdatePlanByStripeCustomer(ctx context.Context, customerID string, plan account.Plan) (*account.User, error) {
	user, err := s.store.GetUserByStripeCustomer(ctx, customerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup stripe customer: %w", err)
	}
	if user.Plan == plan {
		return user, nil
	}
	if err := s.UpdatePlan(ctx, user.ID, plan); err != nil {
		return nil, err
	}
	user.Plan = plan
	return user, nil
}

// DeleteUserData erases the user together with sessions, messages, memories and usage.
func (s *Service) DeleteUserData(ctx context.Context, userID string) error {
	err := s.store.DeleteUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("delete user data: %w", err)
	}

	logger.WithComponent("account").WithField("user_id", userID).Info("user data erased")
	return nil
}

// CheckVoiceUsage reports whether another voice interaction is allowed today.
// It never writes.
func (s *Service) CheckVoiceUsage(ctx context.Context, userID string, plan account.Plan) (account.UsageResult, error) {
	if plan == account.PlanPro {
		return unlimited(), nil
	}

	count, err := s.store.GetVoiceCount(ctx, userID, s.today())
	if err != nil {
		return account.UsageResult{}, fmt.Errorf("read voice usage: %w", err)
	}

	remaining := s.dailyLimit - count
	return account.UsageResult{
		Allowed:   remaining > 0,
		Remaining: max(0, remaining),
		Plan:      account.PlanFree,
	}, nil
}

// ConsumeVoice records one voice interaction. The post-increment check uses
// >= 0 so exactly DailyLimit consumptions succeed per day; the call after
// that is rejected even though its increment was recorded.
func (s *Service) ConsumeVoice(ctx context.Context, userID string, plan account.Plan) (account.UsageResult, error) {
	if plan == account.PlanPro {
		return unlimited(), nil
	}

	count, err := s.store.IncrementVoiceCount(ctx, userID, s.today(), s.now())
	if err != nil {
		return account.UsageResult{}, fmt.Errorf("consume voice usage: %w", err)
	}

	remaining := s.dailyLimit - count
	result := account.UsageResult{
		Allowed:   remaining >= 0,
		Remaining: max(0, remaining),
		Plan:      account.PlanFree,
	}
	if !result.Allowed {
		logger.WithComponent("account").WithFields(map[string]any{"user_id": userID, "count": count}).Info("voice quota exceeded")
	}
	return result, nil
}

// TodayUsage returns today's voice count for the user.
func (s *Service) TodayUsage(ctx context.Context, userID string) (int, error) {
	count, err := s.store.GetVoiceCount(ctx, userID, s.today())
	if err != nil {
		return 0, fmt.Errorf("read voice usage: %w", err)
	}
	return count, nil
}

func unlimited() account.UsageResult {
	return account.UsageResult{Allowed: true, Remaining: account.Unlimited, Plan: account.PlanPro}
}
