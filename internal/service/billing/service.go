// Package billing turns Stripe checkout and subscription events into plan changes.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/zhouzirui/acoda/backend/internal/config"
	"github.com/zhouzirui/acoda/backend/internal/logger"
	"github.com/zhouzirui/acoda/backend/internal/model/account"
	accountsvc "github.com/zhouzirui/acoda/backend/internal/service/account"
)

var (
	ErrBillingUnconfigured = errors.New("billing is not configured, set STRIPE_SECRET_KEY and STRIPE_PRICE_ID_PRO")
	ErrWebhookUnconfigured = errors.New("stripe webhook secret is not configured")
	ErrInvalidSignature    = errors.New("stripe signature verification failed")
	ErrInvalidPayload      = errors.New("invalid stripe event payload")
	ErrNoStripeCustomer    = errors.New("user has no stripe customer")
)

// Accounts is the slice of the account service billing depends on.
type Accounts interface {
	GetUser(ctx context.Context, userID string) (*account.User, error)
	AttachStripeCustomer(ctx context.Context, userID, customerID string) error
	UpdatePlanByStripeCustomer(ctx context.Context, customerID string, plan account.Plan) (*account.User, error)
}

// Stripe wraps the few Stripe API calls billing makes.
type Stripe interface {
	NewCustomer(params *stripe.CustomerParams) (*stripe.Customer, error)
	NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	NewPortalSession(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
}

type stripeAPI struct {
	api *client.API
}

// NewStripe builds a Stripe client bound to secretKey.
func NewStripe(secretKey string) Stripe {
	return &stripeAPI{api: client.New(secretKey, nil)}
}

func (s *stripeAPI) NewCustomer(params *stripe.CustomerParams) (*stripe.Customer, error) {
	return s.api.Customers.New(params)
}

func (s *stripeAPI) NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return s.api.CheckoutSessions.New(params)
}

func (s *stripeAPI) NewPortalSession(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	return s.api.BillingPortalSessions.New(params)
}

// Service 负责 Stripe checkout 与 webhook。
type Service struct {
	cfg      config.StripeConfig
	accounts Accounts
	stripe   Stripe
}

// NewService wires the service. A nil stripe client is built from cfg.SecretKey.
func NewService(cfg config.StripeConfig, accounts Accounts, sc Stripe) *Service {
	if sc == nil && cfg.SecretKey != "" {
		sc = NewStripe(cfg.SecretKey)
	}
	return &Service{cfg: cfg, accounts: accounts, stripe: sc}
}

// Enabled reports whether checkout can be offered.
func (s *Service) Enabled() bool {
	return s != nil && s.cfg.Enabled() && s.stripe != nil
}

// ensureCustomer returns the user's Stripe customer, creating and storing one on first use.
func (s *Service) ensureCustomer(ctx context.Context, user *account.User) (string, error) {
	if user.StripeCustomerID != "" {
		return user.StripeCustomerID, nil
	}

	params := &stripe.CustomerParams{
		Metadata: map[string]string{"user_id": user.ID},
	}
	if user.Email != "" {
		params.Email = stripe.String(user.Email)
	}
	params.Context = ctx

	cust, err := s.stripe.NewCustomer(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	if err := s.accounts.AttachStripeCustomer(ctx, user.ID, cust.ID); err != nil {
		return "", err
	}
	user.StripeCustomerID = cust.ID
	return cust.ID, nil
}

// CreateCheckoutSession starts a subscription checkout for the PRO price and returns its URL.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID string) (string, error) {
	if !s.Enabled() {
		return "", ErrBillingUnconfigured
	}

	user, err := s.accounts.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return "", err
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(user.ID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.cfg.PriceIDPro),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(s.cfg.SuccessURL),
		CancelURL:  stripe.String(s.cfg.CancelURL),
	}
	params.Context = ctx

	sess, err := s.stripe.NewCheckoutSession(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}

	logger.WithComponent("billing").WithFields(map[string]any{
		"user_id":     user.ID,
		"customer_id": customerID,
		"session_id":  sess.ID,
	}).Info("checkout session created")
	return sess.URL, nil
}

// CreatePortalSession returns a customer portal URL for managing the subscription.
func (s *Service) CreatePortalSession(ctx context.Context, userID string) (string, error) {
	if !s.Enabled() {
		return "", ErrBillingUnconfigured
	}

	user, err := s.accounts.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.StripeCustomerID == "" {
		return "", ErrNoStripeCustomer
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(user.StripeCustomerID),
		ReturnURL: stripe.String(s.cfg.PortalReturnURL),
	}
	params.Context = ctx

	sess, err := s.stripe.NewPortalSession(params)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return sess.URL, nil
}

// HandleWebhook verifies and applies one Stripe event. Unknown event types
// and customers that map to no user are acknowledged without changes.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s == nil || s.cfg.WebhookSecret == "" {
		return ErrWebhookUnconfigured
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	log := logger.WithComponent("billing").WithFields(map[string]any{
		"event_id":   event.ID,
		"event_type": event.Type,
	})

	var (
		customerID string
		plan       account.Plan
	)

	switch string(event.Type) {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if sess.Customer != nil {
			customerID = sess.Customer.ID
		}
		// 客户在 checkout 中新建时，用 client_reference_id 回填到用户
		if customerID != "" && sess.ClientReferenceID != "" {
			if err := s.linkCustomer(ctx, sess.ClientReferenceID, customerID); err != nil {
				log.WithError(err).Warn("failed to link stripe customer from checkout")
			}
		}
		plan = account.PlanPro
	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if sub.Customer != nil {
			customerID = sub.Customer.ID
		}
		plan = planForStatus(sub.Status)
	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if sub.Customer != nil {
			customerID = sub.Customer.ID
		}
		plan = account.PlanFree
	default:
		log.Debug("ignore stripe event")
		return nil
	}

	if customerID == "" {
		return fmt.Errorf("%w: missing customer id", ErrInvalidPayload)
	}

	user, err := s.accounts.UpdatePlanByStripeCustomer(ctx, customerID, plan)
	if errors.Is(err, accountsvc.ErrUserNotFound) {
		log.WithField("customer_id", customerID).Warn("stripe customer does not match any user")
		return nil
	}
	if err != nil {
		return err
	}

	log.WithFields(map[string]any{"user_id": user.ID, "plan": plan}).Info("plan synced from stripe")
	return nil
}

func (s *Service) linkCustomer(ctx context.Context, userID, customerID string) error {
	user, err := s.accounts.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.StripeCustomerID == customerID {
		return nil
	}
	return s.accounts.AttachStripeCustomer(ctx, userID, customerID)
}

func planForStatus(status stripe.SubscriptionStatus) account.Plan {
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return account.PlanPro
	default:
		return account.PlanFree
	}
}
