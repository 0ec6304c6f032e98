package billing_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/zhouzirui/acoda/backend/internal/config"
	model "github.com/zhouzirui/acoda/backend/internal/model/account"
	"github.com/zhouzirui/acoda/backend/internal/service/account"
	"github.com/zhouzirui/acoda/backend/internal/service/billing"
	"github.com/zhouzirui/acoda/backend/internal/store/memstore"
)

const webhookSecret = "whsec_test"

type fakeStripe struct {
	customers int
	checkout  *stripe.CheckoutSessionParams
	portal    *stripe.BillingPortalSessionParams
}

func (f *fakeStripe) NewCustomer(params *stripe.CustomerParams) (*stripe.Customer, error) {
	f.customers++
	return &stripe.Customer{ID: fmt.Sprintf("cus_%d", f.customers)}, nil
}

func (f *fakeStripe) NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.checkout = params
	return &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.test/cs_1"}, nil
}

func (f *fakeStripe) NewPortalSession(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	f.portal = params
	return &stripe.BillingPortalSession{URL: "https://billing.stripe.test/p_1"}, nil
}

func newBilling(t *testing.T) (*billing.Service, *account.Service, *fakeStripe) {
	t.Helper()
	accounts := account.NewService(memstore.New(), account.Config{})
	fake := &fakeStripe{}
	cfg := config.StripeConfig{
		SecretKey:       "sk_test",
		WebhookSecret:   webhookSecret,
		PriceIDPro:      "price_pro",
		SuccessURL:      "http://localhost:3000/billing/success",
		CancelURL:       "http://localhost:3000/billing/cancel",
		PortalReturnURL: "http://localhost:3000/settings/billing",
	}
	return billing.NewService(cfg, accounts, fake), accounts, fake
}

func signed(t *testing.T, eventType, object string) ([]byte, string) {
	t.Helper()
	payload := []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","api_version":"2020-08-27","type":%q,"data":{"object":%s}}`, eventType, object))
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: webhookSecret})
	return payload, sp.Header
}

func TestCreateCheckoutSessionCreatesCustomerOnce(t *testing.T) {
	ctx := context.Background()
	svc, accounts, fake := newBilling(t)
	user, err := accounts.CreateUser(ctx, "a@example.com")
	require.NoError(t, err)

	url, err := svc.CreateCheckoutSession(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.test/cs_1", url)
	assert.Equal(t, "cus_1", *fake.checkout.Customer)
	assert.Equal(t, user.ID, *fake.checkout.ClientReferenceID)
	assert.Equal(t, "price_pro", *fake.checkout.LineItems[0].Price)
	assert.Equal(t, string(stripe.CheckoutSessionModeSubscription), *fake.checkout.Mode)

	stored, err := accounts.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "cus_1", stored.StripeCustomerID)

	_, err = svc.CreateCheckoutSession(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.customers)
}

func TestCreateCheckoutSessionUnknownUser(t *testing.T) {
	svc, _, _ := newBilling(t)
	_, err := svc.CreateCheckoutSession(context.Background(), "missing")
	assert.ErrorIs(t, err, account.ErrUserNotFound)
}

func TestUnconfiguredBilling(t *testing.T) {
	svc := billing.NewService(config.StripeConfig{}, nil, nil)
	assert.False(t, svc.Enabled())

	_, err := svc.CreateCheckoutSession(context.Background(), "u1")
	assert.ErrorIs(t, err, billing.ErrBillingUnconfigured)

	err = svc.HandleWebhook(context.Background(), []byte("{}"), "sig")
	assert.ErrorIs(t, err, billing.ErrWebhookUnconfigured)
}

func TestCreatePortalSessionRequiresCustomer(t *testing.T) {
	ctx := context.Background()
	svc, accounts, fake := newBilling(t)
	user, err := accounts.CreateUser(ctx, "")
	require.NoError(t, err)

	_, err = svc.CreatePortalSession(ctx, user.ID)
	assert.ErrorIs(t, err, billing.ErrNoStripeCustomer)

	require.NoError(t, accounts.AttachStripeCustomer(ctx, user.ID, "cus_9"))
	url, err := svc.CreatePortalSession(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://billing.stripe.test/p_1", url)
	assert.Equal(t, "cus_9", *fake.portal.Customer)
}

func TestWebhookPlanTransitions(t *testing.T) {
	ctx := context.Background()
	svc, accounts, _ := newBilling(t)
	user, err := accounts.CreateUser(ctx, "")
	require.NoError(t, err)
	require.NoError(t, accounts.AttachStripeCustomer(ctx, user.ID, "cus_42"))

	steps := []struct {
		eventType string
		object    string
		want      model.Plan
	}{
		{"checkout.session.completed", `{"id":"cs_1","object":"checkout.session","customer":"cus_42"}`, model.PlanPro},
		{"customer.subscription.updated", `{"id":"sub_1","object":"subscription","customer":"cus_42","status":"past_due"}`, model.PlanFree},
		{"customer.subscription.updated", `{"id":"sub_1","object":"subscription","customer":"cus_42","status":"trialing"}`, model.PlanPro},
		{"customer.subscription.deleted", `{"id":"sub_1","object":"subscription","customer":"cus_42","status":"canceled"}`, model.PlanFree},
		{"customer.subscription.created", `{"id":"sub_2","object":"subscription","customer":"cus_42","status":"active"}`, model.PlanPro},
	}

	for _, step := range steps {
		payload, header := signed(t, step.eventType, step.object)
		require.NoError(t, svc.HandleWebhook(ctx, payload, header), step.eventType)

		plan, err := accounts.GetPlan(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, step.want, plan, step.eventType)
	}
}

func TestWebhookCheckoutLinksNewCustomer(t *testing.T) {
	ctx := context.Background()
	svc, accounts, _ := newBilling(t)
	user, err := accounts.CreateUser(ctx, "")
	require.NoError(t, err)

	object := fmt.Sprintf(`{"id":"cs_2","object":"checkout.session","customer":"cus_new","client_reference_id":%q}`, user.ID)
	payload, header := signed(t, "checkout.session.completed", object)
	require.NoError(t, svc.HandleWebhook(ctx, payload, header))

	stored, err := accounts.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "cus_new", stored.StripeCustomerID)
	assert.Equal(t, model.PlanPro, stored.Plan)
}

func TestWebhookIgnoresUnknownCustomerAndEvents(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newBilling(t)

	payload, header := signed(t, "customer.subscription.deleted", `{"id":"sub_1","object":"subscription","customer":"cus_ghost"}`)
	assert.NoError(t, svc.HandleWebhook(ctx, payload, header))

	payload, header = signed(t, "invoice.paid", `{"id":"in_1","object":"invoice"}`)
	assert.NoError(t, svc.HandleWebhook(ctx, payload, header))
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	svc, _, _ := newBilling(t)
	payload, _ := signed(t, "checkout.session.completed", `{"id":"cs_1","customer":"cus_1"}`)

	err := svc.HandleWebhook(context.Background(), payload, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, billing.ErrInvalidSignature)
}
