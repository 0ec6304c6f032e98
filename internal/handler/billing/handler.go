package billing

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/acoda/backend/internal/logger"
	accountsvc "github.com/zhouzirui/acoda/backend/internal/service/account"
	billingsvc "github.com/zhouzirui/acoda/backend/internal/service/billing"
	"github.com/zhouzirui/acoda/backend/pkg/utils"
	"github.com/zhouzirui/acoda/backend/pkg/validation"
)

const maxWebhookBytes = int64(65536)

// Service is the billing surface exposed over HTTP.
type Service interface {
	CreateCheckoutSession(ctx context.Context, userID string) (string, error)
	CreatePortalSession(ctx context.Context, userID string) (string, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// Handler Stripe 计费路由
type Handler struct {
	svc Service
}

func New(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册计费路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/stripe", func(stripe chi.Router) {
		stripe.Post("/checkout", h.handleCheckout)
		stripe.Post("/portal", h.handlePortal)
		stripe.Post("/webhook", h.handleWebhook)
	})
}

func (h *Handler) decodeUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondValidationError(w, err)
		return "", false
	}
	if err := validation.ValidateUserID(req.UserID); err != nil {
		utils.RespondValidationError(w, err)
		return "", false
	}
	return req.UserID, true
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.decodeUserID(w, r)
	if !ok {
		return
	}

	url, err := h.svc.CreateCheckoutSession(r.Context(), userID)
	if err != nil {
		respondBillingError(w, err, "Failed to create checkout session")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *Handler) handlePortal(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.decodeUserID(w, r)
	if !ok {
		return
	}

	url, err := h.svc.CreatePortalSession(r.Context(), userID)
	if err != nil {
		respondBillingError(w, err, "Failed to create portal session")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"url": url})
}

// handleWebhook 需要原始请求体做签名校验
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if err := h.svc.HandleWebhook(r.Context(), body, r.Header.Get("Stripe-Signature")); err != nil {
		respondBillingError(w, err, "Webhook handling failed")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func respondBillingError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, billingsvc.ErrBillingUnconfigured), errors.Is(err, billingsvc.ErrWebhookUnconfigured):
		utils.RespondUnavailable(w, "Billing unavailable", "set STRIPE_SECRET_KEY, STRIPE_PRICE_ID_PRO and STRIPE_WEBHOOK_SECRET")
	case errors.Is(err, billingsvc.ErrInvalidSignature):
		utils.RespondError(w, http.StatusBadRequest, "signature verification failed")
	case errors.Is(err, billingsvc.ErrInvalidPayload):
		utils.RespondError(w, http.StatusBadRequest, "invalid event payload")
	case errors.Is(err, billingsvc.ErrNoStripeCustomer):
		utils.RespondError(w, http.StatusBadRequest, "No billing account for user")
	case errors.Is(err, accountsvc.ErrUserNotFound):
		utils.RespondError(w, http.StatusNotFound, "User not found")
	default:
		logger.WithComponent("billing").WithError(err).Error(message)
		utils.RespondError(w, http.StatusInternalServerError, message)
	}
}
