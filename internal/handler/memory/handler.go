package memory

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/acoda/backend/internal/logger"
	"github.com/zhouzirui/acoda/backend/pkg/utils"
	"github.com/zhouzirui/acoda/backend/pkg/validation"
)

// Service is the memory surface exposed over HTTP.
type Service interface {
	GetSummary(ctx context.Context, userID string) (string, error)
	Clear(ctx context.Context, userID string) error
}

// Handler 记忆摘要的HTTP处理器
type Handler struct {
	svc Service
}

func New(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册记忆路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/memory", h.handleGet)
	r.Delete("/memory", h.handleClear)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if err := validation.ValidateUserID(userID); err != nil {
		utils.RespondValidationError(w, err)
		return
	}

	summary, err := h.svc.GetSummary(r.Context(), userID)
	if err != nil {
		logger.WithComponent("memory").WithError(err).WithField("user_id", userID).Error("get memory failed")
		utils.RespondError(w, http.StatusInternalServerError, "Failed to get memory")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondValidationError(w, err)
		return
	}
	if err := validation.ValidateUserID(req.UserID); err != nil {
		utils.RespondValidationError(w, err)
		return
	}

	if err := h.svc.Clear(r.Context(), req.UserID); err != nil {
		logger.WithComponent("memory").WithError(err).WithField("user_id", req.UserID).Error("clear memory failed")
		utils.RespondError(w, http.StatusInternalServerError, "Failed to clear memory")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
