package account

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/acoda/backend/internal/logger"
	"github.com/zhouzirui/acoda/backend/internal/model/account"
	accountsvc "github.com/zhouzirui/acoda/backend/internal/service/account"
	"github.com/zhouzirui/acoda/backend/pkg/utils"
	"github.com/zhouzirui/acoda/backend/pkg/validation"
)

// Service 抽象账户与配额业务，便于测试替换。
type Service interface {
	CreateUser(ctx context.Context, email string) (*account.User, error)
	GetPlan(ctx context.Context, userID string) (account.Plan, error)
	CheckVoiceUsage(ctx context.Context, userID string, plan account.Plan) (account.UsageResult, error)
	ConsumeVoice(ctx context.Context, userID string, plan account.Plan) (account.UsageResult, error)
	TodayUsage(ctx context.Context, userID string) (int, error)
	DeleteUserData(ctx context.Context, userID string) error
}

// Handler 用户与配额的HTTP处理器
type Handler struct {
	svc Service
}

// New 创建处理器
func New(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册用户与配额路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/users", h.handleCreateUser)
	r.Delete("/users/{userID}", h.handleDeleteUser)

	r.Route("/usage", func(usage chi.Router) {
		usage.Get("/", h.handleTodayUsage)
		usage.Post("/check", h.handleCheck)
		usage.Post("/consume-voice", h.handleConsume)
	})
}

type userIDRequest struct {
	UserID string `json:"userId"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	// 匿名用户可以不带请求体
	if r.ContentLength != 0 {
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.RespondValidationError(w, err)
			return
		}
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := validation.ValidateCreateUser(req.Email); err != nil {
		utils.RespondValidationError(w, err)
		return
	}

	user, err := h.svc.CreateUser(r.Context(), req.Email)
	if err != nil {
		respondServiceError(w, err, "create user failed")
		return
	}
	utils.RespondJSON(w, http.StatusOK, user)
}

func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := validation.ValidateUserID(userID); err != nil {
		utils.RespondValidationError(w, err)
		return
	}

	if err := h.svc.DeleteUserData(r.Context(), userID); err != nil {
		respondServiceError(w, err, "delete user failed")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) decodeUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req userIDRequest
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

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.decodeUserID(w, r)
	if !ok {
		return
	}

	plan, err := h.svc.GetPlan(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err, "Usage check failed")
		return
	}
	result, err := h.svc.CheckVoiceUsage(r.Context(), userID, plan)
	if err != nil {
		respondServiceError(w, err, "Usage check failed")
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleConsume(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.decodeUserID(w, r)
	if !ok {
		return
	}

	plan, err := h.svc.GetPlan(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err, "Usage check failed")
		return
	}
	result, err := h.svc.ConsumeVoice(r.Context(), userID, plan)
	if err != nil {
		respondServiceError(w, err, "Usage check failed")
		return
	}

	if !result.Allowed {
		utils.RespondJSON(w, http.StatusForbidden, result)
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

// handleTodayUsage 返回当天已用次数
func (h *Handler) handleTodayUsage(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if err := validation.ValidateUserID(userID); err != nil {
		utils.RespondValidationError(w, err)
		return
	}

	plan, err := h.svc.GetPlan(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err, "Usage lookup failed")
		return
	}
	count, err := h.svc.TodayUsage(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err, "Usage lookup failed")
		return
	}
	result, err := h.svc.CheckVoiceUsage(r.Context(), userID, plan)
	if err != nil {
		respondServiceError(w, err, "Usage lookup failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"voiceCount": count,
		"remaining":  result.Remaining,
		"allowed":    result.Allowed,
		"plan":       plan,
	})
}

func respondServiceError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, accountsvc.ErrUserNotFound) {
		utils.RespondError(w, http.StatusNotFound, "User not found")
		return
	}
	logger.WithComponent("account").WithError(err).Error(message)
	utils.RespondError(w, http.StatusInternalServerError, message)
}
