package chat

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/acoda/backend/internal/logger"
	"github.com/zhouzirui/acoda/backend/internal/model/chat"
	accountsvc "github.com/zhouzirui/acoda/backend/internal/service/account"
	chatService "github.com/zhouzirui/acoda/backend/internal/service/chat"
	"github.com/zhouzirui/acoda/backend/internal/service/orchestrator"
	"github.com/zhouzirui/acoda/backend/pkg/utils"
	"github.com/zhouzirui/acoda/backend/pkg/validation"
)

// Sessions 会话存取
type Sessions interface {
	CreateSession(ctx context.Context, userID string) (chat.Session, error)
	GetSession(ctx context.Context, sessionID string) (chat.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Turns runs one conversational turn.
type Turns interface {
	ProcessTurn(ctx context.Context, req orchestrator.TurnRequest) (*orchestrator.TurnResponse, error)
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	sessions Sessions
	turns    Turns
}

// New 创建聊天处理器
func New(sessions Sessions, turns Turns) *Handler {
	return &Handler{
		sessions: sessions,
		turns:    turns,
	}
}

// RegisterRoutes 注册会话与对话路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions", h.handleGetSession)
	r.Delete("/sessions/{sessionID}", h.handleDeleteSession)
	r.Post("/chat", h.handleChat)
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID string `json:"userId"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondValidationError(w, err)
		return
	}
	if err := validation.ValidateUserID(payload.UserID); err != nil {
		utils.RespondValidationError(w, err)
		return
	}

	session, err := h.sessions.CreateSession(r.Context(), payload.UserID)
	if err != nil {
		RespondServiceError(w, err, "Failed to create session")
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	var v validation.Validator
	v.Required("sessionId", sessionID)
	if err := v.Err(); err != nil {
		utils.RespondValidationError(w, err)
		return
	}

	session, err := h.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		RespondServiceError(w, err, "Failed to get session")
		return
	}
	if session.Messages == nil {
		session.Messages = []chat.Message{}
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.sessions.DeleteSession(r.Context(), sessionID); err != nil {
		RespondServiceError(w, err, "Failed to delete session")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type chatRequest struct {
	UserID    string      `json:"userId"`
	SessionID string      `json:"sessionId"`
	UserText  string      `json:"userText"`
	History   []chat.Turn `json:"history"`
}

func (req chatRequest) validate() error {
	history := make([]validation.HistoryTurn, 0, len(req.History))
	for _, turn := range req.History {
		history = append(history, validation.HistoryTurn{Role: turn.Role, Content: turn.Content})
	}
	return validation.ValidateChat(req.UserID, req.SessionID, req.UserText, history)
}

// handleChat 处理一轮对话
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondValidationError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		utils.RespondValidationError(w, err)
		return
	}

	resp, err := h.turns.ProcessTurn(r.Context(), orchestrator.TurnRequest{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		UserText:  req.UserText,
		History:   req.History,
	})
	if err != nil {
		RespondServiceError(w, err, "Chat processing failed")
		return
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

// RespondServiceError maps conversation errors onto HTTP statuses.
func RespondServiceError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, accountsvc.ErrUserNotFound), errors.Is(err, chatService.ErrUserNotFound):
		utils.RespondError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, orchestrator.ErrSessionForbidden):
		utils.RespondError(w, http.StatusForbidden, "Session belongs to another user")
	case errors.Is(err, orchestrator.ErrEmptyInput), errors.Is(err, chatService.ErrUserRequired):
		utils.RespondValidationError(w, err)
	case errors.Is(err, orchestrator.ErrModelUnavailable):
		logger.WithComponent("chat").WithError(err).Warn(message)
		utils.RespondUnavailable(w, "Language model unavailable", "check the LLM provider credentials and endpoint, then retry")
	default:
		logger.WithComponent("chat").WithError(err).Error(message)
		utils.RespondError(w, http.StatusInternalServerError, message)
	}
}
