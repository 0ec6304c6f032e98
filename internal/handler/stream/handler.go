package stream

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/acoda/backend/internal/logger"
	accountsvc "github.com/zhouzirui/acoda/backend/internal/service/account"
	chatService "github.com/zhouzirui/acoda/backend/internal/service/chat"
	"github.com/zhouzirui/acoda/backend/internal/service/orchestrator"
	"github.com/zhouzirui/acoda/backend/pkg/utils"
	"github.com/zhouzirui/acoda/backend/pkg/validation"
)

// Turns streams one conversational turn.
type Turns interface {
	StreamTurn(ctx context.Context, req orchestrator.TurnRequest, onDelta func(string)) (*orchestrator.TurnResponse, error)
}

// Handler manages streaming AI responses via Server-Sent Events
type Handler struct {
	turns Turns
}

// New creates a new stream handler
func New(turns Turns) *Handler {
	return &Handler{turns: turns}
}

// RegisterRoutes 注册流式对话路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/stream", h.handleStream)
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event       string `json:"event"`
	Content     string `json:"content,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
	ControlTags any    `json:"controlTags,omitempty"`
	Degraded    bool   `json:"degraded,omitempty"`
	Finished    bool   `json:"finished,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := orchestrator.TurnRequest{
		UserID:    query.Get("userId"),
		SessionID: query.Get("sessionId"),
		UserText:  query.Get("message"),
	}
	if err := validation.ValidateChat(req.UserID, req.SessionID, req.UserText, nil); err != nil {
		utils.RespondValidationError(w, err)
		return
	}

	if err := h.HandleStreamRequest(r.Context(), w, req); err != nil {
		logger.WithComponent("stream").WithError(err).WithField("session_id", req.SessionID).Warn("stream ended with error")
	}
}

// HandleStreamRequest runs the turn and relays it as start/delta/message/end events.
// Errors after the stream opens are reported in-band as an error event.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, req orchestrator.TurnRequest) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return errors.New("streaming unsupported")
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	send := func(resp StreamResponse) {
		resp.SessionID = req.SessionID
		utils.SendSSEEvent(w, flusher, resp.Event, resp)
	}

	send(StreamResponse{Event: "start"})

	resp, err := h.turns.StreamTurn(ctx, req, func(delta string) {
		send(StreamResponse{Event: "delta", Content: delta})
	})
	if err != nil {
		send(StreamResponse{Event: "error", Error: publicMessage(err)})
		return err
	}

	send(StreamResponse{
		Event:       "message",
		Content:     resp.AssistantText,
		ControlTags: resp.ControlTags,
		Degraded:    resp.Degraded,
	})
	send(StreamResponse{Event: "end", Finished: true})

	logger.WithComponent("stream").WithField("session_id", req.SessionID).Debug("stream completed")
	return nil
}

func publicMessage(err error) string {
	switch {
	case errors.Is(err, accountsvc.ErrUserNotFound), errors.Is(err, chatService.ErrUserNotFound):
		return "User not found"
	case errors.Is(err, chatService.ErrSessionNotFound):
		return "Session not found"
	case errors.Is(err, orchestrator.ErrSessionForbidden):
		return "Session belongs to another user"
	case errors.Is(err, orchestrator.ErrModelUnavailable):
		return "Language model unavailable"
	default:
		return "Chat processing failed"
	}
}
