package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/acoda/backend/internal/logger"
	"github.com/zhouzirui/acoda/backend/internal/model/account"
	"github.com/zhouzirui/acoda/backend/internal/model/chat"
	"github.com/zhouzirui/acoda/backend/internal/model/speech"
	chatservice "github.com/zhouzirui/acoda/backend/internal/service/chat"
	"github.com/zhouzirui/acoda/backend/internal/service/orchestrator"
	speechsvc "github.com/zhouzirui/acoda/backend/internal/service/speech"
)

const (
	readTimeout    = 60 * time.Second
	pingInterval   = 54 * time.Second
	maxVoiceBuffer = 10 << 20
)

// Accounts gates voice interactions.
type Accounts interface {
	GetPlan(ctx context.Context, userID string) (account.Plan, error)
	ConsumeVoice(ctx context.Context, userID string, plan account.Plan) (account.UsageResult, error)
}

// Sessions resolves the session bound to a connection.
type Sessions interface {
	GetSession(ctx context.Context, sessionID string) (chat.Session, error)
}

// Turns runs conversational turns with incremental output.
type Turns interface {
	StreamTurn(ctx context.Context, req orchestrator.TurnRequest, onDelta func(string)) (*orchestrator.TurnResponse, error)
}

// WebSocketHandler 按键说话语音链路：配额 → ASR → 对话 → TTS
type WebSocketHandler struct {
	speechSvc SpeechService
	accounts  Accounts
	sessions  Sessions
	turns     Turns
	voice     string
	upgrader  websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(speechSvc SpeechService, accounts Accounts, sessions Sessions, turns Turns, defaultVoice string) *WebSocketHandler {
	return &WebSocketHandler{
		speechSvc: speechSvc,
		accounts:  accounts,
		sessions:  sessions,
		turns:     turns,
		voice:     defaultVoice,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/voice/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// AudioMessage 音频消息，IsFinal 表示松开按键
type AudioMessage struct {
	AudioData []byte `json:"audioData"`
	Format    string `json:"format"`
	Language  string `json:"language"`
	IsFinal   bool   `json:"isFinal"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

// ConfigMessage 配置消息
type ConfigMessage struct {
	Language   string `json:"language"`
	Voice      string `json:"voice"`
	TTSEnabled *bool  `json:"ttsEnabled,omitempty"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type connectionState struct {
	sessionID   string
	userID      string
	language    string
	voice       string
	ttsEnabled  bool
	audioFormat string
	buffer      bytes.Buffer
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userID := r.URL.Query().Get("userId")
	if sessionID == "" || userID == "" {
		http.Error(w, "sessionID and userId are required", http.StatusBadRequest)
		return
	}

	session, err := h.sessions.GetSession(r.Context(), sessionID)
	if errors.Is(err, chatservice.ErrSessionNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.WithComponent("websocket").WithError(err).Error("load session failed")
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}
	if session.UserID != userID {
		http.Error(w, "session does not belong to user", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithComponent("websocket").WithError(err).Warn("upgrade failed")
		return
	}
	defer conn.Close()

	state := &connectionState{
		sessionID:  sessionID,
		userID:     userID,
		voice:      h.voice,
		ttsEnabled: true,
	}
	log := h.log(state)
	log.Info("voice connection opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go h.pingLoop(ctx, conn)

	h.sendInfo(conn, sessionID, map[string]any{
		"type":   "connected",
		"speech": h.speechSvc.Enabled(),
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("read error")
			}
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			h.sendError(conn, "session mismatch")
			continue
		}

		h.handleMessage(ctx, conn, state, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, msg *inboundMessage) {
	switch msg.Type {
	case "audio":
		h.handleAudioMessage(ctx, conn, state, msg.Data)
	case "text":
		h.handleTextMessage(ctx, conn, state, msg.Data)
	case "config":
		h.handleConfigMessage(conn, state, msg.Data)
	default:
		h.sendError(conn, "unsupported message type: "+msg.Type)
	}
}

func (h *WebSocketHandler) handleAudioMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, raw json.RawMessage) {
	var audio AudioMessage
	if err := json.Unmarshal(raw, &audio); err != nil {
		h.sendError(conn, "invalid audio payload")
		return
	}

	if state.buffer.Len()+len(audio.AudioData) > maxVoiceBuffer {
		state.buffer.Reset()
		h.sendError(conn, "audio too long")
		return
	}
	state.buffer.Write(audio.AudioData)
	if audio.Format != "" {
		state.audioFormat = audio.Format
	}
	if audio.Language != "" {
		state.language = audio.Language
	}

	if audio.IsFinal {
		h.processBufferedAudio(ctx, conn, state)
	}
}

// processBufferedAudio 先扣减配额，再识别并进入对话
func (h *WebSocketHandler) processBufferedAudio(ctx context.Context, conn *websocket.Conn, state *connectionState) {
	audioBytes := bytes.Clone(state.buffer.Bytes())
	state.buffer.Reset()
	if len(audioBytes) == 0 {
		return
	}

	if !h.speechSvc.Enabled() {
		h.sendError(conn, "speech service is not configured")
		return
	}

	plan, err := h.accounts.GetPlan(ctx, state.userID)
	if err != nil {
		h.log(state).WithError(err).Error("resolve plan failed")
		h.sendError(conn, "usage check failed")
		return
	}
	usage, err := h.accounts.ConsumeVoice(ctx, state.userID, plan)
	if err != nil {
		h.log(state).WithError(err).Error("consume voice failed")
		h.sendError(conn, "usage check failed")
		return
	}
	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":      "usage",
		"allowed":   usage.Allowed,
		"remaining": usage.Remaining,
		"plan":      usage.Plan,
	})
	if !usage.Allowed {
		return
	}

	format := state.audioFormat
	if format == "" {
		format = "wav"
	}

	asrResp, err := h.speechSvc.TranscribeBuffer(ctx, state.sessionID, audioBytes, format, state.language)
	if errors.Is(err, speechsvc.ErrNoSpeech) {
		h.sendInfo(conn, state.sessionID, map[string]any{"type": "asr", "text": "", "isFinal": true})
		return
	}
	if err != nil {
		h.log(state).WithError(err).Error("ASR failed")
		h.sendError(conn, "speech recognition failed")
		return
	}

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":    "asr",
		"text":    asrResp.Text,
		"isFinal": true,
	})

	if strings.TrimSpace(asrResp.Text) == "" {
		return
	}
	h.processUserText(ctx, conn, state, asrResp.Text)
}

func (h *WebSocketHandler) handleTextMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, raw json.RawMessage) {
	var text TextMessage
	if err := json.Unmarshal(raw, &text); err != nil {
		h.sendError(conn, "invalid text payload")
		return
	}
	if strings.TrimSpace(text.Text) == "" {
		return
	}
	h.processUserText(ctx, conn, state, text.Text)
}

func (h *WebSocketHandler) processUserText(ctx context.Context, conn *websocket.Conn, state *connectionState, userText string) {
	resp, err := h.turns.StreamTurn(ctx, orchestrator.TurnRequest{
		UserID:    state.userID,
		SessionID: state.sessionID,
		UserText:  userText,
	}, func(delta string) {
		h.sendInfo(conn, state.sessionID, map[string]any{
			"type": "ai_delta",
			"text": delta,
		})
	})
	if err != nil {
		h.log(state).WithError(err).Error("turn failed")
		h.sendError(conn, "chat processing failed")
		return
	}

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":        "ai",
		"text":        resp.AssistantText,
		"controlTags": resp.ControlTags,
		"isFinal":     true,
	})

	if state.ttsEnabled && h.speechSvc.Enabled() {
		h.sendTTS(ctx, conn, state, resp)
	}
}

func (h *WebSocketHandler) sendTTS(ctx context.Context, conn *websocket.Conn, state *connectionState, turn *orchestrator.TurnResponse) {
	ttsResp, err := h.speechSvc.SynthesizeSpeech(ctx, &speech.TTSRequest{
		SessionID: state.sessionID,
		Text:      turn.AssistantText,
		Voice:     state.voice,
		Language:  state.language,
		Emotion:   turn.ControlTags.Emotion,
		Intensity: turn.ControlTags.Intensity,
	})
	if err != nil {
		h.log(state).WithError(err).Warn("TTS failed")
		h.sendInfo(conn, state.sessionID, map[string]any{
			"type":  "tts",
			"error": "synthesis failed",
		})
		return
	}
	if len(ttsResp.AudioData) == 0 {
		return
	}

	// []byte 在 JSON 中编码为 base64
	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":      "tts",
		"audioData": ttsResp.AudioData,
		"format":    ttsResp.Format,
		"visemes":   ttsResp.VisemeEvents,
		"isFinal":   true,
	})
}

func (h *WebSocketHandler) handleConfigMessage(conn *websocket.Conn, state *connectionState, raw json.RawMessage) {
	var cfg ConfigMessage
	if err := json.Unmarshal(raw, &cfg); err != nil {
		h.sendError(conn, "invalid config payload")
		return
	}

	if cfg.Language != "" {
		state.language = cfg.Language
	}
	if cfg.Voice != "" {
		state.voice = cfg.Voice
	}
	if cfg.TTSEnabled != nil {
		state.ttsEnabled = *cfg.TTSEnabled
	}

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":     "config",
		"language": state.language,
		"voice":    state.voice,
		"tts":      state.ttsEnabled,
	})
}

func (h *WebSocketHandler) sendInfo(conn *websocket.Conn, sessionID string, data map[string]any) {
	msg := outgoingMessage{
		Type:      "result",
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		logger.WithComponent("websocket").WithError(err).Debug("write info failed")
	}
}

func (h *WebSocketHandler) sendError(conn *websocket.Conn, message string) {
	msg := outgoingMessage{
		Type:      "error",
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		logger.WithComponent("websocket").WithError(err).Debug("write error failed")
	}
}

func (h *WebSocketHandler) log(state *connectionState) *logrus.Entry {
	return logger.WithComponent("websocket").WithFields(logrus.Fields{
		"session_id": state.sessionID,
		"user_id":    state.userID,
	})
}

// pingLoop 定期发送ping消息，WriteControl 可与其他写操作并发
func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}
