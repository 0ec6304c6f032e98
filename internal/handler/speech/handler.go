package speech

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/acoda/backend/internal/logger"
	"github.com/zhouzirui/acoda/backend/internal/model/persona"
	"github.com/zhouzirui/acoda/backend/internal/model/speech"
	speechsvc "github.com/zhouzirui/acoda/backend/internal/service/speech"
	"github.com/zhouzirui/acoda/backend/pkg/utils"
	"github.com/zhouzirui/acoda/backend/pkg/validation"
)

const maxAudioUpload = 10 << 20

// SpeechService 抽象语音业务，便于测试与替换实现
type SpeechService interface {
	Enabled() bool
	TranscribeAudio(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error)
	SynthesizeSpeech(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
	TranscribeBuffer(ctx context.Context, sessionID string, audioData []byte, format, language string) (*speech.ASRResponse, error)
}

// Handler 语音服务的HTTP处理器
type Handler struct {
	speechSvc    SpeechService
	personaStore persona.Store
}

// New 创建语音处理器
func New(speechSvc SpeechService, personaStore persona.Store) *Handler {
	return &Handler{
		speechSvc:    speechSvc,
		personaStore: personaStore,
	}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/asr", h.handleTranscribe)
	r.Post("/tts", h.handleSynthesize)
	r.Get("/speech/health", h.handleHealth)
}

// handleTranscribe 处理语音转文本请求
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioUpload)
	if err := r.ParseMultipartForm(maxAudioUpload); err != nil {
		utils.RespondValidationError(w, validation.Errors{{Field: "audio", Message: "multipart form with an audio file is required"}})
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "No audio file provided")
		return
	}
	defer file.Close()

	asrReq := &speech.ASRRequest{
		SessionID: r.FormValue("sessionId"),
		AudioData: file,
		Format:    inferAudioFormat(header.Filename),
		Language:  r.FormValue("language"),
	}

	resp, err := h.speechSvc.TranscribeAudio(r.Context(), asrReq)
	if err != nil {
		respondSpeechError(w, err, "ASR processing failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"text":     resp.Text,
		"duration": resp.Duration,
	})
}

type ttsRequest struct {
	Text      string   `json:"text"`
	Voice     string   `json:"voice"`
	Rate      *float64 `json:"rate"`
	Pitch     *float64 `json:"pitch"`
	Language  string   `json:"language"`
	Emotion   string   `json:"emotion"`
	Intensity *float64 `json:"intensity"`
	SessionID string   `json:"sessionId"`
}

// handleSynthesize 处理文本转语音请求，?visemes=1 时返回 JSON（base64 音频 + 口型）
func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondValidationError(w, err)
		return
	}
	if err := validation.ValidateTTS(req.Text, req.Rate, req.Pitch, req.Intensity); err != nil {
		utils.RespondValidationError(w, err)
		return
	}

	ttsReq := &speech.TTSRequest{
		SessionID: req.SessionID,
		Text:      req.Text,
		Voice:     strings.TrimSpace(req.Voice),
		Rate:      req.Rate,
		Pitch:     req.Pitch,
		Language:  req.Language,
		Emotion:   req.Emotion,
	}
	if req.Intensity != nil {
		ttsReq.Intensity = *req.Intensity
	}
	if ttsReq.Voice == "" {
		ttsReq.Voice = h.defaultVoice()
	}

	resp, err := h.speechSvc.SynthesizeSpeech(r.Context(), ttsReq)
	if err != nil {
		respondSpeechError(w, err, "TTS processing failed")
		return
	}

	if wantVisemes(r) {
		visemes := resp.VisemeEvents
		if visemes == nil {
			visemes = []speech.VisemeEvent{}
		}
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"audio":   base64.StdEncoding.EncodeToString(resp.AudioData),
			"format":  resp.Format,
			"visemes": visemes,
		})
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.AudioData)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.AudioData); err != nil {
		logger.WithComponent("speech").WithError(err).Debug("failed to write audio response")
	}
}

func (h *Handler) defaultVoice() string {
	if h.personaStore == nil {
		return ""
	}
	if p, ok := h.personaStore.FindByID(persona.DefaultID); ok {
		return p.VoiceID
	}
	return ""
}

// handleHealth 健康检查端点
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if !h.speechSvc.Enabled() {
		status = "unconfigured"
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"service": "speech",
	})
}

func wantVisemes(r *http.Request) bool {
	switch strings.ToLower(r.URL.Query().Get("visemes")) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func respondSpeechError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, speechsvc.ErrSpeechUnconfigured):
		utils.RespondUnavailable(w, "Speech service unavailable", "set AZURE_SPEECH_KEY and AZURE_SPEECH_REGION")
	case errors.Is(err, speechsvc.ErrNoSpeech):
		utils.RespondError(w, http.StatusUnprocessableEntity, "No speech could be recognized. Please try again.")
	default:
		logger.WithComponent("speech").WithError(err).Error(message)
		utils.RespondError(w, http.StatusInternalServerError, message)
	}
}

// inferAudioFormat 从文件名推断音频格式
func inferAudioFormat(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".ogg", ".opus":
		return "ogg"
	case ".webm":
		return "webm"
	case ".pcm", ".raw":
		return "pcm"
	default:
		return "wav"
	}
}
