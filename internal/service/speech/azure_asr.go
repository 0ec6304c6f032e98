package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/acoda/backend/internal/logger"
	"github.com/zhouzirui/acoda/backend/internal/model/speech"
)

// AzureASRClient 调用 Azure Speech 短音频 REST 识别接口。
type AzureASRClient struct {
	config     *speech.SpeechConfig
	httpClient *http.Client
}

type azureRecognitionResult struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
	Offset            int64  `json:"Offset"`
	Duration          int64  `json:"Duration"` // 100ns ticks
}

// NewAzureASRClient creates the REST client.
func NewAzureASRClient(config *speech.SpeechConfig) *AzureASRClient {
	return &AzureASRClient{
		config:     config,
		httpClient: &http.Client{Timeout: time.Duration(max(config.Timeout, 1)) * time.Second},
	}
}

func (c *AzureASRClient) endpoint(language string) string {
	base := c.config.STTEndpoint
	if base == "" {
		base = fmt.Sprintf("https://%s.stt.speech.microsoft.com/speech/recognition/conversation/cognitiveservices/v1", c.config.Region)
	}
	query := url.Values{}
	query.Set("language", language)
	query.Set("format", "simple")
	return base + "?" + query.Encode()
}

// Transcribe sends the whole utterance and returns the recognized text.
func (c *AzureASRClient) Transcribe(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error) {
	if req == nil || req.AudioData == nil {
		return nil, fmt.Errorf("ASR audio is empty")
	}

	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = c.config.ASRLanguage
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(language), req.AudioData)
	if err != nil {
		return nil, fmt.Errorf("failed to build ASR request: %w", err)
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", c.config.SubscriptionKey)
	httpReq.Header.Set("Content-Type", audioContentType(req.Format))
	httpReq.Header.Set("Accept", "application/json")

	requestID := uuid.NewString()
	httpReq.Header.Set("X-RequestId", requestID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ASR request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read ASR response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ASR request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result azureRecognitionResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode ASR response: %w", err)
	}

	switch result.RecognitionStatus {
	case "Success":
	case "NoMatch", "InitialSilenceTimeout", "BabbleTimeout":
		return nil, ErrNoSpeech
	default:
		return nil, fmt.Errorf("recognition failed: %s", result.RecognitionStatus)
	}

	logger.WithComponent("asr").WithFields(map[string]any{
		"session_id": req.SessionID,
		"request_id": requestID,
		"chars":      len(result.DisplayText),
	}).Debug("recognition completed")

	return &speech.ASRResponse{
		SessionID: req.SessionID,
		Text:      result.DisplayText,
		Duration:  result.Duration / 10_000, // ticks -> ms
		RequestID: requestID,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func audioContentType(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "ogg", "audio/ogg":
		return "audio/ogg; codecs=opus"
	case "webm", "audio/webm":
		return "audio/webm; codecs=opus"
	case "pcm":
		return "audio/wav; codecs=audio/pcm; samplerate=16000"
	default:
		return "audio/wav"
	}
}
