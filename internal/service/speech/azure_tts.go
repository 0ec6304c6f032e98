package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/acoda/backend/internal/logger"
	"github.com/zhouzirui/acoda/backend/internal/model/speech"
)

// AzureTTSClient 通过 Azure Speech WebSocket 协议合成语音并收集 viseme 事件。
type AzureTTSClient struct {
	config *speech.SpeechConfig
	dialer *websocket.Dialer
}

// 服务端下发的 audio.metadata 消息体
type ttsMetadataMessage struct {
	Metadata []struct {
		Type string `json:"Type"`
		Data struct {
			Offset   int64 `json:"Offset"`
			VisemeID int   `json:"VisemeId"`
		} `json:"Data"`
	} `json:"Metadata"`
}

// NewAzureTTSClient 创建 TTS 客户端
func NewAzureTTSClient(config *speech.SpeechConfig) *AzureTTSClient {
	return &AzureTTSClient{
		config: config,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
	}
}

func (c *AzureTTSClient) endpoint(connectionID string) string {
	base := c.config.TTSEndpoint
	if base == "" {
		base = fmt.Sprintf("wss://%s.tts.speech.microsoft.com/cognitiveservices/websocket/v1", c.config.Region)
	}
	return base + "?X-ConnectionId=" + connectionID
}

// Synthesize 合成一段文本，返回完整音频与口型时间轴。
func (c *AzureTTSClient) Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("TTS request is nil")
	}

	format := c.config.TTSOutputFormat
	if strings.TrimSpace(req.Text) == "" {
		return &speech.TTSResponse{
			SessionID:    req.SessionID,
			AudioData:    []byte{},
			Format:       format,
			VisemeEvents: []speech.VisemeEvent{},
			CreatedAt:    time.Now().UTC(),
		}, nil
	}

	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = c.config.TTSVoice
	}
	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = c.config.TTSLanguage
	}
	style, degree := ComputeSpeakingStyle(voice, req.Emotion, req.Intensity)

	ssml := buildSSML(req.Text, ssmlOptions{
		Voice:    voice,
		Language: language,
		Rate:     req.Rate,
		Pitch:    req.Pitch,
		Style:    style,
		Degree:   degree,
	})

	connectionID := strings.ReplaceAll(uuid.NewString(), "-", "")
	requestID := strings.ReplaceAll(uuid.NewString(), "-", "")

	header := http.Header{}
	header.Set("Ocp-Apim-Subscription-Key", c.config.SubscriptionKey)

	conn, _, err := c.dialer.DialContext(ctx, c.endpoint(connectionID), header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TTS WebSocket: %w", err)
	}
	defer conn.Close()

	// ctx 取消时关闭连接以打断阻塞的读取
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := c.sendRequest(conn, requestID, format, ssml); err != nil {
		return nil, err
	}

	var (
		audio   bytes.Buffer
		visemes = make([]speech.VisemeEvent, 0, 64)
	)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to read TTS response: %w", err)
		}

		switch msgType {
		case websocket.BinaryMessage:
			headers, payload, err := parseBinaryFrame(data)
			if err != nil {
				return nil, err
			}
			if strings.EqualFold(headers["Path"], "audio") {
				audio.Write(payload)
			}
		case websocket.TextMessage:
			headers, body := parseTextFrame(data)
			switch strings.ToLower(headers["Path"]) {
			case "audio.metadata":
				visemes = append(visemes, parseVisemes(body)...)
			case "turn.end":
				logger.WithComponent("tts").WithFields(map[string]any{
					"session_id": req.SessionID,
					"voice":      voice,
					"style":      style,
					"bytes":      audio.Len(),
					"visemes":    len(visemes),
				}).Debug("synthesis completed")

				return &speech.TTSResponse{
					SessionID:    req.SessionID,
					AudioData:    audio.Bytes(),
					Format:       format,
					VisemeEvents: visemes,
					RequestID:    requestID,
					CreatedAt:    time.Now().UTC(),
				}, nil
			}
		}
	}
}

func (c *AzureTTSClient) sendRequest(conn *websocket.Conn, requestID, format, ssml string) error {
	speechConfig := map[string]any{
		"context": map[string]any{
			"system": map[string]any{"name": "acoda-backend", "version": "1.0.0", "build": "Go", "lang": "Go"},
			"os":     map[string]any{"platform": "Linux", "name": "Go", "version": "1"},
		},
	}
	synthesisContext := map[string]any{
		"synthesis": map[string]any{
			"audio": map[string]any{
				"metadataOptions": map[string]any{
					"visemeEnabled":           true,
					"wordBoundaryEnabled":     false,
					"sentenceBoundaryEnabled": false,
				},
				"outputFormat": format,
			},
		},
	}

	configBody, err := json.Marshal(speechConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal speech.config: %w", err)
	}
	contextBody, err := json.Marshal(synthesisContext)
	if err != nil {
		return fmt.Errorf("failed to marshal synthesis.context: %w", err)
	}

	frames := []string{
		textFrame("speech.config", "", "application/json; charset=utf-8", configBody),
		textFrame("synthesis.context", requestID, "application/json; charset=utf-8", contextBody),
		textFrame("ssml", requestID, "application/ssml+xml", []byte(ssml)),
	}
	for _, frame := range frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			return fmt.Errorf("failed to send TTS request: %w", err)
		}
	}
	return nil
}

func textFrame(path, requestID, contentType string, body []byte) string {
	var b strings.Builder
	b.WriteString("X-Timestamp:" + time.Now().UTC().Format("2006-01-02T15:04:05.000Z") + "\r\n")
	if requestID != "" {
		b.WriteString("X-RequestId:" + requestID + "\r\n")
	}
	b.WriteString("Content-Type:" + contentType + "\r\n")
	b.WriteString("Path:" + path + "\r\n\r\n")
	b.Write(body)
	return b.String()
}

// parseTextFrame 拆分头部与消息体。
func parseTextFrame(data []byte) (map[string]string, []byte) {
	raw := string(data)
	head, body, _ := strings.Cut(raw, "\r\n\r\n")
	return parseHeaders(head), []byte(body)
}

// parseBinaryFrame 二进制帧：2 字节大端头长度 + 头部文本 + 音频数据。
func parseBinaryFrame(data []byte) (map[string]string, []byte, error) {
	if len(data) < 2 {
		return nil, nil, fmt.Errorf("binary frame too short: %d bytes", len(data))
	}
	headerLen := int(binary.BigEndian.Uint16(data[:2]))
	if len(data) < 2+headerLen {
		return nil, nil, fmt.Errorf("binary frame header length %d exceeds frame size %d", headerLen, len(data))
	}
	return parseHeaders(string(data[2 : 2+headerLen])), data[2+headerLen:], nil
}

func parseHeaders(head string) map[string]string {
	headers := make(map[string]string)
	for _, line := range strings.Split(head, "\r\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return headers
}

func parseVisemes(body []byte) []speech.VisemeEvent {
	var msg ttsMetadataMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		logger.WithComponent("tts").WithError(err).Warn("ignore malformed audio.metadata")
		return nil
	}

	events := make([]speech.VisemeEvent, 0, len(msg.Metadata))
	for _, item := range msg.Metadata {
		if item.Type != "Viseme" {
			continue
		}
		events = append(events, speech.VisemeEvent{
			Time:   ticksToSeconds(item.Data.Offset),
			Viseme: mapVisemeID(item.Data.VisemeID),
		})
	}
	return events
}
