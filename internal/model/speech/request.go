package speech

import (
	"io"
)

// ASRRequest 语音识别请求
type ASRRequest struct {
	SessionID string    `json:"sessionId"`
	AudioData io.Reader `json:"-"`
	Format    string    `json:"format"`   // wav, ogg, webm
	Language  string    `json:"language"` // en-US, zh-CN, etc.
}

// TTSRequest 语音合成请求
type TTSRequest struct {
	SessionID string   `json:"sessionId"`
	Text      string   `json:"text"`
	Voice     string   `json:"voice"`
	Rate      *float64 `json:"rate,omitempty"`  // 语速倍率，0.5-2.0
	Pitch     *float64 `json:"pitch,omitempty"` // 音高百分比，例如 -10 / +5
	Language  string   `json:"language"`
	// 控制标签，用于选择支持情绪风格的声音的 speaking style
	Emotion   string  `json:"emotion,omitempty"`
	Intensity float64 `json:"intensity,omitempty"`
}
