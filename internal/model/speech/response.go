package speech

import "time"

// ASRResponse 语音识别响应
type ASRResponse struct {
	SessionID string    `json:"sessionId,omitempty"`
	Text      string    `json:"text"`
	Duration  int64     `json:"duration"` // milliseconds
	RequestID string    `json:"requestId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// VisemeEvent marks a mouth shape at an offset into the synthesized audio.
type VisemeEvent struct {
	Time   float64 `json:"time"` // seconds
	Viseme string  `json:"viseme"`
}

// TTSResponse 语音合成响应
type TTSResponse struct {
	SessionID    string        `json:"sessionId,omitempty"`
	AudioData    []byte        `json:"-"`
	Format       string        `json:"format"`
	VisemeEvents []VisemeEvent `json:"visemeEvents,omitempty"`
	RequestID    string        `json:"requestId,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}
