package speech

// SpeechConfig 语音服务配置
type SpeechConfig struct {
	// Azure Speech 订阅
	SubscriptionKey string `json:"-"`
	Region          string `json:"region"`
	// 覆盖默认端点，主要用于测试或私有部署
	STTEndpoint string `json:"sttEndpoint,omitempty"`
	TTSEndpoint string `json:"ttsEndpoint,omitempty"`

	// ASR 配置
	ASRLanguage string `json:"asrLanguage"`

	// TTS 配置
	TTSVoice        string `json:"ttsVoice"`
	TTSOutputFormat string `json:"ttsOutputFormat"`
	TTSLanguage     string `json:"ttsLanguage"`

	// 通用配置
	Timeout int `json:"timeout"` // seconds
}

// Enabled reports whether credentials were supplied.
func (c *SpeechConfig) Enabled() bool {
	return c != nil && c.SubscriptionKey != "" && (c.Region != "" || (c.STTEndpoint != "" && c.TTSEndpoint != ""))
}
