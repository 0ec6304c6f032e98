package speech

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/zhouzirui/acoda/backend/internal/model/speech"
)

var (
	// ErrSpeechUnconfigured 表示缺少 Azure Speech 凭证。
	ErrSpeechUnconfigured = errors.New("speech service is not configured, set AZURE_SPEECH_KEY and AZURE_SPEECH_REGION")
	// ErrNoSpeech 表示音频中没有识别出语音。
	ErrNoSpeech = errors.New("no speech could be recognized")
)

const (
	defaultVoice        = "en-US-JennyNeural"
	defaultOutputFormat = "audio-24khz-48kbitrate-mono-mp3"
	defaultLanguage     = "en-US"
)

// Service 语音服务核心业务逻辑
type Service struct {
	config    *speech.SpeechConfig
	asrClient *AzureASRClient
	ttsClient *AzureTTSClient
}

// NewService 创建语音服务实例，缺省值在此补齐。
func NewService(config *speech.SpeechConfig) *Service {
	if config == nil {
		config = &speech.SpeechConfig{}
	}
	if config.TTSVoice == "" {
		config.TTSVoice = defaultVoice
	}
	if config.TTSOutputFormat == "" {
		config.TTSOutputFormat = defaultOutputFormat
	}
	if config.ASRLanguage == "" {
		config.ASRLanguage = defaultLanguage
	}
	if config.TTSLanguage == "" {
		config.TTSLanguage = defaultLanguage
	}
	if config.Timeout <= 0 {
		config.Timeout = 30
	}

	return &Service{
		config:    config,
		asrClient: NewAzureASRClient(config),
		ttsClient: NewAzureTTSClient(config),
	}
}

// Enabled reports whether credentials are present.
func (s *Service) Enabled() bool {
	return s != nil && s.config.Enabled()
}

// Timeout returns the per-request upstream timeout.
func (s *Service) Timeout() time.Duration {
	return time.Duration(s.config.Timeout) * time.Second
}

// TranscribeAudio 语音转文字
func (s *Service) TranscribeAudio(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error) {
	if !s.Enabled() {
		return nil, ErrSpeechUnconfigured
	}
	return s.asrClient.Transcribe(ctx, req)
}

// SynthesizeSpeech 文字转语音，空文本直接返回空音频。
func (s *Service) SynthesizeSpeech(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	if !s.Enabled() {
		return nil, ErrSpeechUnconfigured
	}
	return s.ttsClient.Synthesize(ctx, req)
}

// TranscribeBuffer 语音转文字（使用字节数组）
func (s *Service) TranscribeBuffer(ctx context.Context, sessionID string, audioData []byte, format, language string) (*speech.ASRResponse, error) {
	req := &speech.ASRRequest{
		SessionID: sessionID,
		AudioData: bytes.NewReader(audioData),
		Format:    format,
		Language:  language,
	}

	return s.TranscribeAudio(ctx, req)
}

// SynthesizeToBuffer 文字转语音（返回字节数组）
func (s *Service) SynthesizeToBuffer(ctx context.Context, sessionID, text, voice, language string) (*speech.TTSResponse, error) {
	req := &speech.TTSRequest{
		SessionID: sessionID,
		Text:      text,
		Voice:     voice,
		Language:  language,
	}

	return s.SynthesizeSpeech(ctx, req)
}
