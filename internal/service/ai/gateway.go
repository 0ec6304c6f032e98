package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/acoda/backend/internal/config"
	"github.com/zhouzirui/acoda/backend/internal/logger"
)

const (
	// 与原有部署保持一致的默认采样参数
	DefaultTemperature = float32(0.7)
	DefaultMaxTokens   = 500
)

var (
	// ErrGatewayUnconfigured marks a deployment without model credentials.
	ErrGatewayUnconfigured = errors.New("language model gateway is not configured")
	// ErrEmptyCompletion is returned when the model produced no text.
	ErrEmptyCompletion = errors.New("language model returned an empty response")
)

// Gateway sends an assembled prompt to a completion service.
type Gateway interface {
	Complete(ctx context.Context, messages []*schema.Message) (string, error)
}

// StreamingGateway is a Gateway that can also stream partial output.
type StreamingGateway interface {
	Gateway
	Stream(ctx context.Context, messages []*schema.Message) (*schema.StreamReader[*schema.Message], error)
}

// Unconfigured fails every call with ErrGatewayUnconfigured.
type Unconfigured struct{}

func (Unconfigured) Complete(context.Context, []*schema.Message) (string, error) {
	return "", ErrGatewayUnconfigured
}

func (Unconfigured) Stream(context.Context, []*schema.Message) (*schema.StreamReader[*schema.Message], error) {
	return nil, ErrGatewayUnconfigured
}

// NewGateway builds the gateway selected by cfg. Missing credentials yield
// Unconfigured rather than an error so the rest of the pipeline keeps working.
func NewGateway(ctx context.Context, cfg config.AIConfig) (Gateway, error) {
	log := logger.WithComponent("ai")

	if !cfg.Enabled() {
		log.Warn("language model credentials missing, running with unconfigured gateway")
		return Unconfigured{}, nil
	}

	provider := cfg.ResolvedProvider()
	switch provider {
	case "ark":
		chatModel, err := cfg.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		log.WithField("model", cfg.Model).Info("ark gateway initialized")
		return NewArkGateway(chatModel), nil
	case "openai":
		log.WithField("model", cfg.OpenAIModel).Info("openai gateway initialized")
		return NewOpenAIGateway(OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.OpenAIModel,
			Temperature: cfg.TemperatureOr(DefaultTemperature),
			MaxTokens:   cfg.MaxTokensOr(DefaultMaxTokens),
		}), nil
	case "azure":
		log.WithField("deployment", cfg.AzureDeployment).Info("azure openai gateway initialized")
		return NewOpenAIGateway(OpenAIConfig{
			APIKey:      cfg.AzureAPIKey,
			BaseURL:     cfg.AzureEndpoint,
			Model:       cfg.AzureDeployment,
			Azure:       true,
			APIVersion:  cfg.AzureAPIVersion,
			Temperature: cfg.TemperatureOr(DefaultTemperature),
			MaxTokens:   cfg.MaxTokensOr(DefaultMaxTokens),
		}), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", provider)
	}
}
