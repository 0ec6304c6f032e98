package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAI-compatible or Azure OpenAI gateway.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	// Model is the model name, or the deployment name on Azure.
	Model       string
	Azure       bool
	APIVersion  string
	Temperature float32
	MaxTokens   int
}

// OpenAIGateway implements StreamingGateway with go-openai.
type OpenAIGateway struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAIGateway builds the client for either flavour of the API.
func NewOpenAIGateway(cfg OpenAIConfig) *OpenAIGateway {
	var clientCfg openai.ClientConfig
	if cfg.Azure {
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.APIVersion != "" {
			clientCfg.APIVersion = cfg.APIVersion
		}
		deployment := cfg.Model
		clientCfg.AzureModelMapperFunc = func(string) string { return deployment }
	} else {
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
	}

	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	return &OpenAIGateway{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

func (g *OpenAIGateway) request(messages []*schema.Message) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}
}

func (g *OpenAIGateway) Complete(ctx context.Context, messages []*schema.Message) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, g.request(messages))
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

func (g *OpenAIGateway) Stream(ctx context.Context, messages []*schema.Message) (*schema.StreamReader[*schema.Message], error) {
	req := g.request(messages)
	req.Stream = true

	upstream, err := g.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion stream: %w", err)
	}

	reader, writer := schema.Pipe[*schema.Message](8)
	go func() {
		defer upstream.Close()
		defer writer.Close()

		for {
			chunk, err := upstream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				writer.Send(nil, fmt.Errorf("openai stream recv: %w", err))
				return
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			if closed := writer.Send(schema.AssistantMessage(chunk.Choices[0].Delta.Content, nil), nil); closed {
				return
			}
		}
	}()

	return reader, nil
}

func toOpenAIMessages(messages []*schema.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		role := openai.ChatMessageRoleAssistant
		switch msg.Role {
		case schema.System:
			role = openai.ChatMessageRoleSystem
		case schema.User:
			role = openai.ChatMessageRoleUser
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	return out
}
