package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ArkGateway talks to Volcengine Ark through an eino chat model.
type ArkGateway struct {
	chatModel model.ChatModel
}

// NewArkGateway wraps an already constructed chat model.
func NewArkGateway(chatModel model.ChatModel) *ArkGateway {
	return &ArkGateway{chatModel: chatModel}
}

// ChatModel 返回底层的聊天模型，供情绪分类等链路复用。
func (g *ArkGateway) ChatModel() model.ChatModel {
	return g.chatModel
}

func (g *ArkGateway) Complete(ctx context.Context, messages []*schema.Message) (string, error) {
	resp, err := g.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("ark generate: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Content, nil
}

func (g *ArkGateway) Stream(ctx context.Context, messages []*schema.Message) (*schema.StreamReader[*schema.Message], error) {
	stream, err := g.chatModel.Stream(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("ark stream: %w", err)
	}
	return stream, nil
}
