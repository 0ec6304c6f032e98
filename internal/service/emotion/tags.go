package emotion

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"

	analysis "github.com/zhouzirui/acoda/backend/internal/analysis/emotion"
	"github.com/zhouzirui/acoda/backend/internal/model/chat"
)

// ControlTags 是返回给前端的表现提示，用于驱动头像表情、动作和语音风格。
type ControlTags struct {
	Emotion   string   `json:"emotion"`
	Gesture   []string `json:"gesture"`
	Intensity float64  `json:"intensity"`
}

// DefaultTags 是未做情绪推断时的固定提示。
func DefaultTags() ControlTags {
	return ControlTags{Emotion: "warm", Gesture: []string{}, Intensity: 0.6}
}

// TagInput carries one finished turn.
type TagInput struct {
	UserText      string
	AssistantText string
	History       []chat.Turn
}

// Tagger derives presentation hints for a turn.
type Tagger interface {
	Tag(ctx context.Context, in TagInput) ControlTags
}

// StaticTagger always returns DefaultTags.
type StaticTagger struct{}

func (StaticTagger) Tag(context.Context, TagInput) ControlTags {
	return DefaultTags()
}

// HeuristicTagger uses the keyword analyzer.
type HeuristicTagger struct{}

func (HeuristicTagger) Tag(_ context.Context, in TagInput) ControlTags {
	return FromDecision(analysis.Analyze(in.UserText, in.AssistantText))
}

var gesturesByEmotion = map[analysis.Label][]string{
	analysis.Happy:    {"smile"},
	analysis.Sad:      {"head_tilt"},
	analysis.Angry:    {"lean_back"},
	analysis.Excited:  {"smile", "wave"},
	analysis.Tender:   {"soft_smile"},
	analysis.Comfort:  {"nod", "head_tilt"},
	analysis.Magnetic: {"nod"},
}

// FromDecision converts an analyzer decision into control tags.
func FromDecision(decision analysis.Decision) ControlTags {
	label := decision.Emotion
	if label == "" {
		label = analysis.Neutral
	}
	gestures := append([]string{}, gesturesByEmotion[label]...)
	return ControlTags{
		Emotion:   string(label),
		Gesture:   gestures,
		Intensity: decision.Intensity(),
	}
}

// NewTagger 根据配置选择标签策略：static、heuristic 或 llm。
// llm 模式在没有可用模型时退化为 heuristic。
func NewTagger(ctx context.Context, mode string, chatModel model.ChatModel, historyLimit int) (Tagger, error) {
	switch mode {
	case "", "static":
		return StaticTagger{}, nil
	case "heuristic":
		return HeuristicTagger{}, nil
	case "llm":
		if chatModel == nil {
			return HeuristicTagger{}, nil
		}
		return NewClassifier(ctx, chatModel, historyLimit)
	default:
		return nil, fmt.Errorf("unknown control tags mode %q", mode)
	}
}
