package emotion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	analysis "github.com/zhouzirui/acoda/backend/internal/analysis/emotion"
	"github.com/zhouzirui/acoda/backend/internal/logger"
	"github.com/zhouzirui/acoda/backend/internal/model/chat"
)

const defaultHistoryLimit = 6

var errNoTagObject = errors.New("no control tag object in reply")

// tagEmotions 是模型可以选择的情绪名，warm 为默认状态。
var tagEmotions = []string{
	"warm",
	string(analysis.Neutral), string(analysis.Happy), string(analysis.Sad), string(analysis.Angry),
	string(analysis.Excited), string(analysis.Tender), string(analysis.Comfort), string(analysis.Magnetic),
}

// tagGestures 是头像支持的全部动作。
var tagGestures = func() []string {
	var out []string
	for _, gestures := range gesturesByEmotion {
		for _, g := range gestures {
			if !slices.Contains(out, g) {
				out = append(out, g)
			}
		}
	}
	slices.Sort(out)
	return out
}()

// Classifier 让大模型直接给出一轮对话的控制标签，失败时交给关键词分析。
type Classifier struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	fallback     Tagger
	historyLimit int
}

// NewClassifier 编译 prompt -> model 链。chatModel 可重用网关的模型实例。
func NewClassifier(ctx context.Context, chatModel model.ChatModel, historyLimit int) (*Classifier, error) {
	if chatModel == nil {
		return nil, errors.New("control tag classifier needs a chat model")
	}
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(tagSystemPrompt),
		schema.UserMessage(tagUserPrompt),
	))
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile control tag chain: %w", err)
	}
	return &Classifier{chain: runnable, fallback: HeuristicTagger{}, historyLimit: historyLimit}, nil
}

// Tag implements Tagger.
func (c *Classifier) Tag(ctx context.Context, in TagInput) ControlTags {
	tags, err := c.classify(ctx, in)
	if err != nil {
		logger.WithComponent("emotion").WithError(err).Warn("control tag classifier failed, using keyword analysis")
		return c.fallback.Tag(ctx, in)
	}
	return tags
}

func (c *Classifier) classify(ctx context.Context, in TagInput) (ControlTags, error) {
	msg, err := c.chain.Invoke(ctx, map[string]any{
		"emotions":        strings.Join(tagEmotions, ", "),
		"gestures":        strings.Join(tagGestures, ", "),
		"history":         formatHistory(in.History, c.historyLimit),
		"user_message":    strings.TrimSpace(in.UserText),
		"assistant_reply": strings.TrimSpace(in.AssistantText),
	})
	if err != nil {
		return ControlTags{}, err
	}
	if msg == nil {
		return ControlTags{}, errNoTagObject
	}
	return parseTags(msg.Content)
}

// parseTags 从模型回复中取出第一个 JSON 对象并校验到标签词表内。
func parseTags(content string) (ControlTags, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		return ControlTags{}, errNoTagObject
	}

	var raw struct {
		Emotion   string   `json:"emotion"`
		Intensity float64  `json:"intensity"`
		Gesture   []string `json:"gesture"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return ControlTags{}, fmt.Errorf("decode control tags: %w", err)
	}

	emotion := strings.ToLower(strings.TrimSpace(raw.Emotion))
	if !slices.Contains(tagEmotions, emotion) {
		return ControlTags{}, fmt.Errorf("unknown emotion %q", raw.Emotion)
	}

	// missing gesture key: use the defaults for the emotion; an explicit [] stays empty
	gestures := []string{}
	if raw.Gesture == nil {
		gestures = append(gestures, gesturesByEmotion[analysis.Label(emotion)]...)
	}
	for _, g := range raw.Gesture {
		g = strings.ToLower(strings.TrimSpace(g))
		if slices.Contains(tagGestures, g) && !slices.Contains(gestures, g) {
			gestures = append(gestures, g)
		}
	}

	return ControlTags{Emotion: emotion, Gesture: gestures, Intensity: clampIntensity(raw.Intensity)}, nil
}

func clampIntensity(v float64) float64 {
	switch {
	case v <= 0 || math.IsNaN(v):
		return DefaultTags().Intensity
	case v > 1:
		return 1
	default:
		return math.Round(v*100) / 100
	}
}

func formatHistory(turns []chat.Turn, limit int) string {
	const empty = "(no earlier conversation)"
	start := max(len(turns)-max(limit, 1), 0)

	var lines []string
	for _, turn := range turns[start:] {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		speaker := "Companion"
		if turn.IsUser() {
			speaker = "User"
		}
		lines = append(lines, speaker+": "+content)
	}
	if len(lines) == 0 {
		return empty
	}
	return strings.Join(lines, "\n")
}

const tagSystemPrompt = `You pick presentation cues for a voice companion's avatar. Given the latest exchange, choose how the avatar should look and move while it speaks the companion reply.
Allowed emotion values: {emotions}. Use warm when nothing stands out.
Allowed gesture values: {gestures}. Pick zero, one or two.
Answer with a single JSON object with the keys emotion, intensity (a number from 0 to 1) and gesture (an array of strings), and nothing else.`

const tagUserPrompt = "Earlier turns:\n{history}\n\nUser said:\n{user_message}\n\nCompanion replies:\n{assistant_reply}"
