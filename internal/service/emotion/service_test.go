package emotion

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	analysis "github.com/zhouzirui/acoda/backend/internal/analysis/emotion"
	"github.com/zhouzirui/acoda/backend/internal/model/chat"
)

type scriptedModel struct {
	reply string
	err   error
	input []*schema.Message
}

func (m *scriptedModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.input = input
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *scriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *scriptedModel) BindTools([]*schema.ToolInfo) error { return nil }

func TestStaticTagger(t *testing.T) {
	tags := StaticTagger{}.Tag(context.Background(), TagInput{UserText: "I'm furious!"})
	assert.Equal(t, "warm", tags.Emotion)
	assert.NotNil(t, tags.Gesture)
	assert.Empty(t, tags.Gesture)
	assert.Equal(t, 0.6, tags.Intensity)
}

func TestHeuristicTagger(t *testing.T) {
	tags := HeuristicTagger{}.Tag(context.Background(), TagInput{
		UserText:      "I feel so lonely",
		AssistantText: "Tell me more about your evening.",
	})
	assert.Equal(t, string(analysis.Comfort), tags.Emotion)
	assert.Equal(t, []string{"nod", "head_tilt"}, tags.Gesture)
	assert.Greater(t, tags.Intensity, 0.0)

	neutral := HeuristicTagger{}.Tag(context.Background(), TagInput{})
	assert.Equal(t, "neutral", neutral.Emotion)
	assert.Equal(t, []string{}, neutral.Gesture)
}

func TestClassifierUsesModelOutput(t *testing.T) {
	m := &scriptedModel{reply: "Sure! {\"emotion\":\"Happy\",\"intensity\":0.8,\"gesture\":[\"smile\",\"moonwalk\",\"wave\"]}"}
	c, err := NewClassifier(context.Background(), m, 2)
	require.NoError(t, err)

	history := []chat.Turn{
		{Role: "USER", Content: "first"},
		{Role: "ASSISTANT", Content: "second"},
		{Role: "USER", Content: "third"},
	}
	tags := c.Tag(context.Background(), TagInput{History: history, UserText: "I got the job", AssistantText: "Congratulations!"})
	assert.Equal(t, ControlTags{Emotion: "happy", Gesture: []string{"smile", "wave"}, Intensity: 0.8}, tags)

	require.Len(t, m.input, 2)
	assert.Contains(t, m.input[0].Content, "warm, neutral, happy")
	assert.Contains(t, m.input[0].Content, "head_tilt, lean_back, nod, smile, soft_smile, wave")
	assert.Contains(t, m.input[1].Content, "Companion: second\nUser: third")
	assert.NotContains(t, m.input[1].Content, "first")
}

func TestParseTags(t *testing.T) {
	tags, err := parseTags(`{"emotion":"warm"}`)
	require.NoError(t, err)
	assert.Equal(t, DefaultTags(), tags)

	tags, err = parseTags(`{"emotion":"comfort","intensity":3}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"nod", "head_tilt"}, tags.Gesture, "missing gestures default to the emotion's set")
	assert.Equal(t, 1.0, tags.Intensity)

	tags, err = parseTags(`{"emotion":"sad","intensity":0.456,"gesture":[]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{}, tags.Gesture)
	assert.Equal(t, 0.46, tags.Intensity)

	_, err = parseTags("happy")
	assert.ErrorIs(t, err, errNoTagObject)
}

func TestClassifierFallsBack(t *testing.T) {
	for name, m := range map[string]*scriptedModel{
		"model error":   {err: errors.New("unavailable")},
		"not json":      {reply: "happy"},
		"unknown label": {reply: `{"emotion":"ecstatic","intensity":0.5}`},
	} {
		t.Run(name, func(t *testing.T) {
			c, err := NewClassifier(context.Background(), m, 0)
			require.NoError(t, err)

			tags := c.Tag(context.Background(), TagInput{UserText: "I feel so lonely"})
			assert.Equal(t, string(analysis.Comfort), tags.Emotion)
			assert.Equal(t, []string{"nod", "head_tilt"}, tags.Gesture)
		})
	}
}

func TestNewTagger(t *testing.T) {
	ctx := context.Background()

	tagger, err := NewTagger(ctx, "static", nil, 0)
	require.NoError(t, err)
	assert.IsType(t, StaticTagger{}, tagger)

	tagger, err = NewTagger(ctx, "llm", nil, 0)
	require.NoError(t, err)
	assert.IsType(t, HeuristicTagger{}, tagger, "llm mode without a model degrades to heuristics")

	tagger, err = NewTagger(ctx, "llm", &scriptedModel{reply: "{}"}, 4)
	require.NoError(t, err)
	assert.IsType(t, &Classifier{}, tagger)

	_, err = NewTagger(ctx, "dice", nil, 0)
	assert.Error(t, err)
}

func TestClampIntensity(t *testing.T) {
	assert.Equal(t, 0.6, clampIntensity(0))
	assert.Equal(t, 0.6, clampIntensity(-1))
	assert.Equal(t, 1.0, clampIntensity(9))
	assert.Equal(t, 0.33, clampIntensity(0.333))
}
