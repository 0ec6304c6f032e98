// Package orchestrator runs one conversational turn end to end: context
// assembly, model call, transcript persistence and memory refresh.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/acoda/backend/internal/logger"
	"github.com/zhouzirui/acoda/backend/internal/model/account"
	"github.com/zhouzirui/acoda/backend/internal/model/chat"
	"github.com/zhouzirui/acoda/backend/internal/model/memory"
	"github.com/zhouzirui/acoda/backend/internal/service/ai"
	"github.com/zhouzirui/acoda/backend/internal/service/emotion"
)

var (
	ErrEmptyInput = errors.New("user text is empty")
	// ErrSessionForbidden means the session exists but belongs to another user.
	ErrSessionForbidden = errors.New("session belongs to another user")
	// ErrModelUnavailable wraps failures of a configured language model backend.
	ErrModelUnavailable = errors.New("language model unavailable")
)

// Accounts resolves plans.
type Accounts interface {
	GetPlan(ctx context.Context, userID string) (account.Plan, error)
}

// Memories reads and refreshes the rolling summary.
type Memories interface {
	GetSummary(ctx context.Context, userID string) (string, error)
	UpdateSummary(ctx context.Context, userID, summary string, plan account.Plan) (*memory.Record, error)
	GenerateSummary(ctx context.Context, turns []chat.Turn) (string, error)
}

// Transcripts reads sessions and appends their messages.
type Transcripts interface {
	GetSession(ctx context.Context, sessionID string) (chat.Session, error)
	AppendMessage(ctx context.Context, sessionID string, role chat.Role, content string) (chat.Message, error)
}

// TurnRequest is one user utterance. A nil History means "load it from the
// session"; an empty non-nil slice means the caller has no prior turns.
type TurnRequest struct {
	UserID    string
	SessionID string
	UserText  string
	History   []chat.Turn
}

// TurnResponse carries the reply plus presentation hints.
type TurnResponse struct {
	AssistantText string              `json:"assistantText"`
	ControlTags   emotion.ControlTags `json:"controlTags"`
	// Degraded is set when the reply was produced without a language model.
	Degraded bool `json:"degraded,omitempty"`
}

// Orchestrator holds no state of its own beyond its collaborators.
type Orchestrator struct {
	accounts    Accounts
	memories    Memories
	transcripts Transcripts
	prompts     *ai.PromptBuilder
	gateway     ai.Gateway
	tagger      emotion.Tagger
}

// New wires the collaborators. A nil tagger means static tags.
func New(accounts Accounts, memories Memories, transcripts Transcripts, prompts *ai.PromptBuilder, gateway ai.Gateway, tagger emotion.Tagger) *Orchestrator {
	if tagger == nil {
		tagger = emotion.StaticTagger{}
	}
	if gateway == nil {
		gateway = ai.Unconfigured{}
	}
	return &Orchestrator{
		accounts:    accounts,
		memories:    memories,
		transcripts: transcripts,
		prompts:     prompts,
		gateway:     gateway,
		tagger:      tagger,
	}
}

type turnContext struct {
	plan     account.Plan
	history  []chat.Turn
	messages []*schema.Message
}

// prepare runs steps 1-4: plan, session ownership, summary, history and
// prompt assembly. Nothing is written and the model is not called on failure.
func (o *Orchestrator) prepare(ctx context.Context, req TurnRequest) (*turnContext, error) {
	if strings.TrimSpace(req.UserText) == "" {
		return nil, ErrEmptyInput
	}

	plan, err := o.accounts.GetPlan(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	session, err := o.transcripts.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != req.UserID {
		o.log(req).WithField("owner_id", session.UserID).Warn("turn rejected for foreign session")
		return nil, ErrSessionForbidden
	}

	summary, err := o.memories.GetSummary(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	history := req.History
	if history == nil {
		history = chat.TurnsFromMessages(session.Messages)
	}

	messages, err := o.prompts.Build(ctx, summary, history, req.UserText)
	if err != nil {
		return nil, err
	}

	return &turnContext{plan: plan, history: history, messages: messages}, nil
}

// ProcessTurn executes one conversational turn.
func (o *Orchestrator) ProcessTurn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	tc, err := o.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	reply, degraded, err := o.complete(ctx, req, tc)
	if err != nil {
		return nil, err
	}
	return o.finish(ctx, req, tc, reply, degraded)
}

// StreamTurn runs the same pipeline but forwards partial output to onDelta as
// it arrives. Gateways that cannot stream are called once and the full reply
// is delivered as a single delta.
func (o *Orchestrator) StreamTurn(ctx context.Context, req TurnRequest, onDelta func(string)) (*TurnResponse, error) {
	tc, err := o.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	streaming, ok := o.gateway.(ai.StreamingGateway)
	if !ok {
		reply, degraded, err := o.complete(ctx, req, tc)
		if err != nil {
			return nil, err
		}
		onDelta(reply)
		return o.finish(ctx, req, tc, reply, degraded)
	}

	stream, err := streaming.Stream(ctx, tc.messages)
	if errors.Is(err, ai.ErrGatewayUnconfigured) {
		reply := degradedReply(req.UserText)
		onDelta(reply)
		return o.finish(ctx, req, tc, reply, true)
	}
	if err != nil {
		o.log(req).WithError(err).Error("language model stream failed")
		return nil, fmt.Errorf("%w: stream reply: %w", ErrModelUnavailable, err)
	}
	defer stream.Close()

	var builder strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			o.log(req).WithError(err).Error("language model stream interrupted")
			return nil, fmt.Errorf("%w: receive stream chunk: %w", ErrModelUnavailable, err)
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		builder.WriteString(chunk.Content)
		onDelta(chunk.Content)
	}

	reply := builder.String()
	if strings.TrimSpace(reply) == "" {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, ai.ErrEmptyCompletion)
	}
	return o.finish(ctx, req, tc, reply, false)
}

func (o *Orchestrator) complete(ctx context.Context, req TurnRequest, tc *turnContext) (string, bool, error) {
	reply, err := o.gateway.Complete(ctx, tc.messages)
	if errors.Is(err, ai.ErrGatewayUnconfigured) {
		return degradedReply(req.UserText), true, nil
	}
	if err != nil {
		o.log(req).WithError(err).Error("language model call failed")
		return "", false, fmt.Errorf("%w: generate reply: %w", ErrModelUnavailable, err)
	}
	if strings.TrimSpace(reply) == "" {
		o.log(req).Error("language model returned a blank reply")
		return "", false, fmt.Errorf("%w: %w", ErrModelUnavailable, ai.ErrEmptyCompletion)
	}
	return reply, false, nil
}

// finish runs steps 6-8: persist both turns, refresh memory, tag the reply.
// A failure after the model call is not compensated; the turn is reported
// as failed and the error is logged with its session.
func (o *Orchestrator) finish(ctx context.Context, req TurnRequest, tc *turnContext, reply string, degraded bool) (*TurnResponse, error) {
	if _, err := o.transcripts.AppendMessage(ctx, req.SessionID, chat.RoleUser, req.UserText); err != nil {
		o.log(req).WithError(err).Error("persist user turn failed after model reply")
		return nil, fmt.Errorf("persist user turn: %w", err)
	}
	if _, err := o.transcripts.AppendMessage(ctx, req.SessionID, chat.RoleAssistant, reply); err != nil {
		o.log(req).WithError(err).Error("persist assistant turn failed after model reply")
		return nil, fmt.Errorf("persist assistant turn: %w", err)
	}

	turns := make([]chat.Turn, 0, len(tc.history)+2)
	turns = append(turns, tc.history...)
	turns = append(turns,
		chat.Turn{Role: string(chat.RoleUser), Content: req.UserText},
		chat.Turn{Role: string(chat.RoleAssistant), Content: reply},
	)

	summary, err := o.memories.GenerateSummary(ctx, turns)
	if err != nil {
		o.log(req).WithError(err).Error("summarize conversation failed")
		return nil, fmt.Errorf("summarize conversation: %w", err)
	}
	if _, err := o.memories.UpdateSummary(ctx, req.UserID, summary, tc.plan); err != nil {
		o.log(req).WithError(err).Error("update memory failed")
		return nil, fmt.Errorf("update memory: %w", err)
	}

	tags := o.tagger.Tag(ctx, emotion.TagInput{UserText: req.UserText, AssistantText: reply, History: tc.history})

	o.log(req).WithFields(logrus.Fields{
		"plan":     tc.plan,
		"history":  len(tc.history),
		"reply":    len(reply),
		"degraded": degraded,
	}).Info("turn completed")

	return &TurnResponse{AssistantText: reply, ControlTags: tags, Degraded: degraded}, nil
}

func (o *Orchestrator) log(req TurnRequest) *logrus.Entry {
	return logger.WithComponent("orchestrator").WithFields(logrus.Fields{
		"user_id":    req.UserID,
		"session_id": req.SessionID,
	})
}

func degradedReply(userText string) string {
	return fmt.Sprintf("I understand you said: \"%s\". Please configure the language model to enable full functionality.", userText)
}
