package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/acoda/backend/internal/model/persona"
	accountservice "github.com/zhouzirui/acoda/backend/internal/service/account"
	"github.com/zhouzirui/acoda/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/acoda/backend/internal/service/chat"
	memoryservice "github.com/zhouzirui/acoda/backend/internal/service/memory"
	"github.com/zhouzirui/acoda/backend/internal/service/orchestrator"
	"github.com/zhouzirui/acoda/backend/internal/store/memstore"
)

type failingGateway struct{}

func (failingGateway) Complete(context.Context, []*schema.Message) (string, error) {
	return "", errors.New("connection refused")
}

type testEnv struct {
	router   *chi.Mux
	accounts *accountservice.Service
	chatSvc  *chatservice.Service
}

func setupRouter(gateway ai.Gateway) *testEnv {
	st := memstore.New()
	accounts := accountservice.NewService(st, accountservice.Config{})
	chatSvc := chatservice.NewService(st)
	memories := memoryservice.NewService(st, memoryservice.Config{})
	orch := orchestrator.New(accounts, memories, chatSvc, ai.NewPromptBuilder(persona.Seed()[0]), gateway, nil)

	r := chi.NewRouter()
	New(chatSvc, orch).RegisterRoutes(r)
	return &testEnv{router: r, accounts: accounts, chatSvc: chatSvc}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	return resp
}

func (e *testEnv) newSession(t *testing.T) (string, string) {
	t.Helper()
	user, err := e.accounts.CreateUser(context.Background(), "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	session, err := e.chatSvc.CreateSession(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return user.ID, session.ID
}

func TestCreateSessionValidUser(t *testing.T) {
	env := setupRouter(ai.Unconfigured{})
	user, _ := env.accounts.CreateUser(context.Background(), "")

	resp := env.do(http.MethodPost, "/sessions", map[string]string{"userId": user.ID})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestCreateSessionUnknownUser(t *testing.T) {
	env := setupRouter(ai.Unconfigured{})

	resp := env.do(http.MethodPost, "/sessions", map[string]string{"userId": "non-existent"})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestCreateSessionMissingUserID(t *testing.T) {
	env := setupRouter(ai.Unconfigured{})

	resp := env.do(http.MethodPost, "/sessions", map[string]string{})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"field":"userId"`) {
		t.Fatalf("expected field detail, got %s", resp.Body.String())
	}
}

func TestChatDegradesWithoutModel(t *testing.T) {
	env := setupRouter(ai.Unconfigured{})
	userID, sessionID := env.newSession(t)

	resp := env.do(http.MethodPost, "/chat", map[string]string{"userId": userID, "sessionId": sessionID, "userText": "hello"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body struct {
		AssistantText string `json:"assistantText"`
		ControlTags   struct {
			Emotion   string   `json:"emotion"`
			Gesture   []string `json:"gesture"`
			Intensity float64  `json:"intensity"`
		} `json:"controlTags"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(body.AssistantText, `I understand you said: "hello".`) {
		t.Fatalf("unexpected reply %q", body.AssistantText)
	}
	if body.ControlTags.Emotion != "warm" || body.ControlTags.Intensity != 0.6 || body.ControlTags.Gesture == nil {
		t.Fatalf("unexpected control tags %+v", body.ControlTags)
	}

	get := env.do(http.MethodGet, "/sessions?sessionId="+sessionID, nil)
	if get.Code != http.StatusOK || !strings.Contains(get.Body.String(), `"role":"ASSISTANT"`) {
		t.Fatalf("expected persisted transcript, got %d: %s", get.Code, get.Body.String())
	}
}

func TestChatValidation(t *testing.T) {
	env := setupRouter(ai.Unconfigured{})

	resp := env.do(http.MethodPost, "/chat", map[string]any{
		"userId":    "u1",
		"sessionId": "s1",
		"userText":  "",
		"history":   []map[string]string{{"role": "system", "content": "x"}},
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	for _, field := range []string{"userText", "history[0].role"} {
		if !strings.Contains(resp.Body.String(), field) {
			t.Fatalf("missing detail for %s: %s", field, resp.Body.String())
		}
	}
}

func TestChatUnknownSessionAndUser(t *testing.T) {
	env := setupRouter(ai.Unconfigured{})
	userID, _ := env.newSession(t)

	resp := env.do(http.MethodPost, "/chat", map[string]string{"userId": userID, "sessionId": "missing", "userText": "hi"})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", resp.Code)
	}

	resp = env.do(http.MethodPost, "/chat", map[string]string{"userId": "ghost", "sessionId": "missing", "userText": "hi"})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", resp.Code)
	}
}

func TestChatForeignSessionIs403(t *testing.T) {
	env := setupRouter(ai.Unconfigured{})
	_, sessionID := env.newSession(t)
	otherID, _ := env.newSession(t)

	resp := env.do(http.MethodPost, "/chat", map[string]string{"userId": otherID, "sessionId": sessionID, "userText": "hi"})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", resp.Code, resp.Body.String())
	}

	session, err := env.chatSvc.GetSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(session.Messages) != 0 {
		t.Fatalf("foreign turn was persisted: %+v", session.Messages)
	}
}

type blankGateway struct{}

func (blankGateway) Complete(context.Context, []*schema.Message) (string, error) {
	return "", nil
}

func TestChatBlankModelReplyIs503(t *testing.T) {
	env := setupRouter(blankGateway{})
	userID, sessionID := env.newSession(t)

	resp := env.do(http.MethodPost, "/chat", map[string]string{"userId": userID, "sessionId": sessionID, "userText": "hi"})
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestChatModelFailureIs503(t *testing.T) {
	env := setupRouter(failingGateway{})
	userID, sessionID := env.newSession(t)

	resp := env.do(http.MethodPost, "/chat", map[string]string{"userId": userID, "sessionId": sessionID, "userText": "hi"})
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
	if strings.Contains(resp.Body.String(), "connection refused") {
		t.Fatalf("upstream detail leaked: %s", resp.Body.String())
	}
}

func TestDeleteSession(t *testing.T) {
	env := setupRouter(ai.Unconfigured{})
	_, sessionID := env.newSession(t)

	if resp := env.do(http.MethodDelete, "/sessions/"+sessionID, nil); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp := env.do(http.MethodGet, "/sessions?sessionId="+sessionID, nil); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.Code)
	}
}
