package speech

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/acoda/backend/internal/model/account"
	"github.com/zhouzirui/acoda/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/acoda/backend/internal/service/chat"
	"github.com/zhouzirui/acoda/backend/internal/service/emotion"
	"github.com/zhouzirui/acoda/backend/internal/service/orchestrator"
)

type fakeAccounts struct {
	allowed  bool
	consumed int
}

func (f *fakeAccounts) GetPlan(context.Context, string) (account.Plan, error) {
	return account.PlanFree, nil
}

func (f *fakeAccounts) ConsumeVoice(context.Context, string, account.Plan) (account.UsageResult, error) {
	f.consumed++
	return account.UsageResult{Allowed: f.allowed, Remaining: 0, Plan: account.PlanFree}, nil
}

type fakeSessions struct{}

func (fakeSessions) GetSession(_ context.Context, id string) (chat.Session, error) {
	if id != "s1" {
		return chat.Session{}, chatservice.ErrSessionNotFound
	}
	return chat.Session{ID: "s1", UserID: "u1"}, nil
}

type fakeTurns struct {
	texts []string
}

func (f *fakeTurns) StreamTurn(_ context.Context, req orchestrator.TurnRequest, onDelta func(string)) (*orchestrator.TurnResponse, error) {
	f.texts = append(f.texts, req.UserText)
	onDelta("Hi")
	return &orchestrator.TurnResponse{AssistantText: "Hi", ControlTags: emotion.ControlTags{Emotion: "happy", Gesture: []string{}, Intensity: 0.8}}, nil
}

func startVoiceServer(t *testing.T, speech *fakeSpeechService, accounts *fakeAccounts, turns *fakeTurns) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	NewWebSocketHandler(speech, accounts, fakeSessions{}, turns, "en-US-JennyNeural").RegisterWebSocketRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

// readUntil 读取消息直到出现指定 data.type
func readUntil(t *testing.T, conn *websocket.Conn, kind string) map[string]any {
	t.Helper()
	for {
		var msg struct {
			Type string         `json:"type"`
			Data map[string]any `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %q: %v", kind, err)
		}
		if msg.Type == "error" {
			t.Fatalf("unexpected error message while waiting for %q: %v", kind, msg.Data)
		}
		if msg.Data["type"] == kind {
			return msg.Data
		}
	}
}

func TestVoiceTurnRoundTrip(t *testing.T) {
	speech := &fakeSpeechService{text: "how are you"}
	accounts := &fakeAccounts{allowed: true}
	turns := &fakeTurns{}
	conn := dial(t, startVoiceServer(t, speech, accounts, turns), "/voice/ws/s1?userId=u1")

	readUntil(t, conn, "connected")

	if err := conn.WriteJSON(map[string]any{"type": "audio", "data": map[string]any{"audioData": []byte("part1"), "format": "webm"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.WriteJSON(map[string]any{"type": "audio", "data": map[string]any{"audioData": []byte("part2"), "isFinal": true}}); err != nil {
		t.Fatalf("write: %v", err)
	}

	usage := readUntil(t, conn, "usage")
	if usage["allowed"] != true {
		t.Fatalf("unexpected usage %v", usage)
	}
	asr := readUntil(t, conn, "asr")
	if asr["text"] != "how are you" {
		t.Fatalf("unexpected asr %v", asr)
	}
	ai := readUntil(t, conn, "ai")
	if ai["text"] != "Hi" {
		t.Fatalf("unexpected ai %v", ai)
	}
	tts := readUntil(t, conn, "tts")
	if tts["audioData"] == nil || tts["visemes"] == nil {
		t.Fatalf("unexpected tts %v", tts)
	}

	if accounts.consumed != 1 {
		t.Fatalf("expected one consumption, got %d", accounts.consumed)
	}
	if len(turns.texts) != 1 || turns.texts[0] != "how are you" {
		t.Fatalf("unexpected turns %v", turns.texts)
	}
	if speech.lastASR.Format != "webm" {
		t.Fatalf("expected buffered format webm, got %s", speech.lastASR.Format)
	}
	if speech.lastTTS.Emotion != "happy" || speech.lastTTS.Intensity != 0.8 {
		t.Fatalf("control tags not forwarded to TTS: %+v", speech.lastTTS)
	}
}

func TestVoiceTurnQuotaExceeded(t *testing.T) {
	speech := &fakeSpeechService{text: "hello"}
	accounts := &fakeAccounts{allowed: false}
	turns := &fakeTurns{}
	conn := dial(t, startVoiceServer(t, speech, accounts, turns), "/voice/ws/s1?userId=u1")

	readUntil(t, conn, "connected")
	_ = conn.WriteJSON(map[string]any{"type": "audio", "data": map[string]any{"audioData": []byte("x"), "isFinal": true}})

	usage := readUntil(t, conn, "usage")
	if usage["allowed"] != false {
		t.Fatalf("expected rejection, got %v", usage)
	}

	// 文本消息不计入语音配额
	_ = conn.WriteJSON(map[string]any{"type": "text", "data": map[string]any{"text": "typed"}})
	readUntil(t, conn, "ai")

	if speech.lastASR != nil {
		t.Fatalf("ASR must not run when quota is exhausted")
	}
	if len(turns.texts) != 1 || turns.texts[0] != "typed" {
		t.Fatalf("unexpected turns %v", turns.texts)
	}
}

func TestVoiceWebSocketRejectsForeignSession(t *testing.T) {
	server := startVoiceServer(t, &fakeSpeechService{}, &fakeAccounts{}, &fakeTurns{})

	resp, err := http.Get(server.URL + "/voice/ws/s1?userId=someone-else")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/voice/ws/missing?userId=u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
