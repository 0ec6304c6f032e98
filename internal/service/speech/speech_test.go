package speech

import (
	"context"
	"encoding/binary"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/acoda/backend/internal/model/speech"
)

func binaryAudioFrame(payload []byte) []byte {
	head := "X-RequestId:abc\r\nContent-Type:audio/mpeg\r\nPath:audio\r\n"
	frame := make([]byte, 2, 2+len(head)+len(payload))
	binary.BigEndian.PutUint16(frame, uint16(len(head)))
	frame = append(frame, head...)
	return append(frame, payload...)
}

// fakeTTSServer 模拟 Azure TTS websocket：读取三帧请求后回放音频与 viseme。
func fakeTTSServer(t *testing.T, captured *[]string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		assert.NotEmpty(t, r.URL.Query().Get("X-ConnectionId"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for i := 0; i < 3; i++ {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			*captured = append(*captured, string(data))
		}

		_ = conn.WriteMessage(websocket.TextMessage, []byte("Path:turn.start\r\n\r\n{}"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte("Path:audio.metadata\r\nContent-Type:application/json\r\n\r\n"+
			`{"Metadata":[{"Type":"Viseme","Data":{"Offset":5000000,"VisemeId":0}},`+
			`{"Type":"WordBoundary","Data":{"Offset":6000000}},`+
			`{"Type":"Viseme","Data":{"Offset":10000000,"VisemeId":7}}]}`))
		_ = conn.WriteMessage(websocket.BinaryMessage, binaryAudioFrame([]byte("abc")))
		_ = conn.WriteMessage(websocket.BinaryMessage, binaryAudioFrame([]byte("def")))
		_ = conn.WriteMessage(websocket.TextMessage, []byte("Path:turn.end\r\n\r\n"))
	}))
}

func TestSynthesizeSpeechCollectsAudioAndVisemes(t *testing.T) {
	var frames []string
	server := fakeTTSServer(t, &frames)
	defer server.Close()

	svc := NewService(&speech.SpeechConfig{
		SubscriptionKey: "test-key",
		STTEndpoint:     server.URL,
		TTSEndpoint:     "ws" + strings.TrimPrefix(server.URL, "http"),
	})

	resp, err := svc.SynthesizeSpeech(context.Background(), &speech.TTSRequest{
		SessionID: "s1",
		Text:      "Hello <there>",
		Emotion:   "happy",
		Intensity: 0.6,
	})
	require.NoError(t, err)

	assert.Equal(t, []byte("abcdef"), resp.AudioData)
	assert.Equal(t, defaultOutputFormat, resp.Format)
	assert.Equal(t, []speech.VisemeEvent{
		{Time: 0.5, Viseme: "silence"},
		{Time: 1, Viseme: "E"},
	}, resp.VisemeEvents)

	require.Len(t, frames, 3)
	assert.Contains(t, frames[0], "Path:speech.config")
	assert.Contains(t, frames[1], "Path:synthesis.context")
	assert.Contains(t, frames[1], `"visemeEnabled":true`)
	assert.Contains(t, frames[1], defaultOutputFormat)
	assert.Contains(t, frames[2], "Path:ssml")
	assert.Contains(t, frames[2], `<voice name="en-US-JennyNeural">`)
	assert.Contains(t, frames[2], `style="cheerful" styledegree="1.20"`)
	assert.Contains(t, frames[2], "Hello &lt;there&gt;")
}

func TestSynthesizeSpeechEmptyTextSkipsUpstream(t *testing.T) {
	svc := NewService(&speech.SpeechConfig{
		SubscriptionKey: "test-key",
		Region:          "invalid.region.local",
	})

	resp, err := svc.SynthesizeSpeech(context.Background(), &speech.TTSRequest{Text: "   "})
	require.NoError(t, err)
	assert.Empty(t, resp.AudioData)
	assert.Empty(t, resp.VisemeEvents)
}

func TestUnconfiguredServiceReturnsSentinel(t *testing.T) {
	svc := NewService(nil)
	assert.False(t, svc.Enabled())

	_, err := svc.SynthesizeToBuffer(context.Background(), "s1", "hi", "", "")
	assert.ErrorIs(t, err, ErrSpeechUnconfigured)

	_, err = svc.TranscribeBuffer(context.Background(), "s1", []byte{1, 2}, "wav", "")
	assert.ErrorIs(t, err, ErrSpeechUnconfigured)
}

func newASRService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewService(&speech.SpeechConfig{
		SubscriptionKey: "test-key",
		STTEndpoint:     server.URL,
		TTSEndpoint:     "ws" + strings.TrimPrefix(server.URL, "http"),
		Timeout:         5,
	})
}

func TestTranscribeBufferSuccess(t *testing.T) {
	svc := newASRService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		assert.Equal(t, "audio/ogg; codecs=opus", r.Header.Get("Content-Type"))
		assert.Equal(t, "en-GB", r.URL.Query().Get("language"))
		assert.Equal(t, "simple", r.URL.Query().Get("format"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, []byte("audio-bytes"), body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"RecognitionStatus":"Success","DisplayText":"Hello world.","Offset":0,"Duration":15000000}`))
	})

	resp, err := svc.TranscribeBuffer(context.Background(), "s1", []byte("audio-bytes"), "ogg", "en-GB")
	require.NoError(t, err)
	assert.Equal(t, "Hello world.", resp.Text)
	assert.Equal(t, int64(1500), resp.Duration)
	assert.Equal(t, "s1", resp.SessionID)
}

func TestTranscribeBufferNoMatch(t *testing.T) {
	svc := newASRService(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"RecognitionStatus":"InitialSilenceTimeout"}`))
	})

	_, err := svc.TranscribeBuffer(context.Background(), "s1", []byte("x"), "wav", "")
	assert.ErrorIs(t, err, ErrNoSpeech)
}

func TestTranscribeBufferUpstreamError(t *testing.T) {
	svc := newASRService(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	})

	_, err := svc.TranscribeBuffer(context.Background(), "s1", []byte("x"), "wav", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestBuildSSML(t *testing.T) {
	rate := 3.0
	pitch := 5.0
	negative := -10.0

	tests := []struct {
		name     string
		opts     ssmlOptions
		contains []string
		excludes []string
	}{
		{
			name:     "plain",
			opts:     ssmlOptions{Voice: "en-US-GuyNeural"},
			contains: []string{`xml:lang="en-US"`, `<voice name="en-US-GuyNeural">`},
			excludes: []string{"<prosody", "express-as"},
		},
		{
			name:     "rate clamped and pitch signed",
			opts:     ssmlOptions{Voice: "v", Rate: &rate, Pitch: &pitch},
			contains: []string{`<prosody rate="2" pitch="+5%">`},
		},
		{
			name:     "negative pitch",
			opts:     ssmlOptions{Voice: "v", Pitch: &negative},
			contains: []string{`<prosody rate="1" pitch="-10%">`},
		},
		{
			name:     "style without degree",
			opts:     ssmlOptions{Voice: "v", Language: "zh-CN", Style: "gentle"},
			contains: []string{`xml:lang="zh-CN"`, `<mstts:express-as style="gentle">`, "</mstts:express-as>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := buildSSML("hi & bye", tt.opts)
			assert.Contains(t, out, "hi &amp; bye")
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestMapVisemeID(t *testing.T) {
	cases := map[int]string{
		0: "silence", 1: "aa", 5: "aa", 6: "E", 9: "E", 10: "I", 13: "I",
		14: "O", 17: "O", 18: "U", 21: "U", 22: "aa", -1: "aa",
	}
	for id, want := range cases {
		assert.Equal(t, want, mapVisemeID(id), "viseme id %d", id)
	}
}

func TestComputeSpeakingStyle(t *testing.T) {
	style, degree := ComputeSpeakingStyle("en-US-JennyNeural", "sad", 0.4)
	assert.Equal(t, "sad", style)
	assert.InDelta(t, 0.8, degree, 1e-9)

	style, degree = ComputeSpeakingStyle("zh-CN-XiaoxiaoNeural", "tender", 5)
	assert.Equal(t, "affectionate", style)
	assert.Equal(t, 2.0, degree)

	style, _ = ComputeSpeakingStyle("en-US-JennyNeural", "neutral", 0.6)
	assert.Empty(t, style)

	style, _ = ComputeSpeakingStyle("en-GB-RyanNeural", "happy", 0.6)
	assert.Empty(t, style, "voices without style support synthesize plainly")
}

func TestParseBinaryFrameRejectsShortFrames(t *testing.T) {
	_, _, err := parseBinaryFrame([]byte{0x01})
	assert.Error(t, err)

	_, _, err = parseBinaryFrame([]byte{0x00, 0x10, 'a'})
	assert.Error(t, err)
}
