package websocket

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	repositoryimpl "github.com/foxseedlab/tsuyaku/external/repository"
	"github.com/foxseedlab/tsuyaku/internal/audio"
	"github.com/foxseedlab/tsuyaku/internal/history"
	"github.com/foxseedlab/tsuyaku/internal/session"
	"github.com/foxseedlab/tsuyaku/internal/transcriber"
	"github.com/foxseedlab/tsuyaku/internal/translator"
	"github.com/foxseedlab/tsuyaku/internal/webhook"
	gorilla "github.com/gorilla/websocket"
)

// echoProvider reports every written chunk back as a final result.
type echoProvider struct {
	mu        sync.Mutex
	configs   []transcriber.StreamConfig
	failOpens int
}

func (p *echoProvider) Name() string { return "echo" }

func (p *echoProvider) OpenStream(_ context.Context, cfg transcriber.StreamConfig, handler transcriber.StreamHandler) (transcriber.Stream, error) {
	p.mu.Lock()
	p.configs = append(p.configs, cfg)
	if p.failOpens > 0 {
		p.failOpens--
		p.mu.Unlock()
		return nil, transcriber.ErrProviderUnavailable
	}
	p.mu.Unlock()
	return &echoStream{handler: handler, languageCode: cfg.LanguageCode}, nil
}

func (p *echoProvider) lastConfig() transcriber.StreamConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.configs[len(p.configs)-1]
}

type echoStream struct {
	handler      transcriber.StreamHandler
	languageCode string
}

func (s *echoStream) Write(chunk []byte) error {
	s.handler.OnResult(transcriber.Result{Text: string(chunk), IsFinal: true, Confidence: 0.9, LanguageCode: s.languageCode})
	return nil
}

func (s *echoStream) Close() error { return nil }

type discardSender struct{}

func (discardSender) SendTranscript(context.Context, webhook.TranscriptWebhookPayload) error {
	return nil
}

type fakeDecoder struct{}

func (fakeDecoder) Decode(packet []byte) ([]byte, error) { return []byte(strings.ToUpper(string(packet))), nil }
func (fakeDecoder) SampleRate() int                      { return 48000 }
func (fakeDecoder) Channels() int                        { return 1 }
func (fakeDecoder) Close()                               {}

type testServer struct {
	srv      *httptest.Server
	manager  *session.Manager
	provider *echoProvider
}

func newTestServer(t *testing.T, newDecoder audio.DecoderFactory) *testServer {
	t.Helper()
	provider := &echoProvider{}
	coordinator := translator.NewCoordinator(translator.NewNoopProvider(), translator.NewCache(10), time.Second)
	manager := session.NewManager(provider, coordinator, session.Options{})
	recorder := history.NewRecorder(repositoryimpl.NewMemoryRepository(), discardSender{}, "UTC", time.UTC)
	srv := httptest.NewServer(NewServer(manager, recorder, newDecoder).Handler())
	t.Cleanup(func() {
		manager.StopAll(context.Background())
		srv.Close()
	})
	return &testServer{srv: srv, manager: manager, provider: provider}
}

func (ts *testServer) dial(t *testing.T) *gorilla.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn *gorilla.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("failed to send: %v", err)
	}
}

// readUntil returns the first message of the given type, skipping others.
func readUntil(t *testing.T, conn *gorilla.Conn, typ string) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %q: %v", typ, err)
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("invalid server message %s: %v", data, err)
		}
		if msg["type"] == typ {
			return msg
		}
	}
}

func TestServer_HealthReportsLiveSessions(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, err := http.Get(ts.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"live_sessions":0`) {
		t.Fatalf("unexpected health response: %d %s", resp.StatusCode, body)
	}
}

func TestServer_StreamsSessionEvents(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)

	sendJSON(t, conn, map[string]any{"type": "start", "session_id": "s1", "language_code": "ja-JP", "sample_rate": 16000})
	started := readUntil(t, conn, "started")
	if started["session_id"] != "s1" {
		t.Fatalf("unexpected started event: %v", started)
	}
	if got := ts.provider.lastConfig(); got.LanguageCode != "ja-JP" || got.SampleRateHertz != 16000 || got.Encoding != transcriber.EncodingLinear16 {
		t.Fatalf("unexpected stream config: %+v", got)
	}

	if err := conn.WriteMessage(gorilla.BinaryMessage, []byte("hello")); err != nil {
		t.Fatalf("failed to send audio: %v", err)
	}
	transcript := readUntil(t, conn, "transcript")
	payload, _ := transcript["transcript"].(map[string]any)
	if payload["text"] != "hello" || payload["is_final"] != true {
		t.Fatalf("unexpected transcript event: %v", transcript)
	}

	sendJSON(t, conn, map[string]any{"type": "stop"})
	stopped := readUntil(t, conn, "stopped")
	payload, _ = stopped["stopped"].(map[string]any)
	if payload["final_transcript"] != "hello" {
		t.Fatalf("unexpected stopped event: %v", stopped)
	}
	if ts.manager.LiveCount() != 0 {
		t.Fatalf("expected no live sessions, got %d", ts.manager.LiveCount())
	}
}

func TestServer_MalformedControlMessage(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)

	if err := conn.WriteMessage(gorilla.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("failed to send: %v", err)
	}
	msg := readUntil(t, conn, "error")
	if msg["kind"] != "BadRequest" {
		t.Fatalf("expected BadRequest, got %v", msg)
	}

	sendJSON(t, conn, map[string]any{"type": "dance"})
	msg = readUntil(t, conn, "error")
	if msg["kind"] != "BadRequest" {
		t.Fatalf("expected BadRequest for unknown type, got %v", msg)
	}
}

func TestServer_RejectsSecondStart(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)

	sendJSON(t, conn, map[string]any{"type": "start", "sample_rate": 16000})
	readUntil(t, conn, "started")
	sendJSON(t, conn, map[string]any{"type": "start", "sample_rate": 16000})
	msg := readUntil(t, conn, "error")
	if msg["kind"] != "SessionActive" {
		t.Fatalf("expected SessionActive, got %v", msg)
	}
}

func TestServer_ControlWithoutSession(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)

	sendJSON(t, conn, map[string]any{"type": "change_language", "language_code": "fr-FR"})
	msg := readUntil(t, conn, "error")
	if msg["kind"] != "SessionNotFound" {
		t.Fatalf("expected SessionNotFound, got %v", msg)
	}
}

func TestServer_ChangeLanguageReopensStream(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)

	sendJSON(t, conn, map[string]any{"type": "start", "session_id": "s1", "sample_rate": 16000})
	readUntil(t, conn, "started")
	sendJSON(t, conn, map[string]any{"type": "change_language", "language_code": "fr-FR"})

	waitFor(t, func() bool {
		snap, err := ts.manager.Snapshot("s1")
		return err == nil && snap.State == session.StateActive && ts.provider.lastConfig().LanguageCode == "fr-FR"
	}, "expected stream reopened with the new language")
}

func TestServer_OpusUnsupportedIsInvalidAudioFormat(t *testing.T) {
	ts := newTestServer(t, func(int, int) (audio.Decoder, error) { return nil, audio.ErrOpusUnsupported })
	conn := ts.dial(t)

	sendJSON(t, conn, map[string]any{"type": "start", "sample_rate": 48000, "encoding": "opus"})
	msg := readUntil(t, conn, "error")
	if msg["kind"] != string(session.ErrorKindInvalidAudioFormat) {
		t.Fatalf("expected InvalidAudioFormat, got %v", msg)
	}
	if ts.manager.LiveCount() != 0 {
		t.Fatal("expected no session to be started")
	}
}

func TestServer_OpusPacketsAreDecoded(t *testing.T) {
	ts := newTestServer(t, func(int, int) (audio.Decoder, error) { return fakeDecoder{}, nil })
	conn := ts.dial(t)

	sendJSON(t, conn, map[string]any{"type": "start", "sample_rate": 48000, "encoding": "opus"})
	readUntil(t, conn, "started")
	if got := ts.provider.lastConfig(); got.Encoding != transcriber.EncodingLinear16 || got.SampleRateHertz != 48000 {
		t.Fatalf("expected decoded LINEAR16 stream, got %+v", got)
	}
	if err := conn.WriteMessage(gorilla.BinaryMessage, []byte("abc")); err != nil {
		t.Fatalf("failed to send audio: %v", err)
	}
	transcript := readUntil(t, conn, "transcript")
	payload, _ := transcript["transcript"].(map[string]any)
	if payload["text"] != "ABC" {
		t.Fatalf("expected decoded audio to reach the provider, got %v", transcript)
	}
}

func TestServer_DisconnectStopsSession(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)

	sendJSON(t, conn, map[string]any{"type": "start", "session_id": "s1", "sample_rate": 16000})
	readUntil(t, conn, "started")
	if ts.manager.LiveCount() != 1 {
		t.Fatalf("expected one live session, got %d", ts.manager.LiveCount())
	}
	_ = conn.Close()

	waitFor(t, func() bool { return ts.manager.LiveCount() == 0 }, "expected disconnect to stop the session")
}

func TestServer_FailedSessionIDStaysWithItsConnection(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.provider.mu.Lock()
	ts.provider.failOpens = 1
	ts.provider.mu.Unlock()

	first := ts.dial(t)
	sendJSON(t, first, map[string]any{"type": "start", "session_id": "s1", "sample_rate": 16000})
	failed := readUntil(t, first, "error")
	if payload, _ := failed["error"].(map[string]any); payload["kind"] != string(session.ErrorKindProviderUnavailable) {
		t.Fatalf("expected ProviderUnavailable, got %v", failed)
	}

	second := ts.dial(t)
	sendJSON(t, second, map[string]any{"type": "start", "session_id": "s1", "sample_rate": 16000})
	if msg := readUntil(t, second, "error"); msg["kind"] != "SessionActive" {
		t.Fatalf("expected SessionActive while the failed id is held, got %v", msg)
	}

	_ = first.Close()
	waitFor(t, func() bool {
		_, err := ts.manager.Snapshot("s1")
		return err != nil
	}, "expected the failed session to be released on disconnect")

	sendJSON(t, second, map[string]any{"type": "start", "session_id": "s1", "sample_rate": 16000})
	readUntil(t, second, "started")
	time.Sleep(50 * time.Millisecond)
	snap, err := ts.manager.Snapshot("s1")
	if err != nil || snap.State != session.StateActive {
		t.Fatalf("expected the second connection's session to stay active, got %+v, %v", snap, err)
	}
}

func waitFor(t *testing.T, cond func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(message)
}
