package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/foxseedlab/tsuyaku/internal/audio"
	"github.com/foxseedlab/tsuyaku/internal/history"
	"github.com/foxseedlab/tsuyaku/internal/session"
	"github.com/foxseedlab/tsuyaku/internal/transcriber"
	gorilla "github.com/gorilla/websocket"
)

const (
	writeTimeout    = 10 * time.Second
	pongWait        = 60 * time.Second
	pingInterval    = pongWait * 9 / 10
	stopTimeout     = 10 * time.Second
	maxMessageBytes = 1 << 20
)

const errorKindBadRequest = "BadRequest"

type clientMessage struct {
	Type           string `json:"type"`
	SessionID      string `json:"session_id"`
	LanguageCode   string `json:"language_code"`
	TargetLanguage string `json:"target_language"`
	SampleRate     int    `json:"sample_rate"`
	Channels       int    `json:"channels"`
	Encoding       string `json:"encoding"`
}

type serverError struct {
	Type      string `json:"type"`
	Kind      string `json:"kind"`
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Server runs one streaming session per WebSocket connection.
type Server struct {
	manager    *session.Manager
	recorder   *history.Recorder
	newDecoder audio.DecoderFactory
	upgrader   gorilla.Upgrader
}

func NewServer(manager *session.Manager, recorder *history.Recorder, newDecoder audio.DecoderFactory) *Server {
	return &Server{
		manager:    manager,
		recorder:   recorder,
		newDecoder: newDecoder,
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","live_sessions":` + strconv.Itoa(s.manager.LiveCount()) + `}`))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}
	c := &client{server: s, conn: conn, done: make(chan struct{})}
	slog.Info("client connected", "remote_addr", r.RemoteAddr)
	c.serve()
	slog.Info("client disconnected", "remote_addr", r.RemoteAddr)
}

type client struct {
	server *Server
	conn   *gorilla.Conn
	done   chan struct{}

	writeMu sync.Mutex

	mu        sync.Mutex
	sessionID string
	decoder   audio.Decoder
}

func (c *client) serve() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("client handler panicked", "panic", r, "session_id", c.currentSessionID())
		}
		close(c.done)
		c.stopSession()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.keepAlive()

	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			if !gorilla.IsCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway) {
				slog.Debug("websocket read ended", "error", err, "session_id", c.currentSessionID())
			}
			return
		}
		switch typ {
		case gorilla.TextMessage:
			c.handleControl(data)
		case gorilla.BinaryMessage:
			c.handleAudio(data)
		}
	}
}

func (c *client) keepAlive() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(gorilla.PingMessage, nil, time.Now().Add(writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *client) handleControl(data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError(errorKindBadRequest, "", "invalid json")
		return
	}

	switch msg.Type {
	case "start":
		c.start(msg)
	case "change_language":
		c.withSession(func(id string) error { return c.server.manager.ChangeLanguage(id, msg.LanguageCode) })
	case "set_target_language":
		c.withSession(func(id string) error { return c.server.manager.SetTargetLanguage(id, msg.TargetLanguage) })
	case "reset":
		c.withSession(c.server.manager.ResetTranscript)
	case "stop":
		c.stopSession()
	default:
		c.sendError(errorKindBadRequest, c.currentSessionID(), fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

func (c *client) start(msg clientMessage) {
	c.mu.Lock()
	prev := c.sessionID
	c.mu.Unlock()
	if prev != "" {
		snap, err := c.server.manager.Snapshot(prev)
		if err == nil && snap.State != session.StateStopped && snap.State != session.StateFailed {
			c.sendError(errorKindName(session.ErrSessionActive), prev, session.ErrSessionActive.Error())
			return
		}
		c.stopSession()
	}

	encoding := transcriber.Encoding(strings.ToUpper(strings.TrimSpace(msg.Encoding)))
	if encoding == "" {
		encoding = transcriber.EncodingLinear16
	}
	req := session.StartRequest{
		SessionID:      msg.SessionID,
		LanguageCode:   msg.LanguageCode,
		TargetLanguage: msg.TargetLanguage,
		SampleRate:     msg.SampleRate,
		Channels:       msg.Channels,
		Encoding:       encoding,
	}

	var decoder audio.Decoder
	if encoding == transcriber.EncodingOpus {
		channels := msg.Channels
		if channels == 0 {
			channels = session.DefaultChannelCount
		}
		dec, err := c.server.newDecoder(msg.SampleRate, channels)
		if err != nil {
			slog.Warn("opus decoder unavailable", "error", err, "sample_rate", msg.SampleRate, "channels", channels)
			c.sendError(string(session.ErrorKindInvalidAudioFormat), msg.SessionID, err.Error())
			return
		}
		decoder = dec
		req.Encoding = transcriber.EncodingLinear16
		req.SampleRate = dec.SampleRate()
		req.Channels = dec.Channels()
	}

	sink := c.server.recorder.Wrap(session.EventSinkFunc(c.sendEvent))
	id, err := c.server.manager.Start(context.Background(), req, sink)
	if err != nil {
		if decoder != nil {
			decoder.Close()
		}
		if errors.Is(err, session.ErrSessionActive) {
			c.sendError(errorKindName(err), id, err.Error())
			return
		}
		// The session already reported the failure through its event stream.
		slog.Warn("session start failed", "error", err, "session_id", id)
		c.mu.Lock()
		c.sessionID = id
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	c.sessionID = id
	c.decoder = decoder
	c.mu.Unlock()
}

func (c *client) handleAudio(data []byte) {
	c.mu.Lock()
	id := c.sessionID
	decoder := c.decoder
	c.mu.Unlock()
	if id == "" {
		c.sendError(errorKindBadRequest, "", "audio received before start")
		return
	}

	chunk := data
	if decoder != nil {
		pcm, err := decoder.Decode(data)
		if err != nil {
			slog.Debug("dropping undecodable audio packet", "error", err, "session_id", id)
			return
		}
		chunk = pcm
	}
	if err := c.server.manager.WriteAudio(id, chunk); err != nil {
		slog.Debug("audio write rejected", "error", err, "session_id", id)
	}
}

func (c *client) withSession(fn func(id string) error) {
	id := c.currentSessionID()
	if id == "" {
		c.sendError(errorKindName(session.ErrSessionNotFound), "", "no session started on this connection")
		return
	}
	if err := fn(id); err != nil {
		c.sendError(errorKindName(err), id, err.Error())
	}
}

// stopSession ends the connection's session, if any. Stop emits the stopped
// event through the session's sink, which still writes to this connection.
func (c *client) stopSession() {
	c.mu.Lock()
	id := c.sessionID
	decoder := c.decoder
	c.sessionID = ""
	c.decoder = nil
	c.mu.Unlock()

	if decoder != nil {
		decoder.Close()
	}
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if _, err := c.server.manager.Stop(ctx, id); err != nil {
		slog.Error("failed to stop session", "error", err, "session_id", id)
	}
	c.server.manager.Forget(id)
}

func (c *client) currentSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *client) sendEvent(ev session.Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to marshal session event", "error", err, "session_id", ev.SessionID, "event_type", ev.Type)
		return
	}
	c.write(b)
}

func (c *client) sendError(kind, sessionID, message string) {
	b, err := json.Marshal(serverError{Type: "error", Kind: kind, SessionID: sessionID, Message: message})
	if err != nil {
		return
	}
	c.write(b)
}

func (c *client) write(b []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(gorilla.TextMessage, b); err != nil {
		slog.Debug("websocket write failed", "error", err)
	}
}

func errorKindName(err error) string {
	switch {
	case errors.Is(err, session.ErrSessionActive):
		return "SessionActive"
	case errors.Is(err, session.ErrSessionNotFound):
		return "SessionNotFound"
	case errors.Is(err, session.ErrSessionNotActive):
		return "SessionNotActive"
	case errors.Is(err, session.ErrInvalidLanguage):
		return "InvalidLanguage"
	default:
		return errorKindBadRequest
	}
}
