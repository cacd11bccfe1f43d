package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/foxseedlab/tsuyaku/internal/transcriber"
	"github.com/foxseedlab/tsuyaku/internal/translator"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var (
	ErrSessionActive    = errors.New("session is already active")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionNotActive = errors.New("session is not active")
	ErrSessionStopped   = errors.New("session was stopped")
	ErrInvalidLanguage  = errors.New("invalid language code")
)

const audioLogEvery = 500

// Manager owns the streaming recognition sessions. Sessions are isolated from
// each other; the translation coordinator (and its cache) is the only shared state.
type Manager struct {
	provider   transcriber.Provider
	translator *translator.Coordinator
	opts       Options
	clock      clockwork.Clock

	mu       sync.Mutex
	sessions map[string]*session
}

func NewManager(provider transcriber.Provider, coordinator *translator.Coordinator, opts Options) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		provider:   provider,
		translator: coordinator,
		opts:       opts,
		clock:      opts.Clock,
		sessions:   make(map[string]*session),
	}
}

// Start opens a provider stream for sessionID and returns the id in use, which
// is generated when the request leaves it empty. Starting an id that is still
// live, or that failed and has not been stopped yet, fails with ErrSessionActive.
func (m *Manager) Start(ctx context.Context, req StartRequest, sink EventSink) (string, error) {
	id := strings.TrimSpace(req.SessionID)
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	if prev, ok := m.sessions[id]; ok {
		prev.mu.Lock()
		state := prev.state
		prev.mu.Unlock()
		if state.live() || state == StateFailed {
			m.mu.Unlock()
			return id, fmt.Errorf("%w: %s is %s", ErrSessionActive, id, state)
		}
		prev.cancel()
		prev.events.close()
	}
	s := m.newSession(ctx, id, req, sink)
	m.sessions[id] = s
	m.mu.Unlock()

	s.mu.Lock()
	if err := s.transition(StateStarting); err != nil {
		s.mu.Unlock()
		return id, err
	}
	cfg := s.streamConfigLocked()
	gen := s.gen
	s.mu.Unlock()

	slog.Info("starting session", "session_id", id, "provider", m.provider.Name(), "language_code", cfg.LanguageCode, "sample_rate", cfg.SampleRateHertz)

	if req.Encoding != "" && req.Encoding != transcriber.EncodingLinear16 {
		err := fmt.Errorf("%w: provider input must be %s, got %s", transcriber.ErrInvalidAudioFormat, transcriber.EncodingLinear16, req.Encoding)
		m.failStart(s, err)
		return id, err
	}
	if err := cfg.Validate(); err != nil {
		m.failStart(s, err)
		return id, err
	}

	stream, err := m.provider.OpenStream(s.ctx, cfg, &streamHandler{manager: m, session: s, gen: gen})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStarting || s.gen != gen {
		if stream != nil {
			go closeQuietly(id, stream)
		}
		return id, ErrSessionStopped
	}
	if err != nil {
		m.failLocked(s, startErrorKind(err), err.Error())
		return id, fmt.Errorf("open provider stream: %w", err)
	}
	s.stream = stream
	if err := s.transition(StateActive); err != nil {
		return id, err
	}
	now := m.clock.Now()
	s.startedAt = now
	s.lastActivity = now
	m.armLifetimeLocked(s)
	m.armSilenceLocked(s)
	m.emitLocked(s, Event{Type: EventStarted, Started: &StartedPayload{
		LanguageCode:   s.languageCode,
		TargetLanguage: s.targetLanguage,
		SampleRate:     s.sampleRate,
		Channels:       s.channels,
	}})
	slog.Info("session active", "session_id", id, "language_code", s.languageCode)
	return id, nil
}

func (m *Manager) newSession(ctx context.Context, id string, req StartRequest, sink EventSink) *session {
	lang := strings.TrimSpace(req.LanguageCode)
	if lang == "" {
		lang = m.opts.DefaultLanguageCode
	}
	target := strings.TrimSpace(req.TargetLanguage)
	if target == "" {
		target = m.opts.DefaultTargetLanguage
	}
	channels := req.Channels
	if channels == 0 {
		channels = DefaultChannelCount
	}
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &session{
		id:             id,
		events:         newEventQueue(id, sink),
		stopped:        make(chan struct{}),
		ctx:            sessCtx,
		cancel:         cancel,
		state:          StateIdle,
		languageCode:   lang,
		targetLanguage: target,
		sampleRate:     req.SampleRate,
		channels:       channels,
	}
}

func (m *Manager) failStart(s *session, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStarting {
		return
	}
	m.failLocked(s, startErrorKind(err), err.Error())
}

func startErrorKind(err error) ErrorKind {
	if errors.Is(err, transcriber.ErrInvalidAudioFormat) {
		return ErrorKindInvalidAudioFormat
	}
	return ErrorKindProviderUnavailable
}

// WriteAudio forwards one chunk to the provider. Chunks for a session that is
// not Active are dropped without error.
func (m *Manager) WriteAudio(sessionID string, chunk []byte) error {
	s, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	if len(chunk) == 0 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.state != StateActive || s.stream == nil {
		s.droppedChunks++
		s.mu.Unlock()
		return nil
	}
	stream := s.stream
	gen := s.gen
	s.mu.Unlock()

	werr := stream.Write(chunk)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.state != StateActive {
		return nil
	}
	if werr != nil {
		m.handleStreamErrorLocked(s, werr)
		return nil
	}
	s.writtenChunks++
	if s.writtenChunks == 1 || s.writtenChunks%audioLogEvery == 0 {
		slog.Debug("audio forwarded", "session_id", s.id, "chunk_bytes", len(chunk), "total_chunks", s.writtenChunks, "dropped_chunks", s.droppedChunks)
	}
	s.lastActivity = m.clock.Now()
	m.armSilenceLocked(s)
	return nil
}

// ChangeLanguage reopens the provider stream with a new language. It keeps the
// accumulated transcript and is not charged against the restart ceiling.
func (m *Manager) ChangeLanguage(sessionID, languageCode string) error {
	languageCode = strings.TrimSpace(languageCode)
	if languageCode == "" {
		return ErrInvalidLanguage
	}
	s, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateActive:
		if s.languageCode == languageCode {
			return nil
		}
		slog.Info("changing session language", "session_id", s.id, "from", s.languageCode, "to", languageCode)
		s.languageCode = languageCode
		m.restartLocked(s, CauseLanguageChange)
		return nil
	case StateRestarting:
		// The pending reopen reads the language when it runs.
		s.languageCode = languageCode
		return nil
	default:
		return fmt.Errorf("%w: %s is %s", ErrSessionNotActive, s.id, s.state)
	}
}

// SetTargetLanguage changes the translation target; an empty value disables translation.
func (m *Manager) SetTargetLanguage(sessionID, targetLanguage string) error {
	s, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targetLanguage = strings.TrimSpace(targetLanguage)
	return nil
}

// ResetTranscript clears the accumulated final text without touching the stream.
func (m *Manager) ResetTranscript(sessionID string) error {
	s, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finals = nil
	s.interim = ""
	return nil
}

// Stop ends the session and returns its final state. It is safe in any state
// and idempotent: a second call returns the same snapshot without emitting.
func (m *Manager) Stop(ctx context.Context, sessionID string) (Snapshot, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	switch s.state {
	case StateStopped:
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, nil
	case StateStopping:
		s.mu.Unlock()
		select {
		case <-s.stopped:
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		}
		s.mu.Lock()
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, nil
	case StateIdle:
		// Never reached Starting; there is nothing to tear down.
		s.state = StateStopping
	default:
		if err := s.transition(StateStopping); err != nil {
			s.mu.Unlock()
			return Snapshot{}, err
		}
	}
	m.stopTimersLocked(s)
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	slog.Info("stopping session", "session_id", s.id)
	if stream != nil {
		// Results flushed by the provider during close still reach the transcript.
		s.writeMu.Lock()
		if err := stream.Close(); err != nil {
			slog.Warn("provider stream close failed", "error", err, "session_id", s.id)
		}
		s.writeMu.Unlock()
	}

	// Segments flushed by the close above may still be translating; their
	// results are delivered before the stopped event.
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()
	m.waitHandoffs(ctx, s)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transition(StateStopped); err != nil {
		return Snapshot{}, err
	}
	s.cancel()
	s.interim = ""
	snap := s.snapshotLocked()
	m.emitLocked(s, Event{Type: EventStopped, Stopped: &StoppedPayload{
		FinalTranscript: snap.FinalText,
		RestartCount:    snap.RestartCount,
		State:           StateStopped,
	}})
	s.events.close()
	close(s.stopped)
	slog.Info("session stopped", "session_id", s.id, "restart_count", snap.RestartCount, "segments", len(snap.Segments))
	return snap, nil
}

func (m *Manager) waitHandoffs(ctx context.Context, s *session) {
	done := make(chan struct{})
	go func() {
		s.handoffs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("stopping session before pending translations finished", "error", ctx.Err(), "session_id", s.id)
	}
}

// StopAll stops every live session and returns how many were stopped.
func (m *Manager) StopAll(ctx context.Context) int {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	count := 0
	for _, id := range ids {
		snap, err := m.Snapshot(id)
		if err != nil || snap.State == StateStopped {
			continue
		}
		if _, err := m.Stop(ctx, id); err != nil {
			slog.Error("failed to stop session", "error", err, "session_id", id)
			continue
		}
		count++
	}
	return count
}

func (m *Manager) Snapshot(sessionID string) (Snapshot, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

// Forget drops a stopped session record. Live sessions are kept.
func (m *Manager) Forget(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return false
	}
	s.mu.Lock()
	stopped := s.state == StateStopped
	s.mu.Unlock()
	if !stopped {
		return false
	}
	delete(m.sessions, sessionID)
	return true
}

// LiveCount returns the number of sessions that have not been stopped.
func (m *Manager) LiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		s.mu.Lock()
		if s.state != StateStopped {
			n++
		}
		s.mu.Unlock()
	}
	return n
}

func (m *Manager) lookup(sessionID string) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return s, nil
}

func (m *Manager) emitLocked(s *session, ev Event) {
	ev.SessionID = s.id
	ev.Timestamp = m.clock.Now()
	s.events.push(ev)
}

func (m *Manager) failLocked(s *session, kind ErrorKind, message string) {
	if err := s.transition(StateFailed); err != nil {
		slog.Error("failed to mark session failed", "error", err, "session_id", s.id)
		return
	}
	s.gen++
	m.stopTimersLocked(s)
	s.interim = ""
	if stream := s.stream; stream != nil {
		s.stream = nil
		go teardown(s, stream)
	}
	slog.Error("session failed", "session_id", s.id, "kind", kind, "message", message, "restart_count", s.restartCount)
	m.emitLocked(s, Event{Type: EventError, Error: &ErrorPayload{Kind: kind, Message: message}})
}

// teardown closes a stream the session no longer uses, waiting out any in-flight write.
func teardown(s *session, stream transcriber.Stream) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	closeQuietly(s.id, stream)
}

func closeQuietly(sessionID string, stream transcriber.Stream) {
	if err := stream.Close(); err != nil {
		slog.Debug("provider stream teardown error ignored", "error", err, "session_id", sessionID)
	}
}
