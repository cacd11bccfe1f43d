package session

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/foxseedlab/tsuyaku/internal/transcriber"
)

// restartLocked tears down the current provider stream and schedules a reopen.
// The accumulated transcript survives; the pending interim does not.
func (m *Manager) restartLocked(s *session, cause RestartCause) {
	if s.state != StateActive {
		return
	}
	if cause.counted() {
		if s.restartCount >= m.opts.MaxRestartAttempts {
			m.failLocked(s, ErrorKindMaxRestartsExceeded,
				fmt.Sprintf("restart limit of %d reached (last cause: %s)", m.opts.MaxRestartAttempts, cause))
			return
		}
		s.restartCount++
	}
	if err := s.transition(StateRestarting); err != nil {
		slog.Error("failed to enter restarting state", "error", err, "session_id", s.id)
		return
	}
	s.gen++
	m.stopTimersLocked(s)
	s.interim = ""
	old := s.stream
	s.stream = nil
	slog.Info("restarting provider stream", "session_id", s.id, "cause", cause, "restart_count", s.restartCount)
	go m.reopen(s, s.gen, old)
}

// reopen runs outside the session lock. It retries failed opens, charging each
// retry against the restart ceiling, until the session is Active again, fails,
// or is stopped.
func (m *Manager) reopen(s *session, gen uint64, old transcriber.Stream) {
	if old != nil {
		teardown(s, old)
	}
	for {
		if m.opts.RestartBackoff > 0 {
			select {
			case <-m.clock.After(m.opts.RestartBackoff):
			case <-s.ctx.Done():
				return
			}
		}

		s.mu.Lock()
		if s.gen != gen || s.state != StateRestarting {
			s.mu.Unlock()
			return
		}
		cfg := s.streamConfigLocked()
		s.mu.Unlock()

		stream, err := m.provider.OpenStream(s.ctx, cfg, &streamHandler{manager: m, session: s, gen: gen})

		s.mu.Lock()
		if s.gen != gen || s.state != StateRestarting {
			s.mu.Unlock()
			if stream != nil {
				closeQuietly(s.id, stream)
			}
			return
		}
		if err == nil {
			s.stream = stream
			if terr := s.transition(StateActive); terr != nil {
				slog.Error("failed to re-enter active state", "error", terr, "session_id", s.id)
				s.mu.Unlock()
				return
			}
			s.lastActivity = m.clock.Now()
			m.armLifetimeLocked(s)
			m.armSilenceLocked(s)
			slog.Info("provider stream reopened", "session_id", s.id, "restart_count", s.restartCount, "language_code", s.languageCode)
			s.mu.Unlock()
			return
		}

		slog.Warn("provider stream reopen failed", "error", err, "session_id", s.id, "restart_count", s.restartCount)
		if errors.Is(err, transcriber.ErrInvalidAudioFormat) {
			m.failLocked(s, ErrorKindInvalidAudioFormat, err.Error())
			s.mu.Unlock()
			return
		}
		if s.restartCount >= m.opts.MaxRestartAttempts {
			m.failLocked(s, ErrorKindMaxRestartsExceeded,
				fmt.Sprintf("restart limit of %d reached: %v", m.opts.MaxRestartAttempts, err))
			s.mu.Unlock()
			return
		}
		s.restartCount++
		s.mu.Unlock()
	}
}

func (m *Manager) handleStreamErrorLocked(s *session, err error) {
	switch {
	case errors.Is(err, transcriber.ErrInvalidAudioFormat):
		m.failLocked(s, ErrorKindInvalidAudioFormat, err.Error())
	case errors.Is(err, transcriber.ErrWriteAfterEnd):
		slog.Info("provider stream already ended; restarting", "session_id", s.id)
		m.restartLocked(s, CauseWriteAfterEnd)
	default:
		// Unclassified failures are retried; the ceiling bounds a permanently broken provider.
		slog.Warn("provider stream error; restarting", "error", err, "session_id", s.id, "transient", transcriber.IsTransient(err))
		m.restartLocked(s, CauseTransientError)
	}
}

// armSilenceLocked (re)arms the silence timer. Each arm gets a new sequence
// number so a timer that fires after being replaced is ignored.
func (m *Manager) armSilenceLocked(s *session) {
	if s.silenceTimer != nil {
		s.silenceTimer.Stop()
	}
	s.silenceSeq++
	seq := s.silenceSeq
	s.silenceTimer = m.clock.AfterFunc(m.opts.SilenceTimeout, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.silenceSeq != seq || s.state != StateActive {
			return
		}
		slog.Info("silence timeout reached", "session_id", s.id, "kind", ErrorKindSilenceTimeout, "timeout", m.opts.SilenceTimeout)
		m.restartLocked(s, CauseSilenceTimeout)
	})
}

// armLifetimeLocked arms the proactive rotation timer once per provider stream.
func (m *Manager) armLifetimeLocked(s *session) {
	if s.lifetimeTimer != nil {
		s.lifetimeTimer.Stop()
	}
	gen := s.gen
	s.lifetimeTimer = m.clock.AfterFunc(m.opts.StreamLifetime, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen || s.state != StateActive {
			return
		}
		slog.Info("provider stream lifetime reached; rotating", "session_id", s.id, "lifetime", m.opts.StreamLifetime)
		m.restartLocked(s, CauseStreamLifetime)
	})
}

func (m *Manager) stopTimersLocked(s *session) {
	s.silenceSeq++
	if s.silenceTimer != nil {
		s.silenceTimer.Stop()
		s.silenceTimer = nil
	}
	if s.lifetimeTimer != nil {
		s.lifetimeTimer.Stop()
		s.lifetimeTimer = nil
	}
}

// streamHandler binds provider callbacks to the stream generation that opened
// them; callbacks from a replaced stream are ignored.
type streamHandler struct {
	manager *Manager
	session *session
	gen     uint64
}

func (h *streamHandler) OnResult(result transcriber.Result) {
	s := h.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != h.gen {
		return
	}
	switch s.state {
	case StateActive, StateStopping:
		h.manager.applyResultLocked(s, result)
	}
}

func (h *streamHandler) OnError(err error) {
	s := h.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != h.gen || s.state != StateActive {
		return
	}
	h.manager.handleStreamErrorLocked(s, err)
}

func (h *streamHandler) OnEnd() {
	s := h.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != h.gen || s.state != StateActive {
		return
	}
	slog.Info("provider stream ended", "session_id", s.id)
	h.manager.restartLocked(s, CauseStreamEnded)
}
