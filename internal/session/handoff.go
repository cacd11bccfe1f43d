package session

import (
	"log/slog"
	"strings"

	"github.com/foxseedlab/tsuyaku/internal/transcriber"
	"github.com/foxseedlab/tsuyaku/internal/translator"
)

func (m *Manager) applyResultLocked(s *session, result transcriber.Result) {
	s.lastActivity = m.clock.Now()
	lang := result.LanguageCode
	if lang == "" {
		lang = s.languageCode
	}

	if result.IsFinal {
		text := strings.TrimSpace(result.Text)
		s.interim = ""
		if text != "" {
			s.finals = append(s.finals, text)
			m.emitLocked(s, Event{Type: EventTranscript, Transcript: &TranscriptPayload{
				Text:         text,
				IsFinal:      true,
				Confidence:   result.Confidence,
				FullText:     s.fullTextLocked(),
				LanguageCode: lang,
			}})
			if s.targetLanguage != "" && m.translator != nil {
				m.handOff(s, translator.Request{Text: text, SourceLang: lang, TargetLang: s.targetLanguage})
			}
		}
	} else {
		s.interim = strings.TrimSpace(result.Text)
		m.emitLocked(s, Event{Type: EventTranscript, Transcript: &TranscriptPayload{
			Text:         s.interim,
			IsFinal:      false,
			Confidence:   result.Confidence,
			FullText:     s.previewLocked(),
			LanguageCode: lang,
		}})
	}

	if s.state == StateActive {
		m.armSilenceLocked(s)
	}
}

// handOff translates a final segment off the session lock. A translation
// failure is reported as an error event and never changes the session state.
func (m *Manager) handOff(s *session, req translator.Request) {
	ctx := s.ctx
	s.handoffs.Add(1)
	go func() {
		defer s.handoffs.Done()
		res, err := m.translator.Translate(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("segment translation failed", "error", err, "session_id", s.id, "target_language", req.TargetLang)
			s.events.push(Event{
				Type:      EventError,
				SessionID: s.id,
				Timestamp: m.clock.Now(),
				Error:     &ErrorPayload{Kind: ErrorKindTranslationFailed, Message: err.Error()},
			})
			return
		}
		s.events.push(Event{
			Type:        EventTranslated,
			SessionID:   s.id,
			Timestamp:   m.clock.Now(),
			Translation: &res,
		})
	}()
}
