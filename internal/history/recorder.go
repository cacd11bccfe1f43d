package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/tsuyaku/internal/repository"
	"github.com/foxseedlab/tsuyaku/internal/session"
	"github.com/foxseedlab/tsuyaku/internal/webhook"
)

const persistTimeout = 5 * time.Second

// Recorder persists session events and sends the transcript webhook when a
// session stops. Failures are logged and never reach the session.
type Recorder struct {
	repo     repository.Repository
	sender   webhook.Sender
	timezone string
	loc      *time.Location

	mu   sync.Mutex
	runs map[string]*run
}

type run struct {
	recordID       string
	languageCode   string
	targetLanguage string
	startedAt      time.Time
	nextIndex      int
	pending        []pendingSegment
	failed         bool
}

type pendingSegment struct {
	index int
	text  string
}

func NewRecorder(repo repository.Repository, sender webhook.Sender, timezone string, loc *time.Location) *Recorder {
	return &Recorder{
		repo:     repo,
		sender:   sender,
		timezone: timezone,
		loc:      safeLocation(loc),
		runs:     make(map[string]*run),
	}
}

// Wrap returns a sink that records every event before forwarding it to next.
func (r *Recorder) Wrap(next session.EventSink) session.EventSink {
	return session.EventSinkFunc(func(ev session.Event) {
		r.Record(ev)
		if next != nil {
			next.HandleEvent(ev)
		}
	})
}

func (r *Recorder) Record(ev session.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	switch ev.Type {
	case session.EventStarted:
		r.recordStarted(ctx, ev)
	case session.EventTranscript:
		if ev.Transcript != nil && ev.Transcript.IsFinal {
			r.recordSegment(ctx, ev)
		}
	case session.EventTranslated:
		r.recordTranslation(ctx, ev)
	case session.EventError:
		r.recordError(ctx, ev)
	case session.EventStopped:
		r.recordStopped(ctx, ev)
	}
}

func (r *Recorder) recordStarted(ctx context.Context, ev session.Event) {
	if ev.Started == nil {
		return
	}
	rec, err := r.repo.CreateSession(ctx, repository.CreateSessionInput{
		ExternalID:     ev.SessionID,
		LanguageCode:   ev.Started.LanguageCode,
		TargetLanguage: ev.Started.TargetLanguage,
		StartedAt:      ev.Timestamp,
	})
	if err != nil {
		slog.Error("failed to record session start", "error", err, "session_id", ev.SessionID)
		return
	}
	r.mu.Lock()
	r.runs[ev.SessionID] = &run{
		recordID:       rec.ID,
		languageCode:   ev.Started.LanguageCode,
		targetLanguage: ev.Started.TargetLanguage,
		startedAt:      ev.Timestamp,
	}
	r.mu.Unlock()
	slog.Debug("session run recorded", "session_id", ev.SessionID, "run_id", rec.ID)
}

func (r *Recorder) recordSegment(ctx context.Context, ev session.Event) {
	r.mu.Lock()
	cur, ok := r.runs[ev.SessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	index := cur.nextIndex
	cur.nextIndex++
	cur.pending = append(cur.pending, pendingSegment{index: index, text: ev.Transcript.Text})
	recordID := cur.recordID
	r.mu.Unlock()

	err := r.repo.InsertSegment(ctx, repository.InsertSegmentInput{
		SessionID:    recordID,
		Content:      ev.Transcript.Text,
		LanguageCode: ev.Transcript.LanguageCode,
		Confidence:   ev.Transcript.Confidence,
		SegmentIndex: index,
		SpokenAt:     ev.Timestamp,
	})
	if err != nil {
		slog.Error("failed to record transcript segment", "error", err, "session_id", ev.SessionID, "segment_index", index)
	}
}

// recordTranslation attaches a translation to the oldest untranslated segment
// with the same text.
func (r *Recorder) recordTranslation(ctx context.Context, ev session.Event) {
	if ev.Translation == nil {
		return
	}
	r.mu.Lock()
	cur, ok := r.runs[ev.SessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	index := -1
	for i, p := range cur.pending {
		if p.text == ev.Translation.OriginalText {
			index = p.index
			cur.pending = append(cur.pending[:i], cur.pending[i+1:]...)
			break
		}
	}
	recordID := cur.recordID
	r.mu.Unlock()
	if index < 0 {
		slog.Debug("translation has no matching segment", "session_id", ev.SessionID)
		return
	}

	tr := ev.Translation
	err := r.repo.InsertTranslation(ctx, repository.InsertTranslationInput{
		SessionID:          recordID,
		SegmentIndex:       index,
		OriginalText:       tr.OriginalText,
		TargetLanguage:     tr.TargetLang,
		TranslatedText:     tr.TranslatedText,
		DetectedSourceLang: tr.DetectedSourceLang,
		FromCache:          tr.FromCache,
	})
	if err != nil {
		slog.Error("failed to record translation", "error", err, "session_id", ev.SessionID, "segment_index", index)
	}
}

func (r *Recorder) recordError(ctx context.Context, ev session.Event) {
	if ev.Error == nil || !isTerminal(ev.Error.Kind) {
		return
	}
	r.mu.Lock()
	cur, ok := r.runs[ev.SessionID]
	if ok {
		cur.failed = true
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	err := r.repo.CompleteSession(ctx, repository.CompleteSessionInput{
		SessionID: cur.recordID,
		Status:    repository.SessionStatusFailed,
		EndedAt:   ev.Timestamp,
	})
	if err != nil {
		slog.Error("failed to mark session run failed", "error", err, "session_id", ev.SessionID)
	}
}

func isTerminal(kind session.ErrorKind) bool {
	switch kind {
	case session.ErrorKindMaxRestartsExceeded, session.ErrorKindInvalidAudioFormat, session.ErrorKindProviderUnavailable:
		return true
	default:
		return false
	}
}

func (r *Recorder) recordStopped(ctx context.Context, ev session.Event) {
	r.mu.Lock()
	cur, ok := r.runs[ev.SessionID]
	delete(r.runs, ev.SessionID)
	r.mu.Unlock()
	if !ok || ev.Stopped == nil {
		return
	}

	status := repository.SessionStatusCompleted
	if cur.failed {
		status = repository.SessionStatusFailed
	}
	err := r.repo.CompleteSession(ctx, repository.CompleteSessionInput{
		SessionID:       cur.recordID,
		Status:          status,
		EndedAt:         ev.Timestamp,
		FinalTranscript: ev.Stopped.FinalTranscript,
		RestartCount:    ev.Stopped.RestartCount,
	})
	if err != nil {
		slog.Error("failed to record session stop", "error", err, "session_id", ev.SessionID)
	}

	segments, err := r.repo.ListSegmentsBySessionID(ctx, cur.recordID)
	if err != nil {
		slog.Error("failed to list transcript segments for webhook", "error", err, "session_id", ev.SessionID)
		segments = nil
	}
	translations, err := r.repo.ListTranslationsBySessionID(ctx, cur.recordID)
	if err != nil {
		slog.Error("failed to list translations for webhook", "error", err, "session_id", ev.SessionID)
		translations = nil
	}

	payload := buildTranscriptWebhookPayload(payloadInput{
		sessionID:      ev.SessionID,
		runID:          cur.recordID,
		status:         status,
		languageCode:   cur.languageCode,
		targetLanguage: cur.targetLanguage,
		startedAt:      cur.startedAt,
		endedAt:        ev.Timestamp,
		restartCount:   ev.Stopped.RestartCount,
		finalText:      ev.Stopped.FinalTranscript,
		timezone:       r.timezone,
		loc:            r.loc,
		segments:       segments,
		translations:   translations,
	})
	if err := r.sender.SendTranscript(ctx, payload); err != nil {
		slog.Error("failed to send transcript webhook", "error", err, "session_id", ev.SessionID)
	}
}
