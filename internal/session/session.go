package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/foxseedlab/tsuyaku/internal/transcriber"
	"github.com/jonboulle/clockwork"
)

type StartRequest struct {
	SessionID      string
	LanguageCode   string
	TargetLanguage string
	SampleRate     int
	Channels       int
	Encoding       transcriber.Encoding
}

type Snapshot struct {
	SessionID      string    `json:"session_id"`
	State          State     `json:"state"`
	LanguageCode   string    `json:"language_code"`
	TargetLanguage string    `json:"target_language,omitempty"`
	RestartCount   int       `json:"restart_count"`
	FinalText      string    `json:"final_text"`
	Segments       []string  `json:"segments"`
	PendingInterim string    `json:"pending_interim,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	LastActivity   time.Time `json:"last_activity"`
}

// session is the per-id record. Every field below mu is guarded by it; writeMu
// only serializes provider writes, which happen outside mu.
type session struct {
	id      string
	events  *eventQueue
	stopped chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	writeMu sync.Mutex
	// handoffs tracks translations still in flight; Stop waits for them.
	handoffs sync.WaitGroup

	mu             sync.Mutex
	state          State
	languageCode   string
	targetLanguage string
	sampleRate     int
	channels       int
	restartCount   int
	finals         []string
	interim        string
	startedAt      time.Time
	lastActivity   time.Time
	stream         transcriber.Stream
	gen            uint64
	silenceSeq     uint64
	silenceTimer   clockwork.Timer
	lifetimeTimer  clockwork.Timer
	writtenChunks  int64
	droppedChunks  int64
}

func (s *session) streamConfigLocked() transcriber.StreamConfig {
	return transcriber.StreamConfig{
		LanguageCode:               s.languageCode,
		SampleRateHertz:            s.sampleRate,
		AudioChannelCount:          s.channels,
		Encoding:                   transcriber.EncodingLinear16,
		EnableAutomaticPunctuation: true,
		InterimResults:             true,
	}
}

func (s *session) transition(to State) error {
	if !canTransition(s.state, to) {
		return transitionError(s.state, to)
	}
	s.state = to
	return nil
}

func (s *session) fullTextLocked() string {
	return strings.Join(s.finals, " ")
}

func (s *session) previewLocked() string {
	full := s.fullTextLocked()
	if full == "" {
		return s.interim
	}
	if s.interim == "" {
		return full
	}
	return full + " " + s.interim
}

func (s *session) snapshotLocked() Snapshot {
	return Snapshot{
		SessionID:      s.id,
		State:          s.state,
		LanguageCode:   s.languageCode,
		TargetLanguage: s.targetLanguage,
		RestartCount:   s.restartCount,
		FinalText:      s.fullTextLocked(),
		Segments:       append([]string(nil), s.finals...),
		PendingInterim: s.interim,
		StartedAt:      s.startedAt,
		LastActivity:   s.lastActivity,
	}
}
