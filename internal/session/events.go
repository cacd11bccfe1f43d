package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/tsuyaku/internal/translator"
)

type EventType string

const (
	EventStarted    EventType = "started"
	EventTranscript EventType = "transcript"
	EventTranslated EventType = "translated"
	EventError      EventType = "error"
	EventStopped    EventType = "stopped"
)

type ErrorKind string

const (
	ErrorKindProviderUnavailable  ErrorKind = "ProviderUnavailable"
	ErrorKindInvalidAudioFormat   ErrorKind = "InvalidAudioFormat"
	ErrorKindSilenceTimeout       ErrorKind = "SilenceTimeout"
	ErrorKindStreamTransientError ErrorKind = "StreamTransientError"
	ErrorKindMaxRestartsExceeded  ErrorKind = "MaxRestartsExceeded"
	ErrorKindWriteAfterEnd        ErrorKind = "WriteAfterEnd"
	ErrorKindTranslationFailed    ErrorKind = "TranslationFailed"
)

type StartedPayload struct {
	LanguageCode   string `json:"language_code"`
	TargetLanguage string `json:"target_language,omitempty"`
	SampleRate     int    `json:"sample_rate"`
	Channels       int    `json:"channels"`
}

type TranscriptPayload struct {
	Text         string  `json:"text"`
	IsFinal      bool    `json:"is_final"`
	Confidence   float64 `json:"confidence"`
	FullText     string  `json:"full_text"`
	LanguageCode string  `json:"language_code"`
}

type ErrorPayload struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

type StoppedPayload struct {
	FinalTranscript string `json:"final_transcript"`
	RestartCount    int    `json:"restart_count"`
	State           State  `json:"state"`
}

type Event struct {
	Type        EventType          `json:"type"`
	SessionID   string             `json:"session_id"`
	Timestamp   time.Time          `json:"timestamp"`
	Started     *StartedPayload    `json:"started,omitempty"`
	Transcript  *TranscriptPayload `json:"transcript,omitempty"`
	Translation *translator.Result `json:"translation,omitempty"`
	Error       *ErrorPayload      `json:"error,omitempty"`
	Stopped     *StoppedPayload    `json:"stopped,omitempty"`
}

type EventSink interface {
	HandleEvent(event Event)
}

type EventSinkFunc func(event Event)

func (f EventSinkFunc) HandleEvent(event Event) { f(event) }

// eventQueue delivers events to a sink in push order from a dedicated goroutine,
// so sinks may block or call back into the manager without stalling the session.
type eventQueue struct {
	sessionID string
	sink      EventSink

	mu      sync.Mutex
	pending []Event
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

func newEventQueue(sessionID string, sink EventSink) *eventQueue {
	q := &eventQueue{
		sessionID: sessionID,
		sink:      sink,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go q.run()
	return q
}

// push returns false once the queue has been closed.
func (q *eventQueue) push(ev Event) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, ev)
	q.mu.Unlock()
	q.signal()
	return true
}

func (q *eventQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *eventQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *eventQueue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		closed := q.closed
		q.mu.Unlock()

		for _, ev := range batch {
			q.deliver(ev)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-q.wake
	}
}

func (q *eventQueue) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event sink panicked", "session_id", q.sessionID, "event_type", ev.Type, "panic", r)
		}
	}()
	if q.sink != nil {
		q.sink.HandleEvent(ev)
	}
}
