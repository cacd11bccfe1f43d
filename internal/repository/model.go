package repository

import "time"

type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// Session is one recorded run of a streaming session, from start to stop.
// ExternalID is the session id clients use; it repeats across runs.
type Session struct {
	ID              string
	ExternalID      string
	LanguageCode    string
	TargetLanguage  string
	StartedAt       time.Time
	EndedAt         *time.Time
	Status          SessionStatus
	FinalTranscript string
	RestartCount    int
	CreatedAt       time.Time
}

type TranscriptSegment struct {
	ID           string
	SessionID    string
	Content      string
	LanguageCode string
	Confidence   float64
	SegmentIndex int
	SpokenAt     time.Time
	CreatedAt    time.Time
}

type SegmentTranslation struct {
	ID                 string
	SessionID          string
	SegmentIndex       int
	OriginalText       string
	TargetLanguage     string
	TranslatedText     string
	DetectedSourceLang string
	FromCache          bool
	CreatedAt          time.Time
}
