package repository

import (
	"context"
	"errors"
	"time"
)

var ErrSessionNotFound = errors.New("session record not found")

type CreateSessionInput struct {
	ExternalID     string
	LanguageCode   string
	TargetLanguage string
	StartedAt      time.Time
}

type CompleteSessionInput struct {
	SessionID       string
	Status          SessionStatus
	EndedAt         time.Time
	FinalTranscript string
	RestartCount    int
}

type InsertSegmentInput struct {
	SessionID    string
	Content      string
	LanguageCode string
	Confidence   float64
	SegmentIndex int
	SpokenAt     time.Time
}

type InsertTranslationInput struct {
	SessionID          string
	SegmentIndex       int
	OriginalText       string
	TargetLanguage     string
	TranslatedText     string
	DetectedSourceLang string
	FromCache          bool
}

type SessionRepository interface {
	CreateSession(ctx context.Context, input CreateSessionInput) (*Session, error)
	CompleteSession(ctx context.Context, input CompleteSessionInput) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
}

type TranscriptRepository interface {
	InsertSegment(ctx context.Context, input InsertSegmentInput) error
	ListSegmentsBySessionID(ctx context.Context, sessionID string) ([]TranscriptSegment, error)
	InsertTranslation(ctx context.Context, input InsertTranslationInput) error
	ListTranslationsBySessionID(ctx context.Context, sessionID string) ([]SegmentTranslation, error)
}

type Repository interface {
	SessionRepository
	TranscriptRepository
}
