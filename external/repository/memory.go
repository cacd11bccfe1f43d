package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/foxseedlab/tsuyaku/internal/repository"
	"github.com/google/uuid"
)

// MemoryRepository keeps history in process memory. It is used when no
// DATABASE_URL is configured.
type MemoryRepository struct {
	mu           sync.Mutex
	now          func() time.Time
	sessions     map[string]*repository.Session
	segments     map[string][]repository.TranscriptSegment
	translations map[string][]repository.SegmentTranslation
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		now:          time.Now,
		sessions:     make(map[string]*repository.Session),
		segments:     make(map[string][]repository.TranscriptSegment),
		translations: make(map[string][]repository.SegmentTranslation),
	}
}

func (r *MemoryRepository) CreateSession(_ context.Context, input repository.CreateSessionInput) (*repository.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &repository.Session{
		ID:             uuid.NewString(),
		ExternalID:     input.ExternalID,
		LanguageCode:   input.LanguageCode,
		TargetLanguage: input.TargetLanguage,
		StartedAt:      input.StartedAt,
		Status:         repository.SessionStatusRunning,
		CreatedAt:      r.now(),
	}
	r.sessions[s.ID] = s
	out := *s
	return &out, nil
}

func (r *MemoryRepository) CompleteSession(_ context.Context, input repository.CompleteSessionInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[input.SessionID]
	if !ok {
		return fmt.Errorf("%w: %s", repository.ErrSessionNotFound, input.SessionID)
	}
	endedAt := input.EndedAt
	s.EndedAt = &endedAt
	s.Status = input.Status
	s.FinalTranscript = input.FinalTranscript
	s.RestartCount = input.RestartCount
	return nil
}

func (r *MemoryRepository) GetSession(_ context.Context, sessionID string) (*repository.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrSessionNotFound, sessionID)
	}
	out := *s
	return &out, nil
}

func (r *MemoryRepository) InsertSegment(_ context.Context, input repository.InsertSegmentInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[input.SessionID]; !ok {
		return fmt.Errorf("%w: %s", repository.ErrSessionNotFound, input.SessionID)
	}
	for _, seg := range r.segments[input.SessionID] {
		if seg.SegmentIndex == input.SegmentIndex {
			return fmt.Errorf("segment %d already exists for session %s", input.SegmentIndex, input.SessionID)
		}
	}
	r.segments[input.SessionID] = append(r.segments[input.SessionID], repository.TranscriptSegment{
		ID:           uuid.NewString(),
		SessionID:    input.SessionID,
		Content:      input.Content,
		LanguageCode: input.LanguageCode,
		Confidence:   input.Confidence,
		SegmentIndex: input.SegmentIndex,
		SpokenAt:     input.SpokenAt,
		CreatedAt:    r.now(),
	})
	return nil
}

func (r *MemoryRepository) ListSegmentsBySessionID(_ context.Context, sessionID string) ([]repository.TranscriptSegment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := append([]repository.TranscriptSegment(nil), r.segments[sessionID]...)
	sort.Slice(list, func(i, j int) bool { return list[i].SegmentIndex < list[j].SegmentIndex })
	return list, nil
}

func (r *MemoryRepository) InsertTranslation(_ context.Context, input repository.InsertTranslationInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[input.SessionID]; !ok {
		return fmt.Errorf("%w: %s", repository.ErrSessionNotFound, input.SessionID)
	}
	r.translations[input.SessionID] = append(r.translations[input.SessionID], repository.SegmentTranslation{
		ID:                 uuid.NewString(),
		SessionID:          input.SessionID,
		SegmentIndex:       input.SegmentIndex,
		OriginalText:       input.OriginalText,
		TargetLanguage:     input.TargetLanguage,
		TranslatedText:     input.TranslatedText,
		DetectedSourceLang: input.DetectedSourceLang,
		FromCache:          input.FromCache,
		CreatedAt:          r.now(),
	})
	return nil
}

func (r *MemoryRepository) ListTranslationsBySessionID(_ context.Context, sessionID string) ([]repository.SegmentTranslation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := append([]repository.SegmentTranslation(nil), r.translations[sessionID]...)
	sort.SliceStable(list, func(i, j int) bool { return list[i].SegmentIndex < list[j].SegmentIndex })
	return list, nil
}
