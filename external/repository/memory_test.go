package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/foxseedlab/tsuyaku/internal/repository"
)

func TestMemoryRepository_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	s, err := repo.CreateSession(ctx, repository.CreateSessionInput{ExternalID: "client-1", LanguageCode: "en-US", TargetLanguage: "es", StartedAt: started})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if s.ID == "" || s.Status != repository.SessionStatusRunning {
		t.Fatalf("unexpected session: %+v", s)
	}

	ended := started.Add(2 * time.Minute)
	if err := repo.CompleteSession(ctx, repository.CompleteSessionInput{
		SessionID:       s.ID,
		Status:          repository.SessionStatusFailed,
		EndedAt:         ended,
		FinalTranscript: "hello world",
		RestartCount:    5,
	}); err != nil {
		t.Fatalf("unexpected complete error: %v", err)
	}
	got, err := repo.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if got.Status != repository.SessionStatusFailed || got.EndedAt == nil || !got.EndedAt.Equal(ended) || got.RestartCount != 5 || got.FinalTranscript != "hello world" {
		t.Fatalf("unexpected completed session: %+v", got)
	}

	if err := repo.CompleteSession(ctx, repository.CompleteSessionInput{SessionID: "missing"}); !errors.Is(err, repository.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestMemoryRepository_SegmentsAndTranslations(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	s, err := repo.CreateSession(ctx, repository.CreateSessionInput{ExternalID: "client-1", LanguageCode: "en-US", StartedAt: time.Now()})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	for _, idx := range []int{1, 0} {
		if err := repo.InsertSegment(ctx, repository.InsertSegmentInput{SessionID: s.ID, Content: "seg", SegmentIndex: idx, SpokenAt: time.Now()}); err != nil {
			t.Fatalf("unexpected insert error: %v", err)
		}
	}
	if err := repo.InsertSegment(ctx, repository.InsertSegmentInput{SessionID: s.ID, SegmentIndex: 0}); err == nil {
		t.Fatal("expected duplicate segment index to be rejected")
	}
	segs, err := repo.ListSegmentsBySessionID(ctx, s.ID)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(segs) != 2 || segs[0].SegmentIndex != 0 || segs[1].SegmentIndex != 1 {
		t.Fatalf("expected ordered segments, got %+v", segs)
	}

	if err := repo.InsertTranslation(ctx, repository.InsertTranslationInput{SessionID: s.ID, SegmentIndex: 1, OriginalText: "seg", TargetLanguage: "es", TranslatedText: "segmento"}); err != nil {
		t.Fatalf("unexpected translation insert error: %v", err)
	}
	trs, err := repo.ListTranslationsBySessionID(ctx, s.ID)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(trs) != 1 || trs[0].TranslatedText != "segmento" {
		t.Fatalf("unexpected translations: %+v", trs)
	}
	if err := repo.InsertTranslation(ctx, repository.InsertTranslationInput{SessionID: "missing"}); !errors.Is(err, repository.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
