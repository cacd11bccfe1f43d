package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/foxseedlab/tsuyaku/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const sessionColumns = `id, external_id, language_code, target_language, started_at, ended_at, status, final_transcript, restart_count, created_at`

func scanSession(row pgx.Row) (*repository.Session, error) {
	var s repository.Session
	var endedAt *time.Time
	err := row.Scan(&s.ID, &s.ExternalID, &s.LanguageCode, &s.TargetLanguage, &s.StartedAt, &endedAt, &s.Status, &s.FinalTranscript, &s.RestartCount, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.EndedAt = endedAt
	return &s, nil
}

func (r *PostgresRepository) CreateSession(ctx context.Context, input repository.CreateSessionInput) (*repository.Session, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO sessions (external_id, language_code, target_language, started_at, status)
		 VALUES ($1, $2, $3, $4, 'running')
		 RETURNING `+sessionColumns,
		input.ExternalID, input.LanguageCode, input.TargetLanguage, input.StartedAt)
	return scanSession(row)
}

func (r *PostgresRepository) CompleteSession(ctx context.Context, input repository.CompleteSessionInput) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions
		 SET status = $2, ended_at = $3, final_transcript = $4, restart_count = $5
		 WHERE id = $1`,
		input.SessionID, input.Status, input.EndedAt, input.FinalTranscript, input.RestartCount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", repository.ErrSessionNotFound, input.SessionID)
	}
	return nil
}

func (r *PostgresRepository) GetSession(ctx context.Context, sessionID string) (*repository.Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, sessionID)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", repository.ErrSessionNotFound, sessionID)
		}
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepository) InsertSegment(ctx context.Context, input repository.InsertSegmentInput) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO transcript_segments (session_id, content, language_code, confidence, segment_index, spoken_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		input.SessionID, input.Content, input.LanguageCode, input.Confidence, input.SegmentIndex, input.SpokenAt)
	return err
}

func (r *PostgresRepository) ListSegmentsBySessionID(ctx context.Context, sessionID string) ([]repository.TranscriptSegment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, content, language_code, confidence, segment_index, spoken_at, created_at
		 FROM transcript_segments WHERE session_id = $1 ORDER BY segment_index ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.TranscriptSegment
	for rows.Next() {
		var seg repository.TranscriptSegment
		if err := rows.Scan(&seg.ID, &seg.SessionID, &seg.Content, &seg.LanguageCode, &seg.Confidence, &seg.SegmentIndex, &seg.SpokenAt, &seg.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, seg)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) InsertTranslation(ctx context.Context, input repository.InsertTranslationInput) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO segment_translations (session_id, segment_index, original_text, target_language, translated_text, detected_source_lang, from_cache)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		input.SessionID, input.SegmentIndex, input.OriginalText, input.TargetLanguage, input.TranslatedText, input.DetectedSourceLang, input.FromCache)
	return err
}

func (r *PostgresRepository) ListTranslationsBySessionID(ctx context.Context, sessionID string) ([]repository.SegmentTranslation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, segment_index, original_text, target_language, translated_text, detected_source_lang, from_cache, created_at
		 FROM segment_translations WHERE session_id = $1 ORDER BY segment_index ASC, created_at ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.SegmentTranslation
	for rows.Next() {
		var t repository.SegmentTranslation
		if err := rows.Scan(&t.ID, &t.SessionID, &t.SegmentIndex, &t.OriginalText, &t.TargetLanguage, &t.TranslatedText, &t.DetectedSourceLang, &t.FromCache, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// Shutdown closes the pool; the injector calls it on shutdown.
func (r *PostgresRepository) Shutdown() {
	r.pool.Close()
}
