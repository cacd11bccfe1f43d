package history

import (
	"strings"
	"time"

	"github.com/foxseedlab/tsuyaku/internal/repository"
	"github.com/foxseedlab/tsuyaku/internal/webhook"
)

type payloadInput struct {
	sessionID      string
	runID          string
	status         repository.SessionStatus
	languageCode   string
	targetLanguage string
	startedAt      time.Time
	endedAt        time.Time
	restartCount   int
	finalText      string
	timezone       string
	loc            *time.Location
	segments       []repository.TranscriptSegment
	translations   []repository.SegmentTranslation
}

func buildTranscriptWebhookPayload(in payloadInput) webhook.TranscriptWebhookPayload {
	loc := safeLocation(in.loc)
	durationSeconds := int64(in.endedAt.Sub(in.startedAt).Seconds())
	if durationSeconds < 0 {
		durationSeconds = 0
	}

	transcript := in.finalText
	if transcript == "" {
		lines := make([]string, 0, len(in.segments))
		for _, seg := range in.segments {
			lines = append(lines, seg.Content)
		}
		transcript = strings.Join(lines, " ")
	}

	return webhook.TranscriptWebhookPayload{
		SchemaVersion:      webhook.TranscriptWebhookSchemaVersion,
		SessionID:          in.sessionID,
		RunID:              in.runID,
		Status:             string(in.status),
		LanguageCode:       in.languageCode,
		TargetLanguage:     in.targetLanguage,
		StartAt:            in.startedAt.In(loc).Format(time.RFC3339),
		EndAt:              in.endedAt.In(loc).Format(time.RFC3339),
		Timezone:           in.timezone,
		DurationSeconds:    durationSeconds,
		RestartCount:       in.restartCount,
		SegmentCount:       len(in.segments),
		TranscriptSegments: buildTranscriptWebhookSegments(in.segments, in.translations, in.endedAt, loc),
		Transcript:         transcript,
	}
}

// A segment ends where the next one starts; the last one ends with the session.
func buildTranscriptWebhookSegments(segments []repository.TranscriptSegment, translations []repository.SegmentTranslation, sessionEndedAt time.Time, loc *time.Location) []webhook.TranscriptWebhookSegment {
	translated := make(map[int]string, len(translations))
	for _, tr := range translations {
		if _, seen := translated[tr.SegmentIndex]; seen {
			continue
		}
		translated[tr.SegmentIndex] = tr.TranslatedText
	}

	out := make([]webhook.TranscriptWebhookSegment, 0, len(segments))
	for i, seg := range segments {
		segmentEnd := sessionEndedAt
		if i+1 < len(segments) {
			segmentEnd = segments[i+1].SpokenAt
		}
		if segmentEnd.Before(seg.SpokenAt) {
			segmentEnd = seg.SpokenAt
		}
		out = append(out, webhook.TranscriptWebhookSegment{
			Index:       seg.SegmentIndex,
			StartAt:     seg.SpokenAt.In(loc).Format(time.RFC3339),
			EndAt:       segmentEnd.In(loc).Format(time.RFC3339),
			Transcript:  seg.Content,
			Confidence:  seg.Confidence,
			Translation: translated[seg.SegmentIndex],
		})
	}
	return out
}

func safeLocation(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
