package webhook

import "context"

const TranscriptWebhookSchemaVersion = "2026-10-01"

type TranscriptWebhookPayload struct {
	SchemaVersion      string                     `json:"schema_version"`
	SessionID          string                     `json:"session_id"`
	RunID              string                     `json:"run_id"`
	Status             string                     `json:"status"`
	LanguageCode       string                     `json:"language_code"`
	TargetLanguage     string                     `json:"target_language,omitempty"`
	StartAt            string                     `json:"start_at"`
	EndAt              string                     `json:"end_at"`
	Timezone           string                     `json:"timezone"`
	DurationSeconds    int64                      `json:"duration_seconds"`
	RestartCount       int                        `json:"restart_count"`
	SegmentCount       int                        `json:"segment_count"`
	TranscriptSegments []TranscriptWebhookSegment `json:"transcript_segments"`
	Transcript         string                     `json:"transcript"`
}

type TranscriptWebhookSegment struct {
	Index       int     `json:"index"`
	StartAt     string  `json:"start_at"`
	EndAt       string  `json:"end_at"`
	Transcript  string  `json:"transcript"`
	Confidence  float64 `json:"confidence"`
	Translation string  `json:"translation,omitempty"`
}

type Sender interface {
	SendTranscript(ctx context.Context, payload TranscriptWebhookPayload) error
}
