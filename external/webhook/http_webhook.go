package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/foxseedlab/tsuyaku/internal/webhook"
)

const (
	webhookTimeout = 10 * time.Second
	// Only the head of an error response is kept for the log.
	maxErrorBodyBytes = 512

	schemaVersionHeader = "X-Tsuyaku-Schema-Version"
)

type HTTPSender struct {
	webhookURL string
	client     *http.Client
}

func NewHTTPSender(webhookURL string) webhook.Sender {
	return &HTTPSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: webhookTimeout},
	}
}

func (s *HTTPSender) SendTranscript(ctx context.Context, payload webhook.TranscriptWebhookPayload) error {
	if s.webhookURL == "" {
		return nil
	}
	slog.Info("sending transcript webhook", "session_id", payload.SessionID, "run_id", payload.RunID, "segment_count", payload.SegmentCount, "status", payload.Status)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal transcript webhook: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build transcript webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(schemaVersionHeader, payload.SchemaVersion)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post transcript webhook: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		head, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(head)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
