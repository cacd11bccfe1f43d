package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/foxseedlab/tsuyaku/internal/transcriber"
	"github.com/gorilla/websocket"
)

const defaultDeepgramBaseURL = "https://api.deepgram.com/v1"

type DeepgramConfig struct {
	APIKey     string
	APIBaseURL string
	Model      string
}

// DeepgramProvider streams audio to Deepgram's live transcription websocket.
type DeepgramProvider struct {
	cfg    DeepgramConfig
	dialer *websocket.Dialer
}

func NewDeepgramProvider(cfg DeepgramConfig) *DeepgramProvider {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		cfg.APIBaseURL = defaultDeepgramBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	return &DeepgramProvider{cfg: cfg, dialer: websocket.DefaultDialer}
}

func (p *DeepgramProvider) Name() string { return "deepgram" }

func (p *DeepgramProvider) OpenStream(ctx context.Context, cfg transcriber.StreamConfig, handler transcriber.StreamHandler) (transcriber.Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: DEEPGRAM_API_KEY is not configured", transcriber.ErrProviderUnavailable)
	}
	wsURL, err := buildListenURL(p.cfg, cfg)
	if err != nil {
		return nil, errors.Join(transcriber.ErrProviderUnavailable, err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.cfg.APIKey)
	conn, resp, err := p.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusBadRequest {
			return nil, fmt.Errorf("%w: deepgram rejected stream parameters: %w", transcriber.ErrInvalidAudioFormat, err)
		}
		return nil, fmt.Errorf("%w: failed to connect to deepgram websocket: %w", transcriber.ErrProviderUnavailable, err)
	}
	slog.Info("deepgram stream initialized", "model", p.cfg.Model, "language_code", cfg.LanguageCode, "sample_rate", cfg.SampleRateHertz)

	s := &deepgramStream{
		conn:         conn,
		handler:      handler,
		languageCode: cfg.LanguageCode,
		done:         make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

type deepgramStream struct {
	conn         *websocket.Conn
	handler      transcriber.StreamHandler
	languageCode string
	done         chan struct{}

	writeMu   sync.Mutex
	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

func (s *deepgramStream) Write(pcm []byte) error {
	if s.isClosed() {
		return transcriber.ErrWriteAfterEnd
	}
	select {
	case <-s.done:
		return transcriber.ErrWriteAfterEnd
	default:
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return errors.Join(transcriber.ErrWriteAfterEnd, err)
		}
		return errors.Join(transcriber.ErrTransient, fmt.Errorf("failed to send audio: %w", err))
	}
	return nil
}

// Close asks deepgram to flush pending results, waits for the server to close
// the socket, then tears the connection down.
func (s *deepgramStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.writeMu.Lock()
		err = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
		s.writeMu.Unlock()

		timer := time.NewTimer(closeGracePeriod)
		defer timer.Stop()
		select {
		case <-s.done:
		case <-timer.C:
			slog.Warn("deepgram stream did not drain before close deadline", "grace_period", closeGracePeriod)
		}
		_ = s.conn.Close()
		<-s.done
	})
	return err
}

func (s *deepgramStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *deepgramStream) readLoop() {
	defer close(s.done)
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			switch {
			case s.isClosed():
				slog.Debug("deepgram receive loop stopped", "reason", err.Error())
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
				slog.Info("deepgram stream ended by server")
				s.handler.OnEnd()
			default:
				slog.Warn("deepgram receive failed", "error", err)
				s.handler.OnError(errors.Join(transcriber.ErrTransient, fmt.Errorf("failed to read provider event: %w", err)))
			}
			return
		}

		var response deepgramResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			slog.Debug("ignoring undecodable deepgram message", "error", err)
			continue
		}
		if strings.EqualFold(response.Type, "Error") {
			message := strings.TrimSpace(response.Message)
			if message == "" {
				message = "deepgram returned an unknown error"
			}
			if s.isClosed() {
				continue
			}
			s.handler.OnError(errors.Join(transcriber.ErrTransient, errors.New(message)))
			continue
		}
		if result, ok := s.toResult(response); ok {
			s.handler.OnResult(result)
		}
	}
}

func (s *deepgramStream) toResult(response deepgramResponse) (transcriber.Result, bool) {
	if response.Type != "" && !strings.EqualFold(response.Type, "Results") {
		return transcriber.Result{}, false
	}
	if len(response.Channel.Alternatives) == 0 {
		return transcriber.Result{}, false
	}
	best := response.Channel.Alternatives[0]
	text := strings.TrimSpace(best.Transcript)
	isFinal := response.IsFinal || response.SpeechFinal
	if text == "" && !isFinal {
		return transcriber.Result{}, false
	}
	lang := s.languageCode
	if len(best.Languages) > 0 && best.Languages[0] != "" {
		lang = best.Languages[0]
	}
	return transcriber.Result{
		Text:         text,
		IsFinal:      isFinal,
		Confidence:   best.Confidence,
		LanguageCode: lang,
		Timestamp:    time.Now(),
	}, true
}

type deepgramResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []struct {
			Transcript string   `json:"transcript"`
			Confidence float64  `json:"confidence"`
			Languages  []string `json:"languages"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func buildListenURL(providerCfg DeepgramConfig, streamCfg transcriber.StreamConfig) (string, error) {
	base := strings.TrimSpace(providerCfg.APIBaseURL)
	if base == "" {
		base = defaultDeepgramBaseURL
	}
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	query := listenURL.Query()
	query.Set("model", providerCfg.Model)
	query.Set("encoding", "linear16")
	query.Set("sample_rate", strconv.Itoa(streamCfg.SampleRateHertz))
	query.Set("channels", strconv.Itoa(streamCfg.AudioChannelCount))
	query.Set("interim_results", strconv.FormatBool(streamCfg.InterimResults))
	query.Set("punctuate", strconv.FormatBool(streamCfg.EnableAutomaticPunctuation))
	query.Set("language", streamCfg.LanguageCode)
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
