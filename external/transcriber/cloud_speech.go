package transcriber

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv2"
	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"github.com/foxseedlab/tsuyaku/internal/transcriber"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	speechAPIEndpointPort = 443
	// closeGracePeriod bounds how long Close waits for results flushed after CloseSend.
	closeGracePeriod = 3 * time.Second
)

type CloudSpeechConfig struct {
	ProjectID       string
	CredentialsJSON string
	Location        string
	Model           string
}

// CloudSpeechProvider streams audio to Cloud Speech-to-Text v2. One gRPC client
// is shared by every stream the provider opens.
type CloudSpeechProvider struct {
	projectID       string
	credentialsJSON string
	location        string
	model           string

	mu     sync.Mutex
	client *speech.Client
}

func NewCloudSpeechProvider(cfg CloudSpeechConfig) *CloudSpeechProvider {
	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = "global"
	}
	return &CloudSpeechProvider{
		projectID:       cfg.ProjectID,
		credentialsJSON: cfg.CredentialsJSON,
		location:        location,
		model:           strings.TrimSpace(cfg.Model),
	}
}

func (p *CloudSpeechProvider) Name() string { return "google" }

func (p *CloudSpeechProvider) clientFor(ctx context.Context) (*speech.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(p.credentialsJSON),
		Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
	})
	if err != nil {
		return nil, fmt.Errorf("detect credentials: %w", err)
	}
	opts := []option.ClientOption{
		option.WithAuthCredentials(creds),
	}
	if p.location != "global" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:%d", p.location, speechAPIEndpointPort)))
	}
	// The client outlives the request that created it.
	client, err := speech.NewClient(context.WithoutCancel(ctx), opts...)
	if err != nil {
		return nil, err
	}
	p.client = client
	return client, nil
}

func (p *CloudSpeechProvider) OpenStream(ctx context.Context, cfg transcriber.StreamConfig, handler transcriber.StreamHandler) (transcriber.Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := p.clientFor(ctx)
	if err != nil {
		return nil, errors.Join(transcriber.ErrProviderUnavailable, err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := client.StreamingRecognize(streamCtx)
	if err != nil {
		cancel()
		return nil, errors.Join(transcriber.ErrProviderUnavailable, err)
	}
	if err := stream.Send(p.configRequest(cfg)); err != nil {
		cancel()
		return nil, classifyError(err)
	}
	slog.Info("cloud speech stream initialized", "location", p.location, "model", p.model, "language_code", cfg.LanguageCode, "sample_rate", cfg.SampleRateHertz)

	s := &cloudSpeechStream{
		stream:       stream,
		handler:      handler,
		cancel:       cancel,
		languageCode: cfg.LanguageCode,
		done:         make(chan struct{}),
	}
	go s.receive()
	return s, nil
}

func (p *CloudSpeechProvider) configRequest(cfg transcriber.StreamConfig) *speechpb.StreamingRecognizeRequest {
	return &speechpb.StreamingRecognizeRequest{
		Recognizer: fmt.Sprintf("projects/%s/locations/%s/recognizers/_", p.projectID, p.location),
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Model:         p.model,
					LanguageCodes: []string{cfg.LanguageCode},
					DecodingConfig: &speechpb.RecognitionConfig_ExplicitDecodingConfig{
						ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
							Encoding:          speechpb.ExplicitDecodingConfig_LINEAR16,
							SampleRateHertz:   int32(cfg.SampleRateHertz),
							AudioChannelCount: int32(cfg.AudioChannelCount),
						},
					},
					Features: &speechpb.RecognitionFeatures{
						EnableAutomaticPunctuation: cfg.EnableAutomaticPunctuation,
					},
				},
				StreamingFeatures: &speechpb.StreamingRecognitionFeatures{InterimResults: cfg.InterimResults},
			},
		},
	}
}

// Shutdown closes the shared client; the injector calls it on shutdown.
func (p *CloudSpeechProvider) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}

type cloudSpeechStream struct {
	stream       speechpb.Speech_StreamingRecognizeClient
	handler      transcriber.StreamHandler
	cancel       context.CancelFunc
	languageCode string
	done         chan struct{}

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

func (s *cloudSpeechStream) Write(pcm []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return transcriber.ErrWriteAfterEnd
	}
	err := s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_Audio{Audio: pcm},
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) {
		// The server already ended the stream; the real status is reported by Recv.
		return errors.Join(transcriber.ErrWriteAfterEnd, err)
	}
	return classifyError(err)
}

func (s *cloudSpeechStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		err = s.stream.CloseSend()
		timer := time.NewTimer(closeGracePeriod)
		defer timer.Stop()
		select {
		case <-s.done:
		case <-timer.C:
			slog.Warn("cloud speech stream did not drain before close deadline", "grace_period", closeGracePeriod)
		}
		s.cancel()
	})
	return err
}

func (s *cloudSpeechStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *cloudSpeechStream) receive() {
	defer close(s.done)
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			switch {
			case s.isClosed():
				slog.Debug("cloud speech receive loop stopped", "reason", err.Error())
			case errors.Is(err, io.EOF):
				slog.Info("cloud speech stream ended by server")
				s.handler.OnEnd()
			default:
				slog.Warn("cloud speech receive failed", "error", err)
				s.handler.OnError(classifyError(err))
			}
			return
		}
		for _, result := range resultsFromResponse(resp, s.languageCode, time.Now()) {
			s.handler.OnResult(result)
		}
	}
}

// resultsFromResponse emits each final result on its own and merges the
// non-final results of one response into a single interim hypothesis.
func resultsFromResponse(resp *speechpb.StreamingRecognizeResponse, defaultLanguage string, now time.Time) []transcriber.Result {
	var out []transcriber.Result
	var interim []string
	var interimConfidence float64
	interimLanguage := defaultLanguage
	for _, result := range resp.GetResults() {
		alternatives := result.GetAlternatives()
		if len(alternatives) == 0 {
			continue
		}
		best := alternatives[0]
		lang := result.GetLanguageCode()
		if lang == "" {
			lang = defaultLanguage
		}
		if result.GetIsFinal() {
			out = append(out, transcriber.Result{
				Text:         best.GetTranscript(),
				IsFinal:      true,
				Confidence:   float64(best.GetConfidence()),
				LanguageCode: lang,
				Timestamp:    now,
			})
			continue
		}
		interim = append(interim, strings.TrimSpace(best.GetTranscript()))
		if len(interim) == 1 {
			interimConfidence = float64(best.GetConfidence())
			interimLanguage = lang
		}
	}
	if len(interim) > 0 {
		out = append(out, transcriber.Result{
			Text:         strings.Join(interim, " "),
			Confidence:   interimConfidence,
			LanguageCode: interimLanguage,
			Timestamp:    now,
		})
	}
	return out
}

// classifyError maps a gRPC failure onto the transcriber sentinels, keeping the
// original error in the chain.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return errors.Join(transcriber.ErrTransient, err)
	}
	switch st.Code() {
	case codes.InvalidArgument, codes.OutOfRange:
		return errors.Join(transcriber.ErrInvalidAudioFormat, err)
	case codes.Unauthenticated, codes.PermissionDenied, codes.NotFound, codes.Unimplemented:
		return errors.Join(transcriber.ErrProviderUnavailable, err)
	default:
		// Aborted covers the provider's max stream duration and idle timeouts.
		return errors.Join(transcriber.ErrTransient, err)
	}
}
