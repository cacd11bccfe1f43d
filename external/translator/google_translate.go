package translator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"cloud.google.com/go/auth/credentials"
	"cloud.google.com/go/translate"
	"github.com/foxseedlab/tsuyaku/internal/translator"
	"golang.org/x/text/language"
	"google.golang.org/api/option"
)

type GoogleTranslateConfig struct {
	CredentialsJSON string
	// ClientOptions replace the credential-based options when set.
	ClientOptions []option.ClientOption
}

// GoogleTranslateProvider calls the Cloud Translation basic API. The client is
// created on first use and shared afterwards.
type GoogleTranslateProvider struct {
	cfg GoogleTranslateConfig

	mu     sync.Mutex
	client *translate.Client
}

func NewGoogleTranslateProvider(cfg GoogleTranslateConfig) *GoogleTranslateProvider {
	return &GoogleTranslateProvider{cfg: cfg}
}

func (p *GoogleTranslateProvider) clientFor(ctx context.Context) (*translate.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	opts := p.cfg.ClientOptions
	if len(opts) == 0 {
		creds, err := credentials.DetectDefault(&credentials.DetectOptions{
			CredentialsJSON: []byte(p.cfg.CredentialsJSON),
			Scopes:          []string{"https://www.googleapis.com/auth/cloud-translation"},
		})
		if err != nil {
			return nil, fmt.Errorf("detect credentials: %w", err)
		}
		opts = []option.ClientOption{option.WithAuthCredentials(creds)}
	}
	client, err := translate.NewClient(context.WithoutCancel(ctx), opts...)
	if err != nil {
		return nil, fmt.Errorf("create translate client: %w", err)
	}
	p.client = client
	return client, nil
}

func (p *GoogleTranslateProvider) Translate(ctx context.Context, text, sourceLang, targetLang string) (translator.Translation, error) {
	target, err := language.Parse(targetLang)
	if err != nil {
		return translator.Translation{}, fmt.Errorf("invalid target language %q: %w", targetLang, err)
	}
	opts := &translate.Options{Format: translate.Text}
	if sourceLang != "" {
		source, err := language.Parse(sourceLang)
		if err != nil {
			return translator.Translation{}, fmt.Errorf("invalid source language %q: %w", sourceLang, err)
		}
		// The basic API only understands base languages for the source.
		base, _ := source.Base()
		opts.Source = language.Make(base.String())
	}

	client, err := p.clientFor(ctx)
	if err != nil {
		return translator.Translation{}, err
	}
	out, err := client.Translate(ctx, []string{text}, target, opts)
	if err != nil {
		return translator.Translation{}, fmt.Errorf("translate: %w", err)
	}
	if len(out) == 0 {
		return translator.Translation{}, fmt.Errorf("translate: empty response")
	}

	detected := sourceLang
	if out[0].Source != language.Und {
		detected = out[0].Source.String()
	}
	slog.Debug("translated segment", "source_lang", sourceLang, "target_lang", targetLang, "detected_source_lang", detected, "chars", len(text))
	return translator.Translation{
		TranslatedText:     out[0].Text,
		DetectedSourceLang: detected,
		// The basic API reports no score.
		Confidence: 1,
	}, nil
}

func (p *GoogleTranslateProvider) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}
