package transcriber

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func validConfig() StreamConfig {
	return StreamConfig{
		LanguageCode:      "en-US",
		SampleRateHertz:   16000,
		AudioChannelCount: 1,
		Encoding:          EncodingLinear16,
	}
}

func TestStreamConfigValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cases := map[string]func(*StreamConfig){
		"missing language": func(c *StreamConfig) { c.LanguageCode = "" },
		"zero sample rate": func(c *StreamConfig) { c.SampleRateHertz = 0 },
		"zero channels":    func(c *StreamConfig) { c.AudioChannelCount = 0 },
		"opus encoding":    func(c *StreamConfig) { c.Encoding = EncodingOpus },
	}
	for name, mutate := range cases {
		cfg := validConfig()
		mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidAudioFormat) {
			t.Fatalf("%s: expected ErrInvalidAudioFormat, got %v", name, err)
		}
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(fmt.Errorf("recv: %w", ErrTransient)) {
		t.Fatal("expected wrapped ErrTransient to be transient")
	}
	if !IsTransient(ErrWriteAfterEnd) {
		t.Fatal("expected ErrWriteAfterEnd to be transient")
	}
	if IsTransient(ErrInvalidAudioFormat) {
		t.Fatal("did not expect ErrInvalidAudioFormat to be transient")
	}
}

func TestNoopProvider_WriteAfterClose(t *testing.T) {
	stream, err := NewNoopProvider().OpenStream(context.Background(), validConfig(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := stream.Write([]byte{0, 1}); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if err := stream.Write([]byte{0, 1}); !errors.Is(err, ErrWriteAfterEnd) {
		t.Fatalf("expected ErrWriteAfterEnd, got %v", err)
	}
}
