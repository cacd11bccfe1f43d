package transcriber

import (
	"context"
	"fmt"
	"time"
)

type Encoding string

const (
	EncodingLinear16 Encoding = "LINEAR16"
	EncodingOpus     Encoding = "OPUS"
)

type StreamConfig struct {
	LanguageCode               string
	SampleRateHertz            int
	AudioChannelCount          int
	Encoding                   Encoding
	EnableAutomaticPunctuation bool
	InterimResults             bool
}

// Validate only accepts LINEAR16; other encodings must be decoded before reaching a provider.
func (c StreamConfig) Validate() error {
	if c.LanguageCode == "" {
		return fmt.Errorf("%w: language code is required", ErrInvalidAudioFormat)
	}
	if c.SampleRateHertz <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidAudioFormat, c.SampleRateHertz)
	}
	if c.AudioChannelCount <= 0 {
		return fmt.Errorf("%w: channel count must be positive, got %d", ErrInvalidAudioFormat, c.AudioChannelCount)
	}
	if c.Encoding != EncodingLinear16 {
		return fmt.Errorf("%w: unsupported encoding %q", ErrInvalidAudioFormat, c.Encoding)
	}
	return nil
}

type Result struct {
	Text         string
	IsFinal      bool
	Confidence   float64
	LanguageCode string
	Timestamp    time.Time
}

// StreamHandler receives callbacks from a single provider stream. Calls for one
// stream are made sequentially from the stream's receive loop.
type StreamHandler interface {
	OnResult(result Result)
	OnError(err error)
	OnEnd()
}

type Stream interface {
	Write(pcm []byte) error
	Close() error
}

type Provider interface {
	Name() string
	OpenStream(ctx context.Context, cfg StreamConfig, handler StreamHandler) (Stream, error)
}
