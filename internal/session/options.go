package session

import (
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultSilenceTimeout     = 30 * time.Second
	DefaultStreamLifetime     = 290 * time.Second
	DefaultMaxRestartAttempts = 5
	DefaultRestartBackoff     = 250 * time.Millisecond
	DefaultLanguageCode       = "en-US"
	DefaultChannelCount       = 1
)

type Options struct {
	SilenceTimeout time.Duration
	// StreamLifetime rotates the provider stream before the provider's hard duration limit (~305s).
	StreamLifetime     time.Duration
	MaxRestartAttempts int
	// RestartBackoff of zero reopens immediately.
	RestartBackoff        time.Duration
	DefaultLanguageCode   string
	DefaultTargetLanguage string
	Clock                 clockwork.Clock
}

func DefaultOptions() Options {
	return Options{
		SilenceTimeout:      DefaultSilenceTimeout,
		StreamLifetime:      DefaultStreamLifetime,
		MaxRestartAttempts:  DefaultMaxRestartAttempts,
		RestartBackoff:      DefaultRestartBackoff,
		DefaultLanguageCode: DefaultLanguageCode,
		Clock:               clockwork.NewRealClock(),
	}
}

func (o Options) withDefaults() Options {
	if o.SilenceTimeout <= 0 {
		o.SilenceTimeout = DefaultSilenceTimeout
	}
	if o.StreamLifetime <= 0 {
		o.StreamLifetime = DefaultStreamLifetime
	}
	if o.MaxRestartAttempts <= 0 {
		o.MaxRestartAttempts = DefaultMaxRestartAttempts
	}
	if o.RestartBackoff < 0 {
		o.RestartBackoff = 0
	}
	if o.DefaultLanguageCode == "" {
		o.DefaultLanguageCode = DefaultLanguageCode
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}
