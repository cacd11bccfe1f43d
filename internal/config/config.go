package config

import (
	"fmt"
	"slices"
	"time"
)

const (
	SpeechProviderGoogle   = "google"
	SpeechProviderDeepgram = "deepgram"
	SpeechProviderNoop     = "noop"

	TranslationProviderGoogle = "google"
	TranslationProviderNoop   = "noop"
)

type Config struct {
	Env                        string
	ListenAddr                 string
	DefaultTranscribeLanguage  string
	DefaultTargetLanguage      string
	SpeechProvider             string
	TranslationProvider        string
	GoogleCloudProjectID       string
	GoogleCloudCredentialsJSON string
	GoogleCloudSpeechLocation  string
	GoogleCloudSpeechModel     string
	DeepgramAPIKey             string
	DeepgramAPIBaseURL         string
	DeepgramModel              string
	SilenceTimeoutSec          int
	StreamLifetimeSec          int
	MaxRestartAttempts         int
	RestartBackoffMs           int
	TranslationCacheSize       int
	TranslationTimeoutSec      int
	DatabaseURL                string
	TranscriptWebhookURL       string
	TranscriptTimezone         string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if !slices.Contains([]string{SpeechProviderGoogle, SpeechProviderDeepgram, SpeechProviderNoop}, c.SpeechProvider) {
		return fmt.Errorf("SPEECH_PROVIDER must be one of google, deepgram, noop, got %q", c.SpeechProvider)
	}
	if !slices.Contains([]string{TranslationProviderGoogle, TranslationProviderNoop}, c.TranslationProvider) {
		return fmt.Errorf("TRANSLATION_PROVIDER must be one of google, noop, got %q", c.TranslationProvider)
	}
	if c.SpeechProvider == SpeechProviderGoogle || c.TranslationProvider == TranslationProviderGoogle {
		if c.GoogleCloudProjectID == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT_ID is required for google providers")
		}
		if c.GoogleCloudCredentialsJSON == "" {
			return fmt.Errorf("GOOGLE_CLOUD_CREDENTIALS_JSON is required for google providers")
		}
	}
	if c.SpeechProvider == SpeechProviderDeepgram && c.DeepgramAPIKey == "" {
		return fmt.Errorf("DEEPGRAM_API_KEY is required when SPEECH_PROVIDER=deepgram")
	}
	for _, p := range c.positiveFieldChecks() {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}
	if c.RestartBackoffMs < 0 {
		return fmt.Errorf("RESTART_BACKOFF_MS must not be negative, got %d", c.RestartBackoffMs)
	}
	if _, err := time.LoadLocation(c.TranscriptTimezone); err != nil {
		return fmt.Errorf("TRANSCRIPT_TIMEZONE is invalid: %w", err)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "LISTEN_ADDR", value: c.ListenAddr},
		{name: "DEFAULT_TRANSCRIBE_LANGUAGE", value: c.DefaultTranscribeLanguage},
		{name: "TRANSCRIPT_TIMEZONE", value: c.TranscriptTimezone},
	}
}

type positiveEnvField struct {
	name  string
	value int
}

func (c *Config) positiveFieldChecks() []positiveEnvField {
	return []positiveEnvField{
		{name: "SILENCE_TIMEOUT_SEC", value: c.SilenceTimeoutSec},
		{name: "STREAM_LIFETIME_SEC", value: c.StreamLifetimeSec},
		{name: "MAX_RESTART_ATTEMPTS", value: c.MaxRestartAttempts},
		{name: "TRANSLATION_CACHE_SIZE", value: c.TranslationCacheSize},
		{name: "TRANSLATION_TIMEOUT_SEC", value: c.TranslationTimeoutSec},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) SilenceTimeout() time.Duration {
	return time.Duration(c.SilenceTimeoutSec) * time.Second
}

func (c *Config) StreamLifetime() time.Duration {
	return time.Duration(c.StreamLifetimeSec) * time.Second
}

func (c *Config) RestartBackoff() time.Duration {
	return time.Duration(c.RestartBackoffMs) * time.Millisecond
}

func (c *Config) TranslationTimeout() time.Duration {
	return time.Duration(c.TranslationTimeoutSec) * time.Second
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TranscriptTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
