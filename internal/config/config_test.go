package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Env:                        "development",
		ListenAddr:                 ":8080",
		DefaultTranscribeLanguage:  "en-US",
		SpeechProvider:             SpeechProviderGoogle,
		TranslationProvider:        TranslationProviderGoogle,
		GoogleCloudProjectID:       "project-id",
		GoogleCloudCredentialsJSON: `{"type":"service_account"}`,
		SilenceTimeoutSec:          30,
		StreamLifetimeSec:          290,
		MaxRestartAttempts:         5,
		RestartBackoffMs:           250,
		TranslationCacheSize:       1000,
		TranslationTimeoutSec:      10,
		TranscriptTimezone:         "UTC",
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_NoopProvidersNeedNoCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.SpeechProvider = SpeechProviderNoop
	cfg.TranslationProvider = TranslationProviderNoop
	cfg.GoogleCloudProjectID = ""
	cfg.GoogleCloudCredentialsJSON = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_Invalid(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing language", mutate: func(c *Config) { c.DefaultTranscribeLanguage = "" }},
		{name: "unknown speech provider", mutate: func(c *Config) { c.SpeechProvider = "whisper" }},
		{name: "unknown translation provider", mutate: func(c *Config) { c.TranslationProvider = "deepl" }},
		{name: "google without credentials", mutate: func(c *Config) { c.GoogleCloudCredentialsJSON = "" }},
		{name: "deepgram without key", mutate: func(c *Config) { c.SpeechProvider = SpeechProviderDeepgram }},
		{name: "zero silence timeout", mutate: func(c *Config) { c.SilenceTimeoutSec = 0 }},
		{name: "zero restart ceiling", mutate: func(c *Config) { c.MaxRestartAttempts = 0 }},
		{name: "negative backoff", mutate: func(c *Config) { c.RestartBackoffMs = -1 }},
		{name: "bad timezone", mutate: func(c *Config) { c.TranscriptTimezone = "Mars/Olympus" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidate_ZeroBackoffAllowed(t *testing.T) {
	cfg := validConfig()
	cfg.RestartBackoffMs = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected zero backoff to be valid, got %v", err)
	}
}

func TestDurations(t *testing.T) {
	cfg := validConfig()
	if cfg.SilenceTimeout() != 30*time.Second || cfg.StreamLifetime() != 290*time.Second {
		t.Fatalf("unexpected durations: %v %v", cfg.SilenceTimeout(), cfg.StreamLifetime())
	}
	if cfg.RestartBackoff() != 250*time.Millisecond || cfg.TranslationTimeout() != 10*time.Second {
		t.Fatalf("unexpected durations: %v %v", cfg.RestartBackoff(), cfg.TranslationTimeout())
	}
	if cfg.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", cfg.Location())
	}
}

func TestIsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	if !cfg.IsDevelopment() {
		t.Fatal("expected development mode")
	}
	cfg.Env = "production"
	if cfg.IsDevelopment() {
		t.Fatal("expected non-development mode")
	}
}
