package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/tsuyaku/internal/config"
	"github.com/joho/godotenv"
)

type envConfig struct {
	Env                        string `env:"ENV" envDefault:"production"`
	ListenAddr                 string `env:"LISTEN_ADDR" envDefault:":8080"`
	DefaultTranscribeLanguage  string `env:"DEFAULT_TRANSCRIBE_LANGUAGE" envDefault:"en-US"`
	DefaultTargetLanguage      string `env:"DEFAULT_TARGET_LANGUAGE"`
	SpeechProvider             string `env:"SPEECH_PROVIDER" envDefault:"google"`
	TranslationProvider        string `env:"TRANSLATION_PROVIDER" envDefault:"google"`
	GoogleCloudProjectID       string `env:"GOOGLE_CLOUD_PROJECT_ID"`
	GoogleCloudCredentialsJSON string `env:"GOOGLE_CLOUD_CREDENTIALS_JSON"`
	GoogleCloudSpeechLocation  string `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"global"`
	GoogleCloudSpeechModel     string `env:"GOOGLE_CLOUD_SPEECH_MODEL" envDefault:"long"`
	DeepgramAPIKey             string `env:"DEEPGRAM_API_KEY"`
	DeepgramAPIBaseURL         string `env:"DEEPGRAM_API_BASE_URL" envDefault:"https://api.deepgram.com/v1"`
	DeepgramModel              string `env:"DEEPGRAM_MODEL" envDefault:"nova-2"`
	SilenceTimeoutSec          int    `env:"SILENCE_TIMEOUT_SEC" envDefault:"30"`
	StreamLifetimeSec          int    `env:"STREAM_LIFETIME_SEC" envDefault:"290"`
	MaxRestartAttempts         int    `env:"MAX_RESTART_ATTEMPTS" envDefault:"5"`
	RestartBackoffMs           int    `env:"RESTART_BACKOFF_MS" envDefault:"250"`
	TranslationCacheSize       int    `env:"TRANSLATION_CACHE_SIZE" envDefault:"1000"`
	TranslationTimeoutSec      int    `env:"TRANSLATION_TIMEOUT_SEC" envDefault:"10"`
	DatabaseURL                string `env:"DATABASE_URL"`
	TranscriptWebhookURL       string `env:"TRANSCRIPT_WEBHOOK_URL"`
	TranscriptTimezone         string `env:"TRANSCRIPT_TIMEZONE" envDefault:"UTC"`
}

// Load reads the process environment, after merging variables from an
// optional .env file. Variables already set in the environment win.
func Load(dotenvPaths ...string) (*internalconfig.Config, error) {
	if len(dotenvPaths) == 0 {
		dotenvPaths = []string{".env"}
	}
	for _, path := range dotenvPaths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		slog.Debug("loaded dotenv file", "path", path)
	}

	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                        raw.Env,
		ListenAddr:                 raw.ListenAddr,
		DefaultTranscribeLanguage:  raw.DefaultTranscribeLanguage,
		DefaultTargetLanguage:      raw.DefaultTargetLanguage,
		SpeechProvider:             raw.SpeechProvider,
		TranslationProvider:        raw.TranslationProvider,
		GoogleCloudProjectID:       raw.GoogleCloudProjectID,
		GoogleCloudCredentialsJSON: raw.GoogleCloudCredentialsJSON,
		GoogleCloudSpeechLocation:  raw.GoogleCloudSpeechLocation,
		GoogleCloudSpeechModel:     raw.GoogleCloudSpeechModel,
		DeepgramAPIKey:             raw.DeepgramAPIKey,
		DeepgramAPIBaseURL:         raw.DeepgramAPIBaseURL,
		DeepgramModel:              raw.DeepgramModel,
		SilenceTimeoutSec:          raw.SilenceTimeoutSec,
		StreamLifetimeSec:          raw.StreamLifetimeSec,
		MaxRestartAttempts:         raw.MaxRestartAttempts,
		RestartBackoffMs:           raw.RestartBackoffMs,
		TranslationCacheSize:       raw.TranslationCacheSize,
		TranslationTimeoutSec:      raw.TranslationTimeoutSec,
		DatabaseURL:                raw.DatabaseURL,
		TranscriptWebhookURL:       raw.TranscriptWebhookURL,
		TranscriptTimezone:         raw.TranscriptTimezone,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
