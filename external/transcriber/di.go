package transcriber

import (
	"fmt"

	"github.com/foxseedlab/tsuyaku/internal/config"
	"github.com/foxseedlab/tsuyaku/internal/transcriber"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (transcriber.Provider, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewProvider(c)
	})
}

func NewProvider(c *config.Config) (transcriber.Provider, error) {
	switch c.SpeechProvider {
	case config.SpeechProviderGoogle:
		return NewCloudSpeechProvider(CloudSpeechConfig{
			ProjectID:       c.GoogleCloudProjectID,
			CredentialsJSON: c.GoogleCloudCredentialsJSON,
			Location:        c.GoogleCloudSpeechLocation,
			Model:           c.GoogleCloudSpeechModel,
		}), nil
	case config.SpeechProviderDeepgram:
		return NewDeepgramProvider(DeepgramConfig{
			APIKey:     c.DeepgramAPIKey,
			APIBaseURL: c.DeepgramAPIBaseURL,
			Model:      c.DeepgramModel,
		}), nil
	case config.SpeechProviderNoop:
		return transcriber.NewNoopProvider(), nil
	default:
		return nil, fmt.Errorf("unknown speech provider %q", c.SpeechProvider)
	}
}
