package translator

import (
	"fmt"

	"github.com/foxseedlab/tsuyaku/internal/config"
	"github.com/foxseedlab/tsuyaku/internal/translator"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (translator.Provider, error) {
		c := do.MustInvoke[*config.Config](i)
		switch c.TranslationProvider {
		case config.TranslationProviderGoogle:
			return NewGoogleTranslateProvider(GoogleTranslateConfig{CredentialsJSON: c.GoogleCloudCredentialsJSON}), nil
		case config.TranslationProviderNoop:
			return translator.NewNoopProvider(), nil
		default:
			return nil, fmt.Errorf("unknown translation provider %q", c.TranslationProvider)
		}
	})
	do.Provide(injector, func(i do.Injector) (*translator.Cache, error) {
		c := do.MustInvoke[*config.Config](i)
		return translator.NewCache(c.TranslationCacheSize), nil
	})
	do.Provide(injector, func(i do.Injector) (*translator.Coordinator, error) {
		c := do.MustInvoke[*config.Config](i)
		provider := do.MustInvoke[translator.Provider](i)
		cache := do.MustInvoke[*translator.Cache](i)
		return translator.NewCoordinator(provider, cache, c.TranslationTimeout()), nil
	})
}
