package session

import (
	"github.com/foxseedlab/tsuyaku/internal/config"
	"github.com/foxseedlab/tsuyaku/internal/transcriber"
	"github.com/foxseedlab/tsuyaku/internal/translator"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		cfg := do.MustInvoke[*config.Config](i)
		stt := do.MustInvoke[transcriber.Provider](i)
		coordinator := do.MustInvoke[*translator.Coordinator](i)
		return NewManager(stt, coordinator, OptionsFromConfig(cfg)), nil
	})
}

func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	opts.SilenceTimeout = cfg.SilenceTimeout()
	opts.StreamLifetime = cfg.StreamLifetime()
	opts.MaxRestartAttempts = cfg.MaxRestartAttempts
	opts.RestartBackoff = cfg.RestartBackoff()
	opts.DefaultLanguageCode = cfg.DefaultTranscribeLanguage
	opts.DefaultTargetLanguage = cfg.DefaultTargetLanguage
	return opts
}
