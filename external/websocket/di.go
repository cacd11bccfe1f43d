package websocket

import (
	"github.com/foxseedlab/tsuyaku/internal/audio"
	"github.com/foxseedlab/tsuyaku/internal/history"
	"github.com/foxseedlab/tsuyaku/internal/session"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Server, error) {
		manager := do.MustInvoke[*session.Manager](i)
		recorder := do.MustInvoke[*history.Recorder](i)
		newDecoder := do.MustInvoke[audio.DecoderFactory](i)
		return NewServer(manager, recorder, newDecoder), nil
	})
}
