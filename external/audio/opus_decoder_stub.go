//go:build !opus

package audio

import "github.com/foxseedlab/tsuyaku/internal/audio"

func NewOpusDecoder(_, _ int) (audio.Decoder, error) {
	return nil, audio.ErrOpusUnsupported
}
