//go:build !opus

package audio

import (
	"errors"
	"testing"

	"github.com/foxseedlab/tsuyaku/internal/audio"
)

func TestNewOpusDecoder_UnsupportedWithoutTag(t *testing.T) {
	if _, err := NewOpusDecoder(48000, 1); !errors.Is(err, audio.ErrOpusUnsupported) {
		t.Fatalf("expected ErrOpusUnsupported, got %v", err)
	}
}
