//go:build opus

package audio

import (
	"fmt"

	"github.com/foxseedlab/tsuyaku/internal/audio"
	"github.com/hraban/opus"
)

// maxFrameMs is the longest frame an opus packet can carry.
const maxFrameMs = 120

type OpusDecoder struct {
	dec        *opus.Decoder
	sampleRate int
	channels   int
	pcm        []int16
}

func NewOpusDecoder(sampleRate, channels int) (audio.Decoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder (%d Hz, %d ch): %w", sampleRate, channels, err)
	}
	return &OpusDecoder{
		dec:        dec,
		sampleRate: sampleRate,
		channels:   channels,
		pcm:        make([]int16, sampleRate*maxFrameMs/1000*channels),
	}, nil
}

func (d *OpusDecoder) Decode(packet []byte) ([]byte, error) {
	if len(packet) == 0 {
		return nil, nil
	}
	n, err := d.dec.Decode(packet, d.pcm)
	if err != nil {
		return nil, fmt.Errorf("decode opus packet: %w", err)
	}
	return audio.EncodePCM16LE(d.pcm[:n*d.channels]), nil
}

func (d *OpusDecoder) SampleRate() int { return d.sampleRate }

func (d *OpusDecoder) Channels() int { return d.channels }

func (d *OpusDecoder) Close() {}
