//go:build opus

package audio

import (
	"testing"

	"github.com/hraban/opus"
)

func TestOpusDecoder_RoundTrip(t *testing.T) {
	const sampleRate, channels = 48000, 1
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		t.Fatalf("failed to create encoder: %v", err)
	}
	frame := make([]int16, sampleRate/50)
	for i := range frame {
		frame[i] = int16((i % 100) * 100)
	}
	packet := make([]byte, 4000)
	n, err := enc.Encode(frame, packet)
	if err != nil {
		t.Fatalf("failed to encode: %v", err)
	}

	dec, err := NewOpusDecoder(sampleRate, channels)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}
	defer dec.Close()
	pcm, err := dec.Decode(packet[:n])
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if len(pcm) != len(frame)*2 {
		t.Fatalf("expected %d bytes of pcm, got %d", len(frame)*2, len(pcm))
	}
}

func TestOpusDecoder_RejectsUnsupportedRate(t *testing.T) {
	if _, err := NewOpusDecoder(44100, 1); err == nil {
		t.Fatal("expected unsupported sample rate error")
	}
}
