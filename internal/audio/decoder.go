package audio

import (
	"encoding/binary"
	"errors"
)

var ErrOpusUnsupported = errors.New("opus decoding is not available in this build")

// Decoder turns one encoded packet into LINEAR16 little-endian PCM.
type Decoder interface {
	Decode(packet []byte) ([]byte, error)
	SampleRate() int
	Channels() int
	Close()
}

type DecoderFactory func(sampleRate, channels int) (Decoder, error)

// EncodePCM16LE packs interleaved samples as little-endian 16-bit PCM.
func EncodePCM16LE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// DownmixToMono averages interleaved channels into one, clamping to int16.
func DownmixToMono(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	mono := make([]int16, frames)
	for i := range frames {
		var sum int32
		for c := range channels {
			sum += int32(samples[i*channels+c])
		}
		mono[i] = clampPCM(sum / int32(channels))
	}
	return mono
}

func clampPCM(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
