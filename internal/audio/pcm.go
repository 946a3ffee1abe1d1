package audio

import (
	"fmt"
	"math"
)

// DecodePCM16 converts raw 16-bit signed little-endian PCM bytes, as
// returned by the speech services, into a sample buffer.
func DecodePCM16(data []byte, sampleRate int) (*Buffer, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("pcm data length must be even (16-bit samples), got %d bytes", len(data))
	}

	samples := make([]float32, len(data)/2)
	for i := range samples {
		s := int16(data[i*2]) | int16(data[i*2+1])<<8
		samples[i] = float32(s) / 32768.0
	}
	return New(samples, sampleRate), nil
}

// EncodePCM16 converts a sample buffer to 16-bit signed little-endian
// PCM bytes, clipping samples outside [-1, 1].
func EncodePCM16(b *Buffer) []byte {
	data := make([]byte, b.NumSamples()*2)
	for i, s := range b.Samples {
		v := quantize16(s)
		data[i*2] = byte(v)
		data[i*2+1] = byte(v >> 8)
	}
	return data
}

// quantize16 maps a sample to its 16-bit code using the exact inverse
// of the decode scale. Samples that already sit on the quantization
// grid map back to the same code, so re-encoding decoded audio is
// lossless. Decoding and encoding must stay a matched pair: segment
// files reloaded on resume go through one extra round trip, and the
// final track has to come out bit-identical either way.
func quantize16(s float32) int16 {
	v := math.Round(float64(s) * 32768.0)
	if v > 32767 {
		v = 32767
	}
	if v < -32768 {
		v = -32768
	}
	return int16(v)
}

// Quantized16 snaps every sample to the 16-bit grid the WAV and PCM
// codecs use. Audio that has been through a segment file and audio
// fresh from synthesis then carry identical sample values, which keeps
// resumed runs bit-identical to uninterrupted ones. Returns a copy;
// the input is not modified.
func Quantized16(b *Buffer) *Buffer {
	if b.Empty() {
		return b
	}
	out := make([]float32, len(b.Samples))
	for i, s := range b.Samples {
		out[i] = float32(quantize16(s)) / 32768.0
	}
	return New(out, b.SampleRate)
}

// Resample converts a buffer to the target sample rate using linear
// interpolation. Speech services occasionally hand back a rate other
// than the pipeline's working rate; everything downstream assumes one
// fixed rate, so the conversion happens here at the boundary.
func Resample(b *Buffer, targetRate int) *Buffer {
	if b.Empty() || b.SampleRate == targetRate {
		return b
	}

	ratio := float64(targetRate) / float64(b.SampleRate)
	outLen := int(float64(len(b.Samples)) * ratio)
	out := make([]float32, outLen)

	for i := 0; i < outLen; i++ {
		srcPos := float64(i) / ratio
		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(b.Samples) {
			idx1 = len(b.Samples) - 1
		}
		frac := float32(srcPos - float64(idx0))
		out[i] = b.Samples[idx0]*(1.0-frac) + b.Samples[idx1]*frac
	}

	return New(out, targetRate)
}
