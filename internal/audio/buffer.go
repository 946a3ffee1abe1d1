package audio

import (
	"math"
	"time"
)

// DefaultSampleRate is the working sample rate of the whole pipeline.
// Speech services in this system emit 24 kHz mono PCM.
const DefaultSampleRate = 24000

// Buffer is an owned chunk of mono audio samples. All pipeline stages
// exchange this one concrete type; raw wire formats (PCM bytes, WAV
// files) are converted at the synthesis and disk boundaries only.
type Buffer struct {
	SampleRate int
	Channels   int
	Samples    []float32
}

// New wraps samples in a Buffer at the given sample rate.
func New(samples []float32, sampleRate int) *Buffer {
	return &Buffer{
		SampleRate: sampleRate,
		Channels:   1,
		Samples:    samples,
	}
}

// Silence returns a buffer of d worth of zero samples.
func Silence(d time.Duration, sampleRate int) *Buffer {
	n := SamplesFor(d, sampleRate)
	if n < 0 {
		n = 0
	}
	return SilenceSamples(n, sampleRate)
}

// SilenceSamples returns a buffer of exactly n zero samples.
func SilenceSamples(n int, sampleRate int) *Buffer {
	return New(make([]float32, n), sampleRate)
}

// Empty reports whether the buffer holds no samples.
func (b *Buffer) Empty() bool {
	return b == nil || len(b.Samples) == 0
}

// NumSamples returns the number of samples in the buffer.
func (b *Buffer) NumSamples() int {
	if b == nil {
		return 0
	}
	return len(b.Samples)
}

// Duration returns the playback duration of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return DurationOf(len(b.Samples), b.SampleRate)
}

// SamplesFor converts a duration to an exact sample count at the given
// rate, rounding to the nearest sample. Sample counts, not float
// seconds, are the unit every exactness guarantee is stated in.
func SamplesFor(d time.Duration, sampleRate int) int {
	return int(math.Round(d.Seconds() * float64(sampleRate)))
}

// DurationOf converts a sample count back to a duration.
func DurationOf(samples int, sampleRate int) time.Duration {
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}

// Concat joins buffers into a single new buffer in one pass.
// Nil and empty buffers are skipped.
func Concat(sampleRate int, bufs ...*Buffer) *Buffer {
	total := 0
	for _, b := range bufs {
		total += b.NumSamples()
	}
	out := make([]float32, 0, total)
	for _, b := range bufs {
		if b.Empty() {
			continue
		}
		out = append(out, b.Samples...)
	}
	return New(out, sampleRate)
}
