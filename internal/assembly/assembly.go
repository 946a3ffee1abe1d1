// Package assembly accumulates fitted audio chunks and finalizes them
// into one output buffer of an exact target length.
package assembly

import (
	"errors"
	"fmt"
	"time"

	"github.com/subdub/subdub/internal/audio"
)

// ErrFinalized is returned when appending to an already-finalized
// assembly.
var ErrFinalized = errors.New("assembly already finalized")

// Assembly collects chunks by reference; samples are copied exactly
// once, during Finalize. Not safe for concurrent use: the fitter is
// its only writer.
type Assembly struct {
	sampleRate int
	chunks     []*audio.Buffer
	samples    int
	finalized  bool
}

// New creates an empty assembly at the given sample rate.
func New(sampleRate int) *Assembly {
	return &Assembly{sampleRate: sampleRate}
}

// Append adds chunks to the end of the assembly. Chunks at a foreign
// sample rate are resampled; nil and empty chunks are skipped.
func (a *Assembly) Append(chunks ...*audio.Buffer) error {
	if a.finalized {
		return ErrFinalized
	}
	for _, c := range chunks {
		if c.Empty() {
			continue
		}
		if c.SampleRate != a.sampleRate {
			c = audio.Resample(c, a.sampleRate)
		}
		a.chunks = append(a.chunks, c)
		a.samples += c.NumSamples()
	}
	return nil
}

// NumSamples returns the samples accumulated so far.
func (a *Assembly) NumSamples() int {
	return a.samples
}

// Duration returns the accumulated length as a duration.
func (a *Assembly) Duration() time.Duration {
	return audio.DurationOf(a.samples, a.sampleRate)
}

// Finalize concatenates all chunks and trims or silence-pads the
// result to exactly round(target seconds x rate) samples, so a zero
// target yields an empty buffer. A negative target is an error.
// Finalize seals the assembly and can only run once.
func (a *Assembly) Finalize(target time.Duration) (*audio.Buffer, error) {
	if a.finalized {
		return nil, ErrFinalized
	}
	if target < 0 {
		return nil, fmt.Errorf("negative target duration %v", target)
	}
	a.finalized = true

	out := audio.Concat(a.sampleRate, a.chunks...)
	a.chunks = nil

	want := audio.SamplesFor(target, a.sampleRate)
	switch {
	case out.NumSamples() > want:
		out = audio.New(out.Samples[:want], a.sampleRate)
	case out.NumSamples() < want:
		padded := make([]float32, want)
		copy(padded, out.Samples)
		out = audio.New(padded, a.sampleRate)
	}
	return out, nil
}
