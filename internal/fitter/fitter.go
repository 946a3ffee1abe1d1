// Package fitter implements time-slot filling: each cue's synthesized
// speech is sped up or padded with silence so it occupies exactly its
// slot in the output timeline.
package fitter

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/subdub/subdub/internal/audio"
	"github.com/subdub/subdub/internal/stats"
	"github.com/subdub/subdub/internal/timeline"
)

// Stretcher is the pitch-preserving time-stretch primitive. Factors
// are always >= 1.0: the fitter only ever speeds speech up.
type Stretcher interface {
	Stretch(ctx context.Context, b *audio.Buffer, factor float64) (*audio.Buffer, error)
}

// SlotResult records how one cue was fitted. Produced once per cue and
// never mutated afterward.
type SlotResult struct {
	CueIndex        int
	RawDuration     time.Duration
	FittedDuration  time.Duration
	StretchFactor   float64
	SilencePadding  time.Duration
	OverlapDetected bool
	LateStart       bool
}

// Fitter is the single sequential consumer of synthesized audio. It
// tracks the cursor (end of audio placed so far) in exact samples and
// must see cues in strict index order.
type Fitter struct {
	stretcher  Stretcher
	maxSpeed   float64
	sampleRate int
	collector  *stats.Collector
	log        zerolog.Logger

	cursor int // samples placed so far
}

// New creates a fitter. maxSpeed must be >= 1.0.
func New(stretcher Stretcher, maxSpeed float64, sampleRate int, collector *stats.Collector, log zerolog.Logger) *Fitter {
	return &Fitter{
		stretcher:  stretcher,
		maxSpeed:   maxSpeed,
		sampleRate: sampleRate,
		collector:  collector,
		log:        log,
	}
}

// CursorSamples returns the number of samples placed so far.
func (f *Fitter) CursorSamples() int {
	return f.cursor
}

// Cursor returns the end of placed audio as a duration.
func (f *Fitter) Cursor() time.Duration {
	return audio.DurationOf(f.cursor, f.sampleRate)
}

// Fit places one cue's raw audio into its slot and returns the chunks
// to append to the output: an optional leading silence gap, the fitted
// speech, and any trailing slot padding. The error is reserved for
// context cancellation; stretch failures degrade to unstretched audio.
func (f *Fitter) Fit(ctx context.Context, cue timeline.Cue, raw *audio.Buffer) ([]*audio.Buffer, SlotResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, SlotResult{}, err
	}
	if raw != nil && raw.SampleRate != f.sampleRate {
		raw = audio.Resample(raw, f.sampleRate)
	}

	res := SlotResult{
		CueIndex:      cue.Index,
		RawDuration:   raw.Duration(),
		StretchFactor: 1.0,
	}
	var chunks []*audio.Buffer

	startS := audio.SamplesFor(cue.Start, f.sampleRate)
	endS := audio.SamplesFor(cue.End, f.sampleRate)

	// Leading gap: nothing is scheduled between the cursor and this
	// cue, fill it with silence. A cursor past the nominal start means
	// earlier audio overran into this cue's slot.
	if startS > f.cursor {
		chunks = append(chunks, audio.SilenceSamples(startS-f.cursor, f.sampleRate))
		f.cursor = startS
	} else if startS < f.cursor {
		res.OverlapDetected = true
		f.collector.Overlap()
		f.log.Warn().
			Int("cue", cue.Index).
			Dur("start", cue.Start).
			Dur("cursor", f.Cursor()).
			Msg("cue overlaps already-placed audio")
	}

	slotS := endS - f.cursor
	rawS := raw.NumSamples()

	// Nothing to speak: the slot becomes silence.
	if rawS == 0 {
		if slotS > 0 {
			chunks = append(chunks, audio.SilenceSamples(slotS, f.sampleRate))
			f.cursor += slotS
			res.SilencePadding = audio.DurationOf(slotS, f.sampleRate)
		}
		return chunks, res, nil
	}

	// Fully swallowed slot: place the audio at maximum compression and
	// let the overflow press on the next cue instead of dropping it.
	if slotS <= 0 {
		res.LateStart = true
		f.collector.LateStart()
		fitted := f.stretchTo(ctx, cue.Index, raw, f.maxSpeed, int(math.Round(float64(rawS)/f.maxSpeed)))
		res.StretchFactor = f.maxSpeed
		res.FittedDuration = fitted.Duration()
		chunks = append(chunks, fitted)
		f.cursor += fitted.NumSamples()
		return chunks, res, nil
	}

	factor := float64(rawS) / float64(slotS)
	switch {
	case factor <= 1.0:
		// Natural duration fits; pad the remainder of the slot.
		chunks = append(chunks, raw)
		if pad := slotS - rawS; pad > 0 {
			chunks = append(chunks, audio.SilenceSamples(pad, f.sampleRate))
			res.SilencePadding = audio.DurationOf(pad, f.sampleRate)
		}
		res.FittedDuration = raw.Duration()
		f.cursor += slotS

	case factor <= f.maxSpeed:
		fitted := f.stretchTo(ctx, cue.Index, raw, factor, slotS)
		res.StretchFactor = factor
		res.FittedDuration = fitted.Duration()
		chunks = append(chunks, fitted)
		f.cursor += maxInt(fitted.NumSamples(), slotS)

	default:
		// Even maximum speed cannot fit the slot: speed up as far as
		// allowed and overflow.
		res.LateStart = true
		f.collector.LateStart()
		f.log.Warn().
			Int("cue", cue.Index).
			Float64("needed_factor", factor).
			Float64("max_speed", f.maxSpeed).
			Msg("cue starts late, forcing max speed catch-up")
		fitted := f.stretchTo(ctx, cue.Index, raw, f.maxSpeed, int(math.Round(float64(rawS)/f.maxSpeed)))
		res.StretchFactor = f.maxSpeed
		res.FittedDuration = fitted.Duration()
		chunks = append(chunks, fitted)
		f.cursor += maxInt(fitted.NumSamples(), slotS)
	}

	return chunks, res, nil
}

// stretchTo runs the stretch primitive and normalizes the result to an
// exact sample count. On stretch failure the raw audio is used as-is;
// the slot contract is violated for this cue only.
func (f *Fitter) stretchTo(ctx context.Context, cueIndex int, raw *audio.Buffer, factor float64, targetSamples int) *audio.Buffer {
	stretched, err := f.stretcher.Stretch(ctx, raw, factor)
	if err != nil {
		f.log.Warn().
			Err(err).
			Int("cue", cueIndex).
			Float64("factor", factor).
			Msg("time-stretch failed, using unstretched audio")
		return raw
	}
	return exactLength(stretched, targetSamples, f.sampleRate)
}

// exactLength trims or zero-pads a buffer to exactly n samples,
// absorbing rounding drift from the stretch primitive.
func exactLength(b *audio.Buffer, n int, sampleRate int) *audio.Buffer {
	if n < 0 {
		n = 0
	}
	switch {
	case b.NumSamples() == n:
		return b
	case b.NumSamples() > n:
		return audio.New(b.Samples[:n], sampleRate)
	default:
		out := make([]float32, n)
		copy(out, b.Samples)
		return audio.New(out, sampleRate)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
