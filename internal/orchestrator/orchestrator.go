// Package orchestrator drives batch text-to-speech synthesis for a cue
// timeline: bounded concurrency per batch, retry with backoff, a
// circuit breaker around the provider, duplicate-text caching, and
// per-cue segment files that later runs can resume from.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/subdub/subdub/internal/audio"
	"github.com/subdub/subdub/internal/cache"
	"github.com/subdub/subdub/internal/observability"
	"github.com/subdub/subdub/internal/resilience"
	"github.com/subdub/subdub/internal/stats"
	"github.com/subdub/subdub/internal/synth"
	"github.com/subdub/subdub/internal/timeline"
)

// Config holds the orchestrator's tunables.
type Config struct {
	Voice             string
	BatchSize         int           // concurrent syntheses per batch
	Retries           int           // attempts beyond the first
	RetryBackoff      time.Duration // initial backoff between attempts
	PerAttemptTimeout time.Duration // deadline for a single attempt, 0 disables
	SampleRate        int
	WorkDir           string // segment files live here
	Resume            bool   // reuse segment files from a previous run
}

// Orchestrator synthesizes audio for every cue of a timeline.
type Orchestrator struct {
	synthesizer synth.Synthesizer
	cache       *cache.Cache
	breaker     *resilience.CircuitBreaker
	collector   *stats.Collector
	cfg         Config
	log         zerolog.Logger
}

// New creates an orchestrator. A nil breaker disables circuit breaking.
func New(s synth.Synthesizer, c *cache.Cache, breaker *resilience.CircuitBreaker, collector *stats.Collector, cfg Config, log zerolog.Logger) *Orchestrator {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	return &Orchestrator{
		synthesizer: s,
		cache:       c,
		breaker:     breaker,
		collector:   collector,
		cfg:         cfg,
		log:         log,
	}
}

// Run synthesizes all cues in batches of BatchSize and streams results
// in cue-index order. The error channel receives at most one fatal
// error (segment persistence or cancellation); on a fatal error the
// result channel closes early and remaining cues are not processed.
func (o *Orchestrator) Run(ctx context.Context, cues []timeline.Cue) (<-chan Result, <-chan error) {
	unordered := make(chan Result, o.cfg.BatchSize)
	errc := make(chan error, 1)

	go func() {
		defer close(errc)
		defer close(unordered)

		for start := 0; start < len(cues); start += o.cfg.BatchSize {
			end := start + o.cfg.BatchSize
			if end > len(cues) {
				end = len(cues)
			}

			g, gctx := errgroup.WithContext(ctx)
			for _, c := range cues[start:end] {
				c := c
				g.Go(func() error {
					res, err := o.processCue(gctx, c)
					if err != nil {
						return err
					}
					select {
					case unordered <- res:
						return nil
					case <-gctx.Done():
						return gctx.Err()
					}
				})
			}
			if err := g.Wait(); err != nil {
				errc <- err
				return
			}
		}
	}()

	return Reorder(unordered, o.cfg.BatchSize), errc
}

// processCue produces one cue's audio. The returned error is fatal and
// aborts the run; per-cue synthesis failures are absorbed into an
// OutcomeFailed result carrying slot-length silence.
func (o *Orchestrator) processCue(ctx context.Context, c timeline.Cue) (Result, error) {
	if c.IsEmpty() {
		o.collector.Empty()
		return Result{Cue: c, Audio: audio.New(nil, o.cfg.SampleRate), Outcome: OutcomeEmpty}, nil
	}

	text := c.NormalizedText()
	segPath := o.segmentPath(c.Index, text)

	if o.cfg.Resume {
		if buf, err := audio.ReadWAV(segPath); err == nil && !buf.Empty() {
			o.collector.Resumed()
			o.log.Debug().Int("cue", c.Index).Str("segment", segPath).Msg("resumed segment from disk")
			return Result{Cue: c, Audio: audio.Resample(buf, o.cfg.SampleRate), Outcome: OutcomeResumed}, nil
		}
	}

	buf, hit, err := o.cache.GetOrCreate(ctx, text, func(ctx context.Context) (*audio.Buffer, error) {
		return o.synthesize(ctx, c.Index, text)
	})
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		o.collector.Failed()
		o.log.Error().Err(err).Int("cue", c.Index).Msg("synthesis failed, substituting silence")
		return Result{
			Cue:     c,
			Audio:   audio.Silence(c.Duration(), o.cfg.SampleRate),
			Outcome: OutcomeFailed,
			Err:     err,
		}, nil
	}

	outcome := OutcomeGenerated
	if hit {
		outcome = OutcomeCached
		o.collector.Cached()
	} else {
		o.collector.Generated()
	}

	// Segment files are the resume checkpoint; losing one silently
	// would corrupt a later resumed run, so failing to write is fatal.
	if err := audio.WriteWAV(segPath, buf); err != nil {
		return Result{}, fmt.Errorf("write segment for cue %d: %w", c.Index, err)
	}

	// Hand downstream the same sample values a resumed run would read
	// back from the segment file, so both runs produce one output.
	return Result{Cue: c, Audio: audio.Quantized16(buf), Outcome: outcome}, nil
}

// synthesize runs one text through the provider with retries and the
// circuit breaker.
func (o *Orchestrator) synthesize(ctx context.Context, cueIndex int, text string) (*audio.Buffer, error) {
	retryCfg := &resilience.RetryConfig{
		MaxAttempts:       o.cfg.Retries + 1,
		InitialBackoff:    o.cfg.RetryBackoff,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}

	var out *audio.Buffer
	err := resilience.Retry(ctx, func(ctx context.Context) error {
		attemptCtx := ctx
		if o.cfg.PerAttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, o.cfg.PerAttemptTimeout)
			defer cancel()
		}

		start := time.Now()
		err := o.call(func() error {
			b, err := o.synthesizer.Synthesize(attemptCtx, text, o.cfg.Voice)
			if err != nil {
				return err
			}
			out = b
			return nil
		})
		observability.RecordSynthesis(err == nil, time.Since(start))

		switch {
		case err == nil:
			return nil
		case errors.Is(err, resilience.ErrCircuitOpen):
			// Burning the retry budget against an open breaker would
			// stall every remaining cue; fail this one to silence now
			// and let the breaker's half-open window probe recovery.
			return err
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			// Only this attempt timed out, not the whole run.
			return resilience.NewRetryableError(err)
		default:
			return err
		}
	}, retryCfg, resilience.IsRetryable, func(attempt int, wait time.Duration, err error) {
		observability.RecordRetry()
		o.log.Warn().
			Err(err).
			Int("cue", cueIndex).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Str("provider", o.synthesizer.Name()).
			Msg("retrying synthesis")
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (o *Orchestrator) call(fn func() error) error {
	if o.breaker == nil {
		return fn()
	}
	return o.breaker.Call(fn)
}

// segmentPath names a cue's checkpoint file by index and text hash, so
// a resumed run with edited subtitles re-synthesizes only changed cues.
func (o *Orchestrator) segmentPath(index int, text string) string {
	return filepath.Join(o.cfg.WorkDir, fmt.Sprintf("seg_%04d_%s.wav", index, cache.Key(text)[:16]))
}
