// Package dub wires the full dubbing pipeline: subtitle parsing,
// batched synthesis, slot fitting, assembly, and output encoding.
package dub

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/subdub/subdub/internal/assembly"
	"github.com/subdub/subdub/internal/audio"
	"github.com/subdub/subdub/internal/cache"
	"github.com/subdub/subdub/internal/config"
	"github.com/subdub/subdub/internal/fitter"
	"github.com/subdub/subdub/internal/orchestrator"
	"github.com/subdub/subdub/internal/resilience"
	"github.com/subdub/subdub/internal/srt"
	"github.com/subdub/subdub/internal/stats"
	"github.com/subdub/subdub/internal/synth"
	"github.com/subdub/subdub/internal/timeline"
)

// Prober reads the duration of a reference media file.
type Prober interface {
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
}

// Encoder converts the final WAV into a delivery container.
type Encoder interface {
	Encode(ctx context.Context, inputWAV, outputPath, format string) error
}

// Pipeline runs one subtitle file end to end.
type Pipeline struct {
	cfg         *config.Config
	synthesizer synth.Synthesizer
	stretcher   fitter.Stretcher
	prober      Prober
	encoder     Encoder
	log         zerolog.Logger
}

// New assembles a pipeline from its collaborators.
func New(cfg *config.Config, synthesizer synth.Synthesizer, stretcher fitter.Stretcher, prober Prober, encoder Encoder, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		cfg:         cfg,
		synthesizer: synthesizer,
		stretcher:   stretcher,
		prober:      prober,
		encoder:     encoder,
		log:         log,
	}
}

// RunSummary reports what a completed run produced.
type RunSummary struct {
	Stats      stats.Snapshot
	OutputPath string
	WorkDir    string
	Elapsed    time.Duration
}

// Run dubs srtPath into outputPath. With NoConcat set, only the
// per-cue segment files are produced and outputPath is ignored.
func (p *Pipeline) Run(ctx context.Context, srtPath, outputPath string) (*RunSummary, error) {
	started := time.Now()

	data, err := os.ReadFile(srtPath)
	if err != nil {
		return nil, fmt.Errorf("read subtitles: %w", err)
	}
	cues, err := srt.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse subtitles: %w", err)
	}
	tl, err := timeline.New(cues)
	if err != nil {
		return nil, fmt.Errorf("build timeline: %w", err)
	}

	target, err := p.resolveTarget(ctx)
	if err != nil {
		return nil, err
	}

	workDir, err := p.workDir(data)
	if err != nil {
		return nil, err
	}

	p.log.Info().
		Int("cues", tl.Len()).
		Dur("target", target).
		Str("voice", p.cfg.Voice).
		Str("provider", p.synthesizer.Name()).
		Str("work_dir", workDir).
		Msg("starting dubbing run")

	collector := stats.NewCollector(tl.Len(), target)
	segments := cache.New(workDir, p.cfg.SampleRate)
	breaker := resilience.NewCircuitBreaker(
		"synthesis",
		p.cfg.BreakerMaxFailures,
		time.Duration(p.cfg.BreakerResetTimeout)*time.Second,
	)
	orch := orchestrator.New(p.synthesizer, segments, breaker, collector, orchestrator.Config{
		Voice:             p.cfg.Voice,
		BatchSize:         p.cfg.BatchSize,
		Retries:           p.cfg.Retries,
		RetryBackoff:      time.Duration(p.cfg.RetryBackoff) * time.Millisecond,
		PerAttemptTimeout: time.Duration(p.cfg.SynthTimeout) * time.Second,
		SampleRate:        p.cfg.SampleRate,
		WorkDir:           workDir,
		Resume:            p.cfg.Resume,
	}, p.log)

	results, errc := orch.Run(ctx, tl.Cues())

	if p.cfg.NoConcat {
		for range results {
		}
		if err := <-errc; err != nil {
			return nil, err
		}
		return p.finish(collector, "", workDir, started), nil
	}

	fit := fitter.New(p.stretcher, p.cfg.MaxSpeed, p.cfg.SampleRate, collector, p.log)
	asm := assembly.New(p.cfg.SampleRate)

	var fitErr error
	for r := range results {
		chunks, slot, err := fit.Fit(ctx, r.Cue, r.Audio)
		if err != nil {
			fitErr = err
			break
		}
		p.log.Debug().
			Int("cue", r.Cue.Index).
			Str("outcome", string(r.Outcome)).
			Float64("stretch", slot.StretchFactor).
			Dur("fitted", slot.FittedDuration).
			Msg("cue fitted")
		if err := asm.Append(chunks...); err != nil {
			fitErr = err
			break
		}
	}
	if fitErr != nil {
		for range results {
		}
		<-errc
		return nil, fitErr
	}
	if err := <-errc; err != nil {
		return nil, err
	}

	collector.SetAchieved(asm.Duration())
	final, err := asm.Finalize(target)
	if err != nil {
		return nil, err
	}

	if err := p.writeOutput(ctx, final, workDir, outputPath); err != nil {
		return nil, err
	}

	if !p.cfg.KeepWork && !p.cfg.Resume {
		if err := os.RemoveAll(workDir); err != nil {
			p.log.Warn().Err(err).Str("work_dir", workDir).Msg("failed to remove work directory")
		}
	}

	return p.finish(collector, outputPath, workDir, started), nil
}

// resolveTarget returns the target duration from exactly one of the
// two configured sources.
func (p *Pipeline) resolveTarget(ctx context.Context) (time.Duration, error) {
	explicit := strings.TrimSpace(p.cfg.TargetDuration)
	switch {
	case explicit != "" && p.cfg.RefMedia != "":
		return 0, fmt.Errorf("target duration and reference media are mutually exclusive")
	case explicit != "":
		return config.ParseTargetDuration(explicit)
	case p.cfg.RefMedia != "":
		d, err := p.prober.ProbeDuration(ctx, p.cfg.RefMedia)
		if err != nil {
			return 0, fmt.Errorf("probe reference media: %w", err)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("no target duration: set a duration or a reference media file")
	}
}

// workDir returns the run's working directory, derived from the
// subtitle content when not configured so a resumed run with the same
// input lands in the same place.
func (p *Pipeline) workDir(srtData []byte) (string, error) {
	dir := p.cfg.WorkDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), fmt.Sprintf("subdub_%x", md5.Sum(srtData)))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create work directory: %w", err)
	}
	return dir, nil
}

// writeOutput stores the final buffer as WAV, re-encoding through
// ffmpeg for compressed formats.
func (p *Pipeline) writeOutput(ctx context.Context, final *audio.Buffer, workDir, outputPath string) error {
	format := p.cfg.OutputFormat
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(outputPath)), ".")
		if format == "" {
			format = "wav"
		}
	}

	switch format {
	case "wav":
		return audio.WriteWAV(outputPath, final)
	case "m4a", "opus":
		tmp := filepath.Join(workDir, "final.wav")
		if err := audio.WriteWAV(tmp, final); err != nil {
			return err
		}
		if err := p.encoder.Encode(ctx, tmp, outputPath, format); err != nil {
			return fmt.Errorf("encode %s: %w", format, err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func (p *Pipeline) finish(collector *stats.Collector, outputPath, workDir string, started time.Time) *RunSummary {
	snapshot := collector.Snapshot()
	p.log.Info().
		Int("generated", snapshot.Generated).
		Int("cached", snapshot.Cached).
		Int("resumed", snapshot.Resumed).
		Int("empty", snapshot.Empty).
		Int("failed", snapshot.Failed).
		Int("overlaps", snapshot.Overlaps).
		Int("late_starts", snapshot.LateStarts).
		Float64("match_accuracy", snapshot.MatchAccuracy()).
		Dur("elapsed", time.Since(started)).
		Msg("dubbing run complete")

	return &RunSummary{
		Stats:      snapshot,
		OutputPath: outputPath,
		WorkDir:    workDir,
		Elapsed:    time.Since(started),
	}
}
