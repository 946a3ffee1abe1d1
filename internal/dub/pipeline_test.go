package dub

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/subdub/subdub/internal/audio"
	"github.com/subdub/subdub/internal/config"
)

const testRate = 24000

const testSRT = `1
00:00:00,000 --> 00:00:02,000
Hello there.

2
00:00:03,000 --> 00:00:04,500
General Kenobi.
`

type fakeSynth struct {
	calls int32
	value float32
}

func (s *fakeSynth) Synthesize(_ context.Context, text, _ string) (*audio.Buffer, error) {
	atomic.AddInt32(&s.calls, 1)
	v := s.value
	if v == 0 {
		v = 0.25
	}
	samples := make([]float32, testRate/2)
	for i := range samples {
		samples[i] = v
	}
	return audio.New(samples, testRate), nil
}

func (s *fakeSynth) Name() string { return "fake" }

type fakeStretcher struct{}

func (fakeStretcher) Stretch(_ context.Context, b *audio.Buffer, factor float64) (*audio.Buffer, error) {
	n := int(math.Round(float64(b.NumSamples()) / factor))
	return audio.SilenceSamples(n, b.SampleRate), nil
}

type fakeProber struct {
	duration time.Duration
	path     string
}

func (p *fakeProber) ProbeDuration(_ context.Context, path string) (time.Duration, error) {
	p.path = path
	return p.duration, nil
}

type fakeEncoder struct{ outputs []string }

func (e *fakeEncoder) Encode(_ context.Context, _, outputPath, _ string) error {
	e.outputs = append(e.outputs, outputPath)
	return os.WriteFile(outputPath, []byte("encoded"), 0o644)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Voice:               "test-voice",
		Provider:            "edge",
		Retries:             0,
		BatchSize:           2,
		RetryBackoff:        1,
		MaxSpeed:            1.5,
		SampleRate:          testRate,
		WorkDir:             t.TempDir(),
		KeepWork:            true,
		BreakerMaxFailures:  5,
		BreakerResetTimeout: 1,
	}
}

func writeSRT(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.srt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestPipeline(cfg *config.Config, s *fakeSynth) (*Pipeline, *fakeProber, *fakeEncoder) {
	prober := &fakeProber{duration: 5 * time.Second}
	encoder := &fakeEncoder{}
	return New(cfg, s, fakeStretcher{}, prober, encoder, zerolog.Nop()), prober, encoder
}

func TestRun_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	cfg.TargetDuration = "5"
	s := &fakeSynth{}
	p, _, _ := newTestPipeline(cfg, s)

	outPath := filepath.Join(t.TempDir(), "out.wav")
	summary, err := p.Run(context.Background(), writeSRT(t, testSRT), outPath)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	out, err := audio.ReadWAV(outPath)
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}
	if got, want := out.NumSamples(), 5*testRate; got != want {
		t.Errorf("Expected exactly %d output samples, got %d", want, got)
	}
	if summary.Stats.Generated != 2 {
		t.Errorf("Expected 2 generated cues, got %d", summary.Stats.Generated)
	}
	if summary.Stats.Failed != 0 {
		t.Errorf("Expected no failures, got %d", summary.Stats.Failed)
	}
	if n := atomic.LoadInt32(&s.calls); n != 2 {
		t.Errorf("Expected 2 synthesis calls, got %d", n)
	}
}

func TestRun_TargetFromReferenceMedia(t *testing.T) {
	cfg := testConfig(t)
	cfg.RefMedia = "/media/movie.mp4"
	s := &fakeSynth{}
	p, prober, _ := newTestPipeline(cfg, s)
	prober.duration = 6 * time.Second

	outPath := filepath.Join(t.TempDir(), "out.wav")
	if _, err := p.Run(context.Background(), writeSRT(t, testSRT), outPath); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if prober.path != "/media/movie.mp4" {
		t.Errorf("Expected probe of reference media, got %q", prober.path)
	}
	out, err := audio.ReadWAV(outPath)
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}
	if got, want := out.NumSamples(), 6*testRate; got != want {
		t.Errorf("Expected %d samples from probed target, got %d", want, got)
	}
}

func TestRun_TargetSourceConflicts(t *testing.T) {
	cfg := testConfig(t)
	cfg.TargetDuration = "5"
	cfg.RefMedia = "/media/movie.mp4"
	p, _, _ := newTestPipeline(cfg, &fakeSynth{})

	_, err := p.Run(context.Background(), writeSRT(t, testSRT), "out.wav")
	if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Errorf("Expected mutual-exclusion error, got %v", err)
	}
}

func TestRun_NoTargetSource(t *testing.T) {
	cfg := testConfig(t)
	p, _, _ := newTestPipeline(cfg, &fakeSynth{})

	if _, err := p.Run(context.Background(), writeSRT(t, testSRT), "out.wav"); err == nil {
		t.Error("Expected error when no target duration resolves")
	}
}

func TestRun_NoConcatProducesSegmentsOnly(t *testing.T) {
	cfg := testConfig(t)
	cfg.TargetDuration = "5"
	cfg.NoConcat = true
	p, _, _ := newTestPipeline(cfg, &fakeSynth{})

	outPath := filepath.Join(t.TempDir(), "out.wav")
	summary, err := p.Run(context.Background(), writeSRT(t, testSRT), outPath)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, err := os.Stat(outPath); !os.IsNotExist(err) {
		t.Error("Expected no final output file")
	}
	segs, err := filepath.Glob(filepath.Join(cfg.WorkDir, "seg_*.wav"))
	if err != nil {
		t.Fatal(err)
	}
	if len(segs) != 2 {
		t.Errorf("Expected 2 segment files, got %d", len(segs))
	}
	if summary.OutputPath != "" {
		t.Errorf("Expected empty output path, got %q", summary.OutputPath)
	}
}

func TestRun_EncodedOutput(t *testing.T) {
	cfg := testConfig(t)
	cfg.TargetDuration = "5"
	cfg.OutputFormat = "m4a"
	p, _, encoder := newTestPipeline(cfg, &fakeSynth{})

	outPath := filepath.Join(t.TempDir(), "out.m4a")
	if _, err := p.Run(context.Background(), writeSRT(t, testSRT), outPath); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(encoder.outputs) != 1 || encoder.outputs[0] != outPath {
		t.Errorf("Expected one encode to %q, got %v", outPath, encoder.outputs)
	}
}

func TestRun_ResumeIsByteIdentical(t *testing.T) {
	workDir := t.TempDir()
	outDir := t.TempDir()
	srtPath := writeSRT(t, testSRT)

	cfg1 := testConfig(t)
	cfg1.TargetDuration = "10"
	cfg1.WorkDir = workDir
	// 0.1 does not sit on the 16-bit quantization grid, so any
	// asymmetry between what this run hears and what a resumed run
	// reloads from the segment files would show up in the output.
	p1, _, _ := newTestPipeline(cfg1, &fakeSynth{value: 0.1})
	out1 := filepath.Join(outDir, "fresh.wav")
	if _, err := p1.Run(context.Background(), srtPath, out1); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	cfg2 := testConfig(t)
	cfg2.TargetDuration = "10"
	cfg2.WorkDir = workDir
	cfg2.Resume = true
	s2 := &fakeSynth{value: 0.1}
	p2, _, _ := newTestPipeline(cfg2, s2)
	out2 := filepath.Join(outDir, "resumed.wav")
	summary, err := p2.Run(context.Background(), srtPath, out2)
	if err != nil {
		t.Fatalf("Resumed run failed: %v", err)
	}

	if summary.Stats.Resumed != 2 {
		t.Errorf("Expected 2 resumed cues, got %d", summary.Stats.Resumed)
	}
	if n := atomic.LoadInt32(&s2.calls); n != 0 {
		t.Errorf("Expected no synthesis calls on resume, got %d", n)
	}

	a, err := os.ReadFile(out1)
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(out2)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		i := 0
		for i < len(a) && i < len(b) && a[i] == b[i] {
			i++
		}
		t.Errorf("Expected byte-identical output on resume, first difference at byte %d", i)
	}
}

func TestRun_RemovesWorkDirByDefault(t *testing.T) {
	cfg := testConfig(t)
	cfg.TargetDuration = "5"
	cfg.KeepWork = false
	p, _, _ := newTestPipeline(cfg, &fakeSynth{})

	outPath := filepath.Join(t.TempDir(), "out.wav")
	if _, err := p.Run(context.Background(), writeSRT(t, testSRT), outPath); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, err := os.Stat(cfg.WorkDir); !os.IsNotExist(err) {
		t.Error("Expected work directory removed after the run")
	}
}

func TestRun_MalformedSubtitles(t *testing.T) {
	cfg := testConfig(t)
	cfg.TargetDuration = "5"
	p, _, _ := newTestPipeline(cfg, &fakeSynth{})

	if _, err := p.Run(context.Background(), writeSRT(t, "not a subtitle file"), "out.wav"); err == nil {
		t.Error("Expected error for unparseable subtitles")
	}
}
