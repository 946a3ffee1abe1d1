package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/subdub/subdub/internal/config"
	"github.com/subdub/subdub/internal/dub"
	"github.com/subdub/subdub/internal/ffmpeg"
	"github.com/subdub/subdub/internal/observability"
	"github.com/subdub/subdub/internal/synth"
)

// flags mirrors the config fields the CLI can override. Only flags the
// user actually set are applied, so environment values survive.
type flags struct {
	voice          string
	provider       string
	maxSpeed       float64
	batchSize      int
	retries        int
	targetDuration string
	refMedia       string
	output         string
	format         string
	workDir        string
	resume         bool
	keepWork       bool
	noConcat       bool
	metricsAddr    string
	logLevel       string
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "subdub <subtitles.srt>",
		Short: "Dub a subtitle file into a continuous audio track",
		Long: `subdub synthesizes speech for every cue of a subtitle file and
assembles one audio track whose length matches a target duration,
speeding cues up or padding with silence so each one occupies exactly
its time window.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], &f)
		},
	}

	cmd.Flags().StringVar(&f.voice, "voice", "", "synthesis voice id")
	cmd.Flags().StringVar(&f.provider, "provider", "", "synthesis provider (edge, http)")
	cmd.Flags().Float64Var(&f.maxSpeed, "max-speed", 0, "maximum speed-up factor (>= 1.0)")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", 0, "concurrent synthesis requests per batch")
	cmd.Flags().IntVar(&f.retries, "retries", -1, "retry attempts after the first failure")
	cmd.Flags().StringVarP(&f.targetDuration, "target-duration", "t", "", "target length (HH:MM:SS, MM:SS, or seconds)")
	cmd.Flags().StringVar(&f.refMedia, "ref-media", "", "media file to probe for the target length")
	cmd.Flags().StringVarP(&f.output, "output", "o", "output.wav", "output file path")
	cmd.Flags().StringVar(&f.format, "format", "", "output format (wav, m4a, opus); default from extension")
	cmd.Flags().StringVar(&f.workDir, "work-dir", "", "working directory for segments and cache")
	cmd.Flags().BoolVar(&f.resume, "resume", false, "reuse segment files from a previous run")
	cmd.Flags().BoolVar(&f.keepWork, "keep-work", false, "keep the working directory after the run")
	cmd.Flags().BoolVar(&f.noConcat, "no-concat", false, "produce per-cue segments only, skip the final track")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	return cmd
}

func run(cmd *cobra.Command, srtPath string, f *flags) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg, f)
	if err := cfg.Validate(); err != nil {
		return err
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.WithRunID(observability.NewRunID())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	var synthesizer synth.Synthesizer
	switch cfg.Provider {
	case "http":
		synthesizer = synth.NewHTTPClient(cfg.SynthURL, cfg.SynthAPIKey, cfg.SampleRate)
	default:
		synthesizer = synth.NewEdgeClient()
	}

	runner := ffmpeg.NewRunner()
	pipeline := dub.New(cfg, synthesizer, runner, runner, runner, logger)

	summary, err := pipeline.Run(ctx, srtPath, f.output)
	if err != nil {
		return err
	}
	if summary.OutputPath != "" {
		logger.Info().Str("output", summary.OutputPath).Msg("wrote dubbed track")
	}
	return nil
}

// applyFlags copies explicitly-set flags over the environment config.
func applyFlags(cmd *cobra.Command, cfg *config.Config, f *flags) {
	set := cmd.Flags().Changed
	if set("voice") {
		cfg.Voice = f.voice
	}
	if set("provider") {
		cfg.Provider = f.provider
	}
	if set("max-speed") {
		cfg.MaxSpeed = f.maxSpeed
	}
	if set("batch-size") {
		cfg.BatchSize = f.batchSize
	}
	if set("retries") {
		cfg.Retries = f.retries
	}
	if set("target-duration") {
		cfg.TargetDuration = f.targetDuration
	}
	if set("ref-media") {
		cfg.RefMedia = f.refMedia
	}
	if set("format") {
		cfg.OutputFormat = f.format
	}
	if set("work-dir") {
		cfg.WorkDir = f.workDir
	}
	if set("resume") {
		cfg.Resume = f.resume
	}
	if set("keep-work") {
		cfg.KeepWork = f.keepWork
	}
	if set("no-concat") {
		cfg.NoConcat = f.noConcat
	}
	if set("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
	if set("log-level") {
		cfg.LogLevel = f.logLevel
	}
}

func serveMetrics(addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info().Str("addr", addr).Msg("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn().Err(err).Msg("metrics server stopped")
	}
}
