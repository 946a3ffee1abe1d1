// Package ffmpeg shells out to ffmpeg and ffprobe for the jobs this
// system deliberately does not implement itself: probing container
// durations, pitch-preserving time-stretching, and encoding the final
// track to compressed formats.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Runner invokes the ffmpeg tool suite.
type Runner struct {
	FFmpegPath  string
	FFprobePath string
}

// NewRunner returns a Runner that expects ffmpeg/ffprobe on PATH.
func NewRunner() *Runner {
	return &Runner{FFmpegPath: "ffmpeg", FFprobePath: "ffprobe"}
}

// ProbeDuration returns the container duration of a media file.
func (r *Runner) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, r.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w (%s)", path, err, strings.TrimSpace(stderr.String()))
	}

	secs, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: invalid duration %q", path, stdout.String())
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// Encode converts a WAV file into the requested container format.
// Formats other than m4a and opus are passed through ffmpeg's defaults
// for the output extension.
func (r *Runner) Encode(ctx context.Context, inputWAV, outputPath, format string) error {
	var args []string
	switch format {
	case "m4a":
		args = []string{"-i", inputWAV, "-c:a", "aac", "-b:a", "192k", "-y", outputPath}
	case "opus":
		args = []string{"-i", inputWAV, "-c:a", "libopus", "-b:a", "128k", "-y", outputPath}
	default:
		args = []string{"-i", inputWAV, "-y", outputPath}
	}

	cmd := exec.CommandContext(ctx, r.FFmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg encode to %s: %w (%s)", format, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
