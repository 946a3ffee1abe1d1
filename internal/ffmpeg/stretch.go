package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/subdub/subdub/internal/audio"
)

// Stretch speeds audio up by factor using ffmpeg's atempo filter,
// preserving pitch. factor must be >= 1.0; the filter is chained when
// the factor exceeds a single atempo stage's range.
func (r *Runner) Stretch(ctx context.Context, b *audio.Buffer, factor float64) (*audio.Buffer, error) {
	if factor < 1.0 {
		return nil, fmt.Errorf("stretch factor %g below 1.0", factor)
	}
	if factor == 1.0 || b.Empty() {
		return b, nil
	}

	dir, err := os.MkdirTemp("", "subdub-stretch-")
	if err != nil {
		return nil, fmt.Errorf("stretch temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out.wav")
	if err := audio.WriteWAV(in, b); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, r.FFmpegPath,
		"-i", in,
		"-filter:a", atempoChain(factor),
		"-ar", fmt.Sprint(b.SampleRate),
		"-y", out,
	)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg atempo %.3f: %w", factor, err)
	}

	stretched, err := audio.ReadWAV(out)
	if err != nil {
		return nil, err
	}
	return audio.Resample(stretched, b.SampleRate), nil
}

// atempoChain builds an atempo filter expression for the factor.
// A single atempo stage accepts at most 2.0, so larger factors are
// split into a chain of stages whose product is the factor.
func atempoChain(factor float64) string {
	var stages []string
	for factor > 2.0 {
		stages = append(stages, "atempo=2.0")
		factor /= 2.0
	}
	stages = append(stages, fmt.Sprintf("atempo=%.6f", factor))
	return strings.Join(stages, ",")
}
