// Package synth provides clients for remote speech synthesis services.
package synth

import (
	"context"
	"errors"

	"github.com/subdub/subdub/internal/audio"
)

// ErrEmptyAudio is returned when a service answers successfully but
// with no audio payload.
var ErrEmptyAudio = errors.New("synthesis returned no audio")

// Synthesizer converts one line of text to speech.
type Synthesizer interface {
	// Synthesize renders text with the given voice and returns mono
	// samples at the client's configured sample rate. Transient
	// failures are wrapped so the caller's retry policy can recognize
	// them.
	Synthesize(ctx context.Context, text, voice string) (*audio.Buffer, error)

	// Name identifies the provider in logs.
	Name() string
}
