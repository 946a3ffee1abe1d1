package assembly

import (
	"testing"
	"time"

	"github.com/subdub/subdub/internal/audio"
)

const testRate = 24000

func tone(n int, value float32) *audio.Buffer {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = value
	}
	return audio.New(samples, testRate)
}

func TestFinalize_ExactSampleCount(t *testing.T) {
	a := New(testRate)
	if err := a.Append(tone(30000, 0.5), audio.SilenceSamples(10000, testRate)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	out, err := a.Finalize(2 * time.Second)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if got, want := out.NumSamples(), 48000; got != want {
		t.Errorf("Expected exactly %d samples, got %d", want, got)
	}
	// 40000 accumulated, so the last 8000 are pad silence.
	if out.Samples[29999] != 0.5 {
		t.Errorf("Expected interior audio untouched, got %v", out.Samples[29999])
	}
	for _, s := range out.Samples[40000:] {
		if s != 0 {
			t.Fatal("Expected trailing pad to be silence")
		}
	}
}

func TestFinalize_TrimsOverrun(t *testing.T) {
	a := New(testRate)
	if err := a.Append(tone(50000, 0.5)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	out, err := a.Finalize(2 * time.Second)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if got, want := out.NumSamples(), 48000; got != want {
		t.Errorf("Expected %d samples after trim, got %d", want, got)
	}
	if out.Samples[47999] != 0.5 {
		t.Error("Expected trim to cut only the tail")
	}
}

func TestFinalize_ZeroTarget(t *testing.T) {
	a := New(testRate)
	if err := a.Append(tone(1000, 0.5)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	out, err := a.Finalize(0)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if out.NumSamples() != 0 {
		t.Errorf("Expected empty output for zero target, got %d samples", out.NumSamples())
	}
}

func TestFinalize_NegativeTarget(t *testing.T) {
	a := New(testRate)
	if _, err := a.Finalize(-time.Second); err == nil {
		t.Error("Expected error for negative target")
	}
}

func TestFinalize_SealsAssembly(t *testing.T) {
	a := New(testRate)
	if _, err := a.Finalize(time.Second); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if _, err := a.Finalize(time.Second); err != ErrFinalized {
		t.Errorf("Expected ErrFinalized on second finalize, got %v", err)
	}
	if err := a.Append(tone(10, 0.5)); err != ErrFinalized {
		t.Errorf("Expected ErrFinalized on append after finalize, got %v", err)
	}
}

func TestAppend_SkipsEmptyAndTracksDuration(t *testing.T) {
	a := New(testRate)
	if err := a.Append(nil, audio.New(nil, testRate), tone(12000, 0.5)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if got, want := a.NumSamples(), 12000; got != want {
		t.Errorf("Expected %d samples accumulated, got %d", want, got)
	}
	if a.Duration() != 500*time.Millisecond {
		t.Errorf("Expected 500ms accumulated, got %v", a.Duration())
	}
}

func TestAppend_ResamplesForeignRate(t *testing.T) {
	a := New(testRate)
	half := audio.New(make([]float32, 12000), 12000) // 1s at 12kHz
	if err := a.Append(half); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if got, want := a.NumSamples(), 24000; got != want {
		t.Errorf("Expected resample to %d samples, got %d", want, got)
	}
}
