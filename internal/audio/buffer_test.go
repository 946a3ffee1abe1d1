package audio

import (
	"testing"
	"time"
)

func TestSamplesFor(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		rate int
		want int
	}{
		{"two seconds at 24k", 2 * time.Second, 24000, 48000},
		{"zero", 0, 24000, 0},
		{"half sample rounds up", 62500 * time.Nanosecond, 24000, 2}, // 1.5 samples
		{"one millisecond", time.Millisecond, 24000, 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SamplesFor(tt.d, tt.rate)
			if got != tt.want {
				t.Errorf("Expected %d samples, got %d", tt.want, got)
			}
		})
	}
}

func TestSilence(t *testing.T) {
	b := Silence(500*time.Millisecond, 24000)
	if b.NumSamples() != 12000 {
		t.Errorf("Expected 12000 samples, got %d", b.NumSamples())
	}
	for i, s := range b.Samples {
		if s != 0 {
			t.Fatalf("Expected silence at sample %d, got %f", i, s)
		}
	}
}

func TestBuffer_Duration(t *testing.T) {
	b := SilenceSamples(48000, 24000)
	if b.Duration() != 2*time.Second {
		t.Errorf("Expected 2s duration, got %v", b.Duration())
	}

	var nilBuf *Buffer
	if nilBuf.Duration() != 0 {
		t.Errorf("Expected 0 duration for nil buffer, got %v", nilBuf.Duration())
	}
}

func TestConcat(t *testing.T) {
	a := New([]float32{1, 2}, 24000)
	b := New([]float32{3}, 24000)
	var empty *Buffer

	out := Concat(24000, a, empty, b)
	if out.NumSamples() != 3 {
		t.Fatalf("Expected 3 samples, got %d", out.NumSamples())
	}
	want := []float32{1, 2, 3}
	for i := range want {
		if out.Samples[i] != want[i] {
			t.Errorf("Expected %f at position %d, got %f", want[i], i, out.Samples[i])
		}
	}
}

func TestDecodePCM16_RoundTrip(t *testing.T) {
	in := New([]float32{0, 0.5, -0.5, 0.999}, 24000)
	data := EncodePCM16(in)
	out, err := DecodePCM16(data, 24000)
	if err != nil {
		t.Fatalf("DecodePCM16 failed: %v", err)
	}
	if out.NumSamples() != in.NumSamples() {
		t.Fatalf("Expected %d samples, got %d", in.NumSamples(), out.NumSamples())
	}
	for i := range in.Samples {
		diff := out.Samples[i] - in.Samples[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > 1.0/32000.0 {
			t.Errorf("Sample %d: expected ~%f, got %f", i, in.Samples[i], out.Samples[i])
		}
	}
}

func TestEncodePCM16_LosslessForQuantized(t *testing.T) {
	// Codes that came out of a decode must re-encode to the same bytes,
	// including the extremes.
	codes := []int16{0, 1, -1, 255, -254, 12345, -12345, 32767, -32768}
	data := make([]byte, len(codes)*2)
	for i, v := range codes {
		data[i*2] = byte(v)
		data[i*2+1] = byte(v >> 8)
	}

	decoded, err := DecodePCM16(data, 24000)
	if err != nil {
		t.Fatalf("DecodePCM16 failed: %v", err)
	}
	out := EncodePCM16(decoded)
	for i := range data {
		if out[i] != data[i] {
			t.Fatalf("Byte %d changed across a decode/encode round trip: %d != %d", i, out[i], data[i])
		}
	}

	// And a second full round trip must be a fixed point.
	again, err := DecodePCM16(out, 24000)
	if err != nil {
		t.Fatalf("DecodePCM16 failed: %v", err)
	}
	for i := range decoded.Samples {
		if again.Samples[i] != decoded.Samples[i] {
			t.Fatalf("Sample %d drifted on re-quantization: %v != %v", i, again.Samples[i], decoded.Samples[i])
		}
	}
}

func TestDecodePCM16_OddLength(t *testing.T) {
	if _, err := DecodePCM16([]byte{1, 2, 3}, 24000); err == nil {
		t.Error("Expected error for odd-length PCM data")
	}
}

func TestResample(t *testing.T) {
	b := SilenceSamples(24000, 24000)
	out := Resample(b, 8000)
	if out.SampleRate != 8000 {
		t.Errorf("Expected rate 8000, got %d", out.SampleRate)
	}
	if out.NumSamples() != 8000 {
		t.Errorf("Expected 8000 samples, got %d", out.NumSamples())
	}

	// Same rate is a no-op.
	same := Resample(b, 24000)
	if same != b {
		t.Error("Expected same-rate resample to return the input buffer")
	}
}
