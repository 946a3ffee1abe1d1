package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/subdub/subdub/internal/audio"
)

func tone(n int) *audio.Buffer {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.1
	}
	return audio.New(samples, 24000)
}

func TestKey_Normalization(t *testing.T) {
	if Key("Hello  World") != Key("hello\nworld") {
		t.Error("Expected case and whitespace differences to share a key")
	}
	if Key("hello") == Key("goodbye") {
		t.Error("Expected distinct texts to have distinct keys")
	}
}

func TestGetOrCreate_SecondCallIsHit(t *testing.T) {
	c := New("", 24000)
	calls := 0
	produce := func(ctx context.Context) (*audio.Buffer, error) {
		calls++
		return tone(10), nil
	}

	_, hit, err := c.GetOrCreate(context.Background(), "yes", produce)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if hit {
		t.Error("Expected first call to be a miss")
	}

	buf, hit, err := c.GetOrCreate(context.Background(), "Yes", produce)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if !hit {
		t.Error("Expected second call to be a hit")
	}
	if buf.NumSamples() != 10 {
		t.Errorf("Expected cached buffer of 10 samples, got %d", buf.NumSamples())
	}
	if calls != 1 {
		t.Errorf("Expected exactly 1 synthesis, got %d", calls)
	}
	if c.TotalHits() != 1 {
		t.Errorf("Expected 1 recorded hit, got %d", c.TotalHits())
	}
}

func TestGetOrCreate_SingleFlight(t *testing.T) {
	c := New("", 24000)
	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})

	produce := func(ctx context.Context) (*audio.Buffer, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
		}
		<-release
		return tone(5), nil
	}

	const n = 8
	var wg sync.WaitGroup
	hits := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, hit, err := c.GetOrCreate(context.Background(), "same text", produce)
			if err != nil {
				t.Errorf("GetOrCreate failed: %v", err)
			}
			hits[i] = hit
		}(i)
	}

	<-started
	// Give the remaining callers time to join the in-flight computation.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected exactly 1 producer call under concurrency, got %d", got)
	}

	misses := 0
	for _, h := range hits {
		if !h {
			misses++
		}
	}
	if misses != 1 {
		t.Errorf("Expected exactly 1 miss among %d concurrent callers, got %d", n, misses)
	}
}

func TestGetOrCreate_ErrorNotCached(t *testing.T) {
	c := New("", 24000)
	calls := 0
	_, _, err := c.GetOrCreate(context.Background(), "flaky", func(ctx context.Context) (*audio.Buffer, error) {
		calls++
		return nil, errors.New("synthesis down")
	})
	if err == nil {
		t.Fatal("Expected error")
	}

	// A later request retries rather than replaying the failure.
	buf, hit, err := c.GetOrCreate(context.Background(), "flaky", func(ctx context.Context) (*audio.Buffer, error) {
		calls++
		return tone(3), nil
	})
	if err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if hit {
		t.Error("Expected retry to be a miss")
	}
	if buf.NumSamples() != 3 || calls != 2 {
		t.Errorf("Expected fresh buffer after failure, samples=%d calls=%d", buf.NumSamples(), calls)
	}
}

func TestCache_DiskReuse(t *testing.T) {
	dir := t.TempDir()

	first := New(dir, 24000)
	_, _, err := first.GetOrCreate(context.Background(), "persisted line", func(ctx context.Context) (*audio.Buffer, error) {
		return tone(240), nil
	})
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	// A second cache over the same dir finds the entry without synthesis.
	second := New(dir, 24000)
	buf, hit, err := second.GetOrCreate(context.Background(), "persisted line", func(ctx context.Context) (*audio.Buffer, error) {
		t.Fatal("Expected no synthesis when disk entry exists")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if !hit {
		t.Error("Expected disk entry to count as a hit")
	}
	if buf.NumSamples() != 240 {
		t.Errorf("Expected 240 samples from disk, got %d", buf.NumSamples())
	}
}

func TestCache_Clear(t *testing.T) {
	c := New("", 24000)
	_, _, _ = c.GetOrCreate(context.Background(), "a", func(ctx context.Context) (*audio.Buffer, error) {
		return tone(1), nil
	})
	if c.Len() != 1 {
		t.Fatalf("Expected 1 entry, got %d", c.Len())
	}
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Expected empty cache after Clear, got %d", c.Len())
	}
}
