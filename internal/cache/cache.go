// Package cache deduplicates speech synthesis across cues with
// identical text. Concurrent requests for an unseen key share one
// in-flight synthesis; completed audio is held for the rest of the run
// and optionally mirrored to disk so resumed runs can reuse it.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/subdub/subdub/internal/audio"
)

// Entry is one completed cache entry.
type Entry struct {
	Key    string
	Buffer *audio.Buffer
	Hits   int64
}

// Cache is a run-scoped synthesis cache with single-flight semantics
// per text key. There is no eviction during a run.
type Cache struct {
	dir        string // disk mirror; empty means memory-only
	sampleRate int

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*Entry
}

// Key derives the cache key for a cue text: whitespace-normalized,
// case-folded, then hashed.
func Key(text string) string {
	norm := strings.ToLower(strings.Join(strings.Fields(text), " "))
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}

// New creates a cache. When dir is non-empty, completed entries are
// also written there as WAV files and found again on later runs.
func New(dir string, sampleRate int) *Cache {
	return &Cache{
		dir:        dir,
		sampleRate: sampleRate,
		entries:    make(map[string]*Entry),
	}
}

type produced struct {
	buf      *audio.Buffer
	fromDisk bool
}

// GetOrCreate returns the audio for text, producing it at most once
// per distinct key no matter how many callers arrive concurrently.
// The returned flag reports whether the result was a cache hit (an
// already-completed entry, a disk entry from an earlier run, or a
// shared in-flight computation) rather than a fresh synthesis owned by
// this caller.
func (c *Cache) GetOrCreate(ctx context.Context, text string, produce func(context.Context) (*audio.Buffer, error)) (*audio.Buffer, bool, error) {
	key := Key(text)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.Hits++
		c.mu.Unlock()
		return e.Buffer, true, nil
	}
	c.mu.Unlock()

	// singleflight's shared flag is true for every caller when the
	// result was handed to more than one, producer included, so it
	// cannot identify the producer. The owner flag can: only the
	// caller whose closure actually ran synthesis sets it.
	var owner bool
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if buf, ok := c.loadDisk(key); ok {
			c.store(key, buf)
			return produced{buf: buf, fromDisk: true}, nil
		}

		owner = true
		buf, err := produce(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, buf)
		c.writeDisk(key, buf)
		return produced{buf: buf}, nil
	})
	if err != nil {
		return nil, false, err
	}

	p := v.(produced)
	hit := !owner || p.fromDisk
	if hit {
		c.mu.Lock()
		if e, ok := c.entries[key]; ok {
			e.Hits++
		}
		c.mu.Unlock()
	}
	return p.buf, hit, nil
}

// Len returns the number of completed entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// TotalHits returns the sum of hit counts across all entries.
func (c *Cache) TotalHits() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, e := range c.entries {
		total += e.Hits
	}
	return total
}

// Clear drops all in-memory entries. Disk entries are left for resume.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry)
}

func (c *Cache) store(key string, buf *audio.Buffer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		c.entries[key] = &Entry{Key: key, Buffer: buf}
	}
}

func (c *Cache) diskPath(key string) string {
	return filepath.Join(c.dir, fmt.Sprintf("cache_%s.wav", key))
}

func (c *Cache) loadDisk(key string) (*audio.Buffer, bool) {
	if c.dir == "" {
		return nil, false
	}
	path := c.diskPath(key)
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return nil, false
	}
	buf, err := audio.ReadWAV(path)
	if err != nil {
		return nil, false
	}
	return audio.Resample(buf, c.sampleRate), true
}

// writeDisk mirrors a completed entry to disk. Best-effort: a failed
// write only costs cache reuse on a resumed run.
func (c *Cache) writeDisk(key string, buf *audio.Buffer) {
	if c.dir == "" || buf.Empty() {
		return
	}
	_ = audio.WriteWAV(c.diskPath(key), buf)
}
