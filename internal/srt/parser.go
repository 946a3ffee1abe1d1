// Package srt parses SubRip subtitle files into timeline cues.
package srt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/subdub/subdub/internal/timeline"
)

// timeLine matches "00:01:02,345 --> 00:01:04,000". Some files use a
// dot as the millisecond separator; both are accepted.
var timeLine = regexp.MustCompile(
	`^(\d{1,2}):(\d{2}):(\d{2})[,.](\d{1,3})\s*-->\s*(\d{1,2}):(\d{2}):(\d{2})[,.](\d{1,3})`)

// ParseFile reads an SRT file from disk.
func ParseFile(path string) ([]timeline.Cue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open srt %s: %w", path, err)
	}
	defer f.Close()
	cues, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse srt %s: %w", path, err)
	}
	return cues, nil
}

// Parse reads SRT-formatted subtitles into cues. Blocks are separated
// by blank lines; the numeric counter line is optional and ignored.
// Blocks without a valid time line are skipped rather than failing the
// whole file.
func Parse(r io.Reader) ([]timeline.Cue, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var cues []timeline.Cue
	var block []string

	flush := func() {
		if cue, ok := parseBlock(block); ok {
			cue.Index = len(cues)
			cues = append(cues, cue)
		}
		block = block[:0]
	}

	first := true
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if first {
			line = strings.TrimPrefix(line, "\uFEFF")
			first = false
		}
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		block = append(block, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read srt: %w", err)
	}
	flush()

	if len(cues) == 0 {
		return nil, fmt.Errorf("no subtitle entries found")
	}
	return cues, nil
}

func parseBlock(lines []string) (timeline.Cue, bool) {
	// Skip the optional counter line.
	i := 0
	if i < len(lines) && isCounter(lines[i]) {
		i++
	}
	if i >= len(lines) {
		return timeline.Cue{}, false
	}

	m := timeLine.FindStringSubmatch(lines[i])
	if m == nil {
		return timeline.Cue{}, false
	}
	start := srtTime(m[1], m[2], m[3], m[4])
	end := srtTime(m[5], m[6], m[7], m[8])
	if start >= end {
		return timeline.Cue{}, false
	}

	text := strings.Join(lines[i+1:], "\n")
	return timeline.Cue{Start: start, End: end, Text: text}, true
}

func isCounter(line string) bool {
	_, err := strconv.Atoi(strings.TrimSpace(line))
	return err == nil
}

func srtTime(h, m, s, ms string) time.Duration {
	hours, _ := strconv.Atoi(h)
	mins, _ := strconv.Atoi(m)
	secs, _ := strconv.Atoi(s)
	// "5" means 500ms, "05" means 50ms: pad to three digits first.
	for len(ms) < 3 {
		ms += "0"
	}
	millis, _ := strconv.Atoi(ms)

	return time.Duration(hours)*time.Hour +
		time.Duration(mins)*time.Minute +
		time.Duration(secs)*time.Second +
		time.Duration(millis)*time.Millisecond
}
