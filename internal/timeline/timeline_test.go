package timeline

import (
	"testing"
	"time"
)

func TestNew_OrdersAndReindexes(t *testing.T) {
	cues := []Cue{
		{Index: 7, Start: 4 * time.Second, End: 6 * time.Second, Text: "second"},
		{Index: 3, Start: 1 * time.Second, End: 3 * time.Second, Text: "first"},
	}

	tl, err := New(cues)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if tl.Len() != 2 {
		t.Fatalf("Expected 2 cues, got %d", tl.Len())
	}

	got := tl.Cues()
	if got[0].Text != "first" || got[1].Text != "second" {
		t.Errorf("Expected cues ordered by start, got %q, %q", got[0].Text, got[1].Text)
	}
	if got[0].Index != 0 || got[1].Index != 1 {
		t.Errorf("Expected contiguous indexes 0,1, got %d,%d", got[0].Index, got[1].Index)
	}
}

func TestNew_RejectsInvertedCue(t *testing.T) {
	_, err := New([]Cue{{Start: 2 * time.Second, End: 1 * time.Second, Text: "x"}})
	if err == nil {
		t.Error("Expected error for start >= end")
	}
}

func TestNew_RejectsEmpty(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("Expected error for empty cue list")
	}
}

func TestNew_AllowsOverlap(t *testing.T) {
	_, err := New([]Cue{
		{Start: 0, End: 5 * time.Second, Text: "a"},
		{Start: 4 * time.Second, End: 6 * time.Second, Text: "b"},
	})
	if err != nil {
		t.Errorf("Expected overlapping cues to be legal, got %v", err)
	}
}

func TestCue_NormalizedText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello\nworld", "hello world"},
		{"  spaced   out  ", "spaced out"},
		{"\n\t ", ""},
		{"one", "one"},
	}
	for _, tt := range tests {
		c := Cue{Text: tt.in}
		if got := c.NormalizedText(); got != tt.want {
			t.Errorf("NormalizedText(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestCue_IsEmpty(t *testing.T) {
	if !(Cue{Text: " \n "}).IsEmpty() {
		t.Error("Expected whitespace-only cue to be empty")
	}
	if (Cue{Text: "yes"}).IsEmpty() {
		t.Error("Expected non-blank cue to not be empty")
	}
}

func TestTimeline_End(t *testing.T) {
	tl, err := New([]Cue{
		{Start: 0, End: 10 * time.Second, Text: "long"},
		{Start: 1 * time.Second, End: 2 * time.Second, Text: "short"},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if tl.End() != 10*time.Second {
		t.Errorf("Expected end 10s, got %v", tl.End())
	}
}
