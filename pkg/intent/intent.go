// Package intent defines the script intent contract that flows through the
// generation pipeline: the language model emits a ScriptIntent, the segmented
// synthesizer projects it onto the time axis as a TimingMap, and the motion
// governor consumes the map as a per-frame motion authority mask.
//
// ScriptIntent is built once and never mutated afterwards; TimingMap is
// read-only downstream of synthesis. Both are round-trip serialisable to JSON.
package intent

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// SegmentIntent is a single script unit with its semantic annotations.
type SegmentIntent struct {
	// Text is the flattened plain text of this segment. Never empty.
	Text string `json:"text"`

	// PauseAfter is the duration in seconds of silence appended after the
	// segment. Always >= 0.
	PauseAfter float64 `json:"pause_after"`

	// Emphasis lists tokens occurring in Text that should be stressed.
	Emphasis []string `json:"emphasis"`

	// SentenceEnd signals an optional nod trigger at the segment boundary.
	SentenceEnd bool `json:"sentence_end"`
}

// TokenCount returns the number of whitespace-separated tokens in Text.
func (s SegmentIntent) TokenCount() int {
	return len(strings.Fields(s.Text))
}

// ScriptIntent is an ordered, non-empty sequence of script segments. The
// concatenation of segment texts is the canonical plain-text script.
type ScriptIntent struct {
	Segments []SegmentIntent `json:"segments"`

	// TotalDuration is filled only after synthesis; nil before.
	TotalDuration *float64 `json:"total_duration,omitempty"`
}

// NewScriptIntent validates and wraps a segment list. It rejects empty
// sequences and segments with empty text, and clamps negative pauses to zero.
func NewScriptIntent(segments []SegmentIntent) (*ScriptIntent, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("intent: script must contain at least one segment")
	}
	for i, seg := range segments {
		if strings.TrimSpace(seg.Text) == "" {
			return nil, fmt.Errorf("intent: segment %d has empty text", i)
		}
		if seg.PauseAfter < 0 {
			segments[i].PauseAfter = 0
		}
		if seg.Emphasis == nil {
			segments[i].Emphasis = []string{}
		}
	}
	return &ScriptIntent{Segments: segments}, nil
}

// PlainText returns the canonical plain-text script: segment texts joined
// with single spaces.
func (s *ScriptIntent) PlainText() string {
	parts := make([]string, 0, len(s.Segments))
	for _, seg := range s.Segments {
		parts = append(parts, strings.TrimSpace(seg.Text))
	}
	return strings.Join(parts, " ")
}

// Save writes the intent as indented JSON to path.
func (s *ScriptIntent) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("intent: marshal script: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("intent: write %q: %w", path, err)
	}
	return nil
}

// LoadScriptIntent reads and validates a ScriptIntent from a JSON file.
func LoadScriptIntent(path string) (*ScriptIntent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("intent: read %q: %w", path, err)
	}
	var raw ScriptIntent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("intent: parse %q: %w", path, err)
	}
	out, err := NewScriptIntent(raw.Segments)
	if err != nil {
		return nil, err
	}
	out.TotalDuration = raw.TotalDuration
	return out, nil
}
