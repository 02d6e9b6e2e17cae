package intent

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// TimingSegment places one script segment on the audio timeline.
type TimingSegment struct {
	// SegmentIdx matches the segment's position in the originating ScriptIntent.
	SegmentIdx int `json:"segment_idx"`

	// StartTime and EndTime are in seconds; EndTime >= StartTime.
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`

	// PauseAfter, Emphasis, and SentenceEnd are carried through from the
	// SegmentIntent unchanged.
	PauseAfter  float64  `json:"pause_after"`
	Emphasis    []string `json:"emphasis"`
	SentenceEnd bool     `json:"sentence_end"`

	// tokenCount caches the source segment's token count for the emphasis
	// boost; zero means unknown and is treated as 1.
	TokenCount int `json:"token_count,omitempty"`
}

// TimingMap is the projection of a ScriptIntent onto the time axis after
// speech synthesis. It is read-only once emitted by the synthesizer.
type TimingMap struct {
	Segments      []TimingSegment `json:"segments"`
	TotalDuration float64         `json:"total_duration"`
	FPS           int             `json:"fps"`
}

// NewTimingMap validates segment ordering and wraps the segments.
func NewTimingMap(segments []TimingSegment, totalDuration float64, fps int) (*TimingMap, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("intent: fps must be positive, got %d", fps)
	}
	if totalDuration < 0 {
		return nil, fmt.Errorf("intent: negative total duration %v", totalDuration)
	}
	for i, seg := range segments {
		if seg.EndTime < seg.StartTime {
			return nil, fmt.Errorf("intent: segment %d ends before it starts (%v < %v)", i, seg.EndTime, seg.StartTime)
		}
		if i > 0 {
			prev := segments[i-1]
			// Allow a tiny epsilon for float accumulation across segments.
			if seg.StartTime < prev.EndTime+prev.PauseAfter-1e-6 {
				return nil, fmt.Errorf("intent: segment %d starts at %v before previous pause ends at %v",
					i, seg.StartTime, prev.EndTime+prev.PauseAfter)
			}
		}
	}
	if n := len(segments); n > 0 {
		last := segments[n-1]
		if totalDuration < last.EndTime+last.PauseAfter-1e-6 {
			return nil, fmt.Errorf("intent: total duration %v shorter than final segment end %v",
				totalDuration, last.EndTime+last.PauseAfter)
		}
	}
	return &TimingMap{Segments: segments, TotalDuration: totalDuration, FPS: fps}, nil
}

// NumFrames returns the frame count covered by the map at its FPS.
func (m *TimingMap) NumFrames() int {
	return int(math.Round(m.TotalDuration * float64(m.FPS)))
}

// maxEmphasisBoost caps the intent mask; the [0, 1.3] clamp range is part of
// the public contract.
const maxEmphasisBoost = 1.3

// BuildMask builds the dense per-frame motion authority mask.
//
// Semantics per frame: 0.0 forces stillness (pause windows), 1.0 is nominal
// speech, and values up to 1.3 boost emphasis-heavy segments. The boost grows
// with the fraction of emphasised tokens: 1 + 0.3 * |emphasis| / tokens.
func (m *TimingMap) BuildMask() []float64 {
	n := m.NumFrames()
	mask := make([]float64, n)
	for i := range mask {
		mask[i] = 1.0
	}
	if n == 0 {
		return mask
	}

	clampFrame := func(f int) int {
		if f < 0 {
			return 0
		}
		if f > n {
			return n
		}
		return f
	}

	for _, seg := range m.Segments {
		start := clampFrame(int(seg.StartTime * float64(m.FPS)))
		end := clampFrame(int(seg.EndTime * float64(m.FPS)))
		pauseEnd := clampFrame(int((seg.EndTime + seg.PauseAfter) * float64(m.FPS)))

		if len(seg.Emphasis) > 0 {
			tokens := seg.TokenCount
			if tokens < 1 {
				tokens = 1
			}
			boost := 1.0 + 0.3*float64(len(seg.Emphasis))/float64(tokens)
			if boost > maxEmphasisBoost {
				boost = maxEmphasisBoost
			}
			for f := start; f < end; f++ {
				mask[f] = boost
			}
		}

		// Silence between segments vetoes motion entirely.
		if seg.PauseAfter > 0.01 {
			for f := end; f < pauseEnd; f++ {
				mask[f] = 0.0
			}
		}
	}
	return mask
}

// SentenceEndFrames returns frame indices at segment end boundaries where
// SentenceEnd is set, in timeline order. Out-of-range frames are dropped.
func (m *TimingMap) SentenceEndFrames() []int {
	n := m.NumFrames()
	var out []int
	for _, seg := range m.Segments {
		if !seg.SentenceEnd {
			continue
		}
		f := int(seg.EndTime * float64(m.FPS))
		if f >= 0 && f < n {
			out = append(out, f)
		}
	}
	return out
}

// Save writes the timing map as indented JSON to path.
func (m *TimingMap) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("intent: marshal timing map: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("intent: write %q: %w", path, err)
	}
	return nil
}

// LoadTimingMap reads and validates a TimingMap from a JSON file.
func LoadTimingMap(path string) (*TimingMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("intent: read %q: %w", path, err)
	}
	var raw TimingMap
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("intent: parse %q: %w", path, err)
	}
	return NewTimingMap(raw.Segments, raw.TotalDuration, raw.FPS)
}
