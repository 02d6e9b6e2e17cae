package intent

import (
	"encoding/json"
	"log/slog"
	"strings"
	"unicode"
)

// Provenance records which parsing path produced a ScriptIntent, so callers
// can branch on how trustworthy the annotations are without re-parsing.
type Provenance int

const (
	// ParseStrict means the model returned schema-conforming JSON directly.
	ParseStrict Provenance = iota

	// ParsePermissive means the JSON was recovered from a free-form response
	// (fences, preamble, trailing prose).
	ParsePermissive

	// ParseFallback means no JSON could be recovered and the intent was
	// synthesised by sentence-splitting plain text.
	ParseFallback
)

// String returns the human-readable name of the provenance.
func (p Provenance) String() string {
	switch p {
	case ParseStrict:
		return "strict"
	case ParsePermissive:
		return "permissive"
	case ParseFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// minParseableLength guards against truncated responses like a bare
// "```json" fence opener.
const minParseableLength = 20

// ExtractJSONObject recovers a JSON object from possibly decorated model
// output. It accepts a bare object, a fenced object, and objects surrounded
// by preamble or trailing text. Returns "" when no parseable object exists.
func ExtractJSONObject(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	// A very short response containing a fence marker is almost certainly a
	// truncated stream; reject rather than parse garbage.
	if len(text) < minParseableLength && strings.Contains(text, "```") {
		return ""
	}

	if strings.Contains(text, "```") {
		text = stripFences(text)
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}

	candidate := text[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return ""
	}
	return candidate
}

// stripFences removes markdown code fence lines (```json, ``` etc).
func stripFences(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// ParseScriptIntent extracts and validates a ScriptIntent from raw model
// output. Returns nil when the response carries no usable segments; the
// caller decides whether to retry or fall back.
func ParseScriptIntent(text string) *ScriptIntent {
	raw := ExtractJSONObject(text)
	if raw == "" {
		return nil
	}

	var parsed ScriptIntent
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		slog.Debug("intent: extracted object does not match schema", "err", err)
		return nil
	}
	if len(parsed.Segments) == 0 {
		slog.Debug("intent: parsed object has no segments")
		return nil
	}

	out, err := NewScriptIntent(parsed.Segments)
	if err != nil {
		slog.Debug("intent: segment validation failed", "err", err)
		return nil
	}
	out.TotalDuration = parsed.TotalDuration
	return out
}

// fallbackPause is the pause appended after each sentence when synthesising
// an intent from plain text.
const fallbackPause = 0.3

// FallbackIntent synthesises a deterministic ScriptIntent from plain text:
// one segment per sentence, a fixed pause after each, no emphasis, and
// sentence_end set wherever the sentence closed with terminal punctuation.
func FallbackIntent(text string) *ScriptIntent {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}

	segments := make([]SegmentIntent, 0, len(sentences))
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		segments = append(segments, SegmentIntent{
			Text:        s,
			PauseAfter:  fallbackPause,
			Emphasis:    []string{},
			SentenceEnd: endsWithTerminal(s),
		})
	}
	if len(segments) == 0 {
		segments = []SegmentIntent{{
			Text:        text,
			PauseAfter:  fallbackPause,
			Emphasis:    []string{},
			SentenceEnd: true,
		}}
	}

	out, err := NewScriptIntent(segments)
	if err != nil {
		// Only reachable for fully blank input; callers treat a single blank
		// sentinel segment as the floor.
		out = &ScriptIntent{Segments: []SegmentIntent{{
			Text: ".", PauseAfter: fallbackPause, Emphasis: []string{}, SentenceEnd: true,
		}}}
	}
	return out
}

// SplitSentences splits text on sentence-ending punctuation ('.', '!', '?')
// followed by whitespace or end of string, keeping the punctuation attached.
// Abbreviation-like boundaries ("3.14", "Dr.X") are not split because the
// terminator must be followed by whitespace.
func SplitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		if i+1 < len(text) && !unicode.IsSpace(rune(text[i+1])) {
			continue
		}
		sentence := strings.TrimSpace(text[start : i+1])
		if sentence != "" {
			out = append(out, sentence)
		}
		start = i + 1
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func endsWithTerminal(s string) bool {
	if s == "" {
		return false
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}
