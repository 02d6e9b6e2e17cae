// Package scriptgen turns a topic prompt into an annotated script using an
// LLM backend. Generation runs a fixed retry cascade: a strict structured
// attempt, a permissive free-form attempt, and finally a deterministic
// sentence-split fallback. Only transport failures surface as errors; content
// failures always degrade to the fallback path.
package scriptgen

import (
	"fmt"
	"strings"
)

// Persona shapes the voice and pacing of a generated script. It only affects
// prompting; reference assets for cloning and rendering are resolved by the
// pipeline configuration, not here.
type Persona struct {
	// Tag is the stable identifier used in API requests.
	Tag string

	// DisplayName is the human-readable persona name.
	DisplayName string

	// StyleHint is injected into the system prompt to steer tone and pacing.
	StyleHint string

	// Temperature is the sampling temperature used for this persona.
	Temperature float64

	// PauseRange describes the pause durations the persona should request
	// between segments, in seconds.
	PauseRange [2]float64
}

// Personas returns the built-in persona catalogue keyed by tag. The map is
// rebuilt per call so callers can mutate their copy freely.
func Personas() map[string]Persona {
	return map[string]Persona{
		"mkbhd": {
			Tag:         "mkbhd",
			DisplayName: "MKBHD",
			StyleHint: "Speak like a measured tech reviewer: calm, precise, " +
				"deliberate. Favour short declarative sentences, emphasise key " +
				"product terms, and leave unhurried pauses between thoughts.",
			Temperature: 0.7,
			PauseRange:  [2]float64{0.4, 0.5},
		},
		"ijustine": {
			Tag:         "ijustine",
			DisplayName: "iJustine",
			StyleHint: "Speak like an upbeat, enthusiastic tech creator: " +
				"energetic, conversational, quick. Use exclamations where " +
				"natural, emphasise exciting words, and keep pauses short.",
			Temperature: 0.9,
			PauseRange:  [2]float64{0.2, 0.3},
		},
	}
}

// PersonaByTag looks up a built-in persona. The second return is false when
// the tag is unknown.
func PersonaByTag(tag string) (Persona, bool) {
	p, ok := Personas()[strings.ToLower(strings.TrimSpace(tag))]
	return p, ok
}

// systemPrompt builds the persona-flavoured system instruction shared by the
// strict and permissive attempts.
func (p Persona) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You write short spoken scripts for a talking-head video. ")
	b.WriteString(p.StyleHint)
	fmt.Fprintf(&b,
		" Split the script into segments of one sentence or clause each. "+
			"For every segment give: text, pause_after (seconds of silence after "+
			"the segment, between %.1f and %.1f), emphasis (words from the text "+
			"to stress, may be empty), and sentence_end (true when the segment "+
			"closes a sentence).",
		p.PauseRange[0], p.PauseRange[1])
	return b.String()
}

// plainSystemPrompt builds the instruction for unannotated generation: the
// persona's voice without any segment structure.
func (p Persona) plainSystemPrompt() string {
	return "You write short spoken scripts for a talking-head video. " +
		p.StyleHint +
		" Respond with the spoken script only, no stage directions or formatting."
}
