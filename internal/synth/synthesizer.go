package synth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lumenlabs/lumen/pkg/audio"
	"github.com/lumenlabs/lumen/pkg/intent"
	"github.com/lumenlabs/lumen/pkg/provider/tts"
)

// minPause is the shortest pause that produces explicit silence samples.
// Anything below it is treated as no pause.
const minPause = 0.01

// Output is the assembled speech track plus the timing map that places each
// script segment on it.
type Output struct {
	// PCM is 16-bit little-endian mono audio.
	PCM []byte

	// SampleRate is the rate of PCM in Hz.
	SampleRate int

	// Timing maps segments to the audio timeline. Segment order matches the
	// input script.
	Timing *intent.TimingMap

	// SingleShot is true when per-segment synthesis failed and the whole
	// script was synthesised in one call, losing pause and emphasis timing.
	SingleShot bool
}

// Synthesizer drives segmented speech synthesis against a TTS provider.
type Synthesizer struct {
	provider tts.Provider
	fps      int
}

// NewSynthesizer wraps a TTS provider. fps is the frame rate the timing map
// is built for and must be positive.
func NewSynthesizer(provider tts.Provider, fps int) (*Synthesizer, error) {
	if provider == nil {
		return nil, fmt.Errorf("synth: provider is required")
	}
	if fps <= 0 {
		return nil, fmt.Errorf("synth: fps must be positive, got %d", fps)
	}
	return &Synthesizer{provider: provider, fps: fps}, nil
}

// Synthesize speaks every segment of script in order, inserting explicit
// silence for each pause, and returns the concatenated audio with its timing
// map. Segment audio arriving at a different sample rate than the first
// segment is resampled to match.
//
// If any per-segment call fails, the whole script is retried as a single
// synthesis call; the resulting timing map then has one segment with no pause
// and no emphasis.
func (s *Synthesizer) Synthesize(ctx context.Context, script *intent.ScriptIntent, voice tts.VoiceProfile, language string) (*Output, error) {
	if script == nil || len(script.Segments) == 0 {
		return nil, fmt.Errorf("synth: script must contain at least one segment")
	}

	var (
		pcm      []byte
		rate     int
		cursor   float64
		segments []intent.TimingSegment
	)

	for i, seg := range script.Segments {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("synth: cancelled before segment %d: %w", i, err)
		}

		shaped := ShapeEmphasis(seg.Text, seg.Emphasis)
		res, err := s.provider.Synthesize(ctx, tts.SynthesisRequest{
			Text:     shaped,
			Voice:    voice,
			Language: language,
		})
		if err != nil {
			slog.Warn("segment synthesis failed, retrying script single-shot",
				"segment", i, "provider", s.provider.Name(), "error", err)
			return s.singleShot(ctx, script, voice, language)
		}
		if res == nil || len(res.PCM) == 0 || res.SampleRate <= 0 {
			slog.Warn("segment synthesis returned no audio, retrying script single-shot",
				"segment", i, "provider", s.provider.Name())
			return s.singleShot(ctx, script, voice, language)
		}

		segPCM := res.PCM
		if rate == 0 {
			rate = res.SampleRate
		} else if res.SampleRate != rate {
			segPCM = audio.ResampleMono16(segPCM, res.SampleRate, rate)
		}

		duration := audio.Duration(segPCM, rate)
		pause := seg.PauseAfter
		if pause < minPause {
			// No silence samples are appended for sub-threshold pauses, so
			// the timing map must not claim the pause either.
			pause = 0
		}
		segments = append(segments, intent.TimingSegment{
			SegmentIdx:  i,
			StartTime:   cursor,
			EndTime:     cursor + duration,
			PauseAfter:  pause,
			Emphasis:    seg.Emphasis,
			SentenceEnd: seg.SentenceEnd,
			TokenCount:  seg.TokenCount(),
		})

		pcm = append(pcm, segPCM...)
		cursor += duration
		if pause > 0 {
			pcm = append(pcm, audio.Silence(pause, rate)...)
			cursor += pause
		}
	}

	tm, err := intent.NewTimingMap(segments, cursor, s.fps)
	if err != nil {
		return nil, fmt.Errorf("synth: build timing map: %w", err)
	}
	slog.Info("segmented synthesis complete",
		"segments", len(segments),
		"duration_s", cursor,
		"sample_rate", rate)
	return &Output{PCM: pcm, SampleRate: rate, Timing: tm}, nil
}

// singleShot synthesises the full plain script in one call. Used when
// per-segment synthesis fails; pause and emphasis timing is lost.
func (s *Synthesizer) singleShot(ctx context.Context, script *intent.ScriptIntent, voice tts.VoiceProfile, language string) (*Output, error) {
	res, err := s.provider.Synthesize(ctx, tts.SynthesisRequest{
		Text:     script.PlainText(),
		Voice:    voice,
		Language: language,
	})
	if err != nil {
		return nil, fmt.Errorf("synth: single-shot synthesis via %s: %w", s.provider.Name(), err)
	}
	if res == nil || len(res.PCM) == 0 || res.SampleRate <= 0 {
		return nil, fmt.Errorf("synth: single-shot synthesis via %s returned no audio", s.provider.Name())
	}

	duration := audio.Duration(res.PCM, res.SampleRate)
	tm, err := intent.NewTimingMap([]intent.TimingSegment{{
		SegmentIdx:  0,
		StartTime:   0,
		EndTime:     duration,
		Emphasis:    []string{},
		SentenceEnd: true,
	}}, duration, s.fps)
	if err != nil {
		return nil, fmt.Errorf("synth: build single-shot timing map: %w", err)
	}
	slog.Info("single-shot synthesis complete", "duration_s", duration)
	return &Output{
		PCM:        res.PCM,
		SampleRate: res.SampleRate,
		Timing:     tm,
		SingleShot: true,
	}, nil
}
