package governor

import (
	"log/slog"

	"github.com/lumenlabs/lumen/pkg/audio"
)

// Audio intent mask levels. Silence does not go fully to zero so that the
// compact-mode scalar gate keeps a residual motion floor.
const (
	audioSpeechLevel = 1.0
	audioPauseLevel  = 0.05
)

// BuildAudioMask derives a per-frame intent mask from RMS energy of 16-bit
// mono PCM. Frames whose energy falls below an adaptive threshold (1.5 times
// the 20th percentile, floored at 1e-4) are marked as pauses.
//
// The mask is resized to frames by linear interpolation so it lines up with
// the motion frame count regardless of rounding in the hop division.
func BuildAudioMask(pcm []byte, sampleRate, fps, frames int) []float64 {
	if len(pcm) < 2 || sampleRate <= 0 || fps <= 0 || frames <= 0 {
		return nil
	}

	hop := sampleRate / fps
	if hop <= 0 {
		hop = 1
	}
	rms := audio.RMSEnergy(pcm, hop)
	if len(rms) == 0 {
		return nil
	}

	threshold := 1.5 * audio.Percentile(rms, 20)
	if threshold < 1e-4 {
		threshold = 1e-4
	}

	mask := make([]float64, len(rms))
	pauses := 0
	for i, e := range rms {
		if e >= threshold {
			mask[i] = audioSpeechLevel
		} else {
			mask[i] = audioPauseLevel
			pauses++
		}
	}
	slog.Debug("audio intent mask built",
		"windows", len(rms), "pause_windows", pauses, "threshold", threshold)

	return resizeMask(mask, frames)
}

// resizeMask linearly interpolates mask onto n frames.
func resizeMask(mask []float64, n int) []float64 {
	if len(mask) == n {
		return mask
	}
	out := make([]float64, n)
	if len(mask) == 1 || n == 1 {
		for i := range out {
			out[i] = mask[0]
		}
		return out
	}
	for i := range out {
		pos := float64(i) / float64(n-1) * float64(len(mask)-1)
		lo := int(pos)
		if lo >= len(mask)-1 {
			out[i] = mask[len(mask)-1]
			continue
		}
		frac := pos - float64(lo)
		out[i] = mask[lo]*(1-frac) + mask[lo+1]*frac
	}
	return out
}

// AlignMask fits mask to target frames: excess frames are truncated, missing
// frames are padded with the last value (state persistence). The motion frame
// count is the source of truth; masks adapt to it, never the other way round.
func AlignMask(mask []float64, target int) []float64 {
	if mask == nil || target <= 0 {
		return nil
	}
	if len(mask) == target {
		return mask
	}
	if len(mask) > target {
		return mask[:target]
	}
	out := make([]float64, target)
	copy(out, mask)
	last := mask[len(mask)-1]
	for i := len(mask); i < target; i++ {
		out[i] = last
	}
	return out
}

// FuseMasks combines audio and script intent multiplicatively (AND logic):
// either source vetoing motion wins, and emphasis only survives when both
// sources agree there is speech. Returns nil when neither mask is present,
// or the sole mask when only one is.
func FuseMasks(audioMask, scriptMask []float64) []float64 {
	switch {
	case audioMask == nil && scriptMask == nil:
		return nil
	case audioMask == nil:
		return scriptMask
	case scriptMask == nil:
		return audioMask
	}

	n := len(audioMask)
	if len(scriptMask) < n {
		n = len(scriptMask)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = audioMask[i] * scriptMask[i]
	}
	return out
}
