package governor

import (
	"log/slog"
	"math"

	"github.com/lumenlabs/lumen/pkg/coeff"
	"github.com/lumenlabs/lumen/pkg/intent"
)

// Compact-mode scalar gate: out[t] = in[t] * (base + span*clamp(m[t], 0, 1)).
// The resulting multiplier stays in [0.7, 0.95]; dropping the floor lower
// risks a black-frame failure mode in latent renderers, so the bounds are
// style-level constants rather than universal ones.
const (
	compactGateBase = 0.7
	compactGateSpan = 0.25
)

// pauseIntentThreshold separates pause frames from speech in the fused mask.
// Both veto paths land below it: a script pause contributes 0.0 and an audio
// pause contributes 0.05 (at most 0.065 after emphasis fusion).
const pauseIntentThreshold = 0.1

// Input carries everything Govern needs. Coeffs is required; the other
// fields are optional and simply disable the corresponding behaviour when
// absent.
type Input struct {
	// Coeffs is the raw coefficient bundle from the animation model.
	Coeffs *coeff.Bundle

	// AudioPCM is 16-bit mono PCM for RMS-based pause detection. Optional.
	AudioPCM   []byte
	SampleRate int

	// Timing is the script intent timing map. Optional.
	Timing *intent.TimingMap

	// Style is the motion recipe to apply.
	Style StyleProfile

	// FPS is the coefficient frame rate. Must be positive for audio analysis.
	FPS int
}

// Govern applies the motion constraint pipeline and returns a new bundle of
// the same shape. It is a pure function of its inputs and never fails: on any
// anomaly (nil bundle, non-finite input) the input is returned unchanged with
// a single warning so rendering can proceed.
//
// Lip and identity channels declared in the bundle layout pass through
// bit-exact. Compact (latent) bundles are never reshaped per-channel; they
// receive only the scalar intent gate.
func Govern(in Input) *coeff.Bundle {
	b := in.Coeffs
	if b == nil || b.Frames == 0 {
		slog.Warn("governor received empty bundle, passing through")
		return b
	}
	if !b.IsFinite() {
		slog.Warn("governor received non-finite coefficients, passing through",
			"frames", b.Frames, "dims", b.Dims)
		return b
	}

	frames := b.Frames

	var audioMask []float64
	if len(in.AudioPCM) > 0 && in.SampleRate > 0 && in.FPS > 0 {
		audioMask = AlignMask(BuildAudioMask(in.AudioPCM, in.SampleRate, in.FPS, frames), frames)
	}

	var scriptMask []float64
	var nodFrames []int
	if in.Timing != nil {
		scriptMask = AlignMask(in.Timing.BuildMask(), frames)
		for _, f := range in.Timing.SentenceEndFrames() {
			if f < frames {
				nodFrames = append(nodFrames, f)
			}
		}
	}

	mask := FuseMasks(audioMask, scriptMask)
	mask = AlignMask(mask, frames)

	if b.IsCompact() {
		return governCompact(b, mask)
	}
	return governExplicit(b, mask, nodFrames, in.Style, in.FPS)
}

// governCompact applies the scalar intent gate to a latent bundle. Individual
// channels are opaque, so the whole frame is scaled uniformly.
func governCompact(b *coeff.Bundle, mask []float64) *coeff.Bundle {
	if mask == nil {
		slog.Debug("no intent mask for compact bundle, passing through")
		return b
	}

	out := b.Clone()
	for t := 0; t < b.Frames; t++ {
		m := clamp(mask[t], 0, 1)
		gate := compactGateBase + compactGateSpan*m
		row := out.Row(t)
		for d := range row {
			row[d] *= gate
		}
	}
	slog.Debug("applied compact intent gate", "frames", b.Frames, "dims", b.Dims)
	return out
}

// governExplicit runs the full pipeline on declared exp and pose ranges:
// clamp, intent gate, style scale, IIR smoothing, pause stillness, sentence
// nod, and a final pose re-clamp. Channels outside the declared ranges, and
// any channel in the lip or identity sets, are untouched.
func governExplicit(b *coeff.Bundle, mask []float64, nodFrames []int, style StyleProfile, fps int) *coeff.Bundle {
	layout := b.Layout
	if !layout.HasExp() && !layout.HasPose() {
		slog.Warn("explicit bundle declares no governable channels, passing through",
			"dims", b.Dims)
		return b
	}

	out := b.Clone()
	alpha := 1.0 - style.Smoothing
	exprMax := style.ExprMax
	if exprMax <= 0 {
		exprMax = 3.0
	}

	// Nod rate limiting is global across the sequence: a trigger within
	// 1/nod_rate seconds of the previous accepted nod is skipped.
	nodAt := map[int]bool{}
	if style.NodRate > 0 && fps > 0 {
		minGap := int(float64(fps) / style.NodRate)
		last := -1 << 30
		for _, f := range nodFrames {
			if f-last >= minGap {
				nodAt[f] = true
				last = f
			}
		}
	}

	expWidth := 0
	if layout.HasExp() {
		expWidth = layout.ExpEnd - layout.ExpStart
	}
	poseWidth := 0
	if layout.HasPose() {
		poseWidth = layout.PoseEnd - layout.PoseStart
	}

	prevExp := make([]float64, expWidth)
	prevPose := make([]float64, poseWidth)

	for t := 0; t < b.Frames; t++ {
		m := 1.0
		if mask != nil {
			m = mask[t]
		}
		isPause := mask != nil && m < pauseIntentThreshold

		if layout.HasPose() {
			row := out.Row(t)
			for k := 0; k < poseWidth; k++ {
				ch := layout.PoseStart + k
				scale := 1.0
				limit := math.Inf(1)
				if k < 3 {
					scale = style.PoseScale[k]
					limit = style.PoseMax[k]
				}

				v := clamp(row[ch], -limit, limit)
				v *= m * scale

				if t == 0 {
					prevPose[k] = v
				} else {
					v = alpha*v + (1-alpha)*prevPose[k]
				}

				if isPause {
					v *= 1 - style.StillnessOnPause
				}
				if k == 1 && nodAt[t] {
					v += style.NodAmplitude
				}

				prevPose[k] = v
				row[ch] = clamp(v, -limit, limit)
			}
		}

		if layout.HasExp() {
			row := out.Row(t)
			for k := 0; k < expWidth; k++ {
				ch := layout.ExpStart + k
				if layout.Lip.Contains(ch) || layout.Identity.Contains(ch) {
					continue
				}

				v := clamp(row[ch], -exprMax, exprMax)
				v *= m * style.ExprStrength

				if t == 0 {
					prevExp[k] = v
				} else {
					v = alpha*v + (1-alpha)*prevExp[k]
				}

				if isPause {
					v *= 1 - style.StillnessExprOnPause
				}

				prevExp[k] = v
				row[ch] = v
			}
		}
	}

	if !out.IsFinite() {
		slog.Warn("governor produced non-finite output, passing input through",
			"style", style.Name)
		return b
	}

	slog.Debug("governed explicit bundle",
		"frames", b.Frames, "dims", b.Dims, "style", style.Name, "nods", len(nodAt))
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
