package refstyle

import (
	"math"

	"github.com/lumenlabs/lumen/internal/governor"
	"github.com/lumenlabs/lumen/pkg/audio"
)

// Pose scale calibration per axis: observed std is divided by the reference
// std and multiplied by the axis ceiling factor, then clamped to [0.3, 1.0].
var poseScaleCalib = [3]struct{ refStd, factor float64 }{
	{0.3, 0.8},  // yaw
	{0.2, 0.7},  // pitch
	{0.15, 0.6}, // roll
}

// Energy bands mapping total pose std to temperament parameters.
const (
	calmEnergy   = 0.3
	activeEnergy = 0.6
)

// deriveProfile turns per-frame pose series into a StyleProfile. The series
// must be in temporal order; duration is the source video length in seconds.
func deriveProfile(name string, yaw, pitch, roll []float64, duration float64) governor.StyleProfile {
	yawStd := std(yaw)
	pitchStd := std(pitch)
	rollStd := std(roll)

	p := governor.StyleProfile{
		Name:    name,
		ExprMax: 3.0,
		PoseMax: [3]float64{
			audio.Percentile(abs(yaw), 95),
			audio.Percentile(abs(pitch), 95),
			audio.Percentile(abs(roll), 95),
		},
		PoseScale: [3]float64{
			poseScale(yawStd, 0),
			poseScale(pitchStd, 1),
			poseScale(rollStd, 2),
		},
	}
	// A roll series that never moved means the fallback path was used; use
	// conservative defaults rather than a degenerate zero ceiling.
	if rollStd <= 0.01 {
		p.PoseMax[2] = 0.2
		p.PoseScale[2] = 0.4
	}

	energy := yawStd + pitchStd + rollStd
	switch {
	case energy < calmEnergy:
		p.Smoothing = 0.85
		p.StillnessOnPause = 0.90
		p.ExprStrength = 0.6
	case energy < activeEnergy:
		p.Smoothing = 0.70
		p.StillnessOnPause = 0.75
		p.ExprStrength = 0.8
	default:
		p.Smoothing = 0.60
		p.StillnessOnPause = 0.60
		p.ExprStrength = 1.0
	}
	// Expressions freeze slightly harder than pose during pauses.
	p.StillnessExprOnPause = p.StillnessOnPause + 0.05

	p.NodRate = float64(pitchSignChanges(pitch)) / duration
	if p.NodRate > 0.1 {
		p.NodAmplitude = pitchStd * 0.5
	} else {
		p.NodAmplitude = 0.05
	}
	return p
}

func poseScale(observedStd float64, axis int) float64 {
	c := poseScaleCalib[axis]
	return math.Min(1.0, math.Max(0.3, observedStd/c.refStd*c.factor))
}

// pitchSignChanges counts direction reversals in the pitch series, the
// proxy for nodding frequency.
func pitchSignChanges(pitch []float64) int {
	changes := 0
	prevSign := 0.0
	for i := 1; i < len(pitch); i++ {
		d := pitch[i] - pitch[i-1]
		sign := 0.0
		if d > 0 {
			sign = 1
		} else if d < 0 {
			sign = -1
		}
		if sign != 0 && prevSign != 0 && sign != prevSign {
			changes++
		}
		if sign != 0 {
			prevSign = sign
		}
	}
	return changes
}

func std(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

func abs(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Abs(v)
	}
	return out
}
