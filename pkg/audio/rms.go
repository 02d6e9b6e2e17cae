package audio

import (
	"math"
	"sort"
)

// RMSEnergy computes short-time RMS energy over 16-bit mono PCM with the
// given hop length in samples. Each output value covers one hop window;
// samples are normalised to [-1, 1] before squaring so thresholds are
// independent of bit depth. A trailing partial window is included.
func RMSEnergy(pcm []byte, hop int) []float64 {
	if hop <= 0 {
		return nil
	}
	samples := len(pcm) / 2
	if samples == 0 {
		return nil
	}

	frames := (samples + hop - 1) / hop
	out := make([]float64, frames)

	for f := 0; f < frames; f++ {
		start := f * hop
		end := start + hop
		if end > samples {
			end = samples
		}
		var sum float64
		for i := start; i < end; i++ {
			s := float64(int16(pcm[i*2])|int16(pcm[i*2+1])<<8) / 32768.0
			sum += s * s
		}
		out[f] = math.Sqrt(sum / float64(end-start))
	}
	return out
}

// Percentile returns the p-th percentile (0–100) of values using linear
// interpolation between ranks. The input slice is not modified.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(rank)
	frac := rank - float64(lo)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	return sorted[lo]*(1-frac) + sorted[lo+1]*frac
}
