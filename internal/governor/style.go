// Package governor is the deterministic constraint layer between the face
// animation model and the renderer. The animation model proposes motion; the
// governor directs it: clamping pose, gating by fused audio and script
// intent, scaling to a style, smoothing jitter, stilling pauses, and nodding
// at sentence boundaries.
//
// The governor never fails. On any anomaly it returns its input unchanged and
// logs a single warning so the render stage can still proceed.
package governor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// StyleProfile is a named motion recipe. Profiles are immutable after
// construction and round-trip serialisable to JSON.
type StyleProfile struct {
	Name string `json:"name"`

	// PoseMax holds absolute radian ceilings for yaw, pitch, roll.
	PoseMax [3]float64 `json:"pose_max"`

	// PoseScale holds per-axis amplitude scaling in [0, 1].
	PoseScale [3]float64 `json:"pose_scale"`

	// ExprMax is the safety envelope for expression coefficients.
	ExprMax float64 `json:"expr_max"`

	// ExprStrength scales non-lip expression coefficients.
	ExprStrength float64 `json:"expr_strength"`

	// Smoothing is the IIR retention factor in [0, 1); higher means more
	// smoothing.
	Smoothing float64 `json:"smoothing"`

	// StillnessOnPause and StillnessExprOnPause are reduction factors in
	// [0, 1] applied to pose and expression during pause frames.
	StillnessOnPause     float64 `json:"stillness_on_pause"`
	StillnessExprOnPause float64 `json:"stillness_expr_on_pause"`

	// NodRate is nods per second at sentence ends; 0 disables nodding.
	NodRate float64 `json:"nod_rate"`

	// NodAmplitude is the pitch impulse in radians (positive = nod down).
	NodAmplitude float64 `json:"nod_amplitude"`
}

// Presets returns the built-in style catalogue. The map is rebuilt per call
// so callers can mutate their copy freely.
func Presets() map[string]StyleProfile {
	return map[string]StyleProfile{
		"calm_tech": {
			Name:                 "calm_tech",
			PoseMax:              [3]float64{0.35, 0.25, 0.20},
			PoseScale:            [3]float64{0.5, 0.4, 0.3},
			ExprMax:              3.0,
			ExprStrength:         0.6,
			Smoothing:            0.80,
			StillnessOnPause:     0.90,
			StillnessExprOnPause: 0.92,
			NodRate:              0.0,
			NodAmplitude:         0.05,
		},
		"energetic": {
			Name:                 "energetic",
			PoseMax:              [3]float64{0.55, 0.45, 0.35},
			PoseScale:            [3]float64{0.9, 0.8, 0.7},
			ExprMax:              3.0,
			ExprStrength:         1.1,
			Smoothing:            0.60,
			StillnessOnPause:     0.60,
			StillnessExprOnPause: 0.70,
			NodRate:              0.5,
			NodAmplitude:         0.08,
		},
		"lecturer": {
			Name:                 "lecturer",
			PoseMax:              [3]float64{0.45, 0.35, 0.25},
			PoseScale:            [3]float64{0.7, 0.6, 0.5},
			ExprMax:              3.0,
			ExprStrength:         0.8,
			Smoothing:            0.70,
			StillnessOnPause:     0.75,
			StillnessExprOnPause: 0.85,
			NodRate:              0.3,
			NodAmplitude:         0.06,
		},
	}
}

// PresetStyle returns the named preset, falling back to calm_tech with a
// warning when the name is unknown. Callers that need to distinguish an
// unknown name should consult Presets directly.
func PresetStyle(name string) StyleProfile {
	presets := Presets()
	if s, ok := presets[name]; ok {
		return s
	}
	slog.Warn("unknown style preset, falling back to calm_tech", "style", name)
	return presets["calm_tech"]
}

// Save writes the profile as indented JSON to path.
func (s StyleProfile) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("governor: marshal style %q: %w", s.Name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("governor: write %q: %w", path, err)
	}
	return nil
}

// LoadStyle reads a StyleProfile from a JSON file.
func LoadStyle(path string) (StyleProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return StyleProfile{}, fmt.Errorf("governor: read %q: %w", path, err)
	}
	var s StyleProfile
	if err := json.Unmarshal(data, &s); err != nil {
		return StyleProfile{}, fmt.Errorf("governor: parse %q: %w", path, err)
	}
	return s, nil
}
