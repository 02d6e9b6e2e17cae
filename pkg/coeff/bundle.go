// Package coeff defines the per-frame motion coefficient bundle exchanged
// between the face-animation model and the motion governor.
//
// Two coefficient families exist in the wild and must never be confused:
//
//   - Explicit bundles (dims >= 200) carry a classical 3DMM-style layout with
//     addressable identity, expression, and pose channels. The governor may
//     clamp, scale, and smooth these directly.
//
//   - Compact bundles (dims < 200) are latent audio→face vectors. Individual
//     channels have no stable meaning; per-channel edits corrupt the renderer's
//     input. The governor treats them as opaque and applies scalar gating only.
//
// The split is represented as a tag on the bundle rather than per-channel
// heuristics so downstream code branches exactly once.
package coeff

import (
	"fmt"
	"math"
	"sort"
)

// compactThreshold separates latent bundles from explicit 3DMM layouts.
const compactThreshold = 200

// ChannelSet is an immutable set of channel indices the governor must pass
// through untouched (lip-sync and identity channels).
type ChannelSet struct {
	bits []bool
}

// NewChannelSet builds a ChannelSet over dims channels containing the given
// indices. Out-of-range indices are ignored.
func NewChannelSet(dims int, indices ...int) ChannelSet {
	bits := make([]bool, dims)
	for _, i := range indices {
		if i >= 0 && i < dims {
			bits[i] = true
		}
	}
	return ChannelSet{bits: bits}
}

// Contains reports whether channel i is in the set.
func (s ChannelSet) Contains(i int) bool {
	return i >= 0 && i < len(s.bits) && s.bits[i]
}

// Indices returns the member indices in ascending order.
func (s ChannelSet) Indices() []int {
	var out []int
	for i, b := range s.bits {
		if b {
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out
}

// Layout describes where expression and pose channels live inside an
// explicit bundle. Index ranges are half-open [Start, End). The exact split
// is model-specific, so it is carried as data instead of being hard-coded.
type Layout struct {
	ExpStart  int `json:"exp_start"`
	ExpEnd    int `json:"exp_end"`
	PoseStart int `json:"pose_start"`
	PoseEnd   int `json:"pose_end"`

	// Lip channels pass through the governor bit-exact; lip-sync belongs to
	// the animation model.
	Lip ChannelSet `json:"-"`

	// Identity channels likewise pass through bit-exact.
	Identity ChannelSet `json:"-"`
}

// DetectLayout returns the conventional layout for known explicit coefficient
// widths. The 257-dim layout is id(80) + exp(64) + tex(80) + angles(3) +
// gamma(27) + trans(3); 224-dim drops the trailing pose block.
func DetectLayout(dims int) (Layout, error) {
	switch {
	case dims >= 227:
		identity := make([]int, 80)
		for i := range identity {
			identity[i] = i
		}
		return Layout{
			ExpStart:  80,
			ExpEnd:    144,
			PoseStart: 224,
			PoseEnd:   227,
			Identity:  NewChannelSet(dims, identity...),
		}, nil
	case dims >= 224:
		identity := make([]int, 80)
		for i := range identity {
			identity[i] = i
		}
		// No pose block; governor operates on expression only.
		return Layout{
			ExpStart: 80,
			ExpEnd:   144,
			Identity: NewChannelSet(dims, identity...),
		}, nil
	case dims >= 67:
		return Layout{
			ExpStart:  0,
			ExpEnd:    64,
			PoseStart: 64,
			PoseEnd:   67,
		}, nil
	default:
		return Layout{}, fmt.Errorf("coeff: unsupported coefficient width %d", dims)
	}
}

// HasPose reports whether the layout declares a pose block.
func (l Layout) HasPose() bool { return l.PoseEnd > l.PoseStart }

// HasExp reports whether the layout declares an expression block.
func (l Layout) HasExp() bool { return l.ExpEnd > l.ExpStart }

// Bundle is a [Frames, Dims] table of per-frame motion coefficients stored
// row-major in a single slice. Bundles are treated as immutable by callers;
// stages that transform a bundle return a new one.
type Bundle struct {
	Frames int
	Dims   int

	// Data holds Frames*Dims values, row-major.
	Data []float64

	// Layout is only meaningful for explicit bundles.
	Layout Layout
}

// New builds a Bundle and detects its layout from dims. Compact bundles get
// a zero Layout since their channels are opaque.
func New(frames, dims int, data []float64) (*Bundle, error) {
	if frames <= 0 || dims <= 0 {
		return nil, fmt.Errorf("coeff: invalid shape %dx%d", frames, dims)
	}
	if len(data) != frames*dims {
		return nil, fmt.Errorf("coeff: data length %d does not match shape %dx%d", len(data), frames, dims)
	}
	b := &Bundle{Frames: frames, Dims: dims, Data: data}
	if !b.IsCompact() {
		layout, err := DetectLayout(dims)
		if err != nil {
			return nil, err
		}
		b.Layout = layout
	}
	return b, nil
}

// NewExplicit builds a Bundle with a caller-supplied layout, for models whose
// channel arrangement differs from the conventional splits.
func NewExplicit(frames, dims int, data []float64, layout Layout) (*Bundle, error) {
	if frames <= 0 || dims <= 0 {
		return nil, fmt.Errorf("coeff: invalid shape %dx%d", frames, dims)
	}
	if len(data) != frames*dims {
		return nil, fmt.Errorf("coeff: data length %d does not match shape %dx%d", len(data), frames, dims)
	}
	if layout.ExpEnd > dims || layout.PoseEnd > dims {
		return nil, fmt.Errorf("coeff: layout exceeds %d dims", dims)
	}
	return &Bundle{Frames: frames, Dims: dims, Data: data, Layout: layout}, nil
}

// IsCompact reports whether this is a latent (compact) bundle.
func (b *Bundle) IsCompact() bool { return b.Dims < compactThreshold }

// At returns the value at frame t, channel d.
func (b *Bundle) At(t, d int) float64 { return b.Data[t*b.Dims+d] }

// Set stores v at frame t, channel d.
func (b *Bundle) Set(t, d int, v float64) { b.Data[t*b.Dims+d] = v }

// Row returns the coefficient row for frame t, aliasing the bundle's storage.
func (b *Bundle) Row(t int) []float64 {
	return b.Data[t*b.Dims : (t+1)*b.Dims]
}

// Clone returns a deep copy sharing no storage with b.
func (b *Bundle) Clone() *Bundle {
	data := make([]float64, len(b.Data))
	copy(data, b.Data)
	return &Bundle{Frames: b.Frames, Dims: b.Dims, Data: data, Layout: b.Layout}
}

// IsFinite reports whether every value in the bundle is finite.
func (b *Bundle) IsFinite() bool {
	for _, v := range b.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
