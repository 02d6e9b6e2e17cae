package refstyle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lumenlabs/lumen/internal/governor"
	"github.com/lumenlabs/lumen/pkg/provider/vision"
)

// ErrInsufficientReferenceData is returned when too few frames yield a valid
// pose measurement to derive a style.
var ErrInsufficientReferenceData = errors.New("refstyle: insufficient face detections in reference video")

const (
	defaultStride      = 3
	defaultConcurrency = 4

	// minValidFrames is the minimum number of pose measurements required.
	minValidFrames = 10
)

// MediaPipe face mesh indices for the pose landmarks. A provider returning
// fewer points than this cannot drive the dense path.
const (
	lmNoseTip         = 1
	lmLeftEye         = 33
	lmRightEye        = 263
	minDenseLandmarks = 264
)

// pose is one per-frame head pose estimate in radians.
type pose struct {
	yaw, pitch, roll float64

	// dense is false when the estimate came from the face-box fallback,
	// which cannot observe roll.
	dense bool
}

// Extractor derives style profiles from reference videos.
type Extractor struct {
	vision      vision.Provider
	stride      int
	concurrency int
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithStride sets how many frames are skipped between samples (3 to 5 is the
// useful range; ~50 to 100 samples per 10 s of video).
func WithStride(n int) ExtractorOption {
	return func(e *Extractor) {
		if n > 0 {
			e.stride = n
		}
	}
}

// WithConcurrency bounds how many frames are analysed in parallel.
func WithConcurrency(n int) ExtractorOption {
	return func(e *Extractor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// NewExtractor wraps a vision provider.
func NewExtractor(provider vision.Provider, opts ...ExtractorOption) (*Extractor, error) {
	if provider == nil {
		return nil, fmt.Errorf("refstyle: vision provider is required")
	}
	e := &Extractor{vision: provider, stride: defaultStride, concurrency: defaultConcurrency}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// BuildStyle samples the source video, estimates per-frame head pose, and
// derives a named StyleProfile from the pose statistics. Frames where both
// the dense landmark path and the face-box fallback fail are skipped; fewer
// than 10 usable frames raises ErrInsufficientReferenceData.
func (e *Extractor) BuildStyle(ctx context.Context, source FrameSource, name string) (governor.StyleProfile, error) {
	frames, err := source.Sample(ctx, e.stride)
	if err != nil {
		return governor.StyleProfile{}, err
	}
	duration, err := source.Duration(ctx)
	if err != nil {
		return governor.StyleProfile{}, err
	}
	if duration <= 0 {
		return governor.StyleProfile{}, fmt.Errorf("refstyle: non-positive video duration %v", duration)
	}

	// Indexed by frame so the pitch series keeps temporal order regardless
	// of which goroutine finishes first.
	poses := make([]*pose, len(frames))
	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(e.concurrency)
	for _, frame := range frames {
		frame := frame
		eg.Go(func() error {
			p, ok := e.estimatePose(egCtx, frame.JPEG)
			if !ok {
				return egCtx.Err()
			}
			mu.Lock()
			poses[frame.Index] = &p
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return governor.StyleProfile{}, fmt.Errorf("refstyle: frame analysis: %w", err)
	}

	var yaw, pitch, roll []float64
	denseCount := 0
	for _, p := range poses {
		if p == nil {
			continue
		}
		yaw = append(yaw, p.yaw)
		pitch = append(pitch, p.pitch)
		roll = append(roll, p.roll)
		if p.dense {
			denseCount++
		}
	}
	if len(yaw) < minValidFrames {
		return governor.StyleProfile{}, fmt.Errorf("%w: %d of %d frames usable",
			ErrInsufficientReferenceData, len(yaw), len(frames))
	}

	slog.Info("reference pose extraction complete",
		"name", name,
		"frames_sampled", len(frames),
		"frames_valid", len(yaw),
		"frames_dense", denseCount,
		"duration_s", duration)

	return deriveProfile(name, yaw, pitch, roll, duration), nil
}

// estimatePose tries the dense landmark path first and falls back to
// face-box tracking. The second return is false when neither path yields a
// measurement.
func (e *Extractor) estimatePose(ctx context.Context, jpeg []byte) (pose, bool) {
	marks, err := e.vision.DetectLandmarks(ctx, jpeg)
	if err == nil && len(marks) >= minDenseLandmarks {
		return poseFromLandmarks(marks), true
	}
	if err != nil && !errors.Is(err, vision.ErrNoFace) {
		slog.Debug("landmark detection failed, trying face box", "error", err)
	}

	box, err := e.vision.DetectFace(ctx, jpeg)
	if err != nil || box == nil {
		return pose{}, false
	}
	return poseFromFaceBox(*box), true
}

// poseFromLandmarks estimates head rotation from face mesh geometry. All
// coordinates are normalised to [0, 1]; the small-angle construction follows
// the displacement of the nose tip from the eye line.
func poseFromLandmarks(marks []vision.Landmark) pose {
	nose := marks[lmNoseTip]
	left := marks[lmLeftEye]
	right := marks[lmRightEye]

	eyeCX := (left.X + right.X) / 2
	eyeCY := (left.Y + right.Y) / 2

	return pose{
		yaw:   math.Atan2(nose.X-eyeCX, 0.3) * 2,
		pitch: math.Atan2(nose.Y-eyeCY, 0.3) * 2,
		roll:  math.Atan2(right.Y-left.Y, right.X-left.X),
		dense: true,
	}
}

// poseFromFaceBox approximates yaw and pitch from the face centroid's offset
// from frame centre. Roll cannot be observed this way and stays zero.
func poseFromFaceBox(box vision.FaceBox) pose {
	cx := box.X + box.Width/2 - 0.5
	cy := box.Y + box.Height/2 - 0.5
	return pose{
		yaw:   cx * 0.6,
		pitch: cy * 0.5,
	}
}
