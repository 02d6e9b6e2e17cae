package refstyle

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"github.com/lumenlabs/lumen/pkg/provider/vision"
	"github.com/lumenlabs/lumen/pkg/provider/vision/mock"
)

type fakeSource struct {
	frames   []Frame
	duration float64
	err      error
}

func (f *fakeSource) Sample(_ context.Context, _ int) ([]Frame, error) {
	return f.frames, f.err
}

func (f *fakeSource) Duration(_ context.Context) (float64, error) {
	return f.duration, nil
}

// alternating returns a zero-mean series flipping between +amp and -amp, so
// its standard deviation is exactly amp.
func alternating(n int, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = amp
		} else {
			out[i] = -amp
		}
	}
	return out
}

func TestDeriveProfile_CalmReference(t *testing.T) {
	// yaw/pitch/roll stds of 0.08/0.05/0.02 sum to 0.15, well inside the
	// calm band.
	n := 20
	p := deriveProfile("ref", alternating(n, 0.08), alternating(n, 0.05), alternating(n, 0.02), 10.0)

	if p.Smoothing != 0.85 || p.StillnessOnPause != 0.90 || p.ExprStrength != 0.6 {
		t.Errorf("calm band params = %v/%v/%v, want 0.85/0.90/0.6",
			p.Smoothing, p.StillnessOnPause, p.ExprStrength)
	}
	if math.Abs(p.StillnessExprOnPause-0.95) > 1e-9 {
		t.Errorf("expr stillness = %v, want pose stillness + 0.05", p.StillnessExprOnPause)
	}
	// P95 of a two-valued |series| is the value itself.
	if math.Abs(p.PoseMax[0]-0.08) > 1e-9 {
		t.Errorf("pose_max yaw = %v, want 0.08", p.PoseMax[0])
	}
	// Every sample reverses pitch direction: 18 sign changes over 10 s.
	if math.Abs(p.NodRate-1.8) > 1e-9 {
		t.Errorf("nod_rate = %v, want 1.8", p.NodRate)
	}
	if math.Abs(p.NodAmplitude-0.025) > 1e-9 {
		t.Errorf("nod_amplitude = %v, want std(pitch)*0.5 = 0.025", p.NodAmplitude)
	}
	if p.ExprMax != 3.0 {
		t.Errorf("expr_max = %v, want 3.0", p.ExprMax)
	}
}

func TestDeriveProfile_EnergyBands(t *testing.T) {
	n := 30
	tests := []struct {
		amp           float64 // same per axis; energy = 3*amp
		wantSmoothing float64
	}{
		{0.05, 0.85}, // energy 0.15
		{0.15, 0.70}, // energy 0.45
		{0.25, 0.60}, // energy 0.75
	}
	for _, tt := range tests {
		p := deriveProfile("x", alternating(n, tt.amp), alternating(n, tt.amp), alternating(n, tt.amp), 10)
		if p.Smoothing != tt.wantSmoothing {
			t.Errorf("amp %v: smoothing = %v, want %v", tt.amp, p.Smoothing, tt.wantSmoothing)
		}
	}
}

func TestDeriveProfile_PoseScaleClamped(t *testing.T) {
	n := 30
	// Nearly static: every scale clamps to the 0.3 floor.
	low := deriveProfile("low", alternating(n, 0.01), alternating(n, 0.02), alternating(n, 0.02), 10)
	for k, s := range low.PoseScale {
		if s != 0.3 && k != 2 { // roll may take the fallback default
			t.Errorf("axis %d scale = %v, want floor 0.3", k, s)
		}
	}
	// Wild: every scale clamps to 1.0.
	high := deriveProfile("high", alternating(n, 1.0), alternating(n, 1.0), alternating(n, 1.0), 10)
	for k, s := range high.PoseScale {
		if s != 1.0 {
			t.Errorf("axis %d scale = %v, want ceiling 1.0", k, s)
		}
	}
}

func TestDeriveProfile_RollFallbackDefaults(t *testing.T) {
	n := 20
	p := deriveProfile("box", alternating(n, 0.1), alternating(n, 0.1), make([]float64, n), 10)
	if p.PoseMax[2] != 0.2 {
		t.Errorf("roll pose_max = %v, want fallback 0.2", p.PoseMax[2])
	}
	if p.PoseScale[2] != 0.4 {
		t.Errorf("roll pose_scale = %v, want fallback 0.4", p.PoseScale[2])
	}
}

// denseMarks builds a full landmark set with the pose-relevant points placed
// so the nose sits dx/dy away from the eye centre.
func denseMarks(dx, dy float64) []vision.Landmark {
	marks := make([]vision.Landmark, minDenseLandmarks)
	marks[lmLeftEye] = vision.Landmark{X: 0.4, Y: 0.4}
	marks[lmRightEye] = vision.Landmark{X: 0.6, Y: 0.4}
	marks[lmNoseTip] = vision.Landmark{X: 0.5 + dx, Y: 0.4 + dy}
	return marks
}

func frameSet(n int) []Frame {
	frames := make([]Frame, n)
	for i := range frames {
		frames[i] = Frame{Index: i, JPEG: []byte{byte(i)}}
	}
	return frames
}

func TestBuildStyle_DensePath(t *testing.T) {
	v := &mock.Provider{
		LandmarksFunc: func(_ int, jpeg []byte) ([]vision.Landmark, error) {
			// Nose oscillates horizontally by frame parity.
			dx := 0.05
			if jpeg[0]%2 == 1 {
				dx = -0.05
			}
			return denseMarks(dx, 0.02), nil
		},
	}
	e, err := NewExtractor(v, WithConcurrency(2))
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}

	src := &fakeSource{frames: frameSet(24), duration: 8.0}
	p, err := e.BuildStyle(context.Background(), src, "creator")
	if err != nil {
		t.Fatalf("BuildStyle: %v", err)
	}
	if p.Name != "creator" {
		t.Errorf("name = %q", p.Name)
	}
	if p.PoseMax[0] <= 0 {
		t.Error("yaw ceiling should be positive for an oscillating nose")
	}
	if p.Smoothing == 0 {
		t.Error("temperament parameters must be set")
	}
}

func TestBuildStyle_FaceBoxFallback(t *testing.T) {
	v := &mock.Provider{
		LandmarksErr: vision.ErrNoFace,
		Face:         &vision.FaceBox{X: 0.3, Y: 0.3, Width: 0.3, Height: 0.3, Confidence: 0.9},
	}
	e, _ := NewExtractor(v)

	p, err := e.BuildStyle(context.Background(), &fakeSource{frames: frameSet(15), duration: 5}, "fallback")
	if err != nil {
		t.Fatalf("BuildStyle: %v", err)
	}
	// The box path cannot observe roll, so the conservative defaults apply.
	if p.PoseMax[2] != 0.2 || p.PoseScale[2] != 0.4 {
		t.Errorf("roll defaults = %v/%v, want 0.2/0.4", p.PoseMax[2], p.PoseScale[2])
	}
	if v.FaceCallCount != 15 {
		t.Errorf("face detections = %d, want 15", v.FaceCallCount)
	}
}

func TestBuildStyle_InsufficientFrames(t *testing.T) {
	v := &mock.Provider{LandmarksErr: vision.ErrNoFace, FaceErr: vision.ErrNoFace}
	e, _ := NewExtractor(v)

	_, err := e.BuildStyle(context.Background(), &fakeSource{frames: frameSet(30), duration: 10}, "none")
	if !errors.Is(err, ErrInsufficientReferenceData) {
		t.Fatalf("err = %v, want ErrInsufficientReferenceData", err)
	}
}

func TestBuildStyle_SourceError(t *testing.T) {
	v := &mock.Provider{}
	e, _ := NewExtractor(v)
	wantErr := errors.New("decode failed")
	if _, err := e.BuildStyle(context.Background(), &fakeSource{err: wantErr}, "x"); !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want source error", err)
	}
}

func TestSplitMJPEG(t *testing.T) {
	img1 := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x01, 0x02, 0xFF, 0xD9}
	img2 := []byte{0xFF, 0xD8, 0xFF, 0xDB, 0x03, 0x04, 0x05, 0xFF, 0xD9}
	stream := append(append([]byte{}, img1...), img2...)
	// Trailing partial image must be dropped.
	stream = append(stream, 0xFF, 0xD8, 0xFF, 0x06)

	images := splitMJPEG(stream)
	if len(images) != 2 {
		t.Fatalf("images = %d, want 2", len(images))
	}
	if !bytes.Equal(images[0], img1) || !bytes.Equal(images[1], img2) {
		t.Error("image boundaries misaligned")
	}
}

func TestPitchSignChanges(t *testing.T) {
	tests := []struct {
		name  string
		pitch []float64
		want  int
	}{
		{"monotonic", []float64{0, 1, 2, 3}, 0},
		{"one reversal", []float64{0, 1, 0.5}, 1},
		{"alternating", []float64{0, 1, 0, 1, 0}, 3},
		{"flat", []float64{1, 1, 1}, 0},
		{"flat then reversal", []float64{0, 0, 1, 1, 0}, 1},
	}
	for _, tt := range tests {
		if got := pitchSignChanges(tt.pitch); got != tt.want {
			t.Errorf("%s: changes = %d, want %d", tt.name, got, tt.want)
		}
	}
}
