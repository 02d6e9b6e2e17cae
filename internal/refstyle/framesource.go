// Package refstyle builds motion style profiles from reference videos. It
// samples frames, estimates head pose per frame through a vision provider,
// and derives a StyleProfile from the aggregate pose statistics.
package refstyle

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Frame is one sampled video frame.
type Frame struct {
	// Index is the frame's position within the sampled sequence.
	Index int

	// JPEG is the encoded frame image.
	JPEG []byte
}

// FrameSource yields sampled frames from a video.
type FrameSource interface {
	// Sample decodes every stride-th frame until end of stream.
	Sample(ctx context.Context, stride int) ([]Frame, error)

	// Duration returns the video length in seconds.
	Duration(ctx context.Context) (float64, error)
}

// VideoFile reads frames from a video file through ffmpeg.
type VideoFile struct {
	path    string
	ffmpeg  string
	ffprobe string
}

// VideoOption configures a VideoFile.
type VideoOption func(*VideoFile)

// WithFFmpeg overrides the ffmpeg binary path.
func WithFFmpeg(path string) VideoOption {
	return func(v *VideoFile) { v.ffmpeg = path }
}

// WithFFprobe overrides the ffprobe binary path.
func WithFFprobe(path string) VideoOption {
	return func(v *VideoFile) { v.ffprobe = path }
}

// NewVideoFile wraps a video file on disk.
func NewVideoFile(path string, opts ...VideoOption) (*VideoFile, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("refstyle: video path is required")
	}
	v := &VideoFile{path: path, ffmpeg: "ffmpeg", ffprobe: "ffprobe"}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Sample shells out to ffmpeg and decodes every stride-th frame as JPEG via
// an image2pipe MJPEG stream.
func (v *VideoFile) Sample(ctx context.Context, stride int) ([]Frame, error) {
	if stride <= 0 {
		stride = 1
	}
	cmd := exec.CommandContext(ctx, v.ffmpeg,
		"-hide_banner", "-loglevel", "error",
		"-i", v.path,
		"-vf", fmt.Sprintf("select=not(mod(n\\,%d))", stride),
		"-vsync", "vfr",
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("refstyle: ffmpeg frame sampling for %q: %w (%s)",
			v.path, err, strings.TrimSpace(stderr.String()))
	}

	images := splitMJPEG(stdout.Bytes())
	frames := make([]Frame, len(images))
	for i, img := range images {
		frames[i] = Frame{Index: i, JPEG: img}
	}
	return frames, nil
}

// Duration queries ffprobe for the container duration.
func (v *VideoFile) Duration(ctx context.Context) (float64, error) {
	cmd := exec.CommandContext(ctx, v.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		v.path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("refstyle: ffprobe duration for %q: %w", v.path, err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("refstyle: parse duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return d, nil
}

var (
	jpegSOI = []byte{0xFF, 0xD8, 0xFF}
	jpegEOI = []byte{0xFF, 0xD9}
)

// splitMJPEG slices a concatenated MJPEG stream into individual JPEG images
// by pairing start-of-image and end-of-image markers. Trailing partial data
// is dropped.
func splitMJPEG(data []byte) [][]byte {
	var images [][]byte
	for {
		start := bytes.Index(data, jpegSOI)
		if start < 0 {
			break
		}
		end := bytes.Index(data[start:], jpegEOI)
		if end < 0 {
			break
		}
		end += start + len(jpegEOI)
		images = append(images, data[start:end])
		data = data[end:]
	}
	return images
}
