package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lumenlabs/lumen/pkg/audio"
	"github.com/lumenlabs/lumen/pkg/intent"
)

// Artifact file names inside a request directory.
const (
	artifactScript = "script.json"
	artifactTiming = "timing.json"
	artifactAudio  = "audio.wav"
	artifactVideo  = "video.mp4"
)

// ArtifactStore persists per-request pipeline outputs under
// <root>/<request_id>/. Every write is synced to disk before returning so a
// crash mid-pipeline never leaves a later stage referencing a missing or
// truncated earlier artifact.
type ArtifactStore struct {
	root string
}

// NewArtifactStore creates the root directory if needed.
func NewArtifactStore(root string) (*ArtifactStore, error) {
	if root == "" {
		return nil, fmt.Errorf("pipeline: artifact root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("pipeline: create artifact root %q: %w", root, err)
	}
	return &ArtifactStore{root: root}, nil
}

// Root returns the store's root directory.
func (s *ArtifactStore) Root() string { return s.root }

// Begin creates the directory for one request and returns a handle to it.
func (s *ArtifactStore) Begin(requestID string) (*RequestArtifacts, error) {
	dir := filepath.Join(s.root, requestID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("pipeline: create request dir %q: %w", dir, err)
	}
	return &RequestArtifacts{dir: dir, requestID: requestID}, nil
}

// RequestArtifacts writes the artifacts of a single pipeline run.
type RequestArtifacts struct {
	dir       string
	requestID string
}

// Dir returns the request's artifact directory.
func (a *RequestArtifacts) Dir() string { return a.dir }

// WriteScript persists the annotated script as script.json.
func (a *RequestArtifacts) WriteScript(script *intent.ScriptIntent) error {
	return a.writeJSON(artifactScript, script)
}

// WriteTiming persists the timing map as timing.json.
func (a *RequestArtifacts) WriteTiming(timing *intent.TimingMap) error {
	return a.writeJSON(artifactTiming, timing)
}

// WriteAudio persists mono 16-bit PCM as audio.wav.
func (a *RequestArtifacts) WriteAudio(pcm []byte, sampleRate int) error {
	return a.writeSynced(artifactAudio, audio.EncodeWAV(pcm, sampleRate, 1))
}

// WriteVideo persists the rendered MP4 as video.mp4.
func (a *RequestArtifacts) WriteVideo(mp4 []byte) error {
	return a.writeSynced(artifactVideo, mp4)
}

// AudioPath returns the on-disk path of the audio artifact.
func (a *RequestArtifacts) AudioPath() string { return filepath.Join(a.dir, artifactAudio) }

// VideoPath returns the on-disk path of the video artifact.
func (a *RequestArtifacts) VideoPath() string { return filepath.Join(a.dir, artifactVideo) }

// AudioURL returns the artifact's path under the /outputs static route.
func (a *RequestArtifacts) AudioURL() string {
	return fmt.Sprintf("/outputs/%s/%s", a.requestID, artifactAudio)
}

// VideoURL returns the artifact's path under the /outputs static route.
func (a *RequestArtifacts) VideoURL() string {
	return fmt.Sprintf("/outputs/%s/%s", a.requestID, artifactVideo)
}

func (a *RequestArtifacts) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("pipeline: marshal %s: %w", name, err)
	}
	return a.writeSynced(name, data)
}

// writeSynced writes to a temp file, fsyncs, then renames into place so
// readers under /outputs never observe a partial artifact.
func (a *RequestArtifacts) writeSynced(name string, data []byte) error {
	path := filepath.Join(a.dir, name)
	tmp, err := os.CreateTemp(a.dir, name+".tmp*")
	if err != nil {
		return fmt.Errorf("pipeline: create temp for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("pipeline: write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("pipeline: sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("pipeline: close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("pipeline: rename %s: %w", name, err)
	}
	return nil
}
