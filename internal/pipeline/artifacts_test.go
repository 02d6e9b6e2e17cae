package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lumenlabs/lumen/pkg/audio"
	"github.com/lumenlabs/lumen/pkg/intent"
)

func TestArtifactStore_WritesAllArtifacts(t *testing.T) {
	store, err := NewArtifactStore(filepath.Join(t.TempDir(), "outputs"))
	if err != nil {
		t.Fatalf("NewArtifactStore: %v", err)
	}

	arts, err := store.Begin("req-123")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	script, err := intent.NewScriptIntent([]intent.SegmentIntent{
		{Text: "Hello.", SentenceEnd: true},
	})
	if err != nil {
		t.Fatalf("NewScriptIntent: %v", err)
	}
	timing, err := intent.NewTimingMap([]intent.TimingSegment{
		{SegmentIdx: 0, StartTime: 0, EndTime: 1, SentenceEnd: true},
	}, 1.0, 25)
	if err != nil {
		t.Fatalf("NewTimingMap: %v", err)
	}

	pcm := make([]byte, 3200)
	if err := arts.WriteScript(script); err != nil {
		t.Fatalf("WriteScript: %v", err)
	}
	if err := arts.WriteTiming(timing); err != nil {
		t.Fatalf("WriteTiming: %v", err)
	}
	if err := arts.WriteAudio(pcm, 16000); err != nil {
		t.Fatalf("WriteAudio: %v", err)
	}
	if err := arts.WriteVideo([]byte("video")); err != nil {
		t.Fatalf("WriteVideo: %v", err)
	}

	// Round-trip the structured artifacts.
	loadedScript, err := intent.LoadScriptIntent(filepath.Join(arts.Dir(), "script.json"))
	if err != nil {
		t.Fatalf("LoadScriptIntent: %v", err)
	}
	if loadedScript.PlainText() != "Hello." {
		t.Errorf("script text = %q", loadedScript.PlainText())
	}
	loadedTiming, err := intent.LoadTimingMap(filepath.Join(arts.Dir(), "timing.json"))
	if err != nil {
		t.Fatalf("LoadTimingMap: %v", err)
	}
	if loadedTiming.TotalDuration != 1.0 {
		t.Errorf("timing duration = %v", loadedTiming.TotalDuration)
	}

	// The audio artifact is a valid WAV with the original PCM.
	gotPCM, info, err := audio.ReadWAV(arts.AudioPath())
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if info.SampleRate != 16000 {
		t.Errorf("sample rate = %d", info.SampleRate)
	}
	if len(gotPCM) != len(pcm) {
		t.Errorf("pcm length = %d, want %d", len(gotPCM), len(pcm))
	}
}

func TestArtifactStore_URLs(t *testing.T) {
	store, err := NewArtifactStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewArtifactStore: %v", err)
	}
	arts, err := store.Begin("abc")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if arts.AudioURL() != "/outputs/abc/audio.wav" {
		t.Errorf("audio URL = %q", arts.AudioURL())
	}
	if arts.VideoURL() != "/outputs/abc/video.mp4" {
		t.Errorf("video URL = %q", arts.VideoURL())
	}
}

func TestArtifactStore_NoPartialFiles(t *testing.T) {
	store, err := NewArtifactStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewArtifactStore: %v", err)
	}
	arts, err := store.Begin("tmp-check")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := arts.WriteVideo([]byte("final")); err != nil {
		t.Fatalf("WriteVideo: %v", err)
	}

	entries, err := os.ReadDir(arts.Dir())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "video.mp4" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("leftover files: %v", names)
	}
}

func TestNewArtifactStore_RequiresRoot(t *testing.T) {
	if _, err := NewArtifactStore(""); err == nil {
		t.Error("expected error for empty root")
	}
}
