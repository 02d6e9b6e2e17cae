// Package audio provides the PCM primitives shared by the synthesis and
// governance stages: RIFF/WAVE encoding and decoding, silence generation,
// linear resampling, and short-time RMS energy analysis.
//
// All PCM in this package is little-endian signed 16-bit. Durations are
// derived from sample counts, never from container metadata, so that timing
// maps stay consistent with the bytes actually written to disk.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

// Info holds the format metadata extracted from a RIFF/WAVE header.
type Info struct {
	// DataOffset is the byte offset of the first PCM sample.
	DataOffset int

	// SampleRate is samples per second (e.g., 22050, 24000, 48000).
	SampleRate int

	// Channels is 1 for mono, 2 for stereo.
	Channels int
}

// ParseWAV scans the RIFF/WAVE container in wav and returns the data offset
// and audio format from the "fmt " sub-chunk. Walking the chunk list is more
// robust than assuming a fixed 44-byte header because the fmt chunk size may
// vary between encoders.
func ParseWAV(wav []byte) (Info, error) {
	if len(wav) < 12 {
		return Info{}, errors.New("audio: WAV data too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return Info{}, errors.New("audio: missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return Info{}, errors.New("audio: missing WAVE identifier")
	}

	var info Info
	foundFmt := false

	// Walk RIFF chunks starting after the 12-byte RIFF/WAVE header.
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				foundFmt = true
			}
		case "data":
			info.DataOffset = offset + 8
			if !foundFmt {
				// fmt chunk should appear before data, but be lenient.
				info.SampleRate = 22050
				info.Channels = 1
			}
			return info, nil
		}

		// Chunks are word-aligned: pad by 1 if odd size.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return Info{}, errors.New("audio: WAV data missing data chunk")
}

// EncodeWAV wraps raw 16-bit PCM in a minimal RIFF/WAVE container.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const headerSize = 44
	out := make([]byte, headerSize+len(pcm))

	byteRate := sampleRate * channels * 2
	blockAlign := channels * 2

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], 16) // bits per sample

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[44:], pcm)

	return out
}

// WriteWAV writes pcm as a 16-bit mono WAV file at path. The file is synced
// before WriteWAV returns so downstream stages observe complete data.
func WriteWAV(path string, pcm []byte, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: create %q: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(EncodeWAV(pcm, sampleRate, 1)); err != nil {
		return fmt.Errorf("audio: write %q: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("audio: sync %q: %w", path, err)
	}
	return nil
}

// ReadWAV reads a WAV file and returns its raw PCM payload and format info.
func ReadWAV(path string) ([]byte, Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Info{}, fmt.Errorf("audio: read %q: %w", path, err)
	}
	info, err := ParseWAV(data)
	if err != nil {
		return nil, Info{}, err
	}
	return data[info.DataOffset:], info, nil
}

// Silence returns a run of zero samples covering seconds of audio at the
// given sample rate. A non-positive duration returns nil — not a single
// sample is emitted.
func Silence(seconds float64, sampleRate int) []byte {
	if seconds <= 0 {
		return nil
	}
	samples := int(seconds * float64(sampleRate))
	return make([]byte, samples*2)
}

// Duration returns the playback length in seconds of 16-bit mono PCM.
func Duration(pcm []byte, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(len(pcm)/2) / float64(sampleRate)
}
