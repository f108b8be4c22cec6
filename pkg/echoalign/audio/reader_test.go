package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func writeTestWav(t *testing.T, path string, data []int, channels, sampleRate int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating wav file: %v", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("writing wav data: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("closing encoder: %v", err)
	}
}

func TestReadWavAsFloat64Mono(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mono.wav")
	data := []int{0, 16384, -16384, 32767, -32768}
	writeTestWav(t, path, data, 1, 8000)

	samples, rate, err := ReadWavAsFloat64(path)
	if err != nil {
		t.Fatalf("ReadWavAsFloat64 failed: %v", err)
	}
	if rate != 8000 {
		t.Errorf("sample rate = %d, want 8000", rate)
	}
	if len(samples) != len(data) {
		t.Fatalf("got %d samples, want %d", len(samples), len(data))
	}

	want := []float64{0, 0.5, -0.5, 32767.0 / 32768.0, -1.0}
	for i := range want {
		if math.Abs(samples[i]-want[i]) > 1e-9 {
			t.Errorf("sample %d = %v, want %v", i, samples[i], want[i])
		}
	}
}

func TestReadWavAsFloat64StereoDownmix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	// Interleaved L/R pairs; the reader averages them.
	data := []int{16384, 0, 0, -16384, 16384, 16384}
	writeTestWav(t, path, data, 2, 44100)

	samples, rate, err := ReadWavAsFloat64(path)
	if err != nil {
		t.Fatalf("ReadWavAsFloat64 failed: %v", err)
	}
	if rate != 44100 {
		t.Errorf("sample rate = %d, want 44100", rate)
	}
	if len(samples) != 3 {
		t.Fatalf("got %d frames, want 3", len(samples))
	}

	want := []float64{0.25, -0.25, 0.5}
	for i := range want {
		if math.Abs(samples[i]-want[i]) > 1e-9 {
			t.Errorf("frame %d = %v, want %v", i, samples[i], want[i])
		}
	}
}

func TestReadWavAsFloat64MissingFile(t *testing.T) {
	if _, _, err := ReadWavAsFloat64(filepath.Join(t.TempDir(), "nope.wav")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestReadWavAsFloat64NotAWav(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.wav")
	if err := os.WriteFile(path, []byte("definitely not riff data"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := ReadWavAsFloat64(path); err == nil {
		t.Error("expected error for a non-WAV file")
	}
}
