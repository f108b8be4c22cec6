package audio

import (
	"errors"
	"fmt"
	"os"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ReadWavAsFloat64 reads a PCM WAV file and returns mono samples normalized
// to [-1, 1] plus the sample rate. Stereo input is downmixed by averaging
// the channels.
func ReadWavAsFloat64(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%s: not a valid WAV file", path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("reading PCM data: %w", err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, 0, errors.New("empty PCM buffer")
	}

	channels := buf.Format.NumChannels
	if channels < 1 || channels > 2 {
		return nil, 0, fmt.Errorf("unsupported channel count %d: only mono/stereo supported", channels)
	}

	samples := toMonoFloat64(buf, channels)
	return samples, buf.Format.SampleRate, nil
}

func toMonoFloat64(buf *gaudio.IntBuffer, channels int) []float64 {
	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := 1.0 / float64(int(1)<<(bitDepth-1))

	if channels == 1 {
		out := make([]float64, len(buf.Data))
		for i, s := range buf.Data {
			out[i] = float64(s) * scale
		}
		return out
	}

	frames := len(buf.Data) / 2
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		l := float64(buf.Data[2*i]) * scale
		r := float64(buf.Data[2*i+1]) * scale
		out[i] = (l + r) * 0.5
	}
	return out
}
