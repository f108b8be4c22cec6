package audio

import (
	"context"
	"fmt"

	"github.com/himanishpuri/EchoAlign/pkg/echoalign/model"
)

// Decoder converts media files into AudioSignals at a target analysis rate.
type Decoder struct {
	TempDir    string
	SampleRate int
}

// NewDecoder returns a Decoder writing intermediate WAVs to tempDir and
// resampling to sampleRate.
func NewDecoder(tempDir string, sampleRate int) *Decoder {
	if sampleRate == 0 {
		sampleRate = 11025
	}
	return &Decoder{TempDir: tempDir, SampleRate: sampleRate}
}

// Decode probes the source, converts it to mono WAV at the analysis rate and
// returns the samples. The signal remembers the source's native sample rate
// so offsets can be reported against it.
func (d *Decoder) Decode(ctx context.Context, path string) (*model.AudioSignal, error) {
	meta, err := ReadMetadataFFmpeg(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", path, err)
	}

	wavPath, err := ConvertToMonoWAV(ctx, path, d.TempDir, ConvertWAVConfig{
		SampleRate: d.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("converting %s: %w", path, err)
	}

	samples, rate, err := ReadWavAsFloat64(wavPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", wavPath, err)
	}

	return &model.AudioSignal{
		Samples:          samples,
		SampleRate:       rate,
		NativeSampleRate: meta.SampleRate,
		Channels:         1,
	}, nil
}
