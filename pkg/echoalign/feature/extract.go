package feature

import (
	"fmt"
	"math"

	"github.com/himanishpuri/EchoAlign/pkg/echoalign/model"
)

// Config controls feature extraction parameters. The defaults are what the
// correlation pipeline was tuned against.
type Config struct {
	WindowSize       int
	HopSize          int
	RMSHopSeconds    float64
	MelBands         int
	MFCCCoefficients int
}

// DefaultConfig returns the standard extraction parameters.
func DefaultConfig() Config {
	return Config{
		WindowSize:       WindowSize,
		HopSize:          HopSize,
		RMSHopSeconds:    0.1,
		MelBands:         26,
		MFCCCoefficients: 13,
	}
}

// MinDuration is the minimum analyzable duration in seconds, per method.
// Below it the extractors fail with InsufficientAudioError.
const MinDuration = 1.0

// Extract computes the feature sequence for one method. Pure and
// deterministic: identical inputs produce identical output.
func Extract(signal *model.AudioSignal, method model.Method, cfg Config) (*model.FeatureVector, error) {
	if signal == nil || len(signal.Samples) == 0 {
		return nil, &model.InsufficientAudioError{Method: method, Duration: 0, Minimum: MinDuration}
	}
	if dur := signal.Duration(); dur < MinDuration {
		return nil, &model.InsufficientAudioError{Method: method, Duration: dur, Minimum: MinDuration}
	}

	switch method {
	case model.MethodRawWaveform:
		return extractWaveform(signal), nil
	case model.MethodRMSEnvelope:
		return extractRMSEnvelope(signal, cfg.RMSHopSeconds), nil
	case model.MethodSpectral:
		return extractSpectral(signal, cfg)
	case model.MethodMFCC:
		return extractMFCC(signal, cfg)
	case model.MethodOnset:
		return extractOnset(signal, cfg)
	default:
		return nil, fmt.Errorf("no extractor bound for method %s", method)
	}
}

// extractWaveform passes the raw samples through as a 1-dimensional feature
// at full rate. It is the only sample-accurate variant.
func extractWaveform(signal *model.AudioSignal) *model.FeatureVector {
	data := make([]float64, len(signal.Samples))
	copy(data, signal.Samples)
	return &model.FeatureVector{
		Method:     model.MethodRawWaveform,
		Data:       [][]float64{data},
		FrameHop:   1.0 / float64(signal.SampleRate),
		SampleRate: signal.SampleRate,
	}
}

// extractRMSEnvelope computes a coarse energy envelope. One frame per hop,
// window equal to the hop.
func extractRMSEnvelope(signal *model.AudioSignal, hopSeconds float64) *model.FeatureVector {
	if hopSeconds <= 0 {
		hopSeconds = 0.1
	}
	hop := int(hopSeconds * float64(signal.SampleRate))
	if hop < 1 {
		hop = 1
	}

	frames := len(signal.Samples) / hop
	env := make([]float64, frames)
	for t := 0; t < frames; t++ {
		sum := 0.0
		for i := t * hop; i < (t+1)*hop; i++ {
			sum += signal.Samples[i] * signal.Samples[i]
		}
		env[t] = math.Sqrt(sum / float64(hop))
	}

	return &model.FeatureVector{
		Method:     model.MethodRMSEnvelope,
		Data:       [][]float64{env},
		FrameHop:   float64(hop) / float64(signal.SampleRate),
		SampleRate: signal.SampleRate,
	}
}

// extractSpectral computes per-frame spectral centroid and flux.
func extractSpectral(signal *model.AudioSignal, cfg Config) (*model.FeatureVector, error) {
	spec, err := stftFor(signal, cfg, model.MethodSpectral)
	if err != nil {
		return nil, err
	}

	frames := len(spec)
	centroid := make([]float64, frames)
	flux := make([]float64, frames)

	binHz := float64(signal.SampleRate) / float64(cfg.WindowSize)
	for t, mag := range spec {
		var num, den float64
		for k, m := range mag {
			num += float64(k) * binHz * m
			den += m
		}
		if den > 0 {
			centroid[t] = num / den
		}
		if t > 0 {
			var f float64
			for k, m := range mag {
				d := m - spec[t-1][k]
				f += d * d
			}
			flux[t] = math.Sqrt(f)
		}
	}

	return &model.FeatureVector{
		Method:     model.MethodSpectral,
		Data:       [][]float64{centroid, flux},
		FrameHop:   float64(cfg.HopSize) / float64(signal.SampleRate),
		SampleRate: signal.SampleRate,
	}, nil
}

// extractOnset computes a half-wave rectified spectral flux onset strength
// curve.
func extractOnset(signal *model.AudioSignal, cfg Config) (*model.FeatureVector, error) {
	spec, err := stftFor(signal, cfg, model.MethodOnset)
	if err != nil {
		return nil, err
	}

	frames := len(spec)
	onset := make([]float64, frames)
	for t := 1; t < frames; t++ {
		var f float64
		for k, m := range spec[t] {
			if d := m - spec[t-1][k]; d > 0 {
				f += d
			}
		}
		onset[t] = f
	}

	return &model.FeatureVector{
		Method:     model.MethodOnset,
		Data:       [][]float64{onset},
		FrameHop:   float64(cfg.HopSize) / float64(signal.SampleRate),
		SampleRate: signal.SampleRate,
	}, nil
}

func stftFor(signal *model.AudioSignal, cfg Config, method model.Method) ([][]float64, error) {
	if cfg.WindowSize == 0 {
		cfg.WindowSize = WindowSize
	}
	if cfg.HopSize == 0 {
		cfg.HopSize = HopSize
	}
	if len(signal.Samples) < cfg.WindowSize {
		return nil, &model.InsufficientAudioError{
			Method:   method,
			Duration: signal.Duration(),
			Minimum:  float64(cfg.WindowSize) / float64(signal.SampleRate),
		}
	}
	win := Hamming(cfg.WindowSize)
	return STFT(signal.Samples, cfg.WindowSize, cfg.HopSize, win)
}
