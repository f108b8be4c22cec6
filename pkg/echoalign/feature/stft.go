package feature

import (
	"errors"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

const (
	// WindowSize and HopSize are the STFT defaults shared by the spectral,
	// MFCC and onset extractors.
	WindowSize = 1024
	HopSize    = 256
)

// Hamming returns an n-point Hamming window.
func Hamming(n int) []float64 {
	w := make([]float64, n)
	for i := 0; i < n; i++ {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// MagnitudeSpectrum keeps the positive-frequency half of an FFT result.
func MagnitudeSpectrum(spectrum []complex128) []float64 {
	half := len(spectrum) / 2
	mag := make([]float64, half)
	for i := 0; i < half; i++ {
		mag[i] = cmplx.Abs(spectrum[i])
	}
	return mag
}

// STFT computes a magnitude spectrogram (frames x bins) with the given
// window applied to each frame.
func STFT(samples []float64, windowSize, hopSize int, window []float64) ([][]float64, error) {
	if len(window) != windowSize {
		return nil, errors.New("window length must equal windowSize")
	}
	if len(samples) < windowSize {
		return nil, errors.New("input shorter than window size")
	}

	spectrogram := make([][]float64, 0, (len(samples)-windowSize)/hopSize+1)
	frame := make([]float64, windowSize)
	for start := 0; start+windowSize <= len(samples); start += hopSize {
		copy(frame, samples[start:start+windowSize])
		for i := 0; i < windowSize; i++ {
			frame[i] *= window[i]
		}
		spec := fft.FFTReal(frame)
		spectrogram = append(spectrogram, MagnitudeSpectrum(spec))
	}
	return spectrogram, nil
}
