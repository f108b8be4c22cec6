package feature

import (
	"math"

	"github.com/himanishpuri/EchoAlign/pkg/echoalign/model"
)

// extractMFCC computes mel-frequency cepstral coefficients from the STFT
// magnitude spectrogram: mel filterbank, log energies, DCT-II.
func extractMFCC(signal *model.AudioSignal, cfg Config) (*model.FeatureVector, error) {
	spec, err := stftFor(signal, cfg, model.MethodMFCC)
	if err != nil {
		return nil, err
	}
	if cfg.MelBands == 0 {
		cfg.MelBands = 26
	}
	if cfg.MFCCCoefficients == 0 {
		cfg.MFCCCoefficients = 13
	}

	bank := melFilterBank(cfg.MelBands, cfg.WindowSize, signal.SampleRate)

	frames := len(spec)
	coeffs := make([][]float64, cfg.MFCCCoefficients)
	for c := range coeffs {
		coeffs[c] = make([]float64, frames)
	}

	logMel := make([]float64, cfg.MelBands)
	for t, mag := range spec {
		for b, filt := range bank {
			var e float64
			for k, w := range filt {
				// mag holds magnitudes, filterbank expects power
				e += w * mag[k] * mag[k]
			}
			if e < 1e-10 {
				e = 1e-10
			}
			logMel[b] = math.Log(e)
		}
		frame := dctII(logMel, cfg.MFCCCoefficients)
		for c := range frame {
			coeffs[c][t] = frame[c]
		}
	}

	return &model.FeatureVector{
		Method:     model.MethodMFCC,
		Data:       coeffs,
		FrameHop:   float64(cfg.HopSize) / float64(signal.SampleRate),
		SampleRate: signal.SampleRate,
	}, nil
}

func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10, mel/2595.0) - 1.0)
}

// melFilterBank builds numBands triangular filters over the positive half of
// a windowSize-point FFT.
func melFilterBank(numBands, windowSize, sampleRate int) [][]float64 {
	halfBins := windowSize / 2
	lowMel := hzToMel(0)
	highMel := hzToMel(float64(sampleRate) / 2)

	// numBands+2 edge points, evenly spaced on the mel scale
	points := make([]int, numBands+2)
	for i := range points {
		mel := lowMel + (highMel-lowMel)*float64(i)/float64(numBands+1)
		hz := melToHz(mel)
		bin := int(hz * float64(windowSize) / float64(sampleRate))
		if bin >= halfBins {
			bin = halfBins - 1
		}
		points[i] = bin
	}

	bank := make([][]float64, numBands)
	for b := 0; b < numBands; b++ {
		filt := make([]float64, halfBins)
		left, center, right := points[b], points[b+1], points[b+2]
		for k := left; k < center; k++ {
			if center > left {
				filt[k] = float64(k-left) / float64(center-left)
			}
		}
		for k := center; k <= right && k < halfBins; k++ {
			if right > center {
				filt[k] = float64(right-k) / float64(right-center)
			} else if k == center {
				filt[k] = 1
			}
		}
		bank[b] = filt
	}
	return bank
}

// dctII computes the first numCoeffs coefficients of a DCT-II.
func dctII(input []float64, numCoeffs int) []float64 {
	n := len(input)
	out := make([]float64, numCoeffs)
	for c := 0; c < numCoeffs; c++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += input[i] * math.Cos(math.Pi*float64(c)*(float64(i)+0.5)/float64(n))
		}
		out[c] = sum
	}
	return out
}
