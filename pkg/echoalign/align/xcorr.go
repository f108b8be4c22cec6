package align

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Normalize scales a sequence to zero mean and unit variance. Flat sequences
// come back zeroed rather than dividing by zero.
func Normalize(data []float64) []float64 {
	if len(data) == 0 {
		return data
	}

	mean := 0.0
	for _, v := range data {
		mean += v
	}
	mean /= float64(len(data))

	variance := 0.0
	for _, v := range data {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(data))
	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		stdDev = 1.0
	}

	result := make([]float64, len(data))
	for i, v := range data {
		result[i] = (v - mean) / stdDev
	}
	return result
}

// CrossCorrelate computes the circular cross-correlation of dub against
// master via FFT, zero-padded so the circular result equals the linear one.
// The returned slice has fftSize entries; index k (unwrapped with UnwrapLag)
// is the correlation at lag k, where a peak at positive lag means the dub is
// delayed relative to the master.
func CrossCorrelate(dub, master []float64) ([]float64, int) {
	if len(dub) == 0 || len(master) == 0 {
		return []float64{0}, 1
	}

	n := len(dub) + len(master) - 1
	fftSize := nextPowerOfTwo(n)

	padDub := padToSize(dub, fftSize)
	padMaster := padToSize(master, fftSize)

	fft := fourier.NewFFT(fftSize)
	coeffDub := fft.Coefficients(nil, padDub)
	coeffMaster := fft.Coefficients(nil, padMaster)

	// corr = IFFT(FFT(dub) * conj(FFT(master)))
	product := make([]complex128, len(coeffDub))
	for i := range product {
		product[i] = coeffDub[i] * cmplxConj(coeffMaster[i])
	}

	corr := fft.Sequence(nil, product)

	// gonum's transform pair is unnormalized: Coefficients followed by
	// Sequence multiplies by fftSize.
	for i := range corr {
		corr[i] /= float64(fftSize)
	}

	return corr, fftSize
}

func cmplxConj(c complex128) complex128 {
	return complex(real(c), -imag(c))
}

func nextPowerOfTwo(n int) int {
	power := 1
	for power < n {
		power *= 2
	}
	return power
}

func padToSize(data []float64, size int) []float64 {
	result := make([]float64, size)
	copy(result, data)
	return result
}
