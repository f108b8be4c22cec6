package align

import "math"

// ProminenceCap bounds the reported prominence when no competing peak
// exists (a perfectly clean correlation).
const ProminenceCap = 99.0

// PeakProminence computes the ratio of the strongest correlation magnitude
// to the next distinct local peak. Lags within the exclusion neighborhood of
// the best lag are skipped so that the shoulder of the main peak is not
// counted as a competitor. Returns the best lag, its magnitude and the
// prominence ratio.
func PeakProminence(corr []float64, fftSize, minLag, maxLag int) (bestLag int, bestMag, prominence float64) {
	bestLag, bestMag = maxAbsLag(corr, fftSize, minLag, maxLag)

	exclusion := (maxLag - minLag) / 100
	if exclusion < 3 {
		exclusion = 3
	}

	nextMag := 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		if absInt(lag-bestLag) <= exclusion {
			continue
		}
		if !isLocalMax(corr, fftSize, lag, minLag, maxLag) {
			continue
		}
		if m := math.Abs(corr[WrapLag(lag, fftSize)]); m > nextMag {
			nextMag = m
		}
	}

	if nextMag <= 0 {
		return bestLag, bestMag, ProminenceCap
	}
	prominence = bestMag / nextMag
	if prominence > ProminenceCap {
		prominence = ProminenceCap
	}
	return bestLag, bestMag, prominence
}

func maxAbsLag(corr []float64, fftSize, minLag, maxLag int) (int, float64) {
	bestLag := minLag
	bestMag := -1.0
	for lag := minLag; lag <= maxLag; lag++ {
		if m := math.Abs(corr[WrapLag(lag, fftSize)]); m > bestMag {
			bestMag = m
			bestLag = lag
		}
	}
	return bestLag, bestMag
}

func isLocalMax(corr []float64, fftSize, lag, minLag, maxLag int) bool {
	m := math.Abs(corr[WrapLag(lag, fftSize)])
	if lag > minLag && math.Abs(corr[WrapLag(lag-1, fftSize)]) > m {
		return false
	}
	if lag < maxLag && math.Abs(corr[WrapLag(lag+1, fftSize)]) > m {
		return false
	}
	return true
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
