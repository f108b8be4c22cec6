package align

// This file isolates the lag-to-offset mapping. Every correlator in the
// module must go through these two functions; the sign convention lives
// nowhere else.
//
// Convention: a positive offset means the dub lags the master and must be
// shifted forward in time (delayed content started late) to align. A dub that
// is a copy of the master delayed by D seconds yields an offset of +D.

// LagToOffset converts a signed correlation lag in frames into a signed
// offset in seconds.
func LagToOffset(lagFrames int, frameHop float64) float64 {
	return float64(lagFrames) * frameHop
}

// UnwrapLag maps a circular cross-correlation index to a signed lag. Indices
// past the midpoint of the FFT buffer wrap around to negative lags.
func UnwrapLag(index, fftSize int) int {
	if index > fftSize/2 {
		return index - fftSize
	}
	return index
}

// WrapLag is the inverse of UnwrapLag: it maps a signed lag to the circular
// buffer index it occupies.
func WrapLag(lag, fftSize int) int {
	if lag < 0 {
		return fftSize + lag
	}
	return lag
}
