package align

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/himanishpuri/EchoAlign/pkg/echoalign/model"
)

// Config controls one correlation run.
type Config struct {
	// MaxOffsetSeconds is the sanity bound on plausible offsets. Zero means
	// half of the shorter analyzed span.
	MaxOffsetSeconds float64
	// SearchCenterSeconds / SearchRadiusSeconds narrow the lag search to a
	// window around a candidate offset. Radius zero means the full range.
	SearchCenterSeconds float64
	SearchRadiusSeconds float64
	// Prominence thresholds below which a peak is not trusted. Empirically
	// tuned; raw waveform correlations are cleaner so they are held to a
	// higher bar.
	ProminenceRaw     float64
	ProminenceFeature float64
}

// DefaultConfig returns the tuned correlation defaults.
func DefaultConfig() Config {
	return Config{
		ProminenceRaw:     2.0,
		ProminenceFeature: 1.5,
	}
}

// Correlator cross-correlates two same-variant feature sequences. Stateless
// and safe for concurrent use.
type Correlator struct {
	cfg Config
}

// New returns a Correlator with the given config, filling in defaults.
func New(cfg Config) *Correlator {
	if cfg.ProminenceRaw == 0 {
		cfg.ProminenceRaw = 2.0
	}
	if cfg.ProminenceFeature == 0 {
		cfg.ProminenceFeature = 1.5
	}
	return &Correlator{cfg: cfg}
}

// Correlate finds the signed offset of dub relative to master. Both vectors
// must be the same variant.
//
// On a weak peak or an implausible offset the MethodResult is still returned
// with a penalized confidence, alongside a NoReliablePeakError or
// ImplausibleOffsetError classifying why it should not be trusted. Callers
// decide whether to keep it as a diagnostic or drop it.
func (c *Correlator) Correlate(master, dub *model.FeatureVector) (model.MethodResult, error) {
	start := time.Now()

	res := model.MethodResult{}
	if master == nil || dub == nil {
		return res, errors.New("nil feature vector")
	}
	if master.Method != dub.Method {
		return res, fmt.Errorf("variant mismatch: %s vs %s", master.Method, dub.Method)
	}
	if master.Dims() != dub.Dims() {
		return res, fmt.Errorf("dimension mismatch: %d vs %d", master.Dims(), dub.Dims())
	}
	minFrames := master.Frames()
	if dub.Frames() < minFrames {
		minFrames = dub.Frames()
	}
	if minFrames < 2 {
		return res, &model.InsufficientAudioError{
			Method:   master.Method,
			Duration: float64(minFrames) * master.FrameHop,
			Minimum:  2 * master.FrameHop,
		}
	}

	hop := master.FrameHop
	maxOffset := c.cfg.MaxOffsetSeconds
	if maxOffset <= 0 {
		maxOffset = 0.5 * float64(minFrames) * hop
	}
	maxLag := int(maxOffset / hop)
	if maxLag > minFrames-1 {
		maxLag = minFrames - 1
	}
	if maxLag < 1 {
		maxLag = 1
	}

	// Sum per-dimension correlations of the normalized sequences.
	var corr []float64
	fftSize := 0
	for d := 0; d < master.Dims(); d++ {
		dimCorr, size := CrossCorrelate(Normalize(dub.Data[d]), Normalize(master.Data[d]))
		if corr == nil {
			corr = dimCorr
			fftSize = size
		} else {
			for i := range corr {
				corr[i] += dimCorr[i]
			}
		}
	}

	minSearch, maxSearch := -maxLag, maxLag
	if c.cfg.SearchRadiusSeconds > 0 {
		center := int(math.Round(c.cfg.SearchCenterSeconds / hop))
		radius := int(math.Ceil(c.cfg.SearchRadiusSeconds / hop))
		minSearch = clampLag(center-radius, minFrames)
		maxSearch = clampLag(center+radius, minFrames)
		if minSearch > maxSearch {
			minSearch, maxSearch = maxSearch, minSearch
		}
	}

	bestLag, bestMag, prominence := PeakProminence(corr, fftSize, minSearch, maxSearch)
	offset := LagToOffset(bestLag, hop)

	normPeak := bestMag / (float64(master.Dims()) * float64(minFrames))
	if normPeak > 1 {
		normPeak = 1
	}
	confidence := confidenceFrom(prominence, normPeak)

	res = model.MethodResult{
		Method:         master.Method,
		OffsetSeconds:  offset,
		OffsetSamples:  int(math.Round(offset * float64(master.SampleRate))),
		Confidence:     confidence,
		QualityScore:   normPeak,
		PeakProminence: prominence,
		WindowsUsed:    1,
	}

	threshold := c.cfg.ProminenceFeature
	if master.Method == model.MethodRawWaveform {
		threshold = c.cfg.ProminenceRaw
	}

	var classification error
	if prominence < threshold {
		res.Confidence *= 0.25
		classification = &model.NoReliablePeakError{
			Method:     master.Method,
			Prominence: prominence,
			Threshold:  threshold,
		}
	} else if math.Abs(offset) > maxOffset {
		res.Confidence *= 0.25
		classification = &model.ImplausibleOffsetError{
			Method:        master.Method,
			OffsetSeconds: offset,
			Bound:         maxOffset,
		}
	} else if c.cfg.SearchRadiusSeconds <= 0 && maxSearch > minSearch+2 &&
		(bestLag == minSearch || bestLag == maxSearch) {
		// A maximum pinned to the edge of a full-range search is the shoulder
		// of a peak outside it: the true offset is at or beyond the bound.
		res.Confidence *= 0.25
		classification = &model.ImplausibleOffsetError{
			Method:        master.Method,
			OffsetSeconds: offset,
			Bound:         maxOffset,
		}
	}

	res.ProcessingTime = time.Since(start)
	return res, classification
}

func clampLag(lag, frames int) int {
	if lag > frames-1 {
		return frames - 1
	}
	if lag < -(frames - 1) {
		return -(frames - 1)
	}
	return lag
}

// Confidence shaping constants. The logistic midpoint sits at the feature
// prominence threshold so a peak exactly at the threshold scores 0.5 before
// peak-strength scaling.
const (
	confSteepness = 2.5
	confMidpoint  = 1.5
)

// confidenceFrom maps prominence and normalized peak amplitude to [0,1].
// Monotonically non-decreasing in both inputs.
func confidenceFrom(prominence, normPeak float64) float64 {
	c := 1.0 / (1.0 + math.Exp(-confSteepness*(prominence-confMidpoint)))
	if normPeak < 0 {
		normPeak = 0
	}
	c *= 0.5 + 0.5*normPeak
	if c > 1 {
		c = 1
	}
	if c < 0 {
		c = 0
	}
	return c
}
