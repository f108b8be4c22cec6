// Package consensus combines per-method offset measurements into a single
// decision. Sample-accurate raw correlation wins outright when it clears the
// confidence floor; otherwise qualifying methods are averaged by confidence.
package consensus

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/himanishpuri/EchoAlign/pkg/echoalign/model"
)

// Config controls aggregation.
type Config struct {
	ConfidenceFloor float64
	// MaxOffsetSeconds normalizes the agreement score. Zero falls back to
	// the largest qualifying offset magnitude (or 1s when all are tiny).
	MaxOffsetSeconds float64
	// SignToleranceSeconds: offsets within this of zero carry no sign
	// information and cannot create a sign disagreement.
	SignToleranceSeconds float64

	// Status band edges in seconds.
	InSyncSeconds   float64
	MinorSeconds    float64
	CriticalSeconds float64
}

// DefaultConfig returns the tuned aggregation defaults.
func DefaultConfig() Config {
	return Config{
		ConfidenceFloor:      0.5,
		SignToleranceSeconds: 0.1,
		InSyncSeconds:        0.04,
		MinorSeconds:         0.5,
		CriticalSeconds:      10,
	}
}

// Aggregate combines the method results. Advisory results never qualify.
// Returns NoConsensusError when nothing clears the floor; the caller may then
// fall back to Degraded for a diagnostics-only result.
func Aggregate(results []model.MethodResult, failures map[model.Method]error, cfg Config) (*model.ConsensusResult, error) {
	if cfg.ConfidenceFloor <= 0 {
		cfg.ConfidenceFloor = 0.5
	}
	if cfg.SignToleranceSeconds <= 0 {
		cfg.SignToleranceSeconds = 0.1
	}

	var qualifying []model.MethodResult
	for _, r := range results {
		if !r.Advisory && r.Confidence >= cfg.ConfidenceFloor {
			qualifying = append(qualifying, r)
		}
	}
	if len(qualifying) == 0 {
		return nil, &model.NoConsensusError{Failures: failures}
	}

	var offset, confidence float64
	if primary, ok := findPrimary(qualifying); ok {
		// Highest available precision wins; other methods only inform the
		// agreement score.
		offset = primary.OffsetSeconds
		confidence = primary.Confidence
	} else {
		offsets := make([]float64, len(qualifying))
		weights := make([]float64, len(qualifying))
		for i, r := range qualifying {
			offsets[i] = r.OffsetSeconds
			weights[i] = r.Confidence
		}
		offset = stat.Mean(offsets, weights)
		confidence = stat.Mean(weights, nil)
	}

	res := &model.ConsensusResult{
		OffsetSeconds:   offset,
		FrameCounts:     model.FrameCountsFor(offset),
		Confidence:      confidence,
		MethodAgreement: agreement(qualifying, cfg),
		Methods:         results,
		Failures:        failures,
		Ambiguous:       signsDisagree(qualifying, cfg.SignToleranceSeconds),
	}
	res.Status = StatusFor(res.OffsetSeconds, res.Confidence, cfg)
	return res, nil
}

// Degraded builds an UNRELIABLE result from methods that all fell below the
// floor. The offset is the best guess available; callers must treat it as
// needing manual review.
func Degraded(results []model.MethodResult, failures map[model.Method]error, cfg Config) *model.ConsensusResult {
	var best model.MethodResult
	var confs []float64
	for _, r := range results {
		confs = append(confs, r.Confidence)
		if r.Confidence > best.Confidence {
			best = r
		}
	}
	confidence := 0.0
	if len(confs) > 0 {
		confidence = stat.Mean(confs, nil)
	}
	return &model.ConsensusResult{
		OffsetSeconds: best.OffsetSeconds,
		FrameCounts:   model.FrameCountsFor(best.OffsetSeconds),
		Confidence:    confidence,
		Status:        model.StatusUnreliable,
		Methods:       results,
		Failures:      failures,
	}
}

// findPrimary returns the sample-accurate raw correlation result, if any.
func findPrimary(qualifying []model.MethodResult) (model.MethodResult, bool) {
	for _, r := range qualifying {
		if r.Method == model.MethodRawWaveform {
			return r, true
		}
	}
	return model.MethodResult{}, false
}

// agreement is 1 minus the normalized offset spread across qualifying
// methods. A single qualifying method is neither boosted nor penalized.
func agreement(qualifying []model.MethodResult, cfg Config) float64 {
	if len(qualifying) < 2 {
		return 1
	}
	minOff, maxOff := qualifying[0].OffsetSeconds, qualifying[0].OffsetSeconds
	maxMag := 0.0
	for _, r := range qualifying {
		minOff = math.Min(minOff, r.OffsetSeconds)
		maxOff = math.Max(maxOff, r.OffsetSeconds)
		maxMag = math.Max(maxMag, math.Abs(r.OffsetSeconds))
	}
	bound := cfg.MaxOffsetSeconds
	if bound <= 0 {
		bound = math.Max(maxMag, 1)
	}
	a := 1 - (maxOff-minOff)/bound
	if a < 0 {
		a = 0
	}
	return a
}

func signsDisagree(qualifying []model.MethodResult, tolerance float64) bool {
	pos, neg := false, false
	for _, r := range qualifying {
		if r.OffsetSeconds > tolerance {
			pos = true
		}
		if r.OffsetSeconds < -tolerance {
			neg = true
		}
	}
	return pos && neg
}

// StatusFor maps an offset magnitude and confidence to a sync status.
func StatusFor(offset, confidence float64, cfg Config) model.SyncStatus {
	if cfg.InSyncSeconds <= 0 {
		cfg.InSyncSeconds = 0.04
	}
	if cfg.MinorSeconds <= 0 {
		cfg.MinorSeconds = 0.5
	}
	if cfg.CriticalSeconds <= 0 {
		cfg.CriticalSeconds = 10
	}
	if confidence < cfg.ConfidenceFloor {
		return model.StatusUnreliable
	}
	mag := math.Abs(offset)
	switch {
	case mag <= cfg.InSyncSeconds:
		return model.StatusInSync
	case mag <= cfg.MinorSeconds:
		return model.StatusMinor
	case mag <= cfg.CriticalSeconds:
		return model.StatusNeedsCorrection
	default:
		return model.StatusCritical
	}
}
