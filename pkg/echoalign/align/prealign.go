package align

import (
	"github.com/himanishpuri/EchoAlign/pkg/echoalign/feature"
	"github.com/himanishpuri/EchoAlign/pkg/echoalign/model"
)

// AdvisoryFloor is the confidence below which a pre-alignment result is
// marked advisory-only. It is still recorded for diagnostics.
const AdvisoryFloor = 0.3

// PreAligner is a cheap, low-resolution correlator over a ~100ms energy
// envelope. Its result is a hint: consumers must not let it override a
// higher-resolution method, but may use it to narrow later search windows.
type PreAligner struct {
	corr  *Correlator
	floor float64
}

// NewPreAligner builds a pre-aligner sharing the correlation config.
func NewPreAligner(cfg Config, floor float64) *PreAligner {
	if floor <= 0 {
		floor = AdvisoryFloor
	}
	return &PreAligner{corr: New(cfg), floor: floor}
}

// Align extracts RMS envelopes from both signals and correlates them. The
// returned result always carries Advisory when confidence is below the
// floor; the classification error, if any, explains the weakness.
func (p *PreAligner) Align(master, dub *model.AudioSignal, featCfg feature.Config) (model.MethodResult, error) {
	masterEnv, err := feature.Extract(master, model.MethodRMSEnvelope, featCfg)
	if err != nil {
		return model.MethodResult{}, err
	}
	dubEnv, err := feature.Extract(dub, model.MethodRMSEnvelope, featCfg)
	if err != nil {
		return model.MethodResult{}, err
	}

	res, classification := p.corr.Correlate(masterEnv, dubEnv)
	if res.Confidence < p.floor {
		res.Advisory = true
	}
	return res, classification
}
