// Package verify implements the escalation policy that catches implausible
// results before they are returned. Risk indicators accumulate into a
// severity score; past the threshold an independent sample-accurate pass is
// mandatory, restricted to a window around the candidate offset. One rule is
// absolute: any offset beyond the hard ceiling is verified no matter how
// confident the consensus looked.
package verify

import (
	"context"
	"fmt"
	"math"

	"github.com/himanishpuri/EchoAlign/pkg/echoalign/align"
	"github.com/himanishpuri/EchoAlign/pkg/echoalign/feature"
	"github.com/himanishpuri/EchoAlign/pkg/echoalign/model"
)

// Logger is the subset of the module logger the verifier needs.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Debugf(format string, args ...any)
}

// Config controls escalation. Severity weights are empirically tuned
// defaults, not invariants.
type Config struct {
	SeverityThreshold         float64
	HardCeilingSeconds        float64
	AgreementToleranceSeconds float64
	VerifyRadiusSeconds       float64
	VerifyCapSeconds          float64
	ConfidenceFloor           float64

	WeightLargeOffset    float64
	WeightModerateOffset float64
	WeightLowConfidence  float64
	WeightDisagreement   float64
	WeightWeakProminence float64
	WeightAmbiguousSign  float64
}

// DefaultConfig returns the tuned verification defaults.
func DefaultConfig() Config {
	return Config{
		SeverityThreshold:         2.0,
		HardCeilingSeconds:        30,
		AgreementToleranceSeconds: 0.1,
		VerifyRadiusSeconds:       2.0,
		VerifyCapSeconds:          120,
		ConfidenceFloor:           0.5,
		WeightLargeOffset:         1.0,
		WeightModerateOffset:      0.5,
		WeightLowConfidence:       1.5,
		WeightDisagreement:        1.0,
		WeightWeakProminence:      0.75,
		WeightAmbiguousSign:       2.0,
	}
}

// Verifier applies the escalation policy to a consensus result.
type Verifier struct {
	cfg Config
	log Logger
}

// New returns a Verifier, filling config defaults.
func New(cfg Config, log Logger) *Verifier {
	def := DefaultConfig()
	if cfg.SeverityThreshold <= 0 {
		cfg.SeverityThreshold = def.SeverityThreshold
	}
	if cfg.HardCeilingSeconds <= 0 {
		cfg.HardCeilingSeconds = def.HardCeilingSeconds
	}
	if cfg.AgreementToleranceSeconds <= 0 {
		cfg.AgreementToleranceSeconds = def.AgreementToleranceSeconds
	}
	if cfg.VerifyRadiusSeconds <= 0 {
		cfg.VerifyRadiusSeconds = def.VerifyRadiusSeconds
	}
	if cfg.VerifyCapSeconds <= 0 {
		cfg.VerifyCapSeconds = def.VerifyCapSeconds
	}
	if cfg.ConfidenceFloor <= 0 {
		cfg.ConfidenceFloor = def.ConfidenceFloor
	}
	if cfg.WeightLargeOffset <= 0 {
		cfg.WeightLargeOffset = def.WeightLargeOffset
	}
	if cfg.WeightModerateOffset <= 0 {
		cfg.WeightModerateOffset = def.WeightModerateOffset
	}
	if cfg.WeightLowConfidence <= 0 {
		cfg.WeightLowConfidence = def.WeightLowConfidence
	}
	if cfg.WeightDisagreement <= 0 {
		cfg.WeightDisagreement = def.WeightDisagreement
	}
	if cfg.WeightWeakProminence <= 0 {
		cfg.WeightWeakProminence = def.WeightWeakProminence
	}
	if cfg.WeightAmbiguousSign <= 0 {
		cfg.WeightAmbiguousSign = def.WeightAmbiguousSign
	}
	return &Verifier{cfg: cfg, log: log}
}

// Verify inspects the consensus result, escalating to a mandatory
// independent pass when risk accumulates. It mutates res only to attach the
// decision and, on rejection, downgrade the status; a rejected result is
// surfaced as needing manual review, never silently accepted.
//
// An unresolved sign disagreement after verification returns
// AmbiguousResultError.
func (v *Verifier) Verify(
	ctx context.Context,
	res *model.ConsensusResult,
	master, dub *model.AudioSignal,
	featCfg feature.Config,
) (*model.VerificationDecision, error) {

	triggers, severity, hard := v.assess(res)
	decision := &model.VerificationDecision{
		Triggers: triggers,
		Severity: severity,
		Method:   model.MethodRawWaveform,
	}
	res.Decision = decision

	if !hard && severity < v.cfg.SeverityThreshold {
		decision.Outcome = model.OutcomeAccepted
		return decision, nil
	}

	v.log.Infof("mandatory verification: severity %.2f, triggers %v", severity, triggers)

	verified, err := v.independentPass(ctx, res.OffsetSeconds, master, dub, featCfg)
	if err != nil {
		v.log.Warnf("verification pass failed: %v", err)
		decision.Outcome = model.OutcomeRejected
		res.Status = model.StatusUnreliable
		if res.Ambiguous {
			return decision, &model.AmbiguousResultError{Offsets: contributingOffsets(res)}
		}
		return decision, nil
	}
	decision.VerifiedOffset = verified

	if math.Abs(verified-res.OffsetSeconds) <= v.cfg.AgreementToleranceSeconds {
		decision.Outcome = model.OutcomeVerifiedAccept
		res.Ambiguous = false
		return decision, nil
	}

	v.log.Warnf("verification disagrees: candidate %.3fs vs verified %.3fs", res.OffsetSeconds, verified)
	decision.Outcome = model.OutcomeRejected
	res.Status = model.StatusUnreliable
	if res.Ambiguous {
		return decision, &model.AmbiguousResultError{Offsets: contributingOffsets(res)}
	}
	return decision, nil
}

func (v *Verifier) assess(res *model.ConsensusResult) (triggers []string, severity float64, hard bool) {
	mag := math.Abs(res.OffsetSeconds)

	if mag > v.cfg.HardCeilingSeconds {
		triggers = append(triggers, fmt.Sprintf("offset %.1fs exceeds hard ceiling %.0fs", mag, v.cfg.HardCeilingSeconds))
		hard = true
	}
	switch {
	case mag > 10:
		triggers = append(triggers, "large offset")
		severity += v.cfg.WeightLargeOffset
	case mag > 5:
		triggers = append(triggers, "moderate offset")
		severity += v.cfg.WeightModerateOffset
	}
	if res.Confidence < v.cfg.ConfidenceFloor {
		triggers = append(triggers, "confidence below floor")
		severity += v.cfg.WeightLowConfidence
	}
	if res.MethodAgreement < 0.5 {
		triggers = append(triggers, "method disagreement")
		severity += v.cfg.WeightDisagreement
	}
	if p, ok := weakestProminence(res); ok && p < 2.0 {
		triggers = append(triggers, "weak peak prominence")
		severity += v.cfg.WeightWeakProminence
	}
	if res.Ambiguous {
		triggers = append(triggers, "sign disagreement")
		severity += v.cfg.WeightAmbiguousSign
	}
	return triggers, severity, hard
}

// independentPass runs the sample-accurate correlator restricted to a window
// narrowed around the candidate offset, over a bounded span of both signals.
func (v *Verifier) independentPass(
	ctx context.Context,
	candidate float64,
	master, dub *model.AudioSignal,
	featCfg feature.Config,
) (float64, error) {

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	masterCap := master.Head(v.cfg.VerifyCapSeconds)
	dubCap := dub.Head(v.cfg.VerifyCapSeconds)

	masterFeat, err := feature.Extract(masterCap, model.MethodRawWaveform, featCfg)
	if err != nil {
		return 0, err
	}
	dubFeat, err := feature.Extract(dubCap, model.MethodRawWaveform, featCfg)
	if err != nil {
		return 0, err
	}

	corrCfg := align.DefaultConfig()
	corrCfg.MaxOffsetSeconds = math.Abs(candidate) + v.cfg.VerifyRadiusSeconds
	corrCfg.SearchCenterSeconds = candidate
	corrCfg.SearchRadiusSeconds = v.cfg.VerifyRadiusSeconds

	res, classification := align.New(corrCfg).Correlate(masterFeat, dubFeat)
	if classification != nil {
		return res.OffsetSeconds, classification
	}
	return res.OffsetSeconds, nil
}

func weakestProminence(res *model.ConsensusResult) (float64, bool) {
	found := false
	weakest := math.Inf(1)
	for _, m := range res.Methods {
		if m.Advisory {
			continue
		}
		if m.PeakProminence < weakest {
			weakest = m.PeakProminence
			found = true
		}
	}
	return weakest, found
}

func contributingOffsets(res *model.ConsensusResult) []float64 {
	offsets := make([]float64, 0, len(res.Methods))
	for _, m := range res.Methods {
		if !m.Advisory {
			offsets = append(offsets, m.OffsetSeconds)
		}
	}
	return offsets
}
