package verify

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/himanishpuri/EchoAlign/pkg/echoalign/feature"
	"github.com/himanishpuri/EchoAlign/pkg/echoalign/model"
)

type testLogger struct {
	t *testing.T
}

func (l *testLogger) Infof(format string, args ...any)  { l.t.Logf("INFO "+format, args...) }
func (l *testLogger) Warnf(format string, args ...any)  { l.t.Logf("WARN "+format, args...) }
func (l *testLogger) Debugf(format string, args ...any) { l.t.Logf("DEBUG "+format, args...) }

func noiseSignal(seconds float64, rate int, seed int64) *model.AudioSignal {
	rng := rand.New(rand.NewSource(seed))
	samples := make([]float64, int(seconds*float64(rate)))
	for i := range samples {
		samples[i] = rng.NormFloat64() * 0.2
	}
	return &model.AudioSignal{Samples: samples, SampleRate: rate, Channels: 1}
}

func delayedSignal(sig *model.AudioSignal, delaySeconds float64) *model.AudioSignal {
	d := int(delaySeconds * float64(sig.SampleRate))
	samples := make([]float64, len(sig.Samples))
	copy(samples[d:], sig.Samples[:len(sig.Samples)-d])
	return &model.AudioSignal{Samples: samples, SampleRate: sig.SampleRate, Channels: 1}
}

func cleanResult(offset, confidence float64) *model.ConsensusResult {
	return &model.ConsensusResult{
		OffsetSeconds:   offset,
		Confidence:      confidence,
		MethodAgreement: 1,
		Status:          model.StatusNeedsCorrection,
		Methods: []model.MethodResult{
			{Method: model.MethodRawWaveform, OffsetSeconds: offset, Confidence: confidence, PeakProminence: 5},
		},
	}
}

func TestVerifyAcceptsCleanResult(t *testing.T) {
	master := noiseSignal(10, 2000, 1)
	dub := delayedSignal(master, 0.2)
	res := cleanResult(0.2, 0.9)

	decision, err := New(DefaultConfig(), &testLogger{t}).Verify(context.Background(), res, master, dub, feature.DefaultConfig())
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if decision.Outcome != model.OutcomeAccepted {
		t.Errorf("outcome = %s, want ACCEPTED without an independent pass", decision.Outcome)
	}
	if decision.Severity != 0 {
		t.Errorf("severity = %v, want 0 for a clean result", decision.Severity)
	}
	if res.Decision != decision {
		t.Error("decision not attached to the result")
	}
}

func TestVerifyEscalatesAndConfirms(t *testing.T) {
	master := noiseSignal(20, 2000, 2)
	dub := delayedSignal(master, 2.0)

	// Low confidence plus disagreement pushes severity past the threshold,
	// but the independent pass confirms the candidate.
	res := cleanResult(2.0, 0.4)
	res.MethodAgreement = 0.3

	decision, err := New(DefaultConfig(), &testLogger{t}).Verify(context.Background(), res, master, dub, feature.DefaultConfig())
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if decision.Severity < 2.0 {
		t.Fatalf("severity = %v, want past the threshold", decision.Severity)
	}
	if decision.Outcome != model.OutcomeVerifiedAccept {
		t.Errorf("outcome = %s, want VERIFIED_ACCEPT", decision.Outcome)
	}
	if math.Abs(decision.VerifiedOffset-2.0) > 0.01 {
		t.Errorf("verified offset = %v, want ~2.0", decision.VerifiedOffset)
	}
}

func TestVerifyHardCeilingAlwaysVerifies(t *testing.T) {
	// The true offset is zero; the candidate claims 35s with perfect
	// confidence. Past the hard ceiling the verification is unconditional and
	// must reject the fabricated offset.
	master := noiseSignal(40, 2000, 3)
	dub := noiseSignal(40, 2000, 3)
	res := cleanResult(35, 0.99)

	decision, err := New(DefaultConfig(), &testLogger{t}).Verify(context.Background(), res, master, dub, feature.DefaultConfig())
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if decision.Outcome != model.OutcomeRejected {
		t.Errorf("outcome = %s, want REJECTED", decision.Outcome)
	}
	if res.Status != model.StatusUnreliable {
		t.Errorf("status = %s, want downgraded to UNRELIABLE", res.Status)
	}

	found := false
	for _, trig := range decision.Triggers {
		if strings.Contains(trig, "ceiling") {
			found = true
		}
	}
	if !found {
		t.Errorf("triggers %v do not mention the hard ceiling", decision.Triggers)
	}
}

func TestVerifyRejectsDisagreement(t *testing.T) {
	// The signals really align at 2.0s; the candidate claims 2.8s, inside the
	// search radius, so the independent pass finds 2.0 and disagrees.
	master := noiseSignal(20, 2000, 4)
	dub := delayedSignal(master, 2.0)

	res := cleanResult(2.8, 0.4)
	res.MethodAgreement = 0.3

	decision, err := New(DefaultConfig(), &testLogger{t}).Verify(context.Background(), res, master, dub, feature.DefaultConfig())
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if decision.Outcome != model.OutcomeRejected {
		t.Errorf("outcome = %s, want REJECTED", decision.Outcome)
	}
	if res.Status != model.StatusUnreliable {
		t.Errorf("status = %s, want UNRELIABLE", res.Status)
	}
}

func TestVerifyUnresolvedAmbiguityErrors(t *testing.T) {
	master := noiseSignal(20, 2000, 5)
	dub := noiseSignal(20, 2000, 6)

	res := &model.ConsensusResult{
		OffsetSeconds:   5.0,
		Confidence:      0.8,
		MethodAgreement: 0.2,
		Ambiguous:       true,
		Methods: []model.MethodResult{
			{Method: model.MethodSpectral, OffsetSeconds: 5.0, Confidence: 0.8, PeakProminence: 1.8},
			{Method: model.MethodMFCC, OffsetSeconds: -4.8, Confidence: 0.8, PeakProminence: 1.7},
		},
	}

	_, err := New(DefaultConfig(), &testLogger{t}).Verify(context.Background(), res, master, dub, feature.DefaultConfig())
	var ambiguous *model.AmbiguousResultError
	if !errors.As(err, &ambiguous) {
		t.Fatalf("err = %v, want AmbiguousResultError", err)
	}
	if len(ambiguous.Offsets) != 2 {
		t.Errorf("offsets = %v, want both contributing offsets", ambiguous.Offsets)
	}
}

func TestVerifyResolvedAmbiguityClears(t *testing.T) {
	master := noiseSignal(20, 2000, 7)
	dub := delayedSignal(master, 1.0)

	res := &model.ConsensusResult{
		OffsetSeconds:   1.0,
		Confidence:      0.8,
		MethodAgreement: 0.2,
		Ambiguous:       true,
		Methods: []model.MethodResult{
			{Method: model.MethodRawWaveform, OffsetSeconds: 1.0, Confidence: 0.8, PeakProminence: 5},
			{Method: model.MethodMFCC, OffsetSeconds: -1.0, Confidence: 0.8, PeakProminence: 1.7},
		},
	}

	decision, err := New(DefaultConfig(), &testLogger{t}).Verify(context.Background(), res, master, dub, feature.DefaultConfig())
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if decision.Outcome != model.OutcomeVerifiedAccept {
		t.Errorf("outcome = %s, want VERIFIED_ACCEPT", decision.Outcome)
	}
	if res.Ambiguous {
		t.Error("ambiguity flag not cleared after a confirming pass")
	}
}

func TestAssessSeverityWeights(t *testing.T) {
	v := New(DefaultConfig(), &testLogger{t})

	tests := []struct {
		name     string
		res      *model.ConsensusResult
		severity float64
		hard     bool
	}{
		{"clean", cleanResult(0.2, 0.9), 0, false},
		{"moderate offset", cleanResult(7, 0.9), 0.5, false},
		{"large offset", cleanResult(15, 0.9), 1.0, false},
		{"low confidence", cleanResult(0.2, 0.3), 1.5, false},
		{"past ceiling", cleanResult(35, 0.9), 1.0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, severity, hard := v.assess(tt.res)
			if severity != tt.severity {
				t.Errorf("severity = %v, want %v", severity, tt.severity)
			}
			if hard != tt.hard {
				t.Errorf("hard = %v, want %v", hard, tt.hard)
			}
		})
	}
}
