package align

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/himanishpuri/EchoAlign/pkg/echoalign/model"
)

func noiseVector(t *testing.T, n int, seed int64, rate int) *model.FeatureVector {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	data := make([]float64, n)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return &model.FeatureVector{
		Method:     model.MethodRawWaveform,
		Data:       [][]float64{data},
		FrameHop:   1.0 / float64(rate),
		SampleRate: rate,
	}
}

// delayedVector shifts the vector's content later by delayFrames, padding the
// head with zeros.
func delayedVector(vec *model.FeatureVector, delayFrames int) *model.FeatureVector {
	src := vec.Data[0]
	data := make([]float64, len(src))
	copy(data[delayFrames:], src[:len(src)-delayFrames])
	return &model.FeatureVector{
		Method:     vec.Method,
		Data:       [][]float64{data},
		FrameHop:   vec.FrameHop,
		SampleRate: vec.SampleRate,
	}
}

func TestCorrelateDelayedDubIsPositive(t *testing.T) {
	const rate = 1000
	const delayFrames = 250 // 0.25s

	master := noiseVector(t, 4000, 1, rate)
	dub := delayedVector(master, delayFrames)

	res, err := New(DefaultConfig()).Correlate(master, dub)
	if err != nil {
		t.Fatalf("Correlate failed: %v", err)
	}

	want := 0.25
	if math.Abs(res.OffsetSeconds-want) > 1.0/rate {
		t.Errorf("offset = %v, want +%v (dub lags master)", res.OffsetSeconds, want)
	}
	if res.OffsetSamples != delayFrames {
		t.Errorf("offset samples = %d, want %d", res.OffsetSamples, delayFrames)
	}
	if res.PeakProminence < 2.0 {
		t.Errorf("prominence = %v, want a clearly dominant peak", res.PeakProminence)
	}
	if res.Confidence < 0.8 {
		t.Errorf("confidence = %v, want high confidence for a clean delayed copy", res.Confidence)
	}
}

func TestCorrelateAdvancedDubIsNegative(t *testing.T) {
	const rate = 1000
	const delayFrames = 250

	dub := noiseVector(t, 4000, 2, rate)
	// The roles are swapped: the master lags the dub, so the dub leads and the
	// offset must be negative.
	master := delayedVector(dub, delayFrames)

	res, err := New(DefaultConfig()).Correlate(master, dub)
	if err != nil {
		t.Fatalf("Correlate failed: %v", err)
	}
	if math.Abs(res.OffsetSeconds-(-0.25)) > 1.0/rate {
		t.Errorf("offset = %v, want -0.25 (dub leads master)", res.OffsetSeconds)
	}
}

func TestCorrelateIdenticalSignals(t *testing.T) {
	master := noiseVector(t, 4000, 3, 1000)
	dub := noiseVector(t, 4000, 3, 1000)

	res, err := New(DefaultConfig()).Correlate(master, dub)
	if err != nil {
		t.Fatalf("Correlate failed: %v", err)
	}
	if res.OffsetSeconds != 0 {
		t.Errorf("offset = %v, want exactly 0 for identical signals", res.OffsetSeconds)
	}
	if res.Confidence < 0.9 {
		t.Errorf("confidence = %v, want near 1 for identical signals", res.Confidence)
	}
}

func TestCorrelateUnrelatedNoise(t *testing.T) {
	master := noiseVector(t, 4000, 10, 1000)
	dub := noiseVector(t, 4000, 20, 1000)

	res, classification := New(DefaultConfig()).Correlate(master, dub)
	var noPeak *model.NoReliablePeakError
	if !errors.As(classification, &noPeak) {
		t.Fatalf("classification = %v, want NoReliablePeakError", classification)
	}
	if res.Confidence >= 0.3 {
		t.Errorf("confidence = %v, want penalized below 0.3", res.Confidence)
	}
}

func TestCorrelateOffsetBeyondBound(t *testing.T) {
	const rate = 1000
	master := noiseVector(t, 4000, 4, rate)
	dub := delayedVector(master, 500) // true offset 0.5s

	// The search is bounded to +-0.2s, so the true peak is invisible and
	// whatever is found inside the bound must not be trusted.
	cfg := DefaultConfig()
	cfg.MaxOffsetSeconds = 0.2

	res, classification := New(cfg).Correlate(master, dub)
	if classification == nil {
		t.Fatalf("expected a classification error, got offset %v confidence %v",
			res.OffsetSeconds, res.Confidence)
	}
	if math.Abs(res.OffsetSeconds) > 0.2+1e-9 {
		t.Errorf("offset %v escaped the search bound", res.OffsetSeconds)
	}
	if res.Confidence >= 0.3 {
		t.Errorf("confidence = %v, want penalized below 0.3", res.Confidence)
	}
}

func TestCorrelateSilentDubPinsToBound(t *testing.T) {
	const rate = 1000
	master := noiseVector(t, 4000, 7, rate)
	silent := &model.FeatureVector{
		Method:     model.MethodRawWaveform,
		Data:       [][]float64{make([]float64, 4000)},
		FrameHop:   1.0 / float64(rate),
		SampleRate: rate,
	}

	// A silent window correlates to nothing: the flat correlation pins the
	// best lag to the search bound, which must be classified, not trusted.
	res, classification := New(DefaultConfig()).Correlate(master, silent)
	var implausible *model.ImplausibleOffsetError
	if !errors.As(classification, &implausible) {
		t.Fatalf("classification = %v, want ImplausibleOffsetError", classification)
	}
	if res.Confidence >= 0.3 {
		t.Errorf("confidence = %v, want penalized below 0.3", res.Confidence)
	}
}

func TestCorrelateNarrowedSearchWindow(t *testing.T) {
	const rate = 1000
	master := noiseVector(t, 4000, 5, rate)
	dub := delayedVector(master, 300) // 0.3s

	cfg := DefaultConfig()
	cfg.SearchCenterSeconds = 0.28
	cfg.SearchRadiusSeconds = 0.05

	res, err := New(cfg).Correlate(master, dub)
	if err != nil {
		t.Fatalf("Correlate failed: %v", err)
	}
	if math.Abs(res.OffsetSeconds-0.3) > 1.0/rate {
		t.Errorf("offset = %v, want 0.3 inside the narrowed window", res.OffsetSeconds)
	}
}

func TestCorrelateImplausibleCenter(t *testing.T) {
	const rate = 1000
	master := noiseVector(t, 4000, 6, rate)
	dub := delayedVector(master, 250)

	// A narrowed window centered past the sanity bound can still find the
	// true peak; it must then be classified implausible, not accepted.
	cfg := DefaultConfig()
	cfg.MaxOffsetSeconds = 0.1
	cfg.SearchCenterSeconds = 0.25
	cfg.SearchRadiusSeconds = 0.02

	res, classification := New(cfg).Correlate(master, dub)
	var implausible *model.ImplausibleOffsetError
	if !errors.As(classification, &implausible) {
		t.Fatalf("classification = %v, want ImplausibleOffsetError", classification)
	}
	if res.Confidence >= 0.3 {
		t.Errorf("confidence = %v, want penalized below 0.3", res.Confidence)
	}
}

func TestCorrelateVariantMismatch(t *testing.T) {
	master := noiseVector(t, 2000, 1, 1000)
	dub := noiseVector(t, 2000, 1, 1000)
	dub.Method = model.MethodSpectral

	if _, err := New(DefaultConfig()).Correlate(master, dub); err == nil {
		t.Error("expected error for variant mismatch")
	}
}

func TestCorrelateTooFewFrames(t *testing.T) {
	short := &model.FeatureVector{
		Method:     model.MethodRawWaveform,
		Data:       [][]float64{{0.5}},
		FrameHop:   0.001,
		SampleRate: 1000,
	}
	_, err := New(DefaultConfig()).Correlate(short, short)
	var insufficient *model.InsufficientAudioError
	if !errors.As(err, &insufficient) {
		t.Errorf("err = %v, want InsufficientAudioError", err)
	}
}

func TestConfidenceFromMonotonic(t *testing.T) {
	prev := -1.0
	for _, p := range []float64{0, 0.5, 1, 1.5, 2, 3, 5, 10, 99} {
		c := confidenceFrom(p, 0.8)
		if c < prev {
			t.Errorf("confidence decreased at prominence %v: %v < %v", p, c, prev)
		}
		if c < 0 || c > 1 {
			t.Errorf("confidence %v out of [0,1] at prominence %v", c, p)
		}
		prev = c
	}

	if lo, hi := confidenceFrom(3, 0.1), confidenceFrom(3, 0.9); lo >= hi {
		t.Errorf("confidence not increasing in peak strength: %v >= %v", lo, hi)
	}
}
