package model

import (
	"fmt"
	"math"
	"time"
)

// Method identifies a detection method. The set is closed: every method is
// bound to its extractor and correlator at configuration time, so adding one
// is a compile-time change rather than a string match.
type Method int

const (
	MethodRawWaveform Method = iota
	MethodRMSEnvelope
	MethodSpectral
	MethodMFCC
	MethodOnset
	MethodEmbedding
)

func (m Method) String() string {
	switch m {
	case MethodRawWaveform:
		return "raw_waveform"
	case MethodRMSEnvelope:
		return "rms_envelope"
	case MethodSpectral:
		return "spectral"
	case MethodMFCC:
		return "mfcc"
	case MethodOnset:
		return "onset"
	case MethodEmbedding:
		return "embedding"
	default:
		return "unknown"
	}
}

// ParseMethod maps a config string to a Method.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "raw_waveform":
		return MethodRawWaveform, nil
	case "rms_envelope":
		return MethodRMSEnvelope, nil
	case "spectral":
		return MethodSpectral, nil
	case "mfcc":
		return MethodMFCC, nil
	case "onset":
		return MethodOnset, nil
	case "embedding":
		return MethodEmbedding, nil
	default:
		return 0, fmt.Errorf("unknown method %q", s)
	}
}

// SyncStatus classifies the severity of a detected offset.
type SyncStatus int

const (
	StatusInSync SyncStatus = iota
	StatusMinor
	StatusNeedsCorrection
	StatusCritical
	StatusUnreliable
)

func (s SyncStatus) String() string {
	switch s {
	case StatusInSync:
		return "IN_SYNC"
	case StatusMinor:
		return "MINOR"
	case StatusNeedsCorrection:
		return "NEEDS_CORRECTION"
	case StatusCritical:
		return "CRITICAL"
	case StatusUnreliable:
		return "UNRELIABLE"
	default:
		return "UNKNOWN"
	}
}

// AudioSignal holds decoded mono samples. It is produced by the decoder and
// owned exclusively by one analysis call.
type AudioSignal struct {
	Samples    []float64
	SampleRate int
	// NativeSampleRate is the pre-resample rate of the source file. Sample
	// offsets reported to callers are always expressed against it.
	NativeSampleRate int
	Channels         int
}

// Duration returns the signal length in seconds.
func (s *AudioSignal) Duration() float64 {
	if s == nil || s.SampleRate <= 0 {
		return 0
	}
	return float64(len(s.Samples)) / float64(s.SampleRate)
}

// Head returns a read-only view of the first seconds of the signal, or the
// signal itself when it is already shorter.
func (s *AudioSignal) Head(seconds float64) *AudioSignal {
	maxSamples := int(seconds * float64(s.SampleRate))
	if maxSamples <= 0 || maxSamples >= len(s.Samples) {
		return s
	}
	return &AudioSignal{
		Samples:          s.Samples[:maxSamples],
		SampleRate:       s.SampleRate,
		NativeSampleRate: s.NativeSampleRate,
		Channels:         s.Channels,
	}
}

// NativeRate returns the rate against which sample offsets are reported.
func (s *AudioSignal) NativeRate() int {
	if s.NativeSampleRate > 0 {
		return s.NativeSampleRate
	}
	return s.SampleRate
}

// FeatureVector is a time-indexed feature sequence. Data is dimension-major:
// Data[d][t] is dimension d at frame t. FrameHop is seconds per frame.
type FeatureVector struct {
	Method   Method
	Data     [][]float64
	FrameHop float64
	// SampleRate is the rate of the signal the features were computed from.
	SampleRate int
}

// Frames returns the number of time frames.
func (f *FeatureVector) Frames() int {
	if f == nil || len(f.Data) == 0 {
		return 0
	}
	return len(f.Data[0])
}

// Dims returns the number of feature dimensions.
func (f *FeatureVector) Dims() int {
	if f == nil {
		return 0
	}
	return len(f.Data)
}

// MethodResult is the outcome of one detection method. Immutable once
// produced.
type MethodResult struct {
	Method         Method
	OffsetSeconds  float64
	OffsetSamples  int
	Confidence     float64
	QualityScore   float64
	ProcessingTime time.Duration
	// PeakProminence is the ratio of the strongest correlation peak to the
	// next distinct peak. Values near 1 indicate an ambiguous match.
	PeakProminence float64
	WindowsUsed    int
	// Advisory marks low-resolution hints (the RMS pre-aligner below its
	// floor) that are recorded for diagnostics but must never outvote a
	// higher-resolution method.
	Advisory bool
}

// ChunkResult is one sub-window measurement from the chunked analyzer.
type ChunkResult struct {
	Index         int
	StartTime     float64
	EndTime       float64
	OffsetSeconds float64
	Confidence    float64
	Prominence    float64
	Reliable      bool
}

// DriftClass is the chunked analyzer's verdict on offset stability.
type DriftClass int

const (
	DriftUnknown DriftClass = iota
	DriftConstant
	DriftDrifting
)

func (d DriftClass) String() string {
	switch d {
	case DriftConstant:
		return "CONSTANT_OFFSET"
	case DriftDrifting:
		return "DRIFTING"
	default:
		return "UNKNOWN"
	}
}

// VerificationOutcome is the smart verifier's final state.
type VerificationOutcome int

const (
	OutcomeAccepted VerificationOutcome = iota
	OutcomeVerifiedAccept
	OutcomeRejected
)

func (o VerificationOutcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "ACCEPTED"
	case OutcomeVerifiedAccept:
		return "VERIFIED_ACCEPT"
	case OutcomeRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// VerificationDecision records why the verifier escalated and what it found.
type VerificationDecision struct {
	Triggers       []string
	Severity       float64
	Method         Method
	VerifiedOffset float64
	Outcome        VerificationOutcome
}

// ConsensusResult is the combined decision across all methods. Construct it
// with consensus.Aggregate; a result with zero contributing methods is not
// constructible.
type ConsensusResult struct {
	OffsetSeconds   float64
	OffsetSamples   int
	FrameCounts     map[string]int
	Confidence      float64
	MethodAgreement float64
	Status          SyncStatus
	Methods         []MethodResult
	// Failures records per-method failure reasons for diagnostics.
	Failures map[Method]error
	// Ambiguous is set when high-confidence methods disagreed in sign; the
	// verifier must resolve it before the result is trusted.
	Ambiguous bool
	Drift     DriftClass
	Chunks    []ChunkResult
	Decision  *VerificationDecision
}

// FrameRates are the display frame rates offsets are converted to.
var FrameRates = map[string]float64{
	"23.976": 24000.0 / 1001.0,
	"24":     24,
	"25":     25,
	"29.97":  30000.0 / 1001.0,
	"30":     30,
}

// FrameCountsFor converts a seconds offset into per-frame-rate frame counts.
// This is a display-only transform; the seconds value stays authoritative.
func FrameCountsFor(offsetSeconds float64) map[string]int {
	counts := make(map[string]int, len(FrameRates))
	for name, rate := range FrameRates {
		counts[name] = int(math.Round(offsetSeconds * rate))
	}
	return counts
}
