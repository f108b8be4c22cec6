package model

import (
	"fmt"
	"strings"
)

// InsufficientAudioError reports audio shorter than a method's minimum
// analyzable duration.
type InsufficientAudioError struct {
	Method   Method
	Duration float64
	Minimum  float64
}

func (e *InsufficientAudioError) Error() string {
	return fmt.Sprintf("%s: audio too short: %.3fs < %.3fs minimum", e.Method, e.Duration, e.Minimum)
}

// NoReliablePeakError reports a correlation whose best peak does not stand
// out enough from the next candidate to be trusted.
type NoReliablePeakError struct {
	Method     Method
	Prominence float64
	Threshold  float64
}

func (e *NoReliablePeakError) Error() string {
	return fmt.Sprintf("%s: no reliable peak: prominence %.2f below %.2f", e.Method, e.Prominence, e.Threshold)
}

// ImplausibleOffsetError reports an offset beyond the sanity bound for the
// analyzed span. It classifies a spurious match rather than silently
// accepting it.
type ImplausibleOffsetError struct {
	Method        Method
	OffsetSeconds float64
	Bound         float64
}

func (e *ImplausibleOffsetError) Error() string {
	return fmt.Sprintf("%s: implausible offset %.3fs exceeds bound %.3fs", e.Method, e.OffsetSeconds, e.Bound)
}

// NoConsensusError reports that no method cleared the confidence floor.
type NoConsensusError struct {
	Failures map[Method]error
}

func (e *NoConsensusError) Error() string {
	if len(e.Failures) == 0 {
		return "no method cleared the confidence floor"
	}
	parts := make([]string, 0, len(e.Failures))
	for m, err := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", m, err))
	}
	return "no method cleared the confidence floor: " + strings.Join(parts, "; ")
}

// AmbiguousResultError reports a sign disagreement between high-confidence
// methods that verification could not resolve.
type AmbiguousResultError struct {
	Offsets []float64
}

func (e *AmbiguousResultError) Error() string {
	return fmt.Sprintf("ambiguous result: methods disagree in sign: %v", e.Offsets)
}

// DeviceUnavailableError reports a compute device that could not be acquired.
// It is non-fatal: the job falls back to the non-accelerated path.
type DeviceUnavailableError struct {
	Device int
	Err    error
}

func (e *DeviceUnavailableError) Error() string {
	return fmt.Sprintf("device %d unavailable: %v", e.Device, e.Err)
}

func (e *DeviceUnavailableError) Unwrap() error { return e.Err }

// AnalysisFailedError is terminal: every method failed. It carries the
// per-method breakdown so callers can see why.
type AnalysisFailedError struct {
	Failures map[Method]error
}

func (e *AnalysisFailedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for m, err := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", m, err))
	}
	return "analysis failed, all methods errored: " + strings.Join(parts, "; ")
}
