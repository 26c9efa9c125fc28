// Package vad classifies 10/20/30 ms PCM frames as speech/silence at a
// supported rate, with two interchangeable back-ends selected by
// capability detection at startup.
package vad

import "errors"

// ErrUnavailable is returned by a backend constructor when that backend's
// runtime dependency (e.g. the neural model) cannot be loaded. Absence is
// a constructor-time contract, not a runtime "if available" branch
// sprinkled through call sites.
var ErrUnavailable = errors.New("vad: backend unavailable")

// Backend identifies which VAD implementation is active, so callers can
// degrade behavior (e.g. refuse barge-in on the energy fallback).
type Backend int

const (
	BackendEnergy Backend = iota
	BackendNeural
)

func (b Backend) String() string {
	if b == BackendNeural {
		return "neural"
	}
	return "energy"
}

// Verdict is one frame's classification plus its duration in
// milliseconds. Accumulation in consumers is always measured in
// milliseconds, never frame counts, so a change in frame size does not
// shift thresholds.
type Verdict struct {
	IsSpeech   bool
	DurationMs int
}

// Detector classifies fixed-size PCM frames. Implementations must accept
// 10/20/30 ms frames at one of the supported VAD rates (8/16/32 kHz).
type Detector interface {
	// ProcessFrame classifies one frame of signed 16-bit mono samples.
	ProcessFrame(frame []int16) (Verdict, error)
	// Reset clears any internal state between recordings/turns.
	Reset()
	// Clone returns an independent detector with the same configuration
	// but no carried-over state, for use by a new concurrent stream
	// (barge-in monitor and endpointing recorder each need their own).
	Clone() Detector
	// Backend reports which implementation is active.
	Backend() Backend
}

// AggressivenessToEnergyFloor maps the 0..3 aggressiveness scale to a
// normalized RMS energy floor for the fallback backend. Higher means
// stricter: fewer false positives, more missed onsets.
func AggressivenessToEnergyFloor(aggressiveness int) float64 {
	switch {
	case aggressiveness <= 0:
		return 0.002
	case aggressiveness == 1:
		return 0.005
	case aggressiveness == 2:
		return 0.01
	default:
		return 0.02
	}
}
