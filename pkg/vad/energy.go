package vad

import "math"

// EnergyDetector is the RMS-threshold fallback backend. It is a pure
// per-frame classifier: onset hysteresis and speech accumulation live in
// the consumers (endpointing, barge-in), not here.
type EnergyDetector struct {
	threshold  float64
	sampleRate int
	lastRMS    float64
}

// NewEnergyDetector builds a fallback detector whose threshold is derived
// from the aggressiveness-to-energy-floor mapping.
func NewEnergyDetector(aggressiveness, sampleRate int) *EnergyDetector {
	return &EnergyDetector{threshold: AggressivenessToEnergyFloor(aggressiveness), sampleRate: sampleRate}
}

// NewEnergyDetectorWithThreshold builds a detector with an explicit
// normalized-RMS threshold, bypassing the aggressiveness mapping.
func NewEnergyDetectorWithThreshold(threshold float64, sampleRate int) *EnergyDetector {
	return &EnergyDetector{threshold: threshold, sampleRate: sampleRate}
}

func (d *EnergyDetector) SetThreshold(threshold float64) { d.threshold = threshold }
func (d *EnergyDetector) Threshold() float64             { return d.threshold }
func (d *EnergyDetector) LastRMS() float64               { return d.lastRMS }

func (d *EnergyDetector) ProcessFrame(frame []int16) (Verdict, error) {
	rms := calculateRMS(frame)
	d.lastRMS = rms
	rate := d.sampleRate
	if rate == 0 {
		rate = 16000
	}
	durationMs := len(frame) * 1000 / rate
	return Verdict{IsSpeech: rms > d.threshold, DurationMs: durationMs}, nil
}

func (d *EnergyDetector) Reset() {}

func (d *EnergyDetector) Clone() Detector {
	return &EnergyDetector{threshold: d.threshold, sampleRate: d.sampleRate}
}

func (d *EnergyDetector) Backend() Backend { return BackendEnergy }

func calculateRMS(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, sample := range frame {
		f := float64(sample) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(frame)))
}
