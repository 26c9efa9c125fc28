package vad

// Capabilities reports which VAD backend is usable, probed once at
// startup so absence of the neural backend becomes a constructor-time
// argument rather than a scattered "if available" check at every call
// site.
type Capabilities struct {
	NeuralAvailable bool
}

// DetectCapabilities attempts to construct a neural detector against
// modelPath purely to probe availability, then discards it. Returns the
// result so the caller can decide, once, which backend every subsequent
// component should receive.
func DetectCapabilities(modelPath string) Capabilities {
	d, err := NewSileroDetector(modelPath, 0.5)
	if err != nil {
		return Capabilities{NeuralAvailable: false}
	}
	if closer, ok := d.(interface{ Close() error }); ok {
		closer.Close()
	}
	return Capabilities{NeuralAvailable: true}
}

// New builds the preferred detector: neural when modelPath resolves to a
// loadable model, energy fallback otherwise.
func New(modelPath string, aggressiveness int) Detector {
	if modelPath != "" {
		if d, err := NewSileroDetector(modelPath, 0.5); err == nil {
			return d
		}
	}
	return NewEnergyDetector(aggressiveness, 16000)
}
