//go:build silero

// Silero VAD v5 run through ONNX Runtime: one inference per 512-sample
// (32 ms @ 16 kHz) window, RNN state carried across calls. Gated behind
// the "silero" build tag so builds without the ONNX Runtime shared
// library stay pure Go (silero_stub.go provides the !silero fallback).
package vad

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	sileroWindowSize   = 512
	sileroStateSize    = 128
	sileroSampleRate   = 16000
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// SileroDetector runs Silero VAD v5 inference via ONNX Runtime.
type SileroDetector struct {
	session *ort.AdvancedSession

	inputTensor  *ort.Tensor[float32]
	stateTensor  *ort.Tensor[float32]
	srTensor     *ort.Tensor[int64]
	outputTensor *ort.Tensor[float32]
	stateNTensor *ort.Tensor[float32]

	pcmBuf      []float32
	threshold   float64
	lastVerdict bool
	modelPath   string
}

// NewSileroDetector loads the ONNX model from modelPath and allocates the
// input/state/output tensors. Returns ErrUnavailable if the runtime cannot
// be initialized or the model can't be read, so callers can fall back to
// EnergyDetector.
func NewSileroDetector(modelPath string, threshold float64) (Detector, error) {
	data, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read model: %v", ErrUnavailable, err)
	}

	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("%w: init onnxruntime: %v", ErrUnavailable, ortInitErr)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, sileroWindowSize))
	if err != nil {
		return nil, fmt.Errorf("%w: input tensor: %v", ErrUnavailable, err)
	}
	stateTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, sileroStateSize))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("%w: state tensor: %v", ErrUnavailable, err)
	}
	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{sileroSampleRate})
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		return nil, fmt.Errorf("%w: sr tensor: %v", ErrUnavailable, err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		return nil, fmt.Errorf("%w: output tensor: %v", ErrUnavailable, err)
	}
	stateNTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, sileroStateSize))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("%w: stateN tensor: %v", ErrUnavailable, err)
	}

	session, err := ort.NewAdvancedSessionWithONNXData(
		data,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		[]ort.Value{inputTensor, stateTensor, srTensor},
		[]ort.Value{outputTensor, stateNTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		outputTensor.Destroy()
		stateNTensor.Destroy()
		return nil, fmt.Errorf("%w: create session: %v", ErrUnavailable, err)
	}

	return &SileroDetector{
		session:      session,
		inputTensor:  inputTensor,
		stateTensor:  stateTensor,
		srTensor:     srTensor,
		outputTensor: outputTensor,
		stateNTensor: stateNTensor,
		pcmBuf:       make([]float32, 0, sileroWindowSize*2),
		threshold:    threshold,
		modelPath:    modelPath,
	}, nil
}

func (d *SileroDetector) ProcessFrame(frame []int16) (Verdict, error) {
	durationMs := len(frame) * 1000 / sileroSampleRate
	for _, s := range frame {
		d.pcmBuf = append(d.pcmBuf, float32(s)/32768.0)
	}
	for len(d.pcmBuf) >= sileroWindowSize {
		prob, err := d.infer(d.pcmBuf[:sileroWindowSize])
		if err != nil {
			return Verdict{}, err
		}
		d.pcmBuf = d.pcmBuf[sileroWindowSize:]
		d.lastVerdict = float64(prob) >= d.threshold
	}
	return Verdict{IsSpeech: d.lastVerdict, DurationMs: durationMs}, nil
}

func (d *SileroDetector) infer(window []float32) (float32, error) {
	copy(d.inputTensor.GetData(), window)
	if err := d.session.Run(); err != nil {
		return 0, fmt.Errorf("silero: inference: %w", err)
	}
	prob := d.outputTensor.GetData()[0]
	copy(d.stateTensor.GetData(), d.stateNTensor.GetData())
	return prob, nil
}

func (d *SileroDetector) Reset() {
	for i := range d.stateTensor.GetData() {
		d.stateTensor.GetData()[i] = 0
	}
	d.pcmBuf = d.pcmBuf[:0]
	d.lastVerdict = false
}

func (d *SileroDetector) Clone() Detector {
	clone, err := NewSileroDetector(d.modelPath, d.threshold)
	if err != nil {
		// Same process already proved the model loads; a clone failure here
		// means we're out of resources, not that the backend is unavailable.
		return d
	}
	return clone
}

func (d *SileroDetector) Backend() Backend { return BackendNeural }

func (d *SileroDetector) Close() error {
	if d.session != nil {
		d.session.Destroy()
		d.session = nil
	}
	for _, t := range []interface{ Destroy() }{d.inputTensor, d.stateTensor, d.srTensor, d.outputTensor, d.stateNTensor} {
		t.Destroy()
	}
	return nil
}
