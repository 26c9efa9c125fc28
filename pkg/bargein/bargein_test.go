package bargein

import (
	"testing"

	"github.com/voicemode/voicecore/internal/vlog"
	"github.com/voicemode/voicecore/pkg/vad"
)

func loudFrame() []int16 {
	f := make([]int16, frameSamples)
	for i := range f {
		if i%2 == 0 {
			f[i] = 12000
		} else {
			f[i] = -12000
		}
	}
	return f
}

func silentFrame() []int16 {
	return make([]int16, frameSamples)
}

func TestProcessFrame_TriggersAfterMinSpeechMs(t *testing.T) {
	m := &Monitor{
		minSpeechMs: 40,
		detector:    vad.NewEnergyDetector(1, captureRate),
	}

	fired := 0
	m.processFrame(loudFrame(), func() { fired++ })
	if fired != 0 {
		t.Fatal("should not fire after only one frame (20ms < 40ms threshold)")
	}
	m.processFrame(loudFrame(), func() { fired++ })
	if fired != 1 {
		t.Fatalf("expected callback to fire exactly once after crossing threshold, got %d", fired)
	}
	if !m.VoiceDetected() {
		t.Fatal("expected VoiceDetected to be true")
	}
}

func TestProcessFrame_CallbackFiresAtMostOnce(t *testing.T) {
	m := &Monitor{
		minSpeechMs: 20,
		detector:    vad.NewEnergyDetector(1, captureRate),
	}
	fired := 0
	m.processFrame(loudFrame(), func() { fired++ })
	m.processFrame(loudFrame(), func() { fired++ })
	m.processFrame(loudFrame(), func() { fired++ })
	if fired != 1 {
		t.Fatalf("expected exactly one callback invocation, got %d", fired)
	}
}

func TestProcessFrame_SilenceResetsAccumulatorBeforeTrigger(t *testing.T) {
	m := &Monitor{
		minSpeechMs: 40,
		detector:    vad.NewEnergyDetector(1, captureRate),
	}
	m.processFrame(loudFrame(), nil)
	m.processFrame(silentFrame(), nil)
	if m.speechMsAccum != 0 {
		t.Fatalf("expected silence to reset accumulator, got %d", m.speechMsAccum)
	}
	if len(m.GetCapturedAudio()) != 0 {
		t.Fatal("expected buffer to be cleared on pre-trigger silence")
	}
}

func TestProcessFrame_KeepsCapturingAfterTrigger(t *testing.T) {
	m := &Monitor{
		minSpeechMs: 20,
		detector:    vad.NewEnergyDetector(1, captureRate),
	}
	m.processFrame(loudFrame(), func() {})
	m.processFrame(silentFrame(), nil)

	captured := m.GetCapturedAudio()
	if len(captured) != frameSamples*2 {
		t.Fatalf("expected post-trigger silence to still be appended, got %d samples", len(captured))
	}
}

func TestProcessFrame_PanickingCallbackDoesNotPropagate(t *testing.T) {
	m := &Monitor{
		minSpeechMs: 20,
		detector:    vad.NewEnergyDetector(1, captureRate),
		logger:      vlog.NoOpLogger{},
	}
	m.processFrame(loudFrame(), func() { panic("boom") })
	if !m.callbackFired.Load() {
		t.Fatal("expected callback_fired to be set despite panic")
	}
}

func TestStop_IdempotentWhenNeverStarted(t *testing.T) {
	m := New(vad.NewEnergyDetector(1, captureRate), 200, false, nil, nil)
	m.Stop()
	m.Stop()
	if m.IsMonitoring() {
		t.Fatal("expected IsMonitoring to be false")
	}
}

func TestStart_FailsWhenNeuralRequiredButUnavailable(t *testing.T) {
	m := New(vad.NewEnergyDetector(1, captureRate), 200, true, nil, nil)
	err := m.Start(nil)
	if err != ErrUnavailable {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestProcessFrame_EchoSuppressedFrameNeverCountsAsSpeech(t *testing.T) {
	m := &Monitor{
		minSpeechMs: 20,
		detector:    vad.NewEnergyDetector(1, captureRate),
		suppressor:  alwaysEcho{},
	}
	m.processFrame(loudFrame(), func() { t.Fatal("callback must not fire on suppressed echo") })
	if m.speechMsAccum != 0 {
		t.Fatal("expected echo frame to be skipped entirely")
	}
}

// alwaysEcho satisfies the monitor's suppressor surface; processFrame
// only calls IsEcho, so a minimal stand-in suffices.
type alwaysEcho struct{}

func (alwaysEcho) IsEcho(_ []byte) bool { return true }
