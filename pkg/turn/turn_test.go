package turn

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voicemode/voicecore/pkg/audioio"
	"github.com/voicemode/voicecore/pkg/streamcapture"
	"github.com/voicemode/voicecore/pkg/vad"
)

// fakeSynth returns a fixed tone as a WAV payload, so speak() never reaches
// a real network call.
type fakeSynth struct {
	sampleRate int
	samples    int
}

func (f *fakeSynth) Synthesize(ctx context.Context, text, voice, format string, speed float64) ([]byte, error) {
	rate := f.sampleRate
	if rate == 0 {
		rate = 16000
	}
	n := f.samples
	if n == 0 {
		n = rate / 10 // 100ms of silence
	}
	pcm := make([]byte, n*2)
	return audioio.EncodeWAV(pcm, rate), nil
}

// fakeSingleShot returns a canned transcript without shelling out to a
// recognizer binary.
type fakeSingleShot struct {
	transcript string
}

func (f *fakeSingleShot) Transcribe(ctx context.Context, wavPath string) (string, error) {
	return f.transcript, nil
}

// newTestController builds a Controller whose device opens are backed by
// audioio.NewFakeDevice instead of real hardware, through the same kind of
// func-field substitution as bargein.Monitor's OpenCapture field.
func newTestController(cfg Config, synth *fakeSynth, singleShot *fakeSingleShot) (*Controller, *audioio.Device) {
	c := New(cfg, synth, singleShot, vad.NewEnergyDetector(1, 16000), nil, nil)

	playbackDev := audioio.NewFakeDevice(16000, 1)
	c.openPlaybackDevice = func() (*audioio.Device, error) {
		return playbackDev, nil
	}
	c.openCaptureDevice = func(onCapture func([]int16)) (*audioio.Device, error) {
		return audioio.NewFakeDevice(16000, 1), nil
	}
	return c, playbackDev
}

func loudFrame(n int) []int16 {
	f := make([]int16, n)
	for i := range f {
		if i%2 == 0 {
			f[i] = 12000
		} else {
			f[i] = -12000
		}
	}
	return f
}

// TestConverse_NoBargeIn drives the no-barge-in path of the five-step flow:
// playback completes naturally (simulated via TriggerDrain, since the fake
// device has no real callback loop to drain it), and a fresh endpointing
// recording is made and transcribed.
func TestConverse_NoBargeIn(t *testing.T) {
	synth := &fakeSynth{}
	singleShot := &fakeSingleShot{transcript: "hello there"}
	c, playbackDev := newTestController(Config{
		BargeInEnabled:      false,
		EndpointMaxDuration: time.Second,
		EndpointMinDuration: 0,
		EndpointSilenceMs:   20,
	}, synth, singleShot)

	// Drain playback almost immediately so Converse proceeds to recording.
	go func() {
		time.Sleep(5 * time.Millisecond)
		playbackDev.TriggerDrain()
	}()

	// The fake capture device never calls onCapture on its own; feed one
	// loud frame and then silent frames asynchronously. The loud frame sets
	// speech_detected, and the first 20ms silent frame meets the 20ms
	// SilenceThresholdMs, so the recorder stops on trailing silence well
	// before MaxDuration.
	c.openCaptureDevice = func(onCapture func([]int16)) (*audioio.Device, error) {
		go func() {
			time.Sleep(10 * time.Millisecond)
			onCapture(loudFrame(320))
			onCapture(make([]int16, 320))
			onCapture(make([]int16, 320))
		}()
		return audioio.NewFakeDevice(16000, 1), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := c.Converse(ctx, Options{
		Message:         "hi",
		WaitForResponse: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.BargeInFired {
		t.Fatal("expected no barge-in when disabled")
	}
	if !result.SpeechDetected {
		t.Fatal("expected speech detected from the loud frame")
	}
	if result.Transcript != "hello there" {
		t.Fatalf("expected transcript from singleShot, got %q", result.Transcript)
	}
}

// TestConverse_WaitForResponseFalse exercises the early-return short
// circuit: once playback completes, Converse must not record or transcribe.
func TestConverse_WaitForResponseFalse(t *testing.T) {
	synth := &fakeSynth{}
	singleShot := &fakeSingleShot{transcript: "should not be used"}
	c, playbackDev := newTestController(Config{BargeInEnabled: false}, synth, singleShot)

	go func() {
		time.Sleep(5 * time.Millisecond)
		playbackDev.TriggerDrain()
	}()

	c.openCaptureDevice = func(onCapture func([]int16)) (*audioio.Device, error) {
		t.Fatal("capture device should never be opened when WaitForResponse is false")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result, err := c.Converse(ctx, Options{Message: "hi", WaitForResponse: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Spoken {
		t.Fatal("expected Spoken to be true")
	}
	if result.Transcript != "" {
		t.Fatalf("expected no transcript, got %q", result.Transcript)
	}
}

// TestConverse_BargeInFired drives speech through the barge-in monitor's
// fake capture stream while playback is still in flight (never drained),
// asserting the monitor interrupts playback and its captured prefix is
// spliced ahead of the follow-up recording per turn.go's hand-off.
func TestConverse_BargeInFired(t *testing.T) {
	synth := &fakeSynth{}
	singleShot := &fakeSingleShot{transcript: "after barge in"}
	c, _ := newTestController(Config{
		BargeInEnabled:       true,
		BargeInMinSpeechMs:   20,
		BargeInRequireNeural: false,
		EndpointMaxDuration:  50 * time.Millisecond,
		EndpointMinDuration:  0,
		EndpointSilenceMs:    20,
	}, synth, singleShot)

	// Playback is never drained on its own here; the barge-in callback
	// must be the thing that clears it via Interrupt().
	c.openBargeInCapture = func(onCapture func([]int16)) (*audioio.Device, error) {
		go func() {
			time.Sleep(5 * time.Millisecond)
			onCapture(loudFrame(320))
			onCapture(loudFrame(320))
		}()
		return audioio.NewFakeDevice(16000, 1), nil
	}
	c.openCaptureDevice = func(onCapture func([]int16)) (*audioio.Device, error) {
		go func() {
			time.Sleep(5 * time.Millisecond)
			onCapture(make([]int16, 320))
			onCapture(make([]int16, 320))
		}()
		return audioio.NewFakeDevice(16000, 1), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := c.Converse(ctx, Options{Message: "hi", WaitForResponse: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.BargeInFired {
		t.Fatal("expected barge-in to fire")
	}
	if !result.SpeechDetected {
		t.Fatal("expected speech detected via the barge-in prefix")
	}
	if result.Transcript != "after barge in" {
		t.Fatalf("unexpected transcript: %q", result.Transcript)
	}
}

// TestConverse_StreamCapture exercises the alternate-mode wiring: a
// nonexistent WhisperStreamBin makes streamcapture.Session.Run fail fast,
// proving Converse routes the error through ErrRecognizerFailed instead of
// running the ordinary five-step flow.
func TestConverse_StreamCapture(t *testing.T) {
	synth := &fakeSynth{}
	singleShot := &fakeSingleShot{}
	c, _ := newTestController(Config{}, synth, singleShot)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := c.Converse(ctx, Options{
		StreamCapture: true,
		StreamCaptureOpt: streamcapture.Options{
			WhisperStreamBin: "voicemode-nonexistent-binary-xyz",
		},
	})
	if err == nil {
		t.Fatal("expected an error from a nonexistent whisper-stream binary")
	}
	if !errors.Is(err, ErrRecognizerFailed) {
		t.Fatalf("expected ErrRecognizerFailed, got %v", err)
	}
}
