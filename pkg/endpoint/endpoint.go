// Package endpoint records until the speaker finishes talking: it
// captures at the device's native rate, classifies each frame with the
// VAD at 16 kHz, and stops on max duration, on trailing silence once
// speech has been seen, or on external cancellation.
package endpoint

import (
	"context"
	"sync"
	"time"

	"github.com/voicemode/voicecore/internal/vlog"
	"github.com/voicemode/voicecore/pkg/audioio"
	"github.com/voicemode/voicecore/pkg/vad"
)

// State mirrors the three states the optional visualizer receives.
type State string

const (
	StateWaiting State = "WAITING"
	StateActive  State = "ACTIVE"
	StateSilence State = "SILENCE"
)

// Visualizer receives one (elapsed, rms_level, speech_detected,
// trailing_silence_ms, state) tuple per frame, enough to drive a terminal
// level meter. It is purely observational: it must never influence
// endpointing, so Recorder never inspects its effect.
type Visualizer interface {
	Update(elapsed time.Duration, rmsLevel float64, speechDetected bool, trailingSilenceMs int, state State)
}

// Options configures one Record call.
type Options struct {
	MaxDuration        time.Duration
	MinDuration        time.Duration
	SilenceThresholdMs int
	VADAggressiveness  int
	Visualizer         Visualizer
}

// Result is one finished recording: concatenated PCM at the device's
// native rate (trailing silence included), whether any speech was seen,
// and that native rate.
type Result struct {
	PCM            []byte
	SpeechDetected bool
	SampleRate     int
}

// frameSource is the subset of *audioio.Device a recorder needs: a stream
// of native-rate frames. Extracted for testability.
type frameSource interface {
	NativeSampleRate() int
}

// Recorder drives one record-to-silence pass. Frames arrive by pushing them
// through Feed from the device's capture callback; Record blocks until a
// stop condition fires or ctx is cancelled.
type Recorder struct {
	detector   vad.Detector
	sampleRate int

	mu                sync.Mutex
	pcm               []byte
	speechDetected    bool
	speechMs          int
	trailingSilenceMs int
	elapsed           time.Duration

	frames chan []int16
	done   chan struct{}
	once   sync.Once
}

// RecordToSilence is the blocking convenience path: open a capture
// device, run one endpointing pass against it, close the device, return
// the recording.
func RecordToSilence(ctx context.Context, d vad.Detector, sampleRate, channels int, opts Options, logger vlog.Logger) (Result, error) {
	var rec *Recorder
	dev, err := audioio.Open(audioio.Config{SampleRate: sampleRate, Channels: channels, Logger: logger}, func(samples []int16) {
		if rec != nil {
			rec.Feed(samples)
		}
	})
	if err != nil {
		return Result{}, err
	}
	defer dev.Close()

	rec = NewRecorder(dev, d)
	return rec.Record(ctx, opts)
}

// NewRecorder builds a recorder against dev's native rate, cloning d so
// concurrent recorders (e.g. a barge-in monitor running at the same time)
// never share mutable VAD state.
func NewRecorder(dev *audioio.Device, d vad.Detector) *Recorder {
	return &Recorder{
		detector:   d.Clone(),
		sampleRate: dev.NativeSampleRate(),
		frames:     make(chan []int16, 64),
		done:       make(chan struct{}),
	}
}

// Feed hands one native-rate frame to the recorder. Safe to call from the
// audio callback; never blocks indefinitely (the channel is buffered, and a
// full channel means the recorder has already stopped, so the frame is
// dropped).
func (r *Recorder) Feed(samples []int16) {
	select {
	case r.frames <- samples:
	case <-r.done:
	default:
	}
}

// Record runs the capture loop and returns once one of the three stop
// conditions fires: max duration, trailing silence after speech, or
// cancellation.
func (r *Recorder) Record(ctx context.Context, opts Options) (Result, error) {
	start := time.Now()
	silenceMs := opts.SilenceThresholdMs

	var maxDeadline <-chan time.Time
	if opts.MaxDuration > 0 {
		timer := time.NewTimer(opts.MaxDuration)
		defer timer.Stop()
		maxDeadline = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return r.finish(), nil
		case <-maxDeadline:
			return r.finish(), nil
		case samples := <-r.frames:
			r.mu.Lock()
			r.pcm = append(r.pcm, audioio.Int16ToBytes(samples)...)
			elapsed := time.Since(start)
			r.elapsed = elapsed

			frame16k := vad.Resample16k(samples, r.sampleRate)
			verdict, err := r.detector.ProcessFrame(frame16k)
			if err != nil {
				r.mu.Unlock()
				continue
			}

			state := StateWaiting
			if verdict.IsSpeech {
				r.speechDetected = true
				r.speechMs += verdict.DurationMs
				r.trailingSilenceMs = 0
				state = StateActive
			} else {
				if r.speechDetected {
					r.trailingSilenceMs += verdict.DurationMs
					state = StateSilence
				}
			}

			speechDetected := r.speechDetected
			trailingSilenceMs := r.trailingSilenceMs
			rms := rmsOf(r.detector)
			r.mu.Unlock()

			if opts.Visualizer != nil {
				opts.Visualizer.Update(elapsed, rms, speechDetected, trailingSilenceMs, state)
			}

			if opts.MaxDuration > 0 && elapsed >= opts.MaxDuration {
				return r.finish(), nil
			}
			if speechDetected && elapsed >= opts.MinDuration && trailingSilenceMs >= silenceMs {
				return r.finish(), nil
			}
		}
	}
}

func (r *Recorder) finish() Result {
	r.once.Do(func() { close(r.done) })
	r.mu.Lock()
	defer r.mu.Unlock()
	return Result{
		PCM:            r.pcm,
		SpeechDetected: r.speechDetected,
		SampleRate:     r.sampleRate,
	}
}

// rmsOf reports the last RMS level observed, when the active backend
// exposes one (the energy backend does; the neural backend does not, and
// reports 0 — the visualizer is cosmetic so this degrades gracefully).
func rmsOf(d vad.Detector) float64 {
	type rmsReporter interface{ LastRMS() float64 }
	if rr, ok := d.(rmsReporter); ok {
		return rr.LastRMS()
	}
	return 0
}
