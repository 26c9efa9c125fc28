// Package bargein watches the microphone while synthesized speech plays
// and fires a callback the instant the user starts talking, handing off
// the captured utterance prefix to whatever records the rest of the turn.
// The monitor runs as a goroutine fed by a channel, with atomic.Bool
// flags, a mutex-guarded capture buffer, and a context-bounded join.
package bargein

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voicemode/voicecore/internal/vlog"
	"github.com/voicemode/voicecore/pkg/audioio"
	"github.com/voicemode/voicecore/pkg/vad"
)

// ErrUnavailable is returned by Start when the neural VAD is required but
// not present, so the turn controller can disable barge-in for that turn
// instead of triggering off the noisier energy fallback.
var ErrUnavailable = errors.New("bargein: neural VAD unavailable")

// ErrAlreadyMonitoring is returned by Start when the worker is already
// running. The monitor is single-use per turn; callers construct a new
// one rather than restarting a live instance.
var ErrAlreadyMonitoring = errors.New("bargein: monitoring already active")

// echoSuppressor is the subset of *echosuppress.Suppressor the monitor
// depends on, extracted so tests can substitute a fake without touching
// real correlation math.
type echoSuppressor interface {
	IsEcho(input []byte) bool
}

const (
	frameDurationMs = 20
	captureRate     = 16000
	frameSamples    = captureRate * frameDurationMs / 1000 // 320
	joinTimeout     = time.Second
)

// Monitor watches the microphone for voice activity while some other
// component (typically the playback engine) is active. It is independent
// of any specific PlaybackHandle; callers wire its on-voice-detected
// callback to whatever they want interrupted.
type Monitor struct {
	minSpeechMs   int
	requireNeural bool
	detector      vad.Detector
	suppressor    echoSuppressor
	logger        vlog.Logger

	mu         sync.Mutex
	dev        *audioio.Device
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	bufSamples []int16 // unprocessed leftover samples awaiting a full frame, owned by run()

	audioBuf      [][]int16 // the only shared mutable collection; everything else is flags or worker-owned
	audioBufMu    sync.Mutex
	voiceDetected atomic.Bool
	callbackFired atomic.Bool
	speechMsAccum int

	// OpenCapture, when non-nil, replaces the real capture stream opener;
	// tests substitute a fake device here to drive the monitor without
	// real audio hardware, matching pkg/turn.Controller's device-opener
	// fields.
	OpenCapture func(onCapture func([]int16)) (*audioio.Device, error)
}

// New builds a monitor that will, once started, run its own VAD instance
// cloned from d so it never shares mutable state with any concurrent
// endpointing recorder.
func New(d vad.Detector, minSpeechMs int, requireNeural bool, suppressor echoSuppressor, logger vlog.Logger) *Monitor {
	if logger == nil {
		logger = vlog.NoOpLogger{}
	}
	return &Monitor{
		minSpeechMs:   minSpeechMs,
		requireNeural: requireNeural,
		detector:      d.Clone(),
		suppressor:    suppressor,
		logger:        logger,
	}
}

// Start opens a separate 16kHz mono capture stream and spawns the
// monitoring worker. onVoiceDetected, if non-nil, is invoked inline on the
// worker the instant accumulated speech crosses minSpeechMs; the caller
// must do only O(1) work there (typically: interrupt a playback handle).
func (m *Monitor) Start(onVoiceDetected func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dev != nil {
		return ErrAlreadyMonitoring
	}
	if m.requireNeural && m.detector.Backend() != vad.BackendNeural {
		return ErrUnavailable
	}

	m.voiceDetected.Store(false)
	m.callbackFired.Store(false)
	m.speechMsAccum = 0
	m.audioBufMu.Lock()
	m.audioBuf = nil
	m.audioBufMu.Unlock()
	m.bufSamples = nil

	frames := make(chan []int16, 64)
	open := m.OpenCapture
	if open == nil {
		open = func(onCapture func([]int16)) (*audioio.Device, error) {
			return audioio.Open(audioio.Config{SampleRate: captureRate, Channels: 1, Logger: m.logger}, onCapture)
		}
	}
	dev, err := open(func(samples []int16) {
		select {
		case frames <- samples:
		default:
		}
	})
	if err != nil {
		m.logger.Warn("bargein: failed to open capture stream", "error", err)
		return err
	}
	m.dev = dev

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.wg.Add(1)
	go m.run(ctx, frames, onVoiceDetected)
	return nil
}

func (m *Monitor) run(ctx context.Context, frames chan []int16, onVoiceDetected func()) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case samples := <-frames:
			m.bufSamples = append(m.bufSamples, samples...)
			for len(m.bufSamples) >= frameSamples {
				frame := m.bufSamples[:frameSamples]
				m.bufSamples = m.bufSamples[frameSamples:]
				m.processFrame(frame, onVoiceDetected)
			}
		}
	}
}

func (m *Monitor) processFrame(frame []int16, onVoiceDetected func()) {
	if m.suppressor != nil {
		pcm := audioio.Int16ToBytes(frame)
		if m.suppressor.IsEcho(pcm) {
			return
		}
	}

	verdict, err := m.detector.ProcessFrame(frame)
	if err != nil {
		m.logger.Warn("bargein: VAD error, treating frame as silence", "error", err)
		verdict.IsSpeech = false
	}

	if verdict.IsSpeech {
		m.speechMsAccum += frameDurationMs
		m.appendBuffer(frame)

		if m.speechMsAccum >= m.minSpeechMs && !m.callbackFired.Load() {
			m.voiceDetected.Store(true)
			m.callbackFired.Store(true)
			if onVoiceDetected != nil {
				m.invokeCallback(onVoiceDetected)
			}
		}
	} else {
		if !m.callbackFired.Load() {
			m.speechMsAccum = 0
			m.clearBuffer()
		} else {
			// After the trigger, silence frames are kept too, so the
			// captured prefix includes trailing silence.
			m.appendBuffer(frame)
		}
	}
}

// invokeCallback recovers from a panicking callback so a misbehaving
// caller can never kill the worker.
func (m *Monitor) invokeCallback(cb func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("bargein: on-voice-detected callback panicked", "panic", r)
		}
	}()
	cb()
}

func (m *Monitor) appendBuffer(frame []int16) {
	cp := make([]int16, len(frame))
	copy(cp, frame)
	m.audioBufMu.Lock()
	m.audioBuf = append(m.audioBuf, cp)
	m.audioBufMu.Unlock()
}

func (m *Monitor) clearBuffer() {
	m.audioBufMu.Lock()
	m.audioBuf = nil
	m.audioBufMu.Unlock()
}

// Stop halts the worker and closes the capture stream. Idempotent: safe
// when never started, already stopped, or mid-trigger.
func (m *Monitor) Stop() {
	m.mu.Lock()
	dev := m.dev
	cancel := m.cancel
	m.dev = nil
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(joinTimeout):
		m.logger.Warn("bargein: monitoring worker did not stop within timeout")
	}

	if dev != nil {
		dev.Close()
	}
}

// GetCapturedAudio concatenates the captured utterance prefix under the
// mutex and returns it by value. May be called once after Stop.
func (m *Monitor) GetCapturedAudio() []int16 {
	m.audioBufMu.Lock()
	defer m.audioBufMu.Unlock()
	if len(m.audioBuf) == 0 {
		return nil
	}
	total := 0
	for _, chunk := range m.audioBuf {
		total += len(chunk)
	}
	out := make([]int16, 0, total)
	for _, chunk := range m.audioBuf {
		out = append(out, chunk...)
	}
	return out
}

// VoiceDetected reports whether voice activity triggered barge-in.
func (m *Monitor) VoiceDetected() bool { return m.voiceDetected.Load() }

// IsMonitoring reports whether the worker is currently running.
func (m *Monitor) IsMonitoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dev != nil
}
