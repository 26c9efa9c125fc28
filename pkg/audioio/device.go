// Package audioio provides duplex capture/playback primitives over the
// host's audio subsystem via malgo.
package audioio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/voicemode/voicecore/internal/vlog"
)

// ErrDeviceUnavailable covers every capture/playback open failure: device
// busy, unsupported rate, permission denied. All are recoverable for the
// next turn.
var ErrDeviceUnavailable = errors.New("audioio: device unavailable")

// FrameCallback receives a fixed-size buffer of signed 16-bit mono samples
// captured from the input device.
type FrameCallback func(samples []int16)

// Device owns the malgo context and a single duplex stream shared by
// capture and playback. Components that need a concurrent read-only view
// of the microphone (the barge-in monitor) construct their own Device
// rather than sharing this one.
type Device struct {
	mu         sync.Mutex
	mctx       *malgo.AllocatedContext
	dev        *malgo.Device
	sampleRate int
	channels   int
	logger     vlog.Logger

	onCapture FrameCallback

	playbackMu    sync.Mutex
	playbackBytes []byte
	onDrain       func() // called once the playback buffer empties
}

// Config selects the duplex stream's format.
type Config struct {
	SampleRate int
	Channels   int
	Logger     vlog.Logger
}

// Open initializes the malgo context and starts a duplex device. The
// capture side invokes onCapture with each delivered frame; playback is
// drained from an internal buffer fed by Enqueue.
func Open(cfg Config, onCapture FrameCallback) (*Device, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = vlog.NoOpLogger{}
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: init context: %v", ErrDeviceUnavailable, err)
	}

	d := &Device{
		mctx:       mctx,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		logger:     logger,
		onCapture:  onCapture,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)

	dev, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: d.onSamples,
	})
	if err != nil {
		mctx.Uninit()
		return nil, fmt.Errorf("%w: init device: %v", ErrDeviceUnavailable, err)
	}
	d.dev = dev

	if err := dev.Start(); err != nil {
		dev.Uninit()
		mctx.Uninit()
		return nil, fmt.Errorf("%w: start device: %v", ErrDeviceUnavailable, err)
	}

	return d, nil
}

// NewFakeDevice builds a Device with no underlying malgo context or
// callback, for tests substituting a Sink/frameSource double in place of
// real audio hardware. Enqueue/ClearPlayback/NativeSampleRate/Close all
// work normally; TriggerDrain simulates the device callback draining the
// playback buffer, which never happens on its own without a real stream.
func NewFakeDevice(sampleRate, channels int) *Device {
	if sampleRate == 0 {
		sampleRate = 16000
	}
	if channels == 0 {
		channels = 1
	}
	return &Device{sampleRate: sampleRate, channels: channels, logger: vlog.NoOpLogger{}}
}

// TriggerDrain empties the playback buffer and fires the pending onDrain
// callback, as the real device callback would once the speaker consumes
// the buffered audio.
func (d *Device) TriggerDrain() {
	d.playbackMu.Lock()
	d.playbackBytes = nil
	cb := d.onDrain
	d.onDrain = nil
	d.playbackMu.Unlock()
	if cb != nil {
		cb()
	}
}

// NativeSampleRate reports the rate the device was opened at. Recordings
// keep this rate all the way to the recognizer; only VAD resamples to
// 16 kHz.
func (d *Device) NativeSampleRate() int { return d.sampleRate }

func (d *Device) onSamples(pOutput, pInput []byte, frameCount uint32) {
	if pInput != nil && d.onCapture != nil {
		d.onCapture(BytesToInt16(pInput))
	}
	if pOutput != nil {
		d.playbackMu.Lock()
		n := copy(pOutput, d.playbackBytes)
		d.playbackBytes = d.playbackBytes[n:]
		drained := len(d.playbackBytes) == 0
		cb := d.onDrain
		d.playbackMu.Unlock()

		for i := n; i < len(pOutput); i++ {
			pOutput[i] = 0
		}
		if drained && n > 0 && cb != nil {
			cb()
		}
	}
}

// Enqueue appends PCM bytes to the playback buffer; the device callback
// drains it on subsequent output buffer pulls. onDrain, if non-nil, fires
// exactly once the buffer next empties after having held data.
func (d *Device) Enqueue(pcm []byte, onDrain func()) {
	d.playbackMu.Lock()
	d.playbackBytes = append(d.playbackBytes, pcm...)
	d.onDrain = onDrain
	d.playbackMu.Unlock()
}

// ClearPlayback discards any queued-but-undrained playback bytes (used by
// the playback engine's interrupt path).
func (d *Device) ClearPlayback() {
	d.playbackMu.Lock()
	d.playbackBytes = nil
	d.onDrain = nil
	d.playbackMu.Unlock()
}

// PendingPlaybackBytes reports how much queued audio has not yet been
// drained to the device.
func (d *Device) PendingPlaybackBytes() int {
	d.playbackMu.Lock()
	defer d.playbackMu.Unlock()
	return len(d.playbackBytes)
}

// Close stops and releases the device and its context.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dev != nil {
		d.dev.Uninit()
		d.dev = nil
	}
	if d.mctx != nil {
		d.mctx.Uninit()
		d.mctx = nil
	}
	return nil
}

// BytesToInt16 reinterprets a little-endian s16le byte buffer as samples.
func BytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(b[2*i]) | int16(b[2*i+1])<<8
	}
	return out
}

// Int16ToBytes serializes samples to a little-endian s16le byte buffer.
func Int16ToBytes(s []int16) []byte {
	out := make([]byte, len(s)*2)
	for i, v := range s {
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}
