// Package turn is the conversation turn controller: the top-level state
// machine that composes the endpointing recorder, the barge-in monitor,
// the playback engine, and the recognizer into a single "speak -> listen"
// exchange, plus an alternate cassette-deck mode that substitutes the
// stream-capture engine for the listen half.
package turn

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/voicemode/voicecore/internal/vlog"
	"github.com/voicemode/voicecore/pkg/audioio"
	"github.com/voicemode/voicecore/pkg/bargein"
	"github.com/voicemode/voicecore/pkg/endpoint"
	"github.com/voicemode/voicecore/pkg/playback"
	"github.com/voicemode/voicecore/pkg/recognizer"
	"github.com/voicemode/voicecore/pkg/streamcapture"
	"github.com/voicemode/voicecore/pkg/vad"
)

// Config carries the behavior thresholds that pertain to one turn.
type Config struct {
	SampleRate                int
	Channels                  int
	BargeInEnabled            bool
	BargeInVADAggressiveness  int
	BargeInMinSpeechMs        int
	BargeInRequireNeural      bool
	EndpointMaxDuration       time.Duration
	EndpointMinDuration       time.Duration
	EndpointSilenceMs         int
	EndpointVADAggressiveness int

	// Visualizer, when non-nil, receives per-frame level updates during
	// the follow-up recording. Purely observational.
	Visualizer endpoint.Visualizer
}

// echoSuppressor is the subset of *echosuppress.Suppressor the barge-in
// monitor depends on; a nil value disables echo pre-filtering.
type echoSuppressor interface {
	IsEcho(input []byte) bool
}

// Controller composes the turn-shape components behind a single Converse
// operation. Hardware device opens are pluggable function fields so unit
// tests can substitute fakes without a real audio device, matching
// bargein.Monitor's OpenCapture field.
type Controller struct {
	cfg        Config
	synth      recognizer.Synthesizer
	singleShot recognizer.SingleShotRecognizer
	vadSource  vad.Detector
	suppressor echoSuppressor
	logger     vlog.Logger

	openPlaybackDevice func() (*audioio.Device, error)
	openCaptureDevice  func(onCapture func([]int16)) (*audioio.Device, error)
	openBargeInCapture func(onCapture func([]int16)) (*audioio.Device, error)
}

// New builds a turn controller. vadSource is cloned by every component
// that needs its own concurrent VAD instance (the endpointing recorder and
// the barge-in monitor never share mutable VAD state).
func New(cfg Config, synth recognizer.Synthesizer, singleShot recognizer.SingleShotRecognizer, vadSource vad.Detector, suppressor echoSuppressor, logger vlog.Logger) *Controller {
	if logger == nil {
		logger = vlog.NoOpLogger{}
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}

	c := &Controller{
		cfg:        cfg,
		synth:      synth,
		singleShot: singleShot,
		vadSource:  vadSource,
		suppressor: suppressor,
		logger:     logger,
	}
	c.openPlaybackDevice = func() (*audioio.Device, error) {
		return audioio.Open(audioio.Config{SampleRate: cfg.SampleRate, Channels: cfg.Channels, Logger: logger}, nil)
	}
	c.openCaptureDevice = func(onCapture func([]int16)) (*audioio.Device, error) {
		return audioio.Open(audioio.Config{SampleRate: cfg.SampleRate, Channels: cfg.Channels, Logger: logger}, onCapture)
	}
	return c
}

// Result is the outcome of one Converse call.
type Result struct {
	Spoken         bool
	BargeInFired   bool
	SpeechDetected bool
	Transcript     string
	Capture        *streamcapture.Result // set only when Options.StreamCapture is used
}

// Options parameterizes Converse.
type Options struct {
	Message          string
	Voice            string
	Format           string // e.g. "wav"; only "wav" is decodable by this controller
	Speed            float64
	WaitForResponse  bool
	StreamCapture    bool
	StreamCaptureOpt streamcapture.Options
	FeedbackPlayer   streamcapture.FeedbackPlayer
}

// Converse speaks opts.Message, watches for barge-in while it plays, then
// records and transcribes the reply. When Options.StreamCapture is set the
// cassette-deck engine replaces the whole listen half and playback is
// suppressed.
func (c *Controller) Converse(ctx context.Context, opts Options) (Result, error) {
	if opts.StreamCapture {
		return c.converseStreamCapture(ctx, opts)
	}

	handle, playbackDev, err := c.speak(ctx, opts)
	if err != nil {
		return Result{}, err
	}
	defer playbackDev.Close()

	var monitor *bargein.Monitor
	if c.cfg.BargeInEnabled {
		monitor = bargein.New(c.vadSource, c.cfg.BargeInMinSpeechMs, c.cfg.BargeInRequireNeural, c.suppressor, c.logger)
		monitor.OpenCapture = c.openBargeInCapture
		if startErr := monitor.Start(func() { handle.Interrupt() }); startErr != nil {
			c.logger.Warn("turn: barge-in unavailable for this turn", "error", startErr)
			monitor = nil
		}
	}

	select {
	case <-handle.Done():
	case <-ctx.Done():
		handle.Interrupt()
	}

	bargeInFired := false
	var prefix []int16
	if monitor != nil {
		bargeInFired = monitor.VoiceDetected()
		monitor.Stop()
		if bargeInFired {
			prefix = monitor.GetCapturedAudio()
		}
	}

	if !opts.WaitForResponse {
		return Result{Spoken: true, BargeInFired: bargeInFired}, nil
	}

	freshPCM, speechDetected, freshRate, err := c.recordFollowUp(ctx)
	if err != nil {
		return Result{}, err
	}

	sampleRate := freshRate
	if sampleRate == 0 {
		sampleRate = c.cfg.SampleRate
	}

	var combined []byte
	if len(prefix) > 0 {
		combined = append(combined, audioio.Int16ToBytes(prefix)...)
	}
	combined = append(combined, freshPCM...)

	transcript, err := c.transcribe(ctx, combined, sampleRate)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Spoken:         true,
		BargeInFired:   bargeInFired,
		SpeechDetected: speechDetected || len(prefix) > 0,
		Transcript:     transcript,
	}, nil
}

// speak synthesizes opts.Message and starts non-blocking playback,
// returning the handle and the device that owns the output stream (so the
// caller can close it once the turn is done with it).
func (c *Controller) speak(ctx context.Context, opts Options) (*playback.Handle, *audioio.Device, error) {
	format := opts.Format
	if format == "" {
		format = "wav"
	}
	encoded, err := c.synth.Synthesize(ctx, opts.Message, opts.Voice, format, opts.Speed)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSynthesizerFailed, err)
	}

	pcmBytes, rate, err := audioio.DecodeWAV(encoded)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: decode synthesized audio: %v", ErrSynthesizerFailed, err)
	}
	samples := audioio.BytesToInt16(pcmBytes)

	dev, err := c.openPlaybackDevice()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrPlaybackFailed, err)
	}

	playbackRate := rate
	if playbackRate == 0 {
		playbackRate = c.cfg.SampleRate
	}
	handle := playback.Play(dev, samples, playbackRate, nil)
	return handle, dev, nil
}

// recordFollowUp runs a fresh endpointing pass on a dedicated capture
// device. Converse calls it on every turn that waits for a response; after
// a barge-in its recording is appended to the monitor's captured prefix.
func (c *Controller) recordFollowUp(ctx context.Context) (pcm []byte, speechDetected bool, sampleRate int, err error) {
	var rec *endpoint.Recorder
	dev, err := c.openCaptureDevice(func(samples []int16) {
		if rec != nil {
			rec.Feed(samples)
		}
	})
	if err != nil {
		return nil, false, 0, err
	}
	defer dev.Close()

	rec = endpoint.NewRecorder(dev, c.vadSource)
	result, recErr := rec.Record(ctx, endpoint.Options{
		MaxDuration:        c.cfg.EndpointMaxDuration,
		MinDuration:        c.cfg.EndpointMinDuration,
		SilenceThresholdMs: c.cfg.EndpointSilenceMs,
		VADAggressiveness:  c.cfg.EndpointVADAggressiveness,
		Visualizer:         c.cfg.Visualizer,
	})
	if recErr != nil {
		return nil, false, 0, recErr
	}
	return result.PCM, result.SpeechDetected, result.SampleRate, nil
}

// transcribe hands combined PCM to the single-shot recognizer via a
// temporary WAV file.
func (c *Controller) transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}

	tmp, err := os.CreateTemp("", "voicemode-turn-*.wav")
	if err != nil {
		return "", fmt.Errorf("%w: create temp wav: %v", ErrRecognizerFailed, err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	wav := audioio.EncodeWAV(pcm, sampleRate)
	if _, err := tmp.Write(wav); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: write temp wav: %v", ErrRecognizerFailed, err)
	}
	tmp.Close()

	text, err := c.singleShot.Transcribe(ctx, path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRecognizerFailed, err)
	}
	return text, nil
}

// converseStreamCapture runs the cassette-deck flow: no playback, the
// stream-capture engine owns the whole exchange.
func (c *Controller) converseStreamCapture(ctx context.Context, opts Options) (Result, error) {
	session := streamcapture.New(c.logger, opts.FeedbackPlayer)
	result, err := session.Run(ctx, opts.StreamCaptureOpt)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRecognizerFailed, err)
	}
	return Result{Capture: &result}, nil
}
