// Command agent is the voicemode CLI entrypoint. With no subcommand (or
// "say") it runs one speak->listen turn; "listen" runs the cassette-deck
// capture flow; "dj" dispatches to the media player controller.
package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/voicemode/voicecore/internal/config"
	"github.com/voicemode/voicecore/internal/vlog"
	"github.com/voicemode/voicecore/pkg/audioio"
	"github.com/voicemode/voicecore/pkg/audiostore"
	"github.com/voicemode/voicecore/pkg/dj"
	"github.com/voicemode/voicecore/pkg/echosuppress"
	"github.com/voicemode/voicecore/pkg/endpoint"
	"github.com/voicemode/voicecore/pkg/playback"
	"github.com/voicemode/voicecore/pkg/recognizer"
	"github.com/voicemode/voicecore/pkg/streamcapture"
	"github.com/voicemode/voicecore/pkg/turn"
	"github.com/voicemode/voicecore/pkg/vad"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: no .env file found, using system environment variables")
	}

	logger := vlog.NewLogrus()
	cfg := config.FromEnv()

	args := os.Args[1:]
	if len(args) > 0 && args[0] == "dj" {
		runDJ(cfg, logger, args[1:])
		return
	}
	if len(args) > 0 && args[0] == "listen" {
		runListen(cfg, logger)
		return
	}

	visualize := false
	filtered := args[:0]
	for _, a := range args {
		if a == "--visualize" {
			visualize = true
			continue
		}
		filtered = append(filtered, a)
	}
	args = filtered

	message := "Hello! I'm listening."
	if len(args) > 0 && args[0] == "say" {
		args = args[1:]
	}
	if len(args) > 0 {
		message = args[0]
	}
	runConverse(cfg, logger, message, visualize)
}

// runConverse builds the synthesizer, recognizer, VAD, and turn controller
// and performs one speak->listen exchange.
func runConverse(cfg config.Config, logger vlog.Logger, message string, visualize bool) {
	openaiKey := os.Getenv("OPENAI_API_KEY")
	wsKey := os.Getenv("VOICEMODE_TTS_WS_API_KEY")
	wsHost := os.Getenv("VOICEMODE_TTS_WS_HOST")

	var synth recognizer.Synthesizer
	switch {
	case wsKey != "" && wsHost != "":
		logger.Info("using websocket synthesizer", "host", wsHost)
		synth = recognizer.NewWebsocketSynthesizer(wsKey, wsHost)
	case openaiKey != "":
		logger.Info("using HTTP synthesizer", "url", "https://api.openai.com/v1/audio/speech")
		synth = recognizer.NewHTTPSynthesizer(openaiKey, "https://api.openai.com/v1/audio/speech", "tts-1")
	default:
		log.Fatal("Error: set VOICEMODE_TTS_WS_API_KEY+VOICEMODE_TTS_WS_HOST or OPENAI_API_KEY for speech synthesis")
	}

	if cfg.RecognizerModelPath == "" {
		log.Fatal("Error: VOICEMODE_WHISPER_MODEL_PATH must be set.")
	}
	singleShot := recognizer.NewWhisperSingleShot(cfg.RecognizerModelPath)

	capabilities := vad.DetectCapabilities(cfg.VADModelPath)
	if !capabilities.NeuralAvailable {
		logger.Warn("neural VAD unavailable, falling back to energy threshold")
	}
	vadSource := vad.New(cfg.VADModelPath, cfg.BargeInVADAggressiveness)

	suppressor := echosuppress.New()

	turnCfg := turn.Config{
		SampleRate:                cfg.SampleRate,
		Channels:                  cfg.Channels,
		BargeInEnabled:            cfg.BargeInEnabled && capabilities.NeuralAvailable,
		BargeInVADAggressiveness:  cfg.BargeInVADAggressiveness,
		BargeInMinSpeechMs:        cfg.BargeInMinSpeechMS,
		BargeInRequireNeural:      true,
		EndpointMaxDuration:       30 * time.Second,
		EndpointMinDuration:       500 * time.Millisecond,
		EndpointSilenceMs:         1000,
		EndpointVADAggressiveness: cfg.BargeInVADAggressiveness,
	}
	if visualize {
		turnCfg.Visualizer = termMeter{}
	}
	controller := turn.New(turnCfg, synth, singleShot, vadSource, suppressor, logger)

	var store *audiostore.Store
	if cfg.AudioArtifactBaseDir != "" {
		store = audiostore.New(cfg.AudioArtifactBaseDir, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("\nShutting down...")
		cancel()
	}()

	result, err := controller.Converse(ctx, turn.Options{
		Message:         message,
		Voice:           "alloy",
		Format:          "wav",
		Speed:           1.0,
		WaitForResponse: true,
	})
	if err != nil {
		logger.Error("turn failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("barge_in_fired=%v speech_detected=%v transcript=%q\n",
		result.BargeInFired, result.SpeechDetected, result.Transcript)

	if store != nil {
		conversationID := audiostore.NewConversationID()
		if path, _, _, saveErr := store.Save(time.Now(), conversationID, audiostore.DirectionSTT, "txt",
			[]byte(result.Transcript)); saveErr != nil {
			logger.Warn("audiostore: save failed", "error", saveErr)
		} else {
			logger.Info("saved transcript", "path", path)
		}
	}
}

// runDJ dispatches one operation against the media player IPC socket:
// play/stop/pause/resume/toggle/next/prev/volume/status.
func runDJ(cfg config.Config, logger vlog.Logger, args []string) {
	socketPath := cfg.MediaPlayerSocketPath
	if socketPath == "" {
		socketPath = dj.DefaultSocketPath
	}
	controller := dj.New(dj.NewSocketBackend(socketPath), socketPath)

	if len(args) == 0 {
		fmt.Println("usage: agent dj <play|stop|pause|resume|toggle|next|prev|volume|status> [args...]")
		os.Exit(1)
	}

	switch args[0] {
	case "play":
		if len(args) < 2 {
			log.Fatal("usage: agent dj play <source> [chapters-file] [volume]")
		}
		source := args[1]
		chaptersFile := ""
		if len(args) > 2 {
			chaptersFile = args[2]
		}
		volume := cfg.DefaultVolume
		if len(args) > 3 {
			if v, err := strconv.Atoi(args[3]); err == nil {
				volume = v
			}
		}
		ok := controller.Play(source, chaptersFile, volume)
		fmt.Printf("play: %v\n", ok)
		if !ok {
			os.Exit(1)
		}

	case "stop":
		fmt.Printf("stop: %v\n", controller.Stop())

	case "pause":
		fmt.Printf("pause: %v\n", controller.Pause())

	case "resume":
		fmt.Printf("resume: %v\n", controller.Resume())

	case "toggle":
		fmt.Printf("toggle: %v\n", controller.TogglePause())

	case "next":
		printStatus(controller.Next())

	case "prev":
		printStatus(controller.Prev())

	case "volume":
		var level *int
		if len(args) > 1 {
			v, err := strconv.Atoi(args[1])
			if err != nil {
				log.Fatalf("invalid volume %q", args[1])
			}
			level = &v
		}
		got, ok := controller.Volume(level)
		fmt.Printf("volume=%d ok=%v\n", got, ok)

	case "status":
		printStatus(controller.Status())

	default:
		logger.Error("dj: unknown subcommand", "command", args[0])
		os.Exit(1)
	}
}

// runListen runs the cassette-deck capture flow: the streaming recognizer
// records until a spoken send/stop/play phrase terminates the session,
// with chime feedback on every transport transition.
func runListen(cfg config.Config, logger vlog.Logger) {
	if cfg.RecognizerModelPath == "" {
		log.Fatal("Error: VOICEMODE_WHISPER_MODEL_PATH must be set.")
	}

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("\nShutting down...")
		cancel()
	}()

	session := streamcapture.New(logger, chimePlayer{logger: logger})
	result, err := session.Run(ctx, streamcapture.Options{
		ModelPath:               cfg.RecognizerModelPath,
		MaxDuration:             5 * time.Minute,
		SkipSegmentsAfterResume: cfg.SkipSegmentsAfterResume,
	})
	if err != nil {
		logger.Error("stream capture failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("signal=%s duration=%.1fs text=%q\n", result.ControlSignal, result.Duration.Seconds(), result.Text)
}

// chimePlayer plays a short tone on each transport transition: a low tone
// for pause, a higher one for everything else.
type chimePlayer struct{ logger vlog.Logger }

func (c chimePlayer) PlayFeedback(sig streamcapture.ControlSignal) {
	freq := 880.0
	if sig == streamcapture.SignalPause {
		freq = 440.0
	}
	const rate = 16000
	samples := make([]int16, rate/8)
	for i := range samples {
		samples[i] = int16(6000 * math.Sin(2*math.Pi*freq*float64(i)/rate))
	}

	dev, err := audioio.Open(audioio.Config{SampleRate: rate, Channels: 1, Logger: c.logger}, nil)
	if err != nil {
		c.logger.Debug("chime playback unavailable", "error", err)
		return
	}
	defer dev.Close()

	h := playback.Play(dev, samples, rate, nil)
	h.Stop(300 * time.Millisecond)
}

// termMeter draws a one-line level meter on stderr while the endpointing
// recorder runs. Observational only; endpointing never sees it.
type termMeter struct{}

func (termMeter) Update(elapsed time.Duration, rms float64, speechDetected bool, trailingSilenceMs int, state endpoint.State) {
	const width = 40
	filled := int(rms * 4 * width)
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("#", filled) + strings.Repeat("-", width-filled)
	fmt.Fprintf(os.Stderr, "\r[%s] %-7s %5.1fs silence=%4dms", bar, state, elapsed.Seconds(), trailingSilenceMs)
}

func printStatus(s *dj.TrackStatus) {
	if s == nil {
		fmt.Println("status: unavailable")
		return
	}
	fmt.Printf("playing=%v paused=%v title=%q artist=%q position=%.1fs duration=%.1fs volume=%d chapter=%q (%d/%d)\n",
		s.IsPlaying, s.IsPaused, s.Title, "", s.Position, s.Duration, s.Volume, s.Chapter, s.ChapterIndex, s.ChapterCount)
}
