// Package config centralizes the environment-driven behavior settings.
// cmd/agent loads a .env file via godotenv before reading these.
package config

import (
	"os"
	"strconv"
)

// Config holds every behavior threshold the core components need.
type Config struct {
	BargeInEnabled           bool
	BargeInVADAggressiveness int
	BargeInMinSpeechMS       int
	SampleRate               int
	Channels                 int
	VADChunkDurationMS       int
	DefaultVolume            int
	RecognizerModelPath      string
	VADModelPath             string
	AudioArtifactBaseDir     string
	MediaPlayerSocketPath    string
	SkipSegmentsAfterResume  int
}

// Default returns the built-in defaults for every entry point.
func Default() Config {
	return Config{
		BargeInEnabled:           true,
		BargeInVADAggressiveness: 2,
		BargeInMinSpeechMS:       150,
		SampleRate:               16000,
		Channels:                 1,
		VADChunkDurationMS:       20,
		DefaultVolume:            50,
		RecognizerModelPath:      "",
		VADModelPath:             "",
		AudioArtifactBaseDir:     "",
		MediaPlayerSocketPath:    "/tmp/voicemode-mpv.sock",
		SkipSegmentsAfterResume:  3,
	}
}

// FromEnv overlays environment variables on top of Default().
func FromEnv() Config {
	c := Default()

	if v := os.Getenv("VOICEMODE_BARGE_IN_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.BargeInEnabled = b
		}
	}
	if v := os.Getenv("VOICEMODE_BARGE_IN_VAD_AGGRESSIVENESS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BargeInVADAggressiveness = n
		}
	}
	if v := os.Getenv("VOICEMODE_BARGE_IN_MIN_SPEECH_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BargeInMinSpeechMS = n
		}
	}
	if v := os.Getenv("VOICEMODE_SAMPLE_RATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SampleRate = n
		}
	}
	if v := os.Getenv("VOICEMODE_CHANNELS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Channels = n
		}
	}
	if v := os.Getenv("VOICEMODE_VAD_CHUNK_DURATION_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.VADChunkDurationMS = n
		}
	}
	if v := os.Getenv("VOICEMODE_DJ_VOLUME"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DefaultVolume = n
		}
	}
	if v := os.Getenv("VOICEMODE_WHISPER_MODEL_PATH"); v != "" {
		c.RecognizerModelPath = v
	}
	if v := os.Getenv("VOICEMODE_VAD_MODEL_PATH"); v != "" {
		c.VADModelPath = v
	}
	if v := os.Getenv("VOICEMODE_AUDIO_DIR"); v != "" {
		c.AudioArtifactBaseDir = v
	}
	if v := os.Getenv("VOICEMODE_MPV_SOCKET_PATH"); v != "" {
		c.MediaPlayerSocketPath = v
	}
	if v := os.Getenv("VOICEMODE_SKIP_SEGMENTS_AFTER_RESUME"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SkipSegmentsAfterResume = n
		}
	}

	return c
}
