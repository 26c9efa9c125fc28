package recognizer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// SingleShotRecognizer transcribes one already-captured WAV file: the
// subprocess is invoked with the file as an argument and writes a
// transcript to stdout. Used by pkg/turn after endpointing, as opposed to
// pkg/streamcapture's long-lived streaming mode.
type SingleShotRecognizer interface {
	Transcribe(ctx context.Context, wavPath string) (string, error)
}

// WhisperSingleShot shells out to a whisper.cpp-style CLI binary per call.
type WhisperSingleShot struct {
	Bin       string // default "whisper-cli"
	ModelPath string
	Threads   int
}

// NewWhisperSingleShot returns a recognizer bound to modelPath, applying
// the same default thread count as the streaming contract.
func NewWhisperSingleShot(modelPath string) *WhisperSingleShot {
	return &WhisperSingleShot{Bin: "whisper-cli", ModelPath: modelPath, Threads: defaultStreamingThreads}
}

// Transcribe spawns the CLI against wavPath and returns its trimmed stdout.
func (w *WhisperSingleShot) Transcribe(ctx context.Context, wavPath string) (string, error) {
	if _, err := os.Stat(wavPath); err != nil {
		return "", fmt.Errorf("recognizer: wav file unavailable: %w", err)
	}

	threads := w.Threads
	if threads == 0 {
		threads = defaultStreamingThreads
	}
	bin := w.Bin
	if bin == "" {
		bin = "whisper-cli"
	}

	args := []string{"-m", w.ModelPath, "-f", wavPath, "-t", itoa(threads), "-nt"}
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("recognizer: single-shot transcription failed: %w: %s", err, stderr.String())
	}

	return strings.TrimSpace(stdout.String()), nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
