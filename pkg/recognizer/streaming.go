// Package recognizer holds the external speech collaborators: a streaming
// recognizer subprocess, a single-shot recognizer subprocess, and an
// HTTP/websocket synthesizer. None of these implement recognition or
// synthesis themselves; all are consumed as black boxes.
package recognizer

import "strconv"

// StreamingConfig captures the streaming recognizer subprocess
// invocation: model path, VAD-segmented mode (step=0, keep=0), a 30s max
// chunk length, a thread count, and an optional raw-output debug file.
// pkg/streamcapture builds its child process argv from this so the
// invocation contract lives in one place.
type StreamingConfig struct {
	ModelPath       string
	Threads         int
	DebugOutputFile string
}

const defaultStreamingThreads = 6

// Args renders the subprocess argv, applying the documented defaults.
func (c StreamingConfig) Args() []string {
	threads := c.Threads
	if threads == 0 {
		threads = defaultStreamingThreads
	}
	args := []string{
		"-m", c.ModelPath,
		"--step", "0",
		"--keep", "0",
		"--length", "30000",
		"-t", strconv.Itoa(threads),
	}
	if c.DebugOutputFile != "" {
		args = append(args, "-f", c.DebugOutputFile)
	}
	return args
}
