package turn

import "errors"

var (
	// ErrRecognizerFailed wraps a dead or unparseable recognizer
	// subprocess; the captured audio for the turn is discarded.
	ErrRecognizerFailed = errors.New("turn: recognizer failed")

	// ErrSynthesizerFailed wraps an HTTP/websocket synthesis failure;
	// callers typically degrade to text-only output.
	ErrSynthesizerFailed = errors.New("turn: synthesizer failed")

	// ErrPlaybackFailed wraps a playback device open failure. Recoverable
	// for the next turn.
	ErrPlaybackFailed = errors.New("turn: playback failed")
)
