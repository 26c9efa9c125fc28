// Package playback is a non-blocking synthesized-audio player whose
// interrupt is thread-safe, idempotent, and fires its on-interrupt
// callback at most once: sync.Once-guarded firing, state
// retrieved-then-cleared under lock, the callback invoked outside it.
package playback

import (
	"sync"
	"time"

	"github.com/voicemode/voicecore/pkg/audioio"
)

// Sink is the subset of *audioio.Device that the playback engine depends
// on, extracted so tests can substitute a fake output stream without a
// real audio device.
type Sink interface {
	Enqueue(pcm []byte, onDrain func())
	ClearPlayback()
}

// State is a handle's lifecycle phase.
type State int

const (
	StateIdle State = iota
	StatePlaying
	StateInterrupted
	StateDone
)

// Handle owns an output stream for the lifetime of one playback call.
type Handle struct {
	dev        Sink
	sampleRate int

	mu           sync.Mutex
	state        State
	onInterrupt  func()
	interruptOne sync.Once
	closeOnce    sync.Once
	doneCh       chan struct{}
}

// Play writes samples to dev non-blockingly, returning immediately after
// queuing. onInterrupt, if non-nil, fires at most once — and only from
// Interrupt(); natural completion never invokes it.
func Play(dev Sink, samples []int16, sampleRate int, onInterrupt func()) *Handle {
	h := &Handle{
		dev:         dev,
		sampleRate:  sampleRate,
		state:       StatePlaying,
		onInterrupt: onInterrupt,
		doneCh:      make(chan struct{}),
	}

	pcm := audioio.Int16ToBytes(samples)
	dev.Enqueue(pcm, h.onDrained)
	return h
}

func (h *Handle) onDrained() {
	h.mu.Lock()
	if h.state == StatePlaying {
		h.state = StateDone
	}
	h.mu.Unlock()
	h.closeOnce.Do(func() { close(h.doneCh) })
}

// Interrupt stops playback immediately and fires onInterrupt exactly once,
// whether called during playback, after natural completion, or twice in a
// row. The callback fires before Interrupt returns.
func (h *Handle) Interrupt() {
	h.interruptOne.Do(func() {
		h.mu.Lock()
		wasPlaying := h.state == StatePlaying
		h.state = StateInterrupted
		cb := h.onInterrupt
		h.mu.Unlock()

		if wasPlaying {
			h.dev.ClearPlayback()
		}
		h.closeOnce.Do(func() { close(h.doneCh) })
		if cb != nil {
			cb()
		}
	})
}

// Stop waits for the current buffer to flush (bounded by maxWait) and
// then returns, without invoking onInterrupt.
func (h *Handle) Stop(maxWait time.Duration) {
	select {
	case <-h.doneCh:
	case <-time.After(maxWait):
	}
}

// State returns the handle's current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Done reports whether playback has finished, been interrupted, or is
// still in progress.
func (h *Handle) Done() <-chan struct{} { return h.doneCh }
