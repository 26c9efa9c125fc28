package playback

import (
	"sync"
	"testing"
	"time"
)

// fakeSink mimics *audioio.Device's playback-relevant surface without a
// real device: Enqueue records the callback and Drain invokes it once,
// matching the real device's "fires onDrain when the buffer next empties".
type fakeSink struct {
	mu      sync.Mutex
	pcm     []byte
	onDrain func()
	cleared bool
}

func (f *fakeSink) Enqueue(pcm []byte, onDrain func()) {
	f.mu.Lock()
	f.pcm = append(f.pcm, pcm...)
	f.onDrain = onDrain
	f.mu.Unlock()
}

func (f *fakeSink) ClearPlayback() {
	f.mu.Lock()
	f.pcm = nil
	f.onDrain = nil
	f.cleared = true
	f.mu.Unlock()
}

func (f *fakeSink) Drain() {
	f.mu.Lock()
	cb := f.onDrain
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func TestPlay_NaturalCompletionDoesNotInvokeOnInterrupt(t *testing.T) {
	sink := &fakeSink{}
	fired := false
	h := Play(sink, []int16{1, 2, 3}, 16000, func() { fired = true })

	sink.Drain()

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("expected Done to close after drain")
	}
	if fired {
		t.Fatal("onInterrupt must not fire on natural completion")
	}
	if h.State() != StateDone {
		t.Fatalf("expected StateDone, got %v", h.State())
	}
}

func TestHandle_InterruptFiresAtMostOnce(t *testing.T) {
	sink := &fakeSink{}
	count := 0
	h := Play(sink, []int16{1, 2, 3}, 16000, func() { count++ })

	h.Interrupt()
	h.Interrupt()
	h.Interrupt()

	if count != 1 {
		t.Fatalf("expected onInterrupt to fire exactly once, fired %d times", count)
	}
	if h.State() != StateInterrupted {
		t.Fatalf("expected StateInterrupted, got %v", h.State())
	}
	if !sink.cleared {
		t.Fatal("expected Interrupt to clear the sink's playback buffer")
	}
}

func TestHandle_InterruptAfterNaturalCompletionStillFires(t *testing.T) {
	sink := &fakeSink{}
	count := 0
	h := Play(sink, []int16{1, 2, 3}, 16000, func() { count++ })

	sink.Drain()
	<-h.Done()

	h.Interrupt()

	if count != 1 {
		t.Fatalf("expected onInterrupt to fire once even after natural completion, got %d", count)
	}
}

func TestHandle_ConcurrentInterruptIsSafe(t *testing.T) {
	sink := &fakeSink{}
	count := 0
	var mu sync.Mutex
	h := Play(sink, []int16{1, 2, 3}, 16000, func() {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Interrupt()
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("expected exactly one callback invocation under concurrent interrupt, got %d", count)
	}
}
