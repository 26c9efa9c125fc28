package echosuppress

import (
	"encoding/binary"
	"testing"
)

func toneBytes(n int, amp int16) []byte {
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := amp
		if i%2 == 1 {
			v = -amp
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func TestIsEcho_FalseBeforeAnyPlayback(t *testing.T) {
	s := New()
	if s.IsEcho(toneBytes(160, 8000)) {
		t.Fatal("expected no echo before any RecordPlayed call")
	}
}

func TestIsEcho_TrueForIdenticalRecentPlayback(t *testing.T) {
	s := New()
	played := toneBytes(320, 9000)
	s.RecordPlayed(played)

	if !s.IsEcho(played) {
		t.Fatal("expected identical recently-played audio to be classified as echo")
	}
}

func TestIsEcho_FalseAfterClear(t *testing.T) {
	s := New()
	played := toneBytes(320, 9000)
	s.RecordPlayed(played)
	s.Clear()

	if s.IsEcho(played) {
		t.Fatal("expected Clear to drop the reference buffer")
	}
}

func TestSetEnabled_DisablesDetection(t *testing.T) {
	s := New()
	played := toneBytes(320, 9000)
	s.RecordPlayed(played)
	s.SetEnabled(false)

	if s.IsEcho(played) {
		t.Fatal("expected disabled suppressor to never report echo")
	}
}
