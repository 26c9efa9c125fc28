package dj

import (
	"fmt"
	"strings"
	"testing"
)

const sampleCue = `REM GENRE Rock
PERFORMER "Album Artist"
TITLE "Sample Album"
FILE "album.flac" WAVE
  TRACK 01 AUDIO
    TITLE "Opening"
    PERFORMER "Track Artist"
    INDEX 01 00:00:00
  TRACK 02 AUDIO
    TITLE "Second Song"
    INDEX 01 03:30:00
  TRACK 03 AUDIO
    INDEX 01 07:15:37
`

func TestParseCUETime(t *testing.T) {
	if got := ParseCUETime("01:23:45"); got != 83600 {
		t.Fatalf("expected 83600ms, got %d", got)
	}
	if got := ParseCUETime("00:00:00"); got != 0 {
		t.Fatalf("expected 0ms, got %d", got)
	}
	if got := ParseCUETime("29:04:29"); got != 1744386 {
		t.Fatalf("expected 1744386ms, got %d", got)
	}
	if got := ParseCUETime("bogus"); got != 0 {
		t.Fatalf("expected 0 for malformed input, got %d", got)
	}
}

func TestParseCUEContent_SortedByStartAndFallsBackToTrackTitle(t *testing.T) {
	chapters := ParseCUEContent(sampleCue)
	if len(chapters) != 3 {
		t.Fatalf("expected 3 chapters, got %d", len(chapters))
	}
	if chapters[0].Title != "Opening" || chapters[0].Performer != "Track Artist" {
		t.Fatalf("unexpected first chapter: %+v", chapters[0])
	}
	if chapters[1].StartMs != ParseCUETime("03:30:00") {
		t.Fatalf("unexpected second chapter start: %+v", chapters[1])
	}
	if chapters[2].Title != "" {
		t.Fatalf("expected untitled third chapter, got %q", chapters[2].Title)
	}
}

func TestConvertCUEToFFmetadata_EndIsNextStartAndLastChapterFallsBack(t *testing.T) {
	out := ConvertCUEToFFmetadata(sampleCue, 0)
	if !strings.HasPrefix(out, ";FFMETADATA1") {
		t.Fatal("expected FFMETADATA1 header")
	}
	if !strings.Contains(out, "title=Opening - Track Artist") {
		t.Fatalf("expected performer-suffixed title, got:\n%s", out)
	}
	if !strings.Contains(out, "title=Track 3") {
		t.Fatalf("expected fallback title for untitled chapter, got:\n%s", out)
	}

	secondStart := ParseCUETime("03:30:00")
	if !strings.Contains(out, "END="+itoa64(secondStart)) {
		t.Fatalf("expected first chapter END to equal second chapter START, got:\n%s", out)
	}

	thirdStart := ParseCUETime("07:15:37")
	wantFallbackEnd := thirdStart + 3600000
	if !strings.Contains(out, "END="+itoa64(wantFallbackEnd)) {
		t.Fatalf("expected last chapter to fall back to +1h, got:\n%s", out)
	}
}

func TestConvertCUEToFFmetadata_UsesDurationForLastChapter(t *testing.T) {
	out := ConvertCUEToFFmetadata(sampleCue, 9999999)
	if !strings.Contains(out, "END=9999999") {
		t.Fatalf("expected last chapter END to use provided duration, got:\n%s", out)
	}
}

func TestGetChapterCount(t *testing.T) {
	if n := GetChapterCount(sampleCue); n != 3 {
		t.Fatalf("expected 3 chapters, got %d", n)
	}
}

// TestCUEFFmetadataRoundTrip checks that converting a CUE sheet to
// FFmetadata and parsing it back reconstructs the same ordered chapter
// count, titles, performers, and start times.
func TestCUEFFmetadataRoundTrip(t *testing.T) {
	const durationMs = 9999999
	want := ParseCUEContent(sampleCue)

	ff := ConvertCUEToFFmetadata(sampleCue, durationMs)
	got := ParseFFmetadata(ff)

	if len(got) != len(want) {
		t.Fatalf("expected %d chapters round-tripped, got %d:\n%s", len(want), len(got), ff)
	}
	for i := range want {
		if got[i].StartMs != want[i].StartMs {
			t.Fatalf("chapter %d: start %d, want %d", i, got[i].StartMs, want[i].StartMs)
		}
		wantTitle := want[i].Title
		if wantTitle == "" {
			wantTitle = fmt.Sprintf("Track %d", i+1)
		}
		if got[i].Title != wantTitle {
			t.Fatalf("chapter %d: title %q, want %q", i, got[i].Title, wantTitle)
		}
		if got[i].Performer != want[i].Performer {
			t.Fatalf("chapter %d: performer %q, want %q", i, got[i].Performer, want[i].Performer)
		}
	}
}

// TestParseFFmetadata_TwoTrackRoundTrip pins the exact START/END/title
// values a two-track CUE sheet produces, then parses them back.
func TestParseFFmetadata_TwoTrackRoundTrip(t *testing.T) {
	cue := `FILE "album.flac" WAVE
  TRACK 01 AUDIO
    TITLE "First Track"
    PERFORMER "Artist One"
    INDEX 01 00:00:00
  TRACK 02 AUDIO
    TITLE "Second Track"
    PERFORMER "Artist Two"
    INDEX 01 03:30:00
`
	ff := ConvertCUEToFFmetadata(cue, 0)
	if !strings.Contains(ff, "START=0") || !strings.Contains(ff, "START=210000") || !strings.Contains(ff, "END=210000") {
		t.Fatalf("unexpected FFmetadata:\n%s", ff)
	}

	chapters := ParseFFmetadata(ff)
	if len(chapters) != 2 {
		t.Fatalf("expected 2 chapters, got %d", len(chapters))
	}
	if chapters[0].StartMs != 0 || chapters[0].Title != "First Track" || chapters[0].Performer != "Artist One" {
		t.Fatalf("unexpected first chapter: %+v", chapters[0])
	}
	if chapters[1].StartMs != 210000 || chapters[1].Title != "Second Track" || chapters[1].Performer != "Artist Two" {
		t.Fatalf("unexpected second chapter: %+v", chapters[1])
	}
}

func itoa64(n int64) string {
	return itoa(int(n))
}

// fakeBackend is an in-memory Backend double driven by canned responses
// keyed on the get_property/set_property/add name, so controller tests
// never spawn a real player.
type fakeBackend struct {
	connected bool
	props     map[string]interface{}
	paused    bool
	commands  [][]interface{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		connected: true,
		props: map[string]interface{}{
			"time-pos":           12.5,
			"duration":           200.0,
			"volume":             50.0,
			"media-title":        "Some Track",
			"path":               "/music/some-track.flac",
			"chapter":            1.0,
			"chapter-list/count": 3.0,
			"chapter-metadata":   map[string]interface{}{"TITLE": "Chapter Two"},
		},
	}
}

func (f *fakeBackend) SendCommand(command []interface{}) CommandResult {
	f.commands = append(f.commands, command)
	if !f.connected {
		return CommandResult{Success: false, Error: "Socket not found"}
	}

	switch command[0] {
	case "quit":
		f.connected = false
		return CommandResult{Success: true}
	case "get_property":
		name := command[1].(string)
		if name == "pause" {
			return CommandResult{Success: true, Data: f.paused}
		}
		if name == "pid" {
			return CommandResult{Success: true, Data: 1234.0}
		}
		v, ok := f.props[name]
		if !ok {
			return CommandResult{Success: false, Error: "property unavailable"}
		}
		return CommandResult{Success: true, Data: v}
	case "set_property":
		name := command[1].(string)
		if name == "pause" {
			f.paused = command[2].(bool)
			return CommandResult{Success: true}
		}
		f.props[name] = float64(command[2].(int))
		return CommandResult{Success: true}
	case "add":
		if command[1] == "chapter" {
			delta := command[2].(int)
			cur, _ := f.props["chapter"].(float64)
			f.props["chapter"] = cur + float64(delta)
		}
		return CommandResult{Success: true}
	}
	return CommandResult{Success: false, Error: "unknown command"}
}

func (f *fakeBackend) IsConnected() bool {
	return f.connected
}

func TestController_StatusAssemblesSnapshot(t *testing.T) {
	c := New(newFakeBackend(), "")
	status := c.Status()
	if status == nil {
		t.Fatal("expected non-nil status")
	}
	if status.Title != "Some Track" || status.Chapter != "Chapter Two" || status.ChapterCount != 3 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestController_StatusNilWhenDisconnected(t *testing.T) {
	backend := newFakeBackend()
	backend.connected = false
	c := New(backend, "")
	if status := c.Status(); status != nil {
		t.Fatalf("expected nil status when disconnected, got %+v", status)
	}
}

func TestController_StatusNilWhenRequiredPropertyMissing(t *testing.T) {
	backend := newFakeBackend()
	delete(backend.props, "duration")
	c := New(backend, "")
	if status := c.Status(); status != nil {
		t.Fatalf("expected nil status when a required property is missing, got %+v", status)
	}
}

func TestController_TogglePauseFlipsState(t *testing.T) {
	backend := newFakeBackend()
	c := New(backend, "")
	if !c.TogglePause() {
		t.Fatal("expected toggle to succeed")
	}
	if !backend.paused {
		t.Fatal("expected backend to be paused after first toggle")
	}
	if !c.TogglePause() {
		t.Fatal("expected second toggle to succeed")
	}
	if backend.paused {
		t.Fatal("expected backend to be resumed after second toggle")
	}
}

func TestController_NextAdvancesChapterAndReturnsStatus(t *testing.T) {
	backend := newFakeBackend()
	c := New(backend, "")
	status := c.Next()
	if status == nil {
		t.Fatal("expected non-nil status after Next")
	}
	if status.ChapterIndex != 2 {
		t.Fatalf("expected chapter index to advance to 2, got %d", status.ChapterIndex)
	}
}

func TestController_StopSucceedsWhenNotPlaying(t *testing.T) {
	backend := newFakeBackend()
	backend.connected = false
	c := New(backend, "")
	if !c.Stop() {
		t.Fatal("expected Stop to report success when nothing is playing")
	}
}

func TestController_VolumeClampsAboveHundred(t *testing.T) {
	backend := newFakeBackend()
	c := New(backend, "")
	level := 150
	got, ok := c.Volume(&level)
	if !ok {
		t.Fatal("expected volume set to succeed")
	}
	if got != 100 {
		t.Fatalf("expected volume clamped to 100, got %d", got)
	}
}

func TestController_VolumeClampsBelowZero(t *testing.T) {
	backend := newFakeBackend()
	c := New(backend, "")
	level := -10
	got, ok := c.Volume(&level)
	if !ok {
		t.Fatal("expected volume set to succeed")
	}
	if got != 0 {
		t.Fatalf("expected negative volume clamped to 0, got %d", got)
	}

	read, ok := c.Volume(nil)
	if !ok {
		t.Fatal("expected volume read to succeed")
	}
	if read != 0 {
		t.Fatalf("expected follow-up read to report the clamped value, got %d", read)
	}
}

func TestController_VolumeNilReadsWithoutSetting(t *testing.T) {
	backend := newFakeBackend()
	c := New(backend, "")
	got, ok := c.Volume(nil)
	if !ok {
		t.Fatal("expected volume read to succeed")
	}
	if got != 50 {
		t.Fatalf("expected current volume 50, got %d", got)
	}
	for _, cmd := range backend.commands {
		if cmd[0] == "set_property" && cmd[1] == "volume" {
			t.Fatal("expected a nil level to never issue a volume set")
		}
	}
}

func TestSocketBackend_ClassifiesMissingSocketAsNotFound(t *testing.T) {
	b := NewSocketBackend("/nonexistent/path/to/a/socket.sock")
	result := b.SendCommand([]interface{}{"get_property", "pid"})
	if result.Success {
		t.Fatal("expected failure dialing a nonexistent socket")
	}
	if result.Error != "Socket not found" {
		t.Fatalf("expected 'Socket not found', got %q", result.Error)
	}
}
