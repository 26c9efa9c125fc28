// Package streamcapture runs a streaming recognizer child process in
// "cassette deck" mode: spoken control phrases pause, resume, and
// terminate recording, and a single transcript filtered by the
// pause/resume timeline is produced at the end. A scanner goroutine feeds
// the child's stdout lines into a channel; control-phrase tables and the
// post-resume skip window are configurable per call.
package streamcapture

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/voicemode/voicecore/internal/vlog"
	"github.com/voicemode/voicecore/pkg/recognizer"
)

// ControlSignal names one of the five cassette-deck transport commands.
type ControlSignal string

const (
	SignalNone   ControlSignal = "none"
	SignalSend   ControlSignal = "send"
	SignalPause  ControlSignal = "pause"
	SignalResume ControlSignal = "resume"
	SignalPlay   ControlSignal = "play"
	SignalStop   ControlSignal = "stop"
)

// DefaultControlPhrases returns the built-in trigger vocabulary for each
// transport signal.
func DefaultControlPhrases() map[ControlSignal][]string {
	return map[ControlSignal][]string{
		SignalSend:   {"send", "i'm done", "go ahead", "that's all"},
		SignalPause:  {"pause", "hold on"},
		SignalResume: {"resume", "continue", "unpause"},
		SignalPlay:   {"play back", "repeat", "read that"},
		SignalStop:   {"stop", "cancel", "discard"},
	}
}

// WhisperSegment is a single timestamped recognizer output line.
type WhisperSegment struct {
	StartMs int64
	EndMs   int64
	Text    string
}

// StateChangeEvent names a pause/resume transition.
type StateChangeEvent string

const (
	EventPause  StateChangeEvent = "pause"
	EventResume StateChangeEvent = "resume"
)

// StateChange records one pause/resume transition with its wall-clock
// offset and the current recognizer segment marker at the time.
type StateChange struct {
	Event       StateChangeEvent
	RelativeMs  int64
	WhisperT0Ms int64
}

// Result is everything one capture call produced: the filtered transcript,
// the terminal control signal, the raw recorded segments, and the
// pause/resume timeline.
type Result struct {
	Text          string
	ControlSignal ControlSignal
	Segments      []string
	Duration      time.Duration
	StateChanges  []StateChange
}

var (
	segmentLineRe = regexp.MustCompile(`^\[([0-9:.]+)\s+-->\s+([0-9:.]+)\]\s*(.*)$`)
	startMarkerRe = regexp.MustCompile(`t0 = (\d+) ms`)
)

// parseWhisperTimestampMs parses "HH:MM:SS.mmm" into milliseconds.
func parseWhisperTimestampMs(ts string) (int64, bool) {
	parts := strings.Split(ts, ":")
	if len(parts) != 3 {
		return 0, false
	}
	hours, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, false
	}
	totalMs := hours*3600*1000 + minutes*60*1000 + int64(seconds*1000)
	return totalMs, true
}

// Options configures one capture call.
type Options struct {
	ModelPath               string
	MaxDuration             time.Duration
	InitialPaused           bool
	ControlPhrases          map[ControlSignal][]string
	SkipSegmentsAfterResume int // default 3; residual refinements after a resume belong to the paused period
	DebugOutputFile         string
	Threads                 int
	WhisperStreamBin        string // default "whisper-stream"
}

// FeedbackPlayer plays a short chime for a control-phrase state
// transition. Purely observational; failures are logged and swallowed.
type FeedbackPlayer interface {
	PlayFeedback(signal ControlSignal)
}

type recordingState string

const (
	stateRecording recordingState = "recording"
	statePaused    recordingState = "paused"
)

// Session runs one whisper-stream child process and applies the
// cassette-deck state machine to its output.
type Session struct {
	logger vlog.Logger
	fb     FeedbackPlayer
}

// New builds a Session. fb may be nil (feedback is skipped silently).
func New(logger vlog.Logger, fb FeedbackPlayer) *Session {
	if logger == nil {
		logger = vlog.NoOpLogger{}
	}
	return &Session{logger: logger, fb: fb}
}

// Run launches the recognizer subprocess and drives the control-phrase
// state machine until a terminal signal, max duration, or subprocess
// death, or ctx cancellation.
func (s *Session) Run(ctx context.Context, opts Options) (Result, error) {
	if opts.ControlPhrases == nil {
		opts.ControlPhrases = DefaultControlPhrases()
	}
	if opts.SkipSegmentsAfterResume == 0 {
		opts.SkipSegmentsAfterResume = 3
	}
	if opts.WhisperStreamBin == "" {
		opts.WhisperStreamBin = "whisper-stream"
	}
	if opts.Threads == 0 {
		opts.Threads = 6
	}

	args := recognizer.StreamingConfig{
		ModelPath:       opts.ModelPath,
		Threads:         opts.Threads,
		DebugOutputFile: opts.DebugOutputFile,
	}.Args()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(runCtx, opts.WhisperStreamBin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("streamcapture: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("streamcapture: start whisper-stream: %w", err)
	}

	lines := make(chan string, 256)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(stdout)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			lines <- sc.Text()
		}
		scanErr <- sc.Err()
	}()

	result := s.consume(runCtx, lines, opts)

	cancel()
	waitErr := make(chan struct{})
	go func() {
		cmd.Wait()
		close(waitErr)
	}()
	select {
	case <-waitErr:
	case <-time.After(5 * time.Second):
		s.logger.Warn("streamcapture: force killing whisper-stream process")
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		<-waitErr
	}

	return result, nil
}

func (s *Session) consume(ctx context.Context, lines <-chan string, opts Options) Result {
	start := time.Now()
	mode := stateRecording
	if opts.InitialPaused {
		mode = statePaused
	}
	skipAfterResume := opts.SkipSegmentsAfterResume
	if skipAfterResume == 0 {
		skipAfterResume = 3
	}

	var (
		rawSegments      []WhisperSegment
		recordedSegments []string
		controlTextsSeen []string
		stateChanges     []StateChange
		currentT0Ms      int64
		skipRemaining    int
		controlSignal    = SignalNone
	)

	maxDuration := opts.MaxDuration
	var deadline <-chan time.Time
	if maxDuration > 0 {
		timer := time.NewTimer(maxDuration)
		defer timer.Stop()
		deadline = timer.C
	}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-deadline:
			s.logger.Info("streamcapture: max duration reached")
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if line == "" {
				continue
			}

			if strings.HasPrefix(line, "### Transcription") && strings.Contains(line, "START") {
				if m := startMarkerRe.FindStringSubmatch(line); m != nil {
					if v, err := strconv.ParseInt(m[1], 10, 64); err == nil {
						currentT0Ms = v
					}
				}
				continue
			}
			if strings.HasPrefix(line, "### Transcription") && strings.Contains(line, "END") {
				continue
			}
			if line == "[Start speaking]" {
				continue
			}
			if !strings.HasPrefix(line, "[") || !strings.Contains(line, "-->") {
				continue
			}

			m := segmentLineRe.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			startMs, sOk := parseWhisperTimestampMs(m[1])
			endMs, eOk := parseWhisperTimestampMs(m[2])
			text := strings.TrimSpace(m[3])
			if text == "" || !sOk || !eOk {
				continue
			}
			rawSegments = append(rawSegments, WhisperSegment{StartMs: startMs, EndMs: endMs, Text: text})

			signal, ok := detectControlPhrase(text, opts.ControlPhrases)
			if ok {
				s.logger.Info("streamcapture: control signal detected", "signal", signal, "text", text)
				controlTextsSeen = append(controlTextsSeen, text)
				s.playFeedback(signal)

				// Every pause/resume phrase is recorded as a StateChange, even
				// when it does not change mode (a pause while already paused);
				// pausedRanges pairs them so duplicates do not widen intervals.
				switch signal {
				case SignalPause:
					stateChanges = append(stateChanges, StateChange{
						Event:       EventPause,
						RelativeMs:  time.Since(start).Milliseconds(),
						WhisperT0Ms: currentT0Ms,
					})
					mode = statePaused
					continue
				case SignalResume:
					stateChanges = append(stateChanges, StateChange{
						Event:       EventResume,
						RelativeMs:  time.Since(start).Milliseconds(),
						WhisperT0Ms: currentT0Ms,
					})
					mode = stateRecording
					skipRemaining = skipAfterResume
					continue
				case SignalSend, SignalStop, SignalPlay:
					controlSignal = signal
					break loop
				}
			}

			if skipRemaining > 0 {
				skipRemaining--
				continue
			}

			if mode == stateRecording {
				recordedSegments = append(recordedSegments, text)
			}
		}
	}

	text := processWhisperOutput(rawSegments, stateChanges, controlTextsSeen)

	return Result{
		Text:          text,
		ControlSignal: controlSignal,
		Segments:      recordedSegments,
		Duration:      time.Since(start),
		StateChanges:  stateChanges,
	}
}

func (s *Session) playFeedback(signal ControlSignal) {
	if s.fb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Debug("streamcapture: feedback playback panicked", "panic", r)
		}
	}()
	s.fb.PlayFeedback(signal)
}

// detectionOrder fixes the signal priority when one utterance matches
// phrases from more than one signal; map iteration order would make that
// outcome vary run to run.
var detectionOrder = []ControlSignal{SignalSend, SignalPause, SignalResume, SignalPlay, SignalStop}

// detectControlPhrase matches case-insensitively: single-word phrases
// require a whole-word hit with punctuation stripped, multi-word phrases
// match as substrings.
func detectControlPhrase(text string, table map[ControlSignal][]string) (ControlSignal, bool) {
	lower := strings.ToLower(strings.TrimSpace(text))

	for _, signal := range detectionOrder {
		phrases := table[signal]
		for _, phrase := range phrases {
			phraseLower := strings.ToLower(phrase)
			if strings.Contains(phraseLower, " ") {
				if strings.Contains(lower, phraseLower) {
					return signal, true
				}
				continue
			}
			for _, word := range strings.Fields(lower) {
				if strings.Trim(word, ".,!?;:'\"") == phraseLower {
					return signal, true
				}
			}
		}
	}
	return "", false
}

// processWhisperOutput builds the final transcript: pick the most complete
// zero-start re-transcription, drop incremental segments that fall in a
// paused interval, join what remains, and strip every observed
// control-phrase line. It is a pure function of its inputs so a recorded
// raw-output file can be replayed through it deterministically.
func processWhisperOutput(segments []WhisperSegment, changes []StateChange, controlTextsSeen []string) string {
	var zeroStart, incremental []WhisperSegment
	for _, seg := range segments {
		if seg.Text == "" {
			continue
		}
		if seg.StartMs == 0 {
			zeroStart = append(zeroStart, seg)
		} else {
			incremental = append(incremental, seg)
		}
	}

	var parts []string
	if len(zeroStart) > 0 {
		// Ties on length go to the last segment seen: the most recent
		// re-transcription of the opening chunk.
		best := zeroStart[0]
		for _, seg := range zeroStart[1:] {
			if len(seg.Text) >= len(best.Text) {
				best = seg
			}
		}
		parts = append(parts, best.Text)
	}

	paused := pausedRanges(changes)
	for _, seg := range incremental {
		if inAnyRange(seg.StartMs, paused) || inAnyRange(seg.EndMs, paused) {
			continue
		}
		parts = append(parts, seg.Text)
	}

	result := strings.Join(parts, " ")
	for _, controlText := range controlTextsSeen {
		result = stripOccurrence(result, controlText)
	}
	return result
}

// ProcessWhisperOutput replays raw recognizer output lines against a
// recorded pause/resume timeline, producing the same transcript the live
// loop would have: segment lines are parsed, control-phrase lines are
// tracked for stripping, and the post-processing pass runs over the
// result. Intended for post-mortem analysis of a debug-sink file. A nil
// controlPhrases table means the defaults.
func ProcessWhisperOutput(rawLines []string, changes []StateChange, controlPhrases map[ControlSignal][]string) string {
	if controlPhrases == nil {
		controlPhrases = DefaultControlPhrases()
	}
	var segments []WhisperSegment
	var controlTexts []string
	for _, line := range rawLines {
		m := segmentLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		startMs, sOk := parseWhisperTimestampMs(m[1])
		endMs, eOk := parseWhisperTimestampMs(m[2])
		text := strings.TrimSpace(m[3])
		if text == "" || !sOk || !eOk {
			continue
		}
		segments = append(segments, WhisperSegment{StartMs: startMs, EndMs: endMs, Text: text})
		if _, ok := detectControlPhrase(text, controlPhrases); ok {
			controlTexts = append(controlTexts, text)
		}
	}
	return processWhisperOutput(segments, changes, controlTexts)
}

type msRange struct{ start, end int64 }

func pausedRanges(changes []StateChange) []msRange {
	var ranges []msRange
	var openStart *int64
	for _, c := range changes {
		switch c.Event {
		case EventPause:
			if openStart == nil {
				v := c.RelativeMs
				openStart = &v
			}
		case EventResume:
			if openStart != nil {
				ranges = append(ranges, msRange{start: *openStart, end: c.RelativeMs})
				openStart = nil
			}
		}
	}
	if openStart != nil {
		ranges = append(ranges, msRange{start: *openStart, end: 1<<62 - 1})
	}
	return ranges
}

// inAnyRange tests against half-open [pause, resume) intervals, so a
// segment beginning exactly at the resume instant is not treated as
// paused.
func inAnyRange(ms int64, ranges []msRange) bool {
	for _, r := range ranges {
		if ms >= r.start && ms < r.end {
			return true
		}
	}
	return false
}

// stripOccurrence removes the first case-insensitive occurrence of needle
// from s.
func stripOccurrence(s, needle string) string {
	lowerS := strings.ToLower(s)
	lowerNeedle := strings.ToLower(needle)
	idx := strings.Index(lowerS, lowerNeedle)
	if idx == -1 {
		return s
	}
	return strings.TrimSpace(s[:idx] + s[idx+len(needle):])
}
