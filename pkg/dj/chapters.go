package dj

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Chapter is a single chapter parsed from a CUE sheet.
type Chapter struct {
	Title     string
	Performer string
	StartMs   int64
	EndMs     int64
}

var (
	titleRe     = regexp.MustCompile(`TITLE\s+"(.+)"`)
	performerRe = regexp.MustCompile(`PERFORMER\s+"(.+)"`)
	indexRe     = regexp.MustCompile(`INDEX 01\s+(\d+:\d+:\d+)`)
)

// ParseCUETime converts CUE's MM:SS:FF (75 frames/sec) to milliseconds.
// The frame-to-ms conversion truncates.
func ParseCUETime(timeStr string) int64 {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 3 {
		return 0
	}
	minutes, err1 := strconv.ParseInt(parts[0], 10, 64)
	seconds, err2 := strconv.ParseInt(parts[1], 10, 64)
	frames, err3 := strconv.ParseInt(parts[2], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0
	}
	return (minutes*60+seconds)*1000 + frames*1000/75
}

// ParseCUEContent parses raw CUE text into chapters sorted by start time.
// End times are left unset; ConvertCUEToFFmetadata fills them in.
func ParseCUEContent(cueContent string) []Chapter {
	var chapters []Chapter
	current := Chapter{}
	haveStart := false
	inTrack := false

	flush := func() {
		if inTrack && haveStart {
			chapters = append(chapters, current)
		}
	}

	for _, raw := range strings.Split(cueContent, "\n") {
		line := strings.TrimSpace(raw)

		switch {
		case strings.HasPrefix(line, "TRACK"):
			flush()
			inTrack = true
			current = Chapter{}
			haveStart = false

		case strings.HasPrefix(line, "TITLE") && inTrack:
			if m := titleRe.FindStringSubmatch(line); m != nil {
				current.Title = m[1]
			}

		case strings.HasPrefix(line, "PERFORMER") && inTrack:
			if m := performerRe.FindStringSubmatch(line); m != nil {
				current.Performer = m[1]
			}

		case strings.HasPrefix(line, "INDEX 01") && inTrack:
			if m := indexRe.FindStringSubmatch(line); m != nil {
				current.StartMs = ParseCUETime(m[1])
				haveStart = true
			}
		}
	}
	flush()

	sort.SliceStable(chapters, func(i, j int) bool {
		return chapters[i].StartMs < chapters[j].StartMs
	})
	return chapters
}

// ConvertCUEToFFmetadata renders CUE content as an FFmpeg metadata chapter
// file suitable for mpv's --chapters-file. Each chapter's end time is the
// next chapter's start; the last chapter ends at durationMs if given, else
// one hour past its own start.
func ConvertCUEToFFmetadata(cueContent string, durationMs int64) string {
	chapters := ParseCUEContent(cueContent)

	for i := range chapters {
		if i+1 < len(chapters) {
			chapters[i].EndMs = chapters[i+1].StartMs
		} else if durationMs > 0 {
			chapters[i].EndMs = durationMs
		} else {
			chapters[i].EndMs = chapters[i].StartMs + 3600000
		}
	}

	lines := []string{";FFMETADATA1"}
	for i, ch := range chapters {
		title := ch.Title
		if title == "" {
			title = fmt.Sprintf("Track %d", i+1)
		}
		if ch.Performer != "" {
			title = title + " - " + ch.Performer
		}

		lines = append(lines,
			"",
			"[CHAPTER]",
			"TIMEBASE=1/1000",
			fmt.Sprintf("START=%d", ch.StartMs),
			fmt.Sprintf("END=%d", ch.EndMs),
			"title="+title,
		)
	}
	return strings.Join(lines, "\n")
}

// ConvertCUEFile reads cuePath and converts it to FFmetadata.
func ConvertCUEFile(cuePath string, durationMs int64) (string, error) {
	data, err := os.ReadFile(cuePath)
	if err != nil {
		return "", err
	}
	return ConvertCUEToFFmetadata(string(data), durationMs), nil
}

// GetChapterCount returns how many chapters a CUE sheet contains.
func GetChapterCount(cueContent string) int {
	return len(ParseCUEContent(cueContent))
}

var (
	ffStartRe = regexp.MustCompile(`^START=(-?\d+)$`)
	ffEndRe   = regexp.MustCompile(`^END=(-?\d+)$`)
	ffTitleRe = regexp.MustCompile(`^title=(.*)$`)
)

// ParseFFmetadata parses FFmetadata chapter text back into an ordered
// chapter list, the inverse of ConvertCUEToFFmetadata. Titles carrying
// the " - PERFORMER" suffix ConvertCUEToFFmetadata appends are split back
// into Title/Performer so convert-then-parse round-trips chapter titles
// and start times.
func ParseFFmetadata(ffContent string) []Chapter {
	var chapters []Chapter
	var current *Chapter
	inChapter := false

	flush := func() {
		if current != nil {
			chapters = append(chapters, *current)
		}
		current = nil
	}

	for _, raw := range strings.Split(ffContent, "\n") {
		line := strings.TrimSpace(raw)

		switch {
		case line == "[CHAPTER]":
			flush()
			current = &Chapter{}
			inChapter = true

		case line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "TIMEBASE="):
			continue

		case inChapter && ffStartRe.MatchString(line):
			if m := ffStartRe.FindStringSubmatch(line); m != nil {
				v, _ := strconv.ParseInt(m[1], 10, 64)
				current.StartMs = v
			}

		case inChapter && ffEndRe.MatchString(line):
			if m := ffEndRe.FindStringSubmatch(line); m != nil {
				v, _ := strconv.ParseInt(m[1], 10, 64)
				current.EndMs = v
			}

		case inChapter && ffTitleRe.MatchString(line):
			if m := ffTitleRe.FindStringSubmatch(line); m != nil {
				title, performer := splitTitlePerformer(m[1])
				current.Title = title
				current.Performer = performer
			}
		}
	}
	flush()

	sort.SliceStable(chapters, func(i, j int) bool {
		return chapters[i].StartMs < chapters[j].StartMs
	})
	return chapters
}

// splitTitlePerformer reverses the " - PERFORMER" suffix
// ConvertCUEToFFmetadata appends when a chapter has a performer, splitting
// at the last " - ". A title without " - " is returned verbatim with no
// performer. The suffix is appended to a synthesized "Track N" title too,
// so that form splits the same way.
func splitTitlePerformer(s string) (title, performer string) {
	if idx := strings.LastIndex(s, " - "); idx >= 0 {
		return s[:idx], s[idx+3:]
	}
	return s, ""
}
