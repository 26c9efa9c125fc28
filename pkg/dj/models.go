// Package dj drives a persistent external media player over its local
// JSON IPC socket — play/pause/seek/volume/chapter navigation — and
// converts CUE sheets to the FFmetadata chapter format the player
// consumes.
package dj

// CommandResult is the outcome of one IPC command.
type CommandResult struct {
	Success bool
	Data    interface{}
	Error   string
}

// TrackStatus is a point-in-time snapshot of the player; it is queried on
// demand and never cached.
type TrackStatus struct {
	IsPlaying    bool
	IsPaused     bool
	Title        string
	Position     float64
	Duration     float64
	Volume       int
	Chapter      string
	ChapterIndex int
	ChapterCount int
	Path         string
}
