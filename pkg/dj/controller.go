package dj

import (
	"os"
	"os/exec"
	"time"
)

const (
	defaultVolume         = 50
	startupTimeout        = 5 * time.Second
	startupPollInterval   = 100 * time.Millisecond
	navigationSettleDelay = 100 * time.Millisecond
	stopSettleDelay       = 200 * time.Millisecond
)

// Controller is the high-level DJ operations surface: start, stop,
// pause/resume/toggle, seek chapters, volume, status. The backend is
// injectable so tests never spawn a real player process.
type Controller struct {
	backend    Backend
	socketPath string
}

// New builds a controller against backend (typically a *SocketBackend).
func New(backend Backend, socketPath string) *Controller {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	return &Controller{backend: backend, socketPath: socketPath}
}

// SocketPath reports the IPC socket path in use.
func (c *Controller) SocketPath() string { return c.socketPath }

// Play stops any current instance, clears a stale socket file, spawns the
// player, and polls for responsiveness for up to 5s.
func (c *Controller) Play(source, chaptersFile string, volume int) bool {
	if c.IsPlaying() {
		c.Stop()
		time.Sleep(stopSettleDelay)
	}

	if _, err := os.Stat(c.socketPath); err == nil {
		os.Remove(c.socketPath)
	}

	vol := volume
	if vol == 0 {
		vol = defaultVolume
	}

	args := []string{
		"--no-video",
		"--input-ipc-server=" + c.socketPath,
		"--volume=" + itoa(vol),
	}
	if chaptersFile != "" {
		if _, err := os.Stat(chaptersFile); err == nil {
			args = append(args, "--chapters-file="+chaptersFile)
		}
	}
	args = append(args, source)

	cmd := exec.Command("mpv", args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return false
	}
	// The player outlives this call; reap it whenever it exits.
	go cmd.Wait()

	return c.waitForSocket()
}

func (c *Controller) waitForSocket() bool {
	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		if c.backend.IsConnected() {
			return true
		}
		time.Sleep(startupPollInterval)
	}
	return false
}

// Stop sends quit; reports success even if the player wasn't running.
func (c *Controller) Stop() bool {
	if !c.backend.IsConnected() {
		return true
	}
	return c.backend.SendCommand([]interface{}{"quit"}).Success
}

// Pause sets the pause property; no-op false if the player isn't running.
func (c *Controller) Pause() bool {
	if !c.backend.IsConnected() {
		return false
	}
	return c.backend.SendCommand([]interface{}{"set_property", "pause", true}).Success
}

// Resume clears the pause property.
func (c *Controller) Resume() bool {
	if !c.backend.IsConnected() {
		return false
	}
	return c.backend.SendCommand([]interface{}{"set_property", "pause", false}).Success
}

// TogglePause reads pause, then sets its negation.
func (c *Controller) TogglePause() bool {
	if !c.backend.IsConnected() {
		return false
	}
	if c.isPaused() {
		return c.Resume()
	}
	return c.Pause()
}

// Next skips one chapter forward and returns a fresh status snapshot.
func (c *Controller) Next() *TrackStatus {
	if !c.backend.IsConnected() {
		return nil
	}
	c.backend.SendCommand([]interface{}{"add", "chapter", 1})
	time.Sleep(navigationSettleDelay)
	return c.Status()
}

// Prev skips one chapter backward and returns a fresh status snapshot.
func (c *Controller) Prev() *TrackStatus {
	if !c.backend.IsConnected() {
		return nil
	}
	c.backend.SendCommand([]interface{}{"add", "chapter", -1})
	time.Sleep(navigationSettleDelay)
	return c.Status()
}

// Volume with a non-nil level clamps it to 0..100 and sets it; a nil
// level reads the current volume instead. Either way the value reported
// back is a fresh read from the player.
func (c *Controller) Volume(level *int) (int, bool) {
	if !c.backend.IsConnected() {
		return 0, false
	}
	if level != nil {
		set := *level
		if set < 0 {
			set = 0
		}
		if set > 100 {
			set = 100
		}
		c.backend.SendCommand([]interface{}{"set_property", "volume", set})
	}
	v, ok := c.getFloatProperty("volume")
	if !ok {
		return 0, false
	}
	return int(v), true
}

// Status assembles a TrackStatus snapshot; returns nil if any required
// field is missing (startup/shutdown races).
func (c *Controller) Status() *TrackStatus {
	if !c.backend.IsConnected() {
		return nil
	}

	position, ok := c.getFloatProperty("time-pos")
	if !ok {
		return nil
	}
	duration, ok := c.getFloatProperty("duration")
	if !ok {
		return nil
	}
	volume, ok := c.getFloatProperty("volume")
	if !ok {
		return nil
	}

	chapterTitle := ""
	if meta := c.backend.SendCommand([]interface{}{"get_property", "chapter-metadata"}); meta.Success {
		if m, ok := meta.Data.(map[string]interface{}); ok {
			if t, ok := m["TITLE"].(string); ok {
				chapterTitle = t
			} else if t, ok := m["title"].(string); ok {
				chapterTitle = t
			}
		}
	}

	return &TrackStatus{
		IsPlaying:    true,
		IsPaused:     c.isPaused(),
		Title:        c.getStringProperty("media-title"),
		Position:     position,
		Duration:     duration,
		Volume:       int(volume),
		Chapter:      chapterTitle,
		ChapterIndex: int(c.getFloatOr("chapter", -1)),
		ChapterCount: int(c.getFloatOr("chapter-list/count", 0)),
		Path:         c.getStringProperty("path"),
	}
}

// IsPlaying reports whether the player is running (true even if paused).
func (c *Controller) IsPlaying() bool { return c.backend.IsConnected() }

func (c *Controller) isPaused() bool {
	result := c.backend.SendCommand([]interface{}{"get_property", "pause"})
	if !result.Success {
		return false
	}
	b, _ := result.Data.(bool)
	return b
}

func (c *Controller) getStringProperty(name string) string {
	result := c.backend.SendCommand([]interface{}{"get_property", name})
	if !result.Success {
		return ""
	}
	s, _ := result.Data.(string)
	return s
}

func (c *Controller) getFloatProperty(name string) (float64, bool) {
	result := c.backend.SendCommand([]interface{}{"get_property", name})
	if !result.Success {
		return 0, false
	}
	f, ok := result.Data.(float64)
	return f, ok
}

func (c *Controller) getFloatOr(name string, fallback float64) float64 {
	if v, ok := c.getFloatProperty(name); ok {
		return v
	}
	return fallback
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
