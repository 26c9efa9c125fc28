// Package audiostore lays out audio artifacts on disk by year/month and
// keeps "latest" symlinks at the base directory pointed at the most
// recent artifact per direction and overall.
package audiostore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voicemode/voicecore/internal/vlog"
)

// Direction distinguishes speech-to-text recordings from synthesized output.
type Direction string

const (
	DirectionSTT Direction = "stt"
	DirectionTTS Direction = "tts"
)

// Store lays out audio artifacts under a base directory as
// <base>/<YYYY>/<MM>/<ms_since_epoch>_<conversation_id>_<stt|tts>.<ext>
// and maintains latest-symlinks at the base.
type Store struct {
	base   string
	logger vlog.Logger
}

// New returns a Store rooted at base. A nil logger disables logging.
func New(base string, logger vlog.Logger) *Store {
	if logger == nil {
		logger = vlog.NoOpLogger{}
	}
	return &Store{base: base, logger: logger}
}

// Base returns the store's root directory.
func (s *Store) Base() string { return s.base }

// NewConversationID mints a fresh conversation identifier.
func NewConversationID() string {
	return uuid.NewString()
}

// PathFor computes the layout path for an artifact saved at t, without
// creating any directories or files.
func (s *Store) PathFor(t time.Time, conversationID string, dir Direction, ext string) string {
	ext = normalizeExt(ext)
	name := fmt.Sprintf("%d_%s_%s%s", t.UnixMilli(), conversationID, dir, ext)
	return filepath.Join(s.base, fmt.Sprintf("%04d", t.Year()), fmt.Sprintf("%02d", int(t.Month())), name)
}

// Save writes data to its layout path (creating parent directories as
// needed), then updates the latest-symlinks for dir. It returns the saved
// file's path and the (type, generic) symlink paths.
func (s *Store) Save(t time.Time, conversationID string, dir Direction, ext string, data []byte) (path, typeSymlink, latestSymlink string, err error) {
	path = s.PathFor(t, conversationID, dir, ext)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", "", "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", "", "", err
	}

	typeSymlink, latestSymlink, symErr := s.UpdateLatestSymlinks(path, dir)
	if symErr != nil {
		// Symlink maintenance is best-effort; the artifact itself is
		// already durable.
		s.logger.Warn("audiostore: failed to update latest symlinks", "error", symErr, "path", path)
		return path, "", "", nil
	}
	return path, typeSymlink, latestSymlink, nil
}

// UpdateLatestSymlinks creates/updates latest-<TYPE>.<ext> and latest.<ext>
// in the base directory to point at filePath, removing any stale symlinks
// of either name with a different extension first.
func (s *Store) UpdateLatestSymlinks(filePath string, dir Direction) (typeSymlink, latestSymlink string, err error) {
	if _, statErr := os.Stat(filePath); statErr != nil {
		return "", "", fmt.Errorf("audiostore: cannot symlink, file does not exist: %w", statErr)
	}

	ext := filepath.Ext(filePath)
	if ext == "" {
		return "", "", fmt.Errorf("audiostore: cannot symlink, file has no extension: %s", filePath)
	}

	typeUpper := strings.ToUpper(string(dir))
	typeSymlink = filepath.Join(s.base, "latest-"+typeUpper+ext)
	latestSymlink = filepath.Join(s.base, "latest"+ext)

	target := filePath
	if rel, relErr := filepath.Rel(s.base, filePath); relErr == nil && !strings.HasPrefix(rel, "..") {
		target = rel
	}

	if err := removeStaleSymlinks(s.base, "latest-"+typeUpper, s.logger); err != nil {
		return "", "", err
	}
	if err := removeStaleSymlinks(s.base, "latest", s.logger); err != nil {
		return "", "", err
	}

	if err := os.Symlink(target, typeSymlink); err != nil {
		return "", "", err
	}
	if err := os.Symlink(target, latestSymlink); err != nil {
		return "", "", err
	}
	return typeSymlink, latestSymlink, nil
}

// removeStaleSymlinks deletes any symlink in dir named "<prefix>.<anything>",
// with the prefix as given, all lower-case, or all upper-case, so an
// extension change doesn't leave an old symlink dangling alongside the new
// one. Other mixed-case spellings of the prefix are not matched.
func removeStaleSymlinks(dir, prefix string, logger vlog.Logger) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	candidates := map[string]struct{}{
		strings.ToLower(prefix): {},
		strings.ToUpper(prefix): {},
		prefix:                  {},
	}

	for _, entry := range entries {
		name := entry.Name()
		dot := strings.LastIndex(name, ".")
		if dot <= 0 {
			continue
		}
		base := name[:dot]
		if _, match := candidates[base]; !match {
			continue
		}
		full := filepath.Join(dir, name)
		info, infoErr := os.Lstat(full)
		if infoErr != nil || info.Mode()&os.ModeSymlink == 0 {
			continue
		}
		if rmErr := os.Remove(full); rmErr != nil {
			logger.Warn("audiostore: failed to remove stale symlink", "error", rmErr, "path", full)
		}
	}
	return nil
}

func normalizeExt(ext string) string {
	if ext == "" {
		return ext
	}
	if !strings.HasPrefix(ext, ".") {
		return "." + ext
	}
	return ext
}
