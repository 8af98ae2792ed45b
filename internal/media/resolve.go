// Package media locates the files clients submit for recognition.
package media

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveInput finds the media file a client referred to and returns its
// path, or "" when no candidate exists on disk.
// Absolute paths are taken as-is. Relative paths resolve under mediaDir
// when one is configured, with traversal outside it rejected; without a
// mediaDir they resolve against the working directory.
func ResolveInput(mediaDir, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if filepath.IsAbs(raw) {
		if _, err := os.Stat(raw); err == nil {
			return raw
		}
		return ""
	}

	if mediaDir != "" {
		full := filepath.Join(mediaDir, raw)
		rel, err := filepath.Rel(mediaDir, full)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return ""
		}
		if _, err := os.Stat(full); err == nil {
			return full
		}
		return ""
	}

	if _, err := os.Stat(raw); err == nil {
		return raw
	}
	return ""
}
