// Package subtitle writes recognition results to disk, as SubRip when the
// transcript carries segment timings and as plain text otherwise.
package subtitle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Cue is one timed span of transcript text.
type Cue struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Exporter writes transcript files into Dir, named after the media file.
type Exporter struct {
	Dir string
}

// Export writes the transcript for mediaPath and returns the written path.
// Cues with timings produce <base>.srt; otherwise text goes to <base>.txt.
// An existing export for the same media file is replaced.
func (e Exporter) Export(mediaPath, text string, cues []Cue) (string, error) {
	if e.Dir == "" {
		return "", errors.New("no subtitle directory configured")
	}

	base := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
	if base == "" {
		base = "transcript"
	}

	var name, content string
	if srt := renderSRT(cues); srt != "" {
		name = base + ".srt"
		content = srt
	} else {
		name = base + ".txt"
		content = strings.TrimSpace(text) + "\n"
	}

	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create subtitle dir: %w", err)
	}
	path := filepath.Join(e.Dir, name)
	if err := writeAtomic(path, []byte(content)); err != nil {
		return "", err
	}
	return path, nil
}

// renderSRT renders cues in SubRip format. Cues with empty text are
// dropped and the remainder renumbered from 1. Returns "" when nothing
// renders.
func renderSRT(cues []Cue) string {
	var b strings.Builder
	n := 0
	for _, c := range cues {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		n++
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", n, srtTimestamp(c.Start), srtTimestamp(c.End), text)
	}
	return b.String()
}

// srtTimestamp formats a duration as HH:MM:SS,mmm.
func srtTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3600000
	ms -= h * 3600000
	m := ms / 60000
	ms -= m * 60000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// writeAtomic writes via a temp file and rename so readers never observe a
// half-written transcript.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".subtitle-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
