// Package settings manages the runtime recognition profile: model choice,
// language, backend preference and the remote endpoint. Unlike the process
// configuration in internal/config, the profile lives in a JSON file and may
// change while the engine is running, both through the API and by hand edits
// picked up from disk.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
)

// ModelSizes are the recognized speech model sizes, smallest to largest.
var ModelSizes = []string{"tiny", "base", "small", "medium", "large"}

// Settings is the runtime recognition profile.
type Settings struct {
	// ModelPath points at a local speech model file. Empty disables the
	// local backend unless an override is supplied at initialization.
	ModelPath string `json:"model_path"`
	// ModelSize names the model variant, also sent to the remote API.
	ModelSize string `json:"model_size"`
	// Language is an ISO 639-1 code, or "auto" for detection.
	Language string `json:"language"`
	// APIURL is the remote transcription endpoint. Empty disables the
	// remote backend.
	APIURL string `json:"api_url"`
	// PreferRemote tries the remote backend first when both are usable.
	PreferRemote bool `json:"prefer_remote"`
	// APITimeoutSeconds bounds one remote transcription call.
	APITimeoutSeconds int `json:"api_timeout_seconds"`
	// SubtitleDir receives exported transcripts. Empty disables export.
	SubtitleDir string `json:"subtitle_dir"`
	// DecoderCommand overrides the audio decoder invocation, e.g.
	// "ffmpeg -hwaccel auto". Empty means plain ffmpeg.
	DecoderCommand string `json:"decoder_command"`
}

// Default returns the factory profile.
func Default() Settings {
	return Settings{
		ModelSize:         "small",
		Language:          "auto",
		APITimeoutSeconds: 60,
	}
}

// Validate reports the first problem with the profile.
func (s Settings) Validate() error {
	if !validModelSize(s.ModelSize) {
		return fmt.Errorf("unknown model size %q", s.ModelSize)
	}
	if s.APIURL != "" {
		u, err := url.Parse(s.APIURL)
		if err != nil {
			return fmt.Errorf("invalid api_url: %w", err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("api_url must be an absolute http(s) URL, got %q", s.APIURL)
		}
	}
	if s.APITimeoutSeconds <= 0 {
		return fmt.Errorf("api_timeout_seconds must be positive, got %d", s.APITimeoutSeconds)
	}
	return nil
}

func validModelSize(size string) bool {
	for _, s := range ModelSizes {
		if s == size {
			return true
		}
	}
	return false
}

// Load reads the profile at path. A missing file yields the defaults;
// fields absent from the file keep their default values.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read %s: %w", path, err)
	}

	s := Default()
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Save writes the profile to path atomically via a temp file and rename,
// so a crash mid-write never leaves a truncated profile behind.
func Save(path string, s Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
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
