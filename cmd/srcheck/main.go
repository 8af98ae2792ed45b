package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/enplayer/sr-engine/internal/config"
	"github.com/enplayer/sr-engine/internal/extract"
	"github.com/enplayer/sr-engine/internal/settings"
)

// srcheck inspects the host and reports whether sr-engine can actually run
// on it: decoder present, profile readable, a usable backend configured,
// scratch space writable. Exit status 1 means at least one check failed.
func main() {
	fmt.Println("sr-engine environment check")
	fmt.Println()
	fmt.Println("Check                     Result")
	fmt.Println("─────────────────────────────────")

	problems := 0
	fail := func(name, format string, args ...any) {
		problems++
		fmt.Printf("%-25s %s\n", name, fmt.Sprintf(format, args...))
	}
	ok := func(name, format string, args ...any) {
		fmt.Printf("%-25s %s\n", name, fmt.Sprintf(format, args...))
	}

	cfg, err := config.Load(config.Overrides{})
	if err != nil {
		fail("config", "FAIL: %v", err)
		os.Exit(1)
	}
	ok("config", "ok")

	profile, err := settings.Load(cfg.SettingsPath)
	if err != nil {
		fail("settings profile", "FAIL: %v", err)
		profile = settings.Default()
	} else {
		ok("settings profile", "ok (%s)", cfg.SettingsPath)
	}

	checkDecoder(profile.DecoderCommand, cfg.TempDir, ok, fail)

	localUsable := checkModel(cfg.ModelPath, profile.ModelPath, ok, fail)
	remoteUsable := checkRemote(profile.APIURL, ok, fail)
	if !localUsable && !remoteUsable {
		fail("backend", "FAIL: neither a local model nor a remote api is usable")
	} else {
		ok("backend", "ok")
	}

	checkWritable("temp dir", cfg.TempDir, true, ok, fail)
	checkDir("media dir", cfg.MediaDir, ok, fail)
	checkWritable("subtitle export", profile.SubtitleDir, false, ok, fail)

	fmt.Println()
	if problems > 0 {
		fmt.Printf("%d problem(s) found\n", problems)
		os.Exit(1)
	}
	fmt.Println("environment ok")
}

type report func(name, format string, args ...any)

func checkDecoder(command, tempDir string, ok, fail report) {
	e, err := extract.New(extract.Config{
		Command: command,
		TempDir: tempDir,
		Log:     zerolog.Nop(),
	})
	if err != nil {
		fail("decoder", "FAIL: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Probe(ctx); err != nil {
		fail("decoder", "FAIL: %v", err)
		return
	}
	ok("decoder", "ok (%s)", e.Command())
}

func checkModel(override, fromProfile string, ok, fail report) bool {
	path := override
	if path == "" {
		path = fromProfile
	}
	if path == "" {
		ok("local model", "not configured")
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		fail("local model", "FAIL: %v", err)
		return false
	}
	if info.IsDir() {
		fail("local model", "FAIL: %s is a directory", path)
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		fail("local model", "FAIL: %v", err)
		return false
	}
	defer f.Close()
	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		fail("local model", "FAIL: reading header: %v", err)
		return false
	}
	// ggml stores its uint32 magic little-endian, so "ggml" lands on disk
	// as "lmgg". Anything else will be rejected at load time too.
	if string(magic[:]) != "lmgg" {
		fail("local model", "FAIL: %s is not a ggml model (magic %q)", path, magic[:])
		return false
	}
	ok("local model", "ok (%s, %.0f MB)", path, float64(info.Size())/(1<<20))
	return true
}

func checkRemote(apiURL string, ok, fail report) bool {
	if apiURL == "" {
		ok("remote api", "not configured")
		return false
	}
	u, err := url.Parse(apiURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		fail("remote api", "FAIL: %q is not an absolute http(s) URL", apiURL)
		return false
	}
	ok("remote api", "ok (%s)", u.Host)
	return true
}

// checkWritable verifies dir accepts new files. required=false treats an
// empty dir as "not configured" rather than a failure.
func checkWritable(name, dir string, required bool, ok, fail report) {
	if dir == "" {
		if required {
			dir = os.TempDir()
		} else {
			ok(name, "not configured")
			return
		}
	}
	f, err := os.CreateTemp(dir, ".srcheck-*")
	if err != nil {
		fail(name, "FAIL: %v", err)
		return
	}
	f.Close()
	os.Remove(f.Name())
	ok(name, "ok (%s)", dir)
}

func checkDir(name, dir string, ok, fail report) {
	if dir == "" {
		ok(name, "not configured")
		return
	}
	info, err := os.Stat(dir)
	if err != nil {
		fail(name, "FAIL: %v", err)
		return
	}
	if !info.IsDir() {
		fail(name, "FAIL: %s is not a directory", dir)
		return
	}
	ok(name, "ok (%s)", dir)
}
