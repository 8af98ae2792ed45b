package extract

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper removes stale extraction scratch files. Live jobs delete their own
// temp WAVs on every exit path; the sweeper only catches orphans left behind
// by a crashed or killed process.
type Sweeper struct {
	dir      string
	maxAge   time.Duration
	interval time.Duration
	log      zerolog.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

// NewSweeper creates a sweeper over dir that removes scratch files older
// than maxAge.
func NewSweeper(dir string, maxAge, interval time.Duration, log zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	return &Sweeper{
		dir:      dir,
		maxAge:   maxAge,
		interval: interval,
		log:      log.With().Str("component", "temp-sweeper").Logger(),
		stop:     make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	go s.loop()
}

func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Sweeper) loop() {
	// Run once on startup to clear leftovers from a previous run
	s.Sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stop:
			return
		}
	}
}

// Sweep removes orphaned scratch files once and reports how many went away.
func (s *Sweeper) Sweep() int {
	if s.maxAge <= 0 {
		return 0
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Warn().Err(err).Str("dir", s.dir).Msg("failed to read temp dir")
		return 0
	}

	cutoff := time.Now().Add(-s.maxAge)
	removed := 0
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), tempSuffix) {
			continue
		}
		info, err := ent.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, ent.Name())
		if err := os.Remove(path); err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("failed to remove orphaned temp file")
			continue
		}
		removed++
	}

	if removed > 0 {
		s.log.Info().Int("removed", removed).Str("dir", s.dir).Msg("removed orphaned temp audio")
	}
	return removed
}
