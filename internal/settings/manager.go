package settings

import (
	"sync"

	"github.com/rs/zerolog"
)

// Manager holds the live profile and tells subscribers when it changes.
// Reads are cheap; writes validate, persist and then notify.
type Manager struct {
	path string
	log  zerolog.Logger

	mu      sync.RWMutex
	current Settings

	subMu  sync.Mutex
	subs   map[int]func(Settings)
	nextID int
}

// NewManager creates a manager over the profile file at path, seeded with
// initial.
func NewManager(path string, initial Settings, log zerolog.Logger) *Manager {
	return &Manager{
		path:    path,
		log:     log.With().Str("component", "settings").Logger(),
		current: initial,
		subs:    make(map[int]func(Settings)),
	}
}

// Current returns a snapshot of the live profile.
func (m *Manager) Current() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Update validates s, persists it and swaps it in. Subscribers run
// synchronously after the swap, so they must be quick.
func (m *Manager) Update(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := Save(m.path, s); err != nil {
		return err
	}

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()

	m.log.Info().
		Str("model_size", s.ModelSize).
		Str("language", s.Language).
		Bool("prefer_remote", s.PreferRemote).
		Msg("settings updated")
	m.notify(s)
	return nil
}

// Reload re-reads the profile from disk. Subscribers are notified only when
// the on-disk profile differs from the live one, so a reload triggered by
// our own Save is a no-op.
func (m *Manager) Reload() error {
	s, err := Load(m.path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if s == m.current {
		m.mu.Unlock()
		return nil
	}
	m.current = s
	m.mu.Unlock()

	m.log.Info().Msg("settings reloaded from disk")
	m.notify(s)
	return nil
}

// Subscribe registers fn to run on every profile change. The returned
// function cancels the subscription.
func (m *Manager) Subscribe(fn func(Settings)) func() {
	m.subMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

func (m *Manager) notify(s Settings) {
	m.subMu.Lock()
	fns := make([]func(Settings), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}
