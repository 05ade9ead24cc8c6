// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package decoy

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jeranaias/veil/internal/lock"
	"github.com/jeranaias/veil/internal/vault"
)

var (
	// ErrNotPermitted is returned when the lock state forbids the operation:
	// preset changes outside real Unlocked, burn marks outside a decoy session.
	ErrNotPermitted = errors.New("not permitted in the current lock state")
	// ErrUnknownPreset is returned for a preset ID that is not loaded.
	ErrUnknownPreset = errors.New("unknown decoy preset")
	// ErrPersist wraps a failed write of the preset or burn flag.
	ErrPersist = errors.New("failed to persist decoy state")
)

// Gate is the part of the lock controller the manager consults.
type Gate interface {
	State() lock.State
	MarkBurned() bool
}

// Seeder replaces decoy content with a preset's seed data.
type Seeder interface {
	Reseed(p Preset) error
}

// Persister stores the preset selection and burned flag.
type Persister interface {
	Update(fn func(*vault.State) error) error
}

// Manager tracks the active decoy preset and whether the current or last
// decoy session edited decoy content.
type Manager struct {
	mu         sync.Mutex
	presets    []Preset
	byID       map[string]Preset
	current    string
	burned     bool
	regenerate bool

	gate    Gate
	seeder  Seeder
	persist Persister
}

// Option configures a Manager.
type Option func(*Manager)

// WithSeeder sets the decoy content seeder.
func WithSeeder(s Seeder) Option {
	return func(m *Manager) {
		m.seeder = s
	}
}

// WithPersister stores selection changes through p.
func WithPersister(p Persister) Option {
	return func(m *Manager) {
		m.persist = p
	}
}

// WithRegenerate reseeds decoy content on the next duress entry after a
// burned session.
func WithRegenerate(enabled bool) Option {
	return func(m *Manager) {
		m.regenerate = enabled
	}
}

// WithRestored restores the persisted preset and burned flag.
func WithRestored(preset string, burned bool) Option {
	return func(m *Manager) {
		if preset != "" {
			m.current = preset
		}
		m.burned = burned
	}
}

// NewManager creates a manager with defaultPreset selected unless a restored
// selection overrides it.
func NewManager(presets []Preset, defaultPreset string, gate Gate, opts ...Option) (*Manager, error) {
	if len(presets) == 0 {
		return nil, errors.New("no decoy presets loaded")
	}
	m := &Manager{
		presets: presets,
		byID:    make(map[string]Preset, len(presets)),
		current: defaultPreset,
		gate:    gate,
	}
	for _, p := range presets {
		m.byID[p.ID] = p
	}
	for _, opt := range opts {
		opt(m)
	}
	if _, ok := m.byID[m.current]; !ok {
		if _, ok := m.byID[defaultPreset]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPreset, defaultPreset)
		}
		// A restored preset that no longer exists falls back to the default.
		m.current = defaultPreset
	}
	return m, nil
}

// Presets returns all loaded presets.
func (m *Manager) Presets() []Preset {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Preset, len(m.presets))
	copy(out, m.presets)
	return out
}

// Current returns the active preset.
func (m *Manager) Current() Preset {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[m.current]
}

// CurrentID returns the active preset ID.
func (m *Manager) CurrentID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// IsBurned reports whether decoy content was edited since the last reseed.
func (m *Manager) IsBurned() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.burned
}

// SetPreset selects a preset. Only allowed under the real passcode. Setting
// the current preset again changes nothing.
func (m *Manager) SetPreset(id string) error {
	if !m.gate.State().IsRealUnlocked() {
		return ErrNotPermitted
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPreset, id)
	}
	if id == m.current {
		return nil
	}
	if m.seeder != nil {
		if err := m.seeder.Reseed(p); err != nil {
			return fmt.Errorf("failed to seed decoy content: %w", err)
		}
	}
	if err := m.save(id, false); err != nil {
		return err
	}
	m.current = id
	m.burned = false
	return nil
}

// MarkBurned records that decoy content was edited during the current decoy
// session.
func (m *Manager) MarkBurned() error {
	if !m.gate.State().IsDecoyUnlocked() {
		return ErrNotPermitted
	}

	m.mu.Lock()
	if !m.burned {
		if err := m.save(m.current, true); err != nil {
			m.mu.Unlock()
			return err
		}
		m.burned = true
	}
	m.mu.Unlock()

	// The gate reads CurrentID under its own lock; call it unlocked.
	m.gate.MarkBurned()
	return nil
}

// EnterDecoy prepares decoy content for a duress session. When the previous
// session was burned and regeneration is on, decoy content is reseeded
// first. The burned flag is cleared either way.
func (m *Manager) EnterDecoy() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.burned {
		return nil
	}
	if m.regenerate && m.seeder != nil {
		if err := m.seeder.Reseed(m.byID[m.current]); err != nil {
			return fmt.Errorf("failed to regenerate decoy content: %w", err)
		}
	}
	if err := m.save(m.current, false); err != nil {
		return err
	}
	m.burned = false
	return nil
}

func (m *Manager) save(preset string, burned bool) error {
	if m.persist == nil {
		return nil
	}
	if err := m.persist.Update(func(st *vault.State) error {
		st.Preset = preset
		st.DecoyBurned = burned
		return nil
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}
