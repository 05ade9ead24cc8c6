// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package lock

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jeranaias/veil/internal/credential"
)

// =============================================================================
// STATE
// =============================================================================

// Phase is the coarse lock phase.
type Phase int

const (
	// Locked shows the gate.
	Locked Phase = iota
	// Unlocked shows content, real or decoy.
	Unlocked
)

// String returns the phase name.
func (p Phase) String() string {
	if p == Unlocked {
		return "unlocked"
	}
	return "locked"
}

// State is the lock state. It is a comparable value: two States are the same
// state exactly when they are ==.
//
// Locked(d) is {Locked, d, false, false}. Unlocked(d) is {Unlocked, d, false,
// false}. DecoyUnlocked(p) is {Unlocked, p, true, burned}.
type State struct {
	Phase Phase
	// ActiveDisguise is the disguise mode, or the decoy preset ID while
	// DecoyActive.
	ActiveDisguise string
	DecoyActive    bool
	DecoyBurned    bool
}

// IsLocked reports whether the gate must be shown.
func (s State) IsLocked() bool { return s.Phase == Locked }

// IsRealUnlocked reports whether real content is visible.
func (s State) IsRealUnlocked() bool { return s.Phase == Unlocked && !s.DecoyActive }

// IsDecoyUnlocked reports whether decoy content is visible.
func (s State) IsDecoyUnlocked() bool { return s.Phase == Unlocked && s.DecoyActive }

// String renders the state for diagnostics.
func (s State) String() string {
	switch {
	case s.IsDecoyUnlocked():
		return fmt.Sprintf("DecoyUnlocked(%s)", s.ActiveDisguise)
	case s.IsRealUnlocked():
		return fmt.Sprintf("Unlocked(%s)", s.ActiveDisguise)
	default:
		return fmt.Sprintf("Locked(%s)", s.ActiveDisguise)
	}
}

// =============================================================================
// CONTROLLER
// =============================================================================

var (
	// ErrNotPermitted is returned when an operation needs real Unlocked.
	ErrNotPermitted = errors.New("operation requires the real passcode")
	// ErrUnknownDisguise is returned for a mode not in the policy table.
	ErrUnknownDisguise = errors.New("unknown disguise mode")
)

// Controller owns the lock state. All transitions are serialized; observers
// are notified synchronously after each one, in subscription order.
type Controller struct {
	mu     sync.Mutex
	state  State
	policy *Policy

	// disguise is the real disguise mode, kept while a decoy preset occupies
	// ActiveDisguise.
	disguise string
	preset   func() string

	subs   map[int]func(State)
	order  []int
	nextID int
}

// Option configures a Controller.
type Option func(*Controller)

// WithPresetSource sets the function that names the decoy preset entered on
// Duress.
func WithPresetSource(fn func() string) Option {
	return func(c *Controller) {
		c.preset = fn
	}
}

// NewController returns a controller in Locked(disguise).
func NewController(policy *Policy, disguise string, opts ...Option) *Controller {
	c := &Controller{
		policy:   policy,
		disguise: disguise,
		state:    State{Phase: Locked, ActiveDisguise: disguise},
		preset:   func() string { return "" },
		subs:     make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Policy returns the disguise policy.
func (c *Controller) Policy() *Policy { return c.policy }

// Disguise returns the real disguise mode, even during a decoy session.
func (c *Controller) Disguise() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disguise
}

// Apply feeds a verify result into the state machine. Only Real and Duress
// transition, and only from Locked. Invalid returns the current state
// unchanged.
func (c *Controller) Apply(r credential.Result) State {
	preset := c.preset()

	c.mu.Lock()
	if c.state.Phase != Locked {
		s := c.state
		c.mu.Unlock()
		return s
	}

	next := c.state
	switch r {
	case credential.Real:
		next = State{Phase: Unlocked, ActiveDisguise: c.disguise}
	case credential.Duress:
		next = State{Phase: Unlocked, ActiveDisguise: preset, DecoyActive: true}
	}
	return c.transition(next)
}

// Release opens the gate without a code, and only when no gate is needed:
// no passcode is set or the disguise mode is exempt.
func (c *Controller) Release(passcodeSet bool) State {
	c.mu.Lock()
	if c.state.Phase != Locked || c.needsGate(passcodeSet) {
		s := c.state
		c.mu.Unlock()
		return s
	}
	return c.transition(State{Phase: Unlocked, ActiveDisguise: c.disguise})
}

// NeedsGate reports whether the UI must show the passcode gate now.
func (c *Controller) NeedsGate(passcodeSet bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Phase == Locked && c.needsGate(passcodeSet)
}

func (c *Controller) needsGate(passcodeSet bool) bool {
	return passcodeSet && c.policy.RequiresPasscode(c.disguise)
}

// Background re-locks when the app leaves the foreground with a passcode set.
// A decoy session always re-locks.
func (c *Controller) Background(passcodeSet bool) State {
	return c.relock(passcodeSet)
}

// Foreground re-locks on return to the foreground, before any content is
// rendered.
func (c *Controller) Foreground(passcodeSet bool) State {
	return c.relock(passcodeSet)
}

func (c *Controller) relock(passcodeSet bool) State {
	c.mu.Lock()
	if c.state.Phase == Locked || (!c.state.DecoyActive && !c.needsGate(passcodeSet)) {
		s := c.state
		c.mu.Unlock()
		return s
	}
	return c.transition(c.lockedState())
}

// ForceLock locks from any state. Panic wipe and storage failures use it.
func (c *Controller) ForceLock() State {
	c.mu.Lock()
	return c.transition(c.lockedState())
}

// SetDisguise switches the real disguise mode. Only allowed while real
// Unlocked.
func (c *Controller) SetDisguise(id string) error {
	c.mu.Lock()
	if !c.state.IsRealUnlocked() {
		c.mu.Unlock()
		return ErrNotPermitted
	}
	if !c.policy.Has(id) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownDisguise, id)
	}
	if c.disguise == id {
		c.mu.Unlock()
		return nil
	}
	c.disguise = id
	c.transition(State{Phase: Unlocked, ActiveDisguise: id})
	return nil
}

// MarkBurned flags the current decoy session as edited. It is a no-op
// outside DecoyUnlocked and reports whether it applied.
func (c *Controller) MarkBurned() bool {
	c.mu.Lock()
	if !c.state.IsDecoyUnlocked() {
		c.mu.Unlock()
		return false
	}
	if c.state.DecoyBurned {
		c.mu.Unlock()
		return true
	}
	next := c.state
	next.DecoyBurned = true
	c.transition(next)
	return true
}

// Subscribe registers fn for every transition and returns a func that
// removes it.
func (c *Controller) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.order = append(c.order, id)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// lockedState is Locked on the real disguise. Called with mu held.
func (c *Controller) lockedState() State {
	return State{Phase: Locked, ActiveDisguise: c.disguise}
}

// transition installs next, releases mu and notifies observers when the
// state changed. Called with mu held.
func (c *Controller) transition(next State) State {
	changed := next != c.state
	c.state = next

	var fns []func(State)
	if changed {
		fns = make([]func(State), 0, len(c.order))
		for _, id := range c.order {
			if fn, ok := c.subs[id]; ok {
				fns = append(fns, fn)
			}
		}
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
	return next
}
