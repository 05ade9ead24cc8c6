// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package attempts counts consecutive failed unlock attempts and turns the
// count into an input delay.
//
// The core only counts. Whether the count slows input down is a product
// policy expressed as a Backoff, which the gate UI consults.
package attempts

import (
	"sync"
	"time"

	"github.com/jeranaias/veil/internal/credential"
	"github.com/jeranaias/veil/internal/vault"
)

// =============================================================================
// BACKOFF POLICY
// =============================================================================

// Backoff doubles the delay for every failure past After, capped at Max.
// The zero value never delays.
type Backoff struct {
	// After is the failure count at which delays start. 0 disables backoff.
	After int
	Base  time.Duration
	Max   time.Duration
}

// Delay returns how long input stays disabled after failures failures.
func (b Backoff) Delay(failures int) time.Duration {
	if b.After <= 0 || b.Base <= 0 || failures < b.After {
		return 0
	}
	d := b.Base
	for i := b.After; i < failures; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// =============================================================================
// TRACKER
// =============================================================================

// Persister stores the failure count.
type Persister interface {
	Update(fn func(*vault.State) error) error
}

// Tracker records verify outcomes. Real and Duress both reset the count, so
// the count after a duress unlock looks exactly like after a real one.
type Tracker struct {
	mu       sync.Mutex
	failures int
	last     time.Time
	policy   Backoff
	persist  Persister
	now      func() time.Time
	hooks    []func(failures int)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithBackoff sets the delay policy.
func WithBackoff(b Backoff) Option {
	return func(t *Tracker) {
		t.policy = b
	}
}

// WithPersister stores the count through p after every attempt.
func WithPersister(p Persister) Option {
	return func(t *Tracker) {
		t.persist = p
	}
}

// WithRestored starts from a persisted count.
func WithRestored(failures int) Option {
	return func(t *Tracker) {
		if failures > 0 {
			t.failures = failures
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker creates a tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OnAttempt registers a hook called with the new count after every attempt.
func (t *Tracker) OnAttempt(fn func(failures int)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hooks = append(t.hooks, fn)
}

// Record counts one verify outcome. The count is written on every outcome,
// not only on failure, so storage activity does not depend on the result.
// On a write error the in-memory count still updates.
func (t *Tracker) Record(r credential.Result) error {
	t.mu.Lock()
	if r == credential.Invalid {
		t.failures++
	} else {
		t.failures = 0
	}
	t.last = t.now()
	n := t.failures
	hooks := make([]func(int), len(t.hooks))
	copy(hooks, t.hooks)
	t.mu.Unlock()

	var err error
	if t.persist != nil {
		err = t.persist.Update(func(st *vault.State) error {
			st.Failures = n
			return nil
		})
	}
	for _, fn := range hooks {
		fn(n)
	}
	return err
}

// Failures returns the consecutive failure count.
func (t *Tracker) Failures() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failures
}

// Delay returns the full delay for the current count.
func (t *Tracker) Delay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.policy.Delay(t.failures)
}

// Remaining returns how much of the delay is left, or 0 when input is open.
func (t *Tracker) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	d := t.policy.Delay(t.failures)
	if d == 0 || t.last.IsZero() {
		return 0
	}
	if left := t.last.Add(d).Sub(t.now()); left > 0 {
		return left
	}
	return 0
}

// Reset clears the count and persists the zero. Used after a panic wipe,
// which must not leave an old count or its delay behind. Hooks are not
// called.
func (t *Tracker) Reset() error {
	t.mu.Lock()
	t.failures = 0
	t.last = time.Time{}
	t.mu.Unlock()

	if t.persist == nil {
		return nil
	}
	return t.persist.Update(func(st *vault.State) error {
		st.Failures = 0
		return nil
	})
}
