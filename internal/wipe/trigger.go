// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package wipe

import (
	"sync"
	"time"
)

// Event is a panic wipe. It carries nothing but the time and is never
// logged or persisted.
type Event struct {
	At time.Time
}

// Trigger turns a gesture into a wipe. Handlers run synchronously on the
// firing goroutine in registration order, before Fire returns.
type Trigger struct {
	mu       sync.Mutex
	fireMu   sync.Mutex
	armed    bool
	handlers []func(Event)
	now      func() time.Time
}

// NewTrigger returns a disarmed trigger.
func NewTrigger() *Trigger {
	return &Trigger{now: time.Now}
}

// Arm enables or disables the trigger. The enable flag is owned by the
// caller (the product's feature gate); a disarmed trigger ignores Fire.
func (t *Trigger) Arm(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed = enabled
}

// Armed reports whether Fire will act.
func (t *Trigger) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

// OnTriggered registers a handler.
func (t *Trigger) OnTriggered(fn func(Event)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = append(t.handlers, fn)
}

// Fire runs every handler if armed and reports whether it did. There is no
// confirmation step. Concurrent fires run one after another.
func (t *Trigger) Fire() bool {
	t.mu.Lock()
	if !t.armed {
		t.mu.Unlock()
		return false
	}
	handlers := make([]func(Event), len(t.handlers))
	copy(handlers, t.handlers)
	ev := Event{At: t.now()}
	t.mu.Unlock()

	t.fireMu.Lock()
	defer t.fireMu.Unlock()
	for _, fn := range handlers {
		fn(ev)
	}
	return true
}
