// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package wipe

import (
	"sync"
	"time"
)

// SequenceDetector fires when one key is pressed a number of times within a
// window. Any other key resets the count. The TUI feeds it every key event
// in every lock state.
type SequenceDetector struct {
	mu      sync.Mutex
	key     string
	presses int
	window  time.Duration
	fire    func() bool
	times   []time.Time
}

// NewSequenceDetector returns a detector that calls fire after presses
// presses of key within window.
func NewSequenceDetector(key string, presses int, window time.Duration, fire func() bool) *SequenceDetector {
	if presses < 1 {
		presses = 1
	}
	return &SequenceDetector{key: key, presses: presses, window: window, fire: fire}
}

// Key records a key press at time at and reports whether the wipe fired.
func (d *SequenceDetector) Key(key string, at time.Time) bool {
	d.mu.Lock()
	if key != d.key {
		d.times = d.times[:0]
		d.mu.Unlock()
		return false
	}

	d.times = append(d.times, at)
	cutoff := at.Add(-d.window)
	i := 0
	for i < len(d.times) && d.times[i].Before(cutoff) {
		i++
	}
	d.times = d.times[i:]

	if len(d.times) < d.presses {
		d.mu.Unlock()
		return false
	}
	d.times = d.times[:0]
	d.mu.Unlock()

	return d.fire()
}

// Matches reports whether key is the panic key, so the UI can swallow it.
func (d *SequenceDetector) Matches(key string) bool { return key == d.key }
