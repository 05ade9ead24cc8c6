// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package lock

import "github.com/jeranaias/veil/internal/config"

// Mode is one disguise mode and its lock requirement.
type Mode struct {
	ID               string
	Name             string
	RequiresPasscode bool
}

// Policy answers whether a disguise mode is gated by the passcode.
// Exemptions are data in the table, not special cases in the controller.
type Policy struct {
	modes []Mode
	byID  map[string]Mode
}

// NewPolicy builds a policy from a mode table. Later duplicates win.
func NewPolicy(modes []Mode) *Policy {
	p := &Policy{byID: make(map[string]Mode, len(modes))}
	for _, m := range modes {
		if _, dup := p.byID[m.ID]; !dup {
			p.modes = append(p.modes, m)
		}
		p.byID[m.ID] = m
	}
	return p
}

// PolicyFromConfig builds the policy from the [disguise] section.
func PolicyFromConfig(cfg config.DisguiseConfig) *Policy {
	modes := make([]Mode, 0, len(cfg.Modes))
	for _, m := range cfg.Modes {
		modes = append(modes, Mode{ID: m.ID, Name: m.Name, RequiresPasscode: m.RequiresPasscode})
	}
	return NewPolicy(modes)
}

// RequiresPasscode reports whether mode id is gated. Unknown modes are gated.
func (p *Policy) RequiresPasscode(id string) bool {
	m, ok := p.byID[id]
	if !ok {
		return true
	}
	return m.RequiresPasscode
}

// Has reports whether id is a known mode.
func (p *Policy) Has(id string) bool {
	_, ok := p.byID[id]
	return ok
}

// Modes returns the table in configured order.
func (p *Policy) Modes() []Mode {
	out := make([]Mode, 0, len(p.modes))
	for _, m := range p.modes {
		out = append(out, p.byID[m.ID])
	}
	return out
}
