// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import "strings"

// =============================================================================
// ARG PARSER
// =============================================================================

// ArgParser is a small flag scanner. Flags may appear anywhere on the line,
// as --name value, --name=value or -n value. A bare "--" ends flag parsing.
type ArgParser struct {
	args     []string
	consumed []bool
	err      error
}

// NewArgParser creates a parser over argv.
func NewArgParser(argv []string) *ArgParser {
	return &ArgParser{
		args:     argv,
		consumed: make([]bool, len(argv)),
	}
}

// Err returns the first parse error, such as a value flag with no value.
func (p *ArgParser) Err() error { return p.err }

// Flag returns the value of the first matching value flag and marks both
// tokens consumed. It returns "" if the flag is absent.
func (p *ArgParser) Flag(names ...string) string {
	for i := 0; i < len(p.args); i++ {
		if p.args[i] == "--" {
			break
		}
		if p.consumed[i] {
			continue
		}
		for _, name := range names {
			long, short := "--"+name, "-"+name
			arg := p.args[i]

			if v, ok := strings.CutPrefix(arg, long+"="); ok {
				p.consumed[i] = true
				return v
			}
			if arg != long && arg != short {
				continue
			}
			p.consumed[i] = true
			if i+1 >= len(p.args) || p.consumed[i+1] {
				if p.err == nil {
					p.err = &ValidationError{Field: name, Reason: "missing value"}
				}
				return ""
			}
			p.consumed[i+1] = true
			return p.args[i+1]
		}
	}
	return ""
}

// FlagOrDefault returns Flag(name) or def when the flag is absent.
func (p *ArgParser) FlagOrDefault(name, def string) string {
	if v := p.Flag(name); v != "" {
		return v
	}
	return def
}

// BoolFlag reports whether any of the names is present as a switch.
func (p *ArgParser) BoolFlag(names ...string) bool {
	found := false
	for i, arg := range p.args {
		if arg == "--" {
			break
		}
		if p.consumed[i] {
			continue
		}
		for _, name := range names {
			if arg == "--"+name || (len(name) == 1 && arg == "-"+name) {
				p.consumed[i] = true
				found = true
			}
		}
	}
	return found
}

// Positionals returns every unconsumed token that is not a flag, in order.
// Tokens after "--" are always positional.
func (p *ArgParser) Positionals() []string {
	var out []string
	rest := false
	for i, arg := range p.args {
		if !rest && arg == "--" {
			rest = true
			continue
		}
		if rest {
			out = append(out, arg)
			continue
		}
		if p.consumed[i] {
			continue
		}
		if strings.HasPrefix(arg, "-") && len(arg) > 1 {
			if p.err == nil {
				p.err = &ValidationError{Field: "flag", Value: arg, Reason: "unknown flag", Example: "veil help"}
			}
			continue
		}
		out = append(out, arg)
	}
	return out
}
