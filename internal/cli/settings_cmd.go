// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/jeranaias/veil/internal/decoy"
	"github.com/jeranaias/veil/internal/lock"
	"github.com/jeranaias/veil/internal/passcode"
)

// SECURITY: A duress code unlocks these commands too. In that session every
// change reports success exactly as it would under the real passcode but
// nothing is stored, and status output describes a device with no panic
// wipe. Unknown IDs still fail so typos look the same in both sessions.

// inDecoy reports whether this invocation unlocked with the duress code.
func (a *App) inDecoy() bool {
	return a.core.State().IsDecoyUnlocked()
}

// =============================================================================
// PRESET
// =============================================================================

func (a *App) runPreset(ctx context.Context, args Args) error {
	switch args.Subcommand {
	case "", "list":
		if err := a.unlock(ctx); err != nil {
			return err
		}
		return a.listPresets()
	case "set":
		id := args.Arg(0)
		if id == "" {
			return &ValidationError{Field: "preset", Reason: "missing preset id", Example: "veil preset set study"}
		}
		if err := a.unlock(ctx); err != nil {
			return err
		}
		return a.setPreset(id)
	default:
		return usageError(CmdPreset, args.Subcommand, "veil preset list")
	}
}

func (a *App) listPresets() error {
	presets := a.core.Decoy().Presets()
	out := make([]PresetInfo, 0, len(presets))
	for _, p := range presets {
		out = append(out, PresetInfo{ID: p.ID, Name: p.Name, Description: p.Description})
	}
	if a.json {
		return a.emit(CmdPreset, out)
	}
	for _, p := range out {
		a.printf("%-16s %s\n", p.ID, p.Name)
		if p.Description != "" {
			a.printf("%-16s %s\n", "", p.Description)
		}
	}
	return nil
}

func (a *App) setPreset(id string) error {
	var target *decoy.Preset
	for _, p := range a.core.Decoy().Presets() {
		if p.ID == id {
			target = &p
			break
		}
	}
	if target == nil {
		return &CommandError{Command: CmdPreset.String(), Action: "set", Err: fmt.Errorf("%w: %s", decoy.ErrUnknownPreset, id)}
	}

	if !a.inDecoy() {
		if err := a.core.SetPreset(id); err != nil {
			return &CommandError{Command: CmdPreset.String(), Action: "set", Err: err}
		}
	}
	if a.json {
		return a.emit(CmdPreset, PresetInfo{ID: target.ID, Name: target.Name, Description: target.Description})
	}
	a.printf("Decoy content set to %s.\n", target.Name)
	return nil
}

// =============================================================================
// DISGUISE
// =============================================================================

func (a *App) runDisguise(ctx context.Context, args Args) error {
	switch args.Subcommand {
	case "", "list":
		return a.listDisguises()
	case "set":
		id := args.Arg(0)
		if id == "" {
			return &ValidationError{Field: "disguise", Reason: "missing mode id", Example: "veil disguise set notes"}
		}
		if !a.core.Policy().Has(id) {
			return &CommandError{Command: CmdDisguise.String(), Action: "set", Err: fmt.Errorf("%w: %s", lock.ErrUnknownDisguise, id)}
		}
		if err := a.unlock(ctx); err != nil {
			return err
		}
		if !a.inDecoy() {
			if err := a.core.SetDisguise(id); err != nil {
				return &CommandError{Command: CmdDisguise.String(), Action: "set", Err: err}
			}
		}
		if a.json {
			return a.emit(CmdDisguise, DisguiseInfo{ID: id, Name: a.modeName(id), RequiresPasscode: a.core.Policy().RequiresPasscode(id), Active: true})
		}
		a.printf("Disguise set to %s.\n", a.modeName(id))
		return nil
	default:
		return usageError(CmdDisguise, args.Subcommand, "veil disguise list")
	}
}

func (a *App) listDisguises() error {
	active := a.core.Disguise()
	modes := a.core.Policy().Modes()
	out := make([]DisguiseInfo, 0, len(modes))
	for _, m := range modes {
		out = append(out, DisguiseInfo{
			ID:               m.ID,
			Name:             m.Name,
			RequiresPasscode: m.RequiresPasscode,
			Active:           m.ID == active,
		})
	}
	if a.json {
		return a.emit(CmdDisguise, out)
	}
	for _, m := range out {
		marker := " "
		if m.Active {
			marker = "*"
		}
		gated := ""
		if !m.RequiresPasscode {
			gated = " (no passcode)"
		}
		a.printf("%s %-12s %s%s\n", marker, m.ID, m.Name, gated)
	}
	return nil
}

func (a *App) modeName(id string) string {
	for _, m := range a.core.Policy().Modes() {
		if m.ID == id && m.Name != "" {
			return m.Name
		}
	}
	return id
}

// =============================================================================
// PANIC
// =============================================================================

func (a *App) runPanic(ctx context.Context, args Args) error {
	switch args.Subcommand {
	case "fire":
		// SECURITY: No output, no auth and the same exit code whether or not
		// the wipe was armed.
		a.core.FirePanic()
		return nil
	case "", "status":
		if err := a.unlock(ctx); err != nil {
			return err
		}
		st := PanicStatus{
			Armed:   a.core.PanicWipeEnabled() && !a.inDecoy(),
			Key:     a.cfg.Panic.Key,
			Presses: a.cfg.Panic.Presses,
		}
		if a.json {
			return a.emit(CmdPanic, st)
		}
		if st.Armed {
			a.printf("Panic wipe: armed (press %s %d times)\n", st.Key, st.Presses)
		} else {
			a.printf("Panic wipe: off\n")
		}
		return nil
	case "arm", "on", "disarm", "off":
		enable := args.Subcommand == "arm" || args.Subcommand == "on"
		if err := a.unlock(ctx); err != nil {
			return err
		}
		if !a.inDecoy() {
			if err := a.core.SetPanicWipeEnabled(enable); err != nil {
				return &CommandError{Command: CmdPanic.String(), Action: args.Subcommand, Err: err}
			}
		}
		if a.json {
			return a.emit(CmdPanic, PanicStatus{Armed: enable, Key: a.cfg.Panic.Key, Presses: a.cfg.Panic.Presses})
		}
		if enable {
			a.printf("Panic wipe armed.\n")
		} else {
			a.printf("Panic wipe off.\n")
		}
		return nil
	default:
		return usageError(CmdPanic, args.Subcommand, "veil panic status")
	}
}

// unlock authenticates and discards the digits.
func (a *App) unlock(ctx context.Context) error {
	digits, err := a.authenticate(ctx)
	clear(digits)
	return err
}

// =============================================================================
// CHECK-WEAK
// =============================================================================

// runCheckWeak reports whether a code is easy to guess. With no argument the
// code is prompted for so it stays out of shell history.
func runCheckWeak(w io.Writer, args Args) error {
	code := args.Subcommand
	var raw []byte
	if code != "" {
		raw = []byte(code)
	} else {
		b, err := NewTerminalPrompter().Secret("Code: ")
		if err != nil {
			return err
		}
		raw = b
	}
	defer clear(raw)

	digits := make([]byte, 0, len(raw))
	for _, r := range string(raw) {
		d, ok := passcode.NormalizeDigit(r)
		if !ok {
			return &ValidationError{Field: "code", Reason: "use digits only", Example: "veil check-weak"}
		}
		digits = append(digits, d)
	}
	weak := passcode.IsWeakBytes(digits)
	clear(digits)

	if args.JSON {
		return NewJSONResponse(CmdCheckWeak.String(), WeakCheck{Weak: weak}).Write(w)
	}
	if weak {
		_, err := fmt.Fprintln(w, "This code is easy to guess.")
		return err
	}
	_, err := fmt.Fprintln(w, "No common pattern found.")
	return err
}
