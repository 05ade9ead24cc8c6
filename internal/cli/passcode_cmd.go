// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jeranaias/veil/internal/credential"
	"github.com/jeranaias/veil/internal/flow"
	"github.com/jeranaias/veil/internal/passcode"
)

// =============================================================================
// PASSCODE COMMAND
// =============================================================================

func (a *App) runPasscode(ctx context.Context, args Args) error {
	switch args.Subcommand {
	case "", "status":
		return a.passcodeStatus()
	case "set":
		return a.runFlow(ctx, flow.CreateReal, false)
	case "change":
		return a.runFlow(ctx, flow.ChangeReal, true)
	case "remove", "off":
		return a.runFlow(ctx, flow.Remove, true)
	case "duress":
		// Whether a duress code exists is only known after unlocking, so the
		// flow kind is picked inside runFlow.
		return a.runFlow(ctx, flow.CreateDuress, true)
	case "remove-duress":
		return a.runFlow(ctx, flow.RemoveDuress, true)
	default:
		return usageError(CmdPasscode, args.Subcommand, "veil passcode change")
	}
}

// passcodeStatus reports whether a passcode is set. It says nothing about
// a duress code.
func (a *App) passcodeStatus() error {
	st := PasscodeStatus{
		Enabled:  a.core.IsPasscodeSet(),
		Length:   a.core.PasscodeLength(),
		Disguise: a.core.Disguise(),
		Locked:   a.core.NeedsGate(),
	}
	if a.json {
		return a.emit(CmdPasscode, st)
	}
	if st.Enabled {
		a.printf("Passcode: on (%d digits)\n", st.Length)
	} else {
		a.printf("Passcode: off\n")
	}
	a.printf("Disguise: %s\n", st.Disguise)
	return nil
}

// FlowResult is the JSON data for a finished passcode flow.
type FlowResult struct {
	Flow    string `json:"flow"`
	Changed bool   `json:"changed"`
	Message string `json:"message"`
}

// runFlow authenticates when auth is set and drives one passcode flow from
// prompted codes. The code used to authenticate answers the flow's own
// "current passcode" step so the user types it once.
func (a *App) runFlow(ctx context.Context, kind flow.Kind, auth bool) error {
	var current []byte
	if auth && a.core.IsPasscodeSet() {
		var err error
		current, err = a.authenticate(ctx)
		if err != nil {
			return err
		}
		defer clear(current)
	}
	if kind == flow.CreateDuress && a.core.HasDuress() {
		kind = flow.ChangeDuress
	}

	f := a.core.Flow(kind)
	defer f.Close()

	snap := f.Snapshot()
	if snap.Step == flow.StepVerify && len(current) == snap.Length {
		for _, d := range current {
			snap = f.Digit(rune(d))
		}
	}

	for !snap.Done {
		if err := ctx.Err(); err != nil {
			f.Cancel()
			return err
		}

		if snap.Step == flow.StepWeak {
			ok, err := a.prompt.Confirm(snap.Message + " [y/N] ")
			if err != nil {
				f.Cancel()
				return err
			}
			if ok {
				snap = f.AcceptWeak()
			} else {
				snap = f.RejectWeak()
			}
			continue
		}

		digits, err := a.readCode(snap.Message + " ")
		if err != nil {
			f.Cancel()
			return err
		}
		if len(digits) != snap.Length {
			clear(digits)
			a.note(fmt.Sprintf("Use exactly %d digits.", snap.Length))
			continue
		}
		for _, d := range digits {
			snap = f.Digit(rune(d))
		}
		clear(digits)
	}

	if snap.Cancelled {
		return ErrCancelled
	}
	if snap.Feedback != flow.FeedbackSuccess {
		return &CommandError{Command: CmdPasscode.String(), Action: kind.String(), Err: errors.New(snap.Message)}
	}
	if a.json {
		return a.emit(CmdPasscode, FlowResult{Flow: kind.String(), Changed: true, Message: snap.Message})
	}
	a.printf("%s\n", snap.Message)
	return nil
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

// authenticate checks a prompted code against the core and returns a copy of
// the digits; the caller clears it. A duress code succeeds here too and puts
// the core into the decoy session. Returns nil when no code is needed.
func (a *App) authenticate(ctx context.Context) ([]byte, error) {
	if !a.core.NeedsGate() {
		return nil, nil
	}
	if rem := a.core.Attempts().Remaining(); rem > 0 {
		return nil, fmt.Errorf("%w: try again in %s", ErrTryLater, rem.Round(time.Second))
	}

	digits, err := a.readCode("Passcode: ")
	if err != nil {
		return nil, err
	}
	if len(digits) != a.core.PasscodeLength() {
		clear(digits)
		return nil, ErrIncorrectPasscode
	}
	keep := bytes.Clone(digits)

	// passcode.New takes ownership of digits and wipes them.
	r, err := a.core.Verify(ctx, passcode.New(digits))
	if err != nil {
		clear(keep)
		return nil, err
	}
	if r == credential.Invalid {
		clear(keep)
		return nil, ErrIncorrectPasscode
	}
	return keep, nil
}

// readCode prompts for a code and normalizes it to ASCII digits. Input with
// anything other than digits is rejected as a whole.
func (a *App) readCode(prompt string) ([]byte, error) {
	raw, err := a.prompt.Secret(prompt)
	if err != nil {
		return nil, err
	}
	defer clear(raw)

	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRune(raw[i:])
		i += size
		d, ok := passcode.NormalizeDigit(r)
		if !ok {
			clear(out)
			return nil, &ValidationError{Field: "passcode", Reason: "use digits only"}
		}
		out = append(out, d)
	}
	return out, nil
}

// note writes a one-line hint where prompts go.
func (a *App) note(msg string) {
	if a.json {
		return
	}
	fmt.Fprintln(a.out, msg)
}
