// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package flow

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jeranaias/veil/internal/credential"
	"github.com/jeranaias/veil/internal/passcode"
)

// =============================================================================
// TYPES
// =============================================================================

// Kind selects a passcode flow.
type Kind int

const (
	// CreateReal sets the first passcode.
	CreateReal Kind = iota
	// CreateDuress adds a duress code.
	CreateDuress
	// ChangeReal replaces the passcode after verifying the current one.
	ChangeReal
	// ChangeDuress replaces the duress code after verifying the passcode.
	ChangeDuress
	// Remove clears both codes after verifying the passcode.
	Remove
	// RemoveDuress clears only the duress code after verifying the passcode.
	RemoveDuress
)

var kindNames = map[Kind]string{
	CreateReal:   "create",
	CreateDuress: "create-duress",
	ChangeReal:   "change",
	ChangeDuress: "change-duress",
	Remove:       "remove",
	RemoveDuress: "remove-duress",
}

// String returns the flow name.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) verifiesFirst() bool {
	return k == ChangeReal || k == ChangeDuress || k == Remove || k == RemoveDuress
}

func (k Kind) duress() bool {
	return k == CreateDuress || k == ChangeDuress
}

// Step is the current screen of a flow.
type Step int

const (
	StepVerify Step = iota
	StepEnter
	StepConfirm
	StepWeak
	StepDone
)

// Feedback is the one-shot effect the UI plays for the last input.
type Feedback int

const (
	FeedbackNone Feedback = iota
	// FeedbackShake is a rejected entry: shake and clear.
	FeedbackShake
	// FeedbackWeak asks the user to confirm a guessable code.
	FeedbackWeak
	// FeedbackSuccess ends the flow.
	FeedbackSuccess
)

// Snapshot is everything the UI needs to render a flow. It never contains
// digits, only how many were entered.
type Snapshot struct {
	Kind      Kind
	Step      Step
	Entered   int
	Length    int
	Feedback  Feedback
	Message   string
	Done      bool
	Cancelled bool
}

// Credentials is the credential surface a flow drives.
type Credentials interface {
	Verify(code *passcode.Code) (credential.Result, error)
	SetReal(code *passcode.Code) error
	SetDuress(code *passcode.Code) error
	Clear() error
	ClearDuress() error
	Length() int
	IsPasscodeSet() bool
	HasDuress() bool
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller runs one flow. Codes live in locked buffers for exactly as
// long as the flow needs them and are destroyed on every exit path.
type Controller struct {
	mu    sync.Mutex
	kind  Kind
	creds Credentials
	entry *passcode.Entry

	first   *passcode.Code // entered, awaiting confirmation
	pending *passcode.Code // confirmed, awaiting weak-code decision

	step      Step
	feedback  Feedback
	message   string
	done      bool
	cancelled bool
}

// New starts a flow. Flows that change or remove codes first ask for the
// current passcode.
func New(kind Kind, creds Credentials) *Controller {
	c := &Controller{
		kind:  kind,
		creds: creds,
		entry: passcode.NewEntry(creds.Length()),
		step:  StepEnter,
	}
	if kind.verifiesFirst() {
		c.step = StepVerify
	}
	c.message = c.prompt()

	switch {
	case kind.verifiesFirst() && !creds.IsPasscodeSet():
		c.finish("No passcode is set.")
	case kind == CreateDuress && !creds.IsPasscodeSet():
		c.finish("Set a passcode before adding a duress code.")
	case kind == CreateReal && creds.IsPasscodeSet():
		c.finish("A passcode is already set. Use change instead.")
	case (kind == ChangeDuress || kind == RemoveDuress) && !creds.HasDuress():
		c.finish("No duress code is set.")
	}
	return c
}

// Kind returns the flow kind.
func (c *Controller) Kind() Kind { return c.kind }

// Snapshot returns the current render state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) snapshot() Snapshot {
	s := Snapshot{
		Kind:      c.kind,
		Step:      c.step,
		Feedback:  c.feedback,
		Message:   c.message,
		Done:      c.done,
		Cancelled: c.cancelled,
	}
	if c.entry != nil {
		s.Entered = c.entry.Len()
		s.Length = c.entry.Capacity()
	}
	return s
}

// Digit adds one digit. A full entry is submitted immediately. Submitting
// may hash, so call it off the UI goroutine.
func (c *Controller) Digit(r rune) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done || c.step == StepWeak {
		return c.snapshot()
	}
	c.feedback = FeedbackNone
	c.message = c.prompt()
	if !c.entry.Append(r) {
		return c.snapshot()
	}
	if c.entry.Full() {
		c.submit()
	}
	return c.snapshot()
}

// Backspace removes the last digit.
func (c *Controller) Backspace() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.done {
		c.entry.Backspace()
		c.feedback = FeedbackNone
	}
	return c.snapshot()
}

// Cancel abandons the flow and wipes everything entered.
func (c *Controller) Cancel() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.done {
		c.cancelled = true
		c.finish("")
	}
	return c.snapshot()
}

// AcceptWeak commits a code the advisor flagged.
func (c *Controller) AcceptWeak() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step == StepWeak && !c.done {
		c.commit()
	}
	return c.snapshot()
}

// RejectWeak discards a flagged code and returns to entry.
func (c *Controller) RejectWeak() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step == StepWeak && !c.done {
		c.pending.Destroy()
		c.pending = nil
		c.restart(FeedbackNone, "Choose a code that is harder to guess.")
	}
	return c.snapshot()
}

// Close releases locked memory. Safe after Cancel or completion.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wipe()
	if c.entry != nil {
		c.entry.Destroy()
		c.entry = nil
	}
}

// =============================================================================
// STEPS
// =============================================================================

func (c *Controller) submit() {
	code := c.entry.Take()
	switch c.step {
	case StepVerify:
		c.verifyCurrent(code)
	case StepEnter:
		c.first = code
		c.step = StepConfirm
		c.message = c.prompt()
	case StepConfirm:
		match := c.first.Equal(code)
		code.Destroy()
		if !match {
			c.wipe()
			c.restart(FeedbackShake, "Codes did not match. Try again.")
			return
		}
		c.pending, c.first = c.first, nil
		if passcode.IsWeakBytes(c.pending.Bytes()) {
			c.step = StepWeak
			c.feedback = FeedbackWeak
			c.message = "This code is easy to guess. Use it anyway?"
			return
		}
		c.commit()
	default:
		code.Destroy()
	}
}

func (c *Controller) verifyCurrent(code *passcode.Code) {
	r, err := c.creds.Verify(code)
	code.Destroy()
	if errors.Is(err, credential.ErrStorageFailure) {
		c.fail("Could not check the passcode.")
		return
	}
	if err != nil {
		c.feedback = FeedbackShake
		c.message = "Could not check the passcode. Try again."
		return
	}
	if r != credential.Real {
		c.feedback = FeedbackShake
		c.message = "Incorrect passcode."
		return
	}

	switch c.kind {
	case Remove:
		c.finishWith(c.creds.Clear(), "Passcode removed.")
	case RemoveDuress:
		c.finishWith(c.creds.ClearDuress(), "Duress code removed.")
	default:
		c.step = StepEnter
		c.message = c.prompt()
	}
}

func (c *Controller) commit() {
	var err error
	if c.kind.duress() {
		err = c.creds.SetDuress(c.pending)
	} else {
		err = c.creds.SetReal(c.pending)
	}
	c.pending.Destroy()
	c.pending = nil

	switch {
	case err == nil:
		if c.kind.duress() {
			c.succeed("Duress code saved.")
		} else {
			c.succeed("Passcode saved.")
		}
	case errors.Is(err, credential.ErrInvalidLength):
		c.restart(FeedbackShake, fmt.Sprintf("Use exactly %d digits.", c.creds.Length()))
	case errors.Is(err, credential.ErrCodeCollision):
		if c.kind.duress() {
			c.restart(FeedbackShake, "The duress code must differ from your passcode.")
		} else {
			c.restart(FeedbackShake, "The passcode must differ from your duress code.")
		}
	case errors.Is(err, credential.ErrRealCredentialMissing):
		c.finish("Set a passcode before adding a duress code.")
	case errors.Is(err, credential.ErrStorageFailure):
		c.fail("Could not save. Try again.")
	default:
		c.restart(FeedbackShake, "Could not save. Try again.")
	}
}

func (c *Controller) finishWith(err error, ok string) {
	switch {
	case errors.Is(err, credential.ErrStorageFailure):
		c.fail("Could not save. Try again.")
	case err != nil:
		c.feedback = FeedbackShake
		c.message = "Could not save. Try again."
	default:
		c.succeed(ok)
	}
}

func (c *Controller) succeed(msg string) {
	c.finish(msg)
	c.feedback = FeedbackSuccess
}

// fail ends the flow without a change. A storage failure is fatal to the
// flow; the core has already locked.
func (c *Controller) fail(msg string) {
	c.finish(msg)
	c.feedback = FeedbackShake
}

func (c *Controller) finish(msg string) {
	c.wipe()
	if c.entry != nil {
		c.entry.Reset()
	}
	c.step = StepDone
	c.done = true
	c.message = msg
}

func (c *Controller) restart(fb Feedback, msg string) {
	c.entry.Reset()
	c.step = StepEnter
	c.feedback = fb
	c.message = msg
}

func (c *Controller) wipe() {
	c.first.Destroy()
	c.pending.Destroy()
	c.first, c.pending = nil, nil
}

func (c *Controller) prompt() string {
	noun := "passcode"
	if c.kind.duress() {
		noun = "duress code"
	}
	switch c.step {
	case StepVerify:
		return "Enter your current passcode."
	case StepEnter:
		return "Enter a new " + noun + "."
	case StepConfirm:
		return "Confirm the new " + noun + "."
	default:
		return ""
	}
}
