// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package passcode

import (
	"crypto/subtle"

	"github.com/awnumar/memguard"
	"golang.org/x/text/unicode/norm"
)

// DefaultLength is the number of digits in a passcode.
const DefaultLength = 6

// =============================================================================
// CODE
// =============================================================================

// Code is an opaque plaintext passcode backed by locked memory.
// SECURITY: Callers must Destroy a Code when the call that consumed it returns.
type Code struct {
	buf *memguard.LockedBuffer
}

// New wraps raw in a locked buffer. raw is wiped before New returns, so the
// caller keeps no plaintext copy.
func New(raw []byte) *Code {
	if len(raw) == 0 {
		return &Code{}
	}
	buf := memguard.NewBufferFromBytes(raw)
	buf.Freeze()
	return &Code{buf: buf}
}

// FromString normalizes s (NFKC, so full-width digits become ASCII) and wraps
// the result. The string itself cannot be wiped; use it only where the input
// already arrived as a string (CLI prompts, tests).
func FromString(s string) *Code {
	return New([]byte(norm.NFKC.String(s)))
}

// Len returns the number of bytes in the code, or 0 once destroyed.
func (c *Code) Len() int {
	if c == nil || c.buf == nil || !c.buf.IsAlive() {
		return 0
	}
	return c.buf.Size()
}

// Bytes exposes the plaintext. The slice is only valid until Destroy and must
// not be retained.
func (c *Code) Bytes() []byte {
	if c == nil || c.buf == nil || !c.buf.IsAlive() {
		return nil
	}
	return c.buf.Bytes()
}

// IsDigits reports whether the code is non-empty and every byte is an ASCII
// digit.
func (c *Code) IsDigits() bool {
	return c.DigitMask() == 1
}

// DigitMask returns 1 when every byte is an ASCII digit and 0 otherwise. It
// inspects every byte regardless of where the first non-digit is.
func (c *Code) DigitMask() int {
	b := c.Bytes()
	ok := subtle.ConstantTimeLessOrEq(1, len(b))
	for _, d := range b {
		ok &= subtle.ConstantTimeByteEq(d&0xF0, 0x30) & subtle.ConstantTimeLessOrEq(int(d&0x0F), 9)
	}
	return ok
}

// Equal compares two codes in constant time.
func (c *Code) Equal(other *Code) bool {
	a, b := c.Bytes(), other.Bytes()
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Destroy wipes and releases the buffer. Safe to call more than once.
func (c *Code) Destroy() {
	if c == nil || c.buf == nil {
		return
	}
	c.buf.Destroy()
	c.buf = nil
}

// =============================================================================
// ENTRY
// =============================================================================

// Entry accumulates digits typed on a keypad into locked memory.
type Entry struct {
	buf    *memguard.LockedBuffer
	n      int
	length int
}

// NewEntry creates an entry buffer that accepts exactly length digits.
func NewEntry(length int) *Entry {
	if length < 1 {
		length = DefaultLength
	}
	return &Entry{buf: memguard.NewBuffer(length), length: length}
}

// Append adds one digit. It returns false when the rune is not a digit or the
// entry is already full.
func (e *Entry) Append(r rune) bool {
	d, ok := NormalizeDigit(r)
	if !ok || e.n >= e.length || e.buf == nil {
		return false
	}
	e.buf.Bytes()[e.n] = d
	e.n++
	return true
}

// Backspace removes the last digit.
func (e *Entry) Backspace() {
	if e.n == 0 || e.buf == nil {
		return
	}
	e.n--
	e.buf.Bytes()[e.n] = 0
}

// Len returns the number of digits entered so far.
func (e *Entry) Len() int { return e.n }

// Capacity returns the configured passcode length.
func (e *Entry) Capacity() int { return e.length }

// Full reports whether the entry holds a complete code.
func (e *Entry) Full() bool { return e.n == e.length }

// Take moves the entered digits into a new Code and resets the entry.
func (e *Entry) Take() *Code {
	if e.buf == nil || e.n == 0 {
		e.Reset()
		return &Code{}
	}
	raw := make([]byte, e.n)
	copy(raw, e.buf.Bytes()[:e.n])
	e.Reset()
	return New(raw)
}

// Reset wipes the digits without releasing the buffer.
func (e *Entry) Reset() {
	if e.buf != nil {
		e.buf.Wipe()
	}
	e.n = 0
}

// Destroy releases the locked memory.
func (e *Entry) Destroy() {
	if e.buf != nil {
		e.buf.Destroy()
		e.buf = nil
	}
	e.n = 0
}

// =============================================================================
// NORMALIZATION
// =============================================================================

// NormalizeDigit maps a rune to its ASCII digit after NFKC folding, so
// full-width and other compatibility digits typed on mobile keyboards are
// accepted.
func NormalizeDigit(r rune) (byte, bool) {
	if r >= '0' && r <= '9' {
		return byte(r), true
	}
	folded := norm.NFKC.String(string(r))
	if len(folded) != 1 {
		return 0, false
	}
	c := folded[0]
	if c < '0' || c > '9' {
		return 0, false
	}
	return c, true
}
