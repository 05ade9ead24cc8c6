// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package core

import (
	"errors"

	"github.com/jeranaias/veil/internal/credential"
	"github.com/jeranaias/veil/internal/passcode"
)

// realCredentials is the flow surface under the real passcode.
type realCredentials struct {
	core *AuthCore
}

func (r *realCredentials) Verify(code *passcode.Code) (credential.Result, error) {
	return r.core.guardedVerify(code)
}

func (r *realCredentials) SetReal(code *passcode.Code) error {
	return r.core.failClosed(r.core.creds.SetReal(code))
}

func (r *realCredentials) SetDuress(code *passcode.Code) error {
	return r.core.failClosed(r.core.creds.SetDuress(code))
}

func (r *realCredentials) Clear() error        { return r.core.failClosed(r.core.creds.Clear()) }
func (r *realCredentials) ClearDuress() error  { return r.core.failClosed(r.core.creds.ClearDuress()) }
func (r *realCredentials) Length() int         { return r.core.creds.Length() }
func (r *realCredentials) IsPasscodeSet() bool { return r.core.creds.IsPasscodeSet() }
func (r *realCredentials) HasDuress() bool     { return r.core.creds.HasDuress() }

// decoyCredentials is the flow surface during a decoy session. In the decoy
// world the duress code is the passcode and there is no duress code:
//
//   - Verify answers Real for the duress code and Invalid for anything else
//   - changing the passcode rotates the duress code
//   - adding a duress code or removing the passcode fails the way a broken
//     vault write does, and locks
type decoyCredentials struct {
	core *AuthCore
}

func (d *decoyCredentials) Verify(code *passcode.Code) (credential.Result, error) {
	r, err := d.core.guardedVerify(code)
	if err != nil || r != credential.Duress {
		return credential.Invalid, err
	}
	return credential.Real, nil
}

// SetReal rotates the duress code. A collision with the real passcode is
// reported as a save failure so the message never mentions another code.
func (d *decoyCredentials) SetReal(code *passcode.Code) error {
	err := d.core.creds.SetDuress(code)
	if errors.Is(err, credential.ErrCodeCollision) {
		err = credential.ErrStorageFailure
	}
	return d.core.failClosed(err)
}

func (d *decoyCredentials) SetDuress(*passcode.Code) error {
	return d.core.failClosed(credential.ErrStorageFailure)
}

func (d *decoyCredentials) Clear() error {
	return d.core.failClosed(credential.ErrStorageFailure)
}

func (d *decoyCredentials) ClearDuress() error  { return nil }
func (d *decoyCredentials) Length() int         { return d.core.creds.Length() }
func (d *decoyCredentials) IsPasscodeSet() bool { return true }
func (d *decoyCredentials) HasDuress() bool     { return false }
