// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package flow

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/veil/internal/credential"
	"github.com/jeranaias/veil/internal/passcode"
	"github.com/jeranaias/veil/internal/vault"
)

func newStore(t *testing.T) *credential.Store {
	t.Helper()
	v, err := vault.Open(filepath.Join(t.TempDir(), "vault.sealed"), vault.NewMemoryKeyStore())
	require.NoError(t, err)
	s, err := credential.NewStore(v, credential.WithKDF(credential.KDFArgon2id,
		vault.KDFParams{Time: 1, MemoryKiB: 1024, Threads: 1}))
	require.NoError(t, err)
	return s
}

func typeCode(c *Controller, digits string) Snapshot {
	var s Snapshot
	for _, r := range digits {
		s = c.Digit(r)
	}
	return s
}

func verifyCode(t *testing.T, s *credential.Store, digits string) credential.Result {
	t.Helper()
	pc := passcode.FromString(digits)
	defer pc.Destroy()
	r, err := s.Verify(pc)
	require.NoError(t, err)
	return r
}

func setReal(t *testing.T, s *credential.Store, digits string) {
	t.Helper()
	pc := passcode.FromString(digits)
	defer pc.Destroy()
	require.NoError(t, s.SetReal(pc))
}

func setDuress(t *testing.T, s *credential.Store, digits string) {
	t.Helper()
	pc := passcode.FromString(digits)
	defer pc.Destroy()
	require.NoError(t, s.SetDuress(pc))
}

func TestCreateReal(t *testing.T) {
	s := newStore(t)
	c := New(CreateReal, s)
	defer c.Close()

	snap := c.Snapshot()
	require.Equal(t, StepEnter, snap.Step)
	require.Equal(t, 6, snap.Length)

	snap = typeCode(c, "135")
	require.Equal(t, 3, snap.Entered)
	snap = c.Backspace()
	require.Equal(t, 2, snap.Entered)
	snap = typeCode(c, "5792")
	require.Equal(t, StepConfirm, snap.Step)
	require.Zero(t, snap.Entered)

	snap = typeCode(c, "135792")
	require.True(t, snap.Done)
	require.Equal(t, FeedbackSuccess, snap.Feedback)
	require.Equal(t, credential.Real, verifyCode(t, s, "135792"))
}

func TestCreateReal_MismatchShakesAndRestarts(t *testing.T) {
	s := newStore(t)
	c := New(CreateReal, s)
	defer c.Close()

	typeCode(c, "135792")
	snap := typeCode(c, "135793")
	require.Equal(t, FeedbackShake, snap.Feedback)
	require.Equal(t, StepEnter, snap.Step)
	require.False(t, snap.Done)
	require.False(t, s.IsPasscodeSet())

	// Next digit clears the shake.
	snap = c.Digit('4')
	require.Equal(t, FeedbackNone, snap.Feedback)
}

func TestCreateReal_WeakInterstitial(t *testing.T) {
	s := newStore(t)
	c := New(CreateReal, s)
	defer c.Close()

	typeCode(c, "111111")
	snap := typeCode(c, "111111")
	require.Equal(t, StepWeak, snap.Step)
	require.Equal(t, FeedbackWeak, snap.Feedback)
	require.False(t, s.IsPasscodeSet())

	// Digits are ignored while the interstitial is up.
	snap = c.Digit('2')
	require.Equal(t, StepWeak, snap.Step)

	snap = c.RejectWeak()
	require.Equal(t, StepEnter, snap.Step)
	require.False(t, s.IsPasscodeSet())

	typeCode(c, "111111")
	typeCode(c, "111111")
	snap = c.AcceptWeak()
	require.True(t, snap.Done)
	require.Equal(t, credential.Real, verifyCode(t, s, "111111"))
}

func TestCreateReal_FullWidthDigits(t *testing.T) {
	s := newStore(t)
	c := New(CreateReal, s)
	defer c.Close()

	typeCode(c, "１３５７９２")
	snap := typeCode(c, "135792")
	require.True(t, snap.Done)
	require.Equal(t, credential.Real, verifyCode(t, s, "135792"))
}

func TestCreateReal_IgnoresNonDigits(t *testing.T) {
	s := newStore(t)
	c := New(CreateReal, s)
	defer c.Close()
	snap := typeCode(c, "a-b ")
	require.Zero(t, snap.Entered)
}

func TestCreateReal_AlreadySet(t *testing.T) {
	s := newStore(t)
	setReal(t, s, "135792")
	snap := New(CreateReal, s).Snapshot()
	require.True(t, snap.Done)
	require.NotEmpty(t, snap.Message)
}

func TestCreateDuress(t *testing.T) {
	s := newStore(t)
	snap := New(CreateDuress, s).Snapshot()
	require.True(t, snap.Done, "duress without passcode ends immediately")

	setReal(t, s, "135792")
	c := New(CreateDuress, s)
	defer c.Close()

	typeCode(c, "135792")
	snap = typeCode(c, "135792")
	require.Equal(t, FeedbackShake, snap.Feedback)
	require.Equal(t, StepEnter, snap.Step)
	require.Contains(t, snap.Message, "differ")

	typeCode(c, "246801")
	snap = typeCode(c, "246801")
	require.True(t, snap.Done)
	require.Equal(t, credential.Duress, verifyCode(t, s, "246801"))
}

func TestChangeReal(t *testing.T) {
	s := newStore(t)
	setReal(t, s, "135792")
	setDuress(t, s, "246801")

	c := New(ChangeReal, s)
	defer c.Close()
	require.Equal(t, StepVerify, c.Snapshot().Step)

	snap := typeCode(c, "000000")
	require.Equal(t, FeedbackShake, snap.Feedback)
	require.Equal(t, StepVerify, snap.Step)

	// The duress code does not authorize changes.
	snap = typeCode(c, "246801")
	require.Equal(t, FeedbackShake, snap.Feedback)
	require.Equal(t, StepVerify, snap.Step)

	snap = typeCode(c, "135792")
	require.Equal(t, StepEnter, snap.Step)

	typeCode(c, "246801")
	snap = typeCode(c, "246801")
	require.Equal(t, FeedbackShake, snap.Feedback, "collision with duress code")

	typeCode(c, "907364")
	snap = typeCode(c, "907364")
	require.True(t, snap.Done)
	require.Equal(t, credential.Real, verifyCode(t, s, "907364"))
	require.Equal(t, credential.Invalid, verifyCode(t, s, "135792"))
	require.Equal(t, credential.Duress, verifyCode(t, s, "246801"))
}

func TestChangeDuress(t *testing.T) {
	s := newStore(t)
	setReal(t, s, "135792")
	require.True(t, New(ChangeDuress, s).Snapshot().Done, "no duress code to change")

	setDuress(t, s, "246801")
	c := New(ChangeDuress, s)
	defer c.Close()
	typeCode(c, "135792")
	typeCode(c, "907364")
	snap := typeCode(c, "907364")
	require.True(t, snap.Done)
	require.Equal(t, credential.Duress, verifyCode(t, s, "907364"))
	require.Equal(t, credential.Invalid, verifyCode(t, s, "246801"))
}

func TestRemove(t *testing.T) {
	s := newStore(t)
	require.True(t, New(Remove, s).Snapshot().Done, "nothing to remove")

	setReal(t, s, "135792")
	setDuress(t, s, "246801")
	c := New(Remove, s)
	defer c.Close()

	snap := typeCode(c, "246801")
	require.Equal(t, FeedbackShake, snap.Feedback)
	require.True(t, s.IsPasscodeSet())

	snap = typeCode(c, "135792")
	require.True(t, snap.Done)
	require.Equal(t, FeedbackSuccess, snap.Feedback)
	require.False(t, s.IsPasscodeSet())
	require.False(t, s.HasDuress())
}

func TestRemoveDuress(t *testing.T) {
	s := newStore(t)
	setReal(t, s, "135792")
	setDuress(t, s, "246801")

	c := New(RemoveDuress, s)
	defer c.Close()
	snap := typeCode(c, "135792")
	require.True(t, snap.Done)
	require.True(t, s.IsPasscodeSet())
	require.False(t, s.HasDuress())
}

func TestCancel(t *testing.T) {
	s := newStore(t)
	c := New(CreateReal, s)
	typeCode(c, "135792")
	typeCode(c, "13")
	snap := c.Cancel()
	require.True(t, snap.Done)
	require.True(t, snap.Cancelled)
	require.Zero(t, snap.Entered)
	require.False(t, s.IsPasscodeSet())

	// Input after cancel is ignored.
	snap = c.Digit('5')
	require.Zero(t, snap.Entered)
	c.Close()
	c.Close()
}

// failingCreds accepts verification but fails every write.
type failingCreds struct{ length int }

func (f failingCreds) Verify(*passcode.Code) (credential.Result, error) { return credential.Real, nil }
func (f failingCreds) SetReal(*passcode.Code) error {
	return errors.Join(credential.ErrStorageFailure, errors.New("disk gone"))
}
func (f failingCreds) SetDuress(*passcode.Code) error { return credential.ErrStorageFailure }
func (f failingCreds) Clear() error                   { return credential.ErrStorageFailure }
func (f failingCreds) ClearDuress() error             { return credential.ErrStorageFailure }
func (f failingCreds) Length() int                    { return f.length }
func (f failingCreds) IsPasscodeSet() bool            { return true }
func (f failingCreds) HasDuress() bool                { return true }

func TestStorageFailureEndsFlow(t *testing.T) {
	c := New(ChangeReal, failingCreds{length: 4})
	defer c.Close()
	typeCode(c, "1357")
	typeCode(c, "9073")
	snap := typeCode(c, "9073")
	require.True(t, snap.Done)
	require.False(t, snap.Cancelled)
	require.Equal(t, FeedbackShake, snap.Feedback)
	require.Equal(t, "Could not save. Try again.", snap.Message)

	// Further input is ignored once the flow has ended.
	snap = c.Digit('1')
	require.Zero(t, snap.Entered)

	r := New(Remove, failingCreds{length: 4})
	defer r.Close()
	snap = typeCode(r, "1357")
	require.True(t, snap.Done)
	require.Equal(t, FeedbackShake, snap.Feedback)
}
