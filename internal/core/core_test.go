// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/veil/internal/config"
	"github.com/jeranaias/veil/internal/credential"
	"github.com/jeranaias/veil/internal/decoy"
	"github.com/jeranaias/veil/internal/flow"
	"github.com/jeranaias/veil/internal/lock"
	"github.com/jeranaias/veil/internal/passcode"
	"github.com/jeranaias/veil/internal/vault"
)

const (
	realCode   = "135792"
	duressCode = "246801"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Security.Argon2Time = 1
	cfg.Security.Argon2MemoryKiB = 1024
	cfg.Security.Argon2Threads = 1
	return cfg
}

func newTestCore(t *testing.T, cfg *config.Config, keys vault.KeyStore) *AuthCore {
	t.Helper()
	c, err := New(cfg, WithKeyStore(keys))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// newConfiguredCore returns a locked core with the passcode and duress code set.
func newConfiguredCore(t *testing.T) *AuthCore {
	t.Helper()
	c := newTestCore(t, testConfig(t), vault.NewMemoryKeyStore())
	setCodes(t, c)
	require.True(t, c.Background().IsLocked())
	return c
}

func setCodes(t *testing.T, c *AuthCore) {
	t.Helper()
	rc := passcode.FromString(realCode)
	defer rc.Destroy()
	require.NoError(t, c.creds.SetReal(rc))
	dc := passcode.FromString(duressCode)
	defer dc.Destroy()
	require.NoError(t, c.creds.SetDuress(dc))
}

func verify(t *testing.T, c *AuthCore, digits string) credential.Result {
	t.Helper()
	r, err := c.Verify(context.Background(), passcode.FromString(digits))
	require.NoError(t, err)
	return r
}

func TestNew_NoPasscodeStartsUnlocked(t *testing.T) {
	c := newTestCore(t, testConfig(t), vault.NewMemoryKeyStore())
	require.False(t, c.IsPasscodeSet())
	require.False(t, c.NeedsGate())
	require.True(t, c.State().IsRealUnlocked())
	require.Equal(t, "standard", c.State().ActiveDisguise)
	require.Equal(t, 6, c.PasscodeLength())
}

func TestCoercionScenario(t *testing.T) {
	c := newConfiguredCore(t)
	ctx := context.Background()
	require.True(t, c.NeedsGate())

	// Real content exists before the coercion.
	require.Equal(t, credential.Real, verify(t, c, realCode))
	private, err := c.Content().CreateConversation(ctx, "private")
	require.NoError(t, err)
	_, err = c.Content().AddMessage(ctx, private.ID, "user", "meet at six")
	require.NoError(t, err)
	c.Background()

	// Under duress: decoy content, no trace of the duress code.
	require.Equal(t, credential.Duress, verify(t, c, duressCode))
	st := c.State()
	require.True(t, st.IsDecoyUnlocked())
	require.Equal(t, "study-helper", st.ActiveDisguise)
	require.False(t, c.HasDuress())

	convs, err := c.Content().Conversations(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, convs)
	for _, conv := range convs {
		require.NotEqual(t, private.ID, conv.ID)
	}

	// Editing decoy content burns it.
	require.False(t, c.Decoy().IsBurned())
	edit, err := c.Content().CreateConversation(ctx, "bus schedule")
	require.NoError(t, err)
	_, err = c.Content().AddMessage(ctx, edit.ID, "user", "the 42 leaves at noon")
	require.NoError(t, err)
	require.True(t, c.Decoy().IsBurned())

	// Background then foreground returns to the lock screen with the real
	// disguise.
	st = c.Background()
	require.Equal(t, lock.State{Phase: lock.Locked, ActiveDisguise: "standard"}, st)
	require.Equal(t, st, c.Foreground())

	// Real passcode: real content intact, the decoy edit is not in it.
	require.Equal(t, credential.Real, verify(t, c, realCode))
	require.True(t, c.State().IsRealUnlocked())
	require.True(t, c.HasDuress())
	convs, err = c.Content().Conversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Equal(t, private.ID, convs[0].ID)
	require.Equal(t, "private", convs[0].Title)

	msgs, err := c.Content().Messages(ctx, private.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "meet at six", msgs[0].Content)

	msgs, err = c.Content().Messages(ctx, edit.ID)
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestVerify_InvalidStaysLockedAndCounts(t *testing.T) {
	c := newConfiguredCore(t)
	before := c.State()

	require.Equal(t, credential.Invalid, verify(t, c, "000000"))
	require.Equal(t, before, c.State())
	require.Equal(t, 1, c.Attempts().Failures())

	require.Equal(t, credential.Invalid, verify(t, c, "12345"))
	require.Equal(t, 2, c.Attempts().Failures())

	require.Equal(t, credential.Duress, verify(t, c, duressCode))
	require.Zero(t, c.Attempts().Failures())
}

func TestVerify_DestroysCode(t *testing.T) {
	c := newConfiguredCore(t)
	pc := passcode.FromString(realCode)
	_, err := c.Verify(context.Background(), pc)
	require.NoError(t, err)
	require.Zero(t, pc.Len())
}

func TestVerify_Busy(t *testing.T) {
	c := newConfiguredCore(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	c.verifyHook = func() {
		close(entered)
		<-release
	}

	done := make(chan credential.Result, 1)
	go func() {
		r, _ := c.Verify(context.Background(), passcode.FromString(realCode))
		done <- r
	}()
	<-entered

	_, err := c.Verify(context.Background(), passcode.FromString(realCode))
	require.ErrorIs(t, err, ErrBusy)

	close(release)
	require.Equal(t, credential.Real, <-done)
}

func TestVerify_WipeMidVerify(t *testing.T) {
	c := newConfiguredCore(t)
	require.NoError(t, c.SetPanicWipeEnabled(true))

	c.verifyHook = func() {
		require.True(t, c.FirePanic())
	}
	r, err := c.Verify(context.Background(), passcode.FromString(realCode))
	require.ErrorIs(t, err, ErrWipedDuringVerify)
	require.Equal(t, credential.Invalid, r)
	require.True(t, c.State().IsLocked())
}

func TestVerify_BackgroundedMidVerify(t *testing.T) {
	c := newConfiguredCore(t)
	c.verifyHook = func() { c.Background() }

	r, err := c.Verify(context.Background(), passcode.FromString(realCode))
	require.ErrorIs(t, err, ErrInterrupted)
	require.Equal(t, credential.Invalid, r)
	require.True(t, c.State().IsLocked())
	require.Zero(t, c.Attempts().Failures())
}

func TestVerify_StorageFailureLocks(t *testing.T) {
	c := newConfiguredCore(t)
	c.vault.Close()

	r, err := c.Verify(context.Background(), passcode.FromString(realCode))
	require.ErrorIs(t, err, credential.ErrStorageFailure)
	require.Equal(t, credential.Invalid, r)
	require.True(t, c.State().IsLocked())
}

func TestVerify_CancelledContext(t *testing.T) {
	c := newConfiguredCore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Verify(ctx, passcode.FromString(realCode))
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, c.State().IsLocked())
}

func TestPanicWipeUnderDuress(t *testing.T) {
	c := newConfiguredCore(t)
	ctx := context.Background()

	require.Equal(t, credential.Real, verify(t, c, realCode))
	conv, err := c.Content().CreateConversation(ctx, "private")
	require.NoError(t, err)
	_, err = c.Content().AddMessage(ctx, conv.ID, "user", "do not share")
	require.NoError(t, err)

	// Disarmed by default.
	require.False(t, c.PanicWipeEnabled())
	require.False(t, c.FirePanic())
	require.NoError(t, c.SetPanicWipeEnabled(true))
	c.Background()

	require.Equal(t, credential.Duress, verify(t, c, duressCode))
	decoyConvs, err := c.Content().Conversations(ctx)
	require.NoError(t, err)

	now := time.Now()
	require.False(t, c.PanicKey("ctrl+x", now))
	require.False(t, c.PanicKey("ctrl+x", now.Add(100*time.Millisecond)))
	require.True(t, c.PanicKey("ctrl+x", now.Add(200*time.Millisecond)))
	require.True(t, c.State().IsLocked())

	require.Equal(t, credential.Real, verify(t, c, realCode))
	convs, err := c.Content().Conversations(ctx)
	require.NoError(t, err)
	require.Empty(t, convs, "real content destroyed")

	c.Background()
	require.Equal(t, credential.Duress, verify(t, c, duressCode))
	after, err := c.Content().Conversations(ctx)
	require.NoError(t, err)
	require.Len(t, after, len(decoyConvs), "decoy content kept")
}

func TestFlow_DecoySandbox(t *testing.T) {
	c := newConfiguredCore(t)
	require.Equal(t, credential.Duress, verify(t, c, duressCode))

	// No duress code exists in the decoy world.
	snap := c.Flow(flow.ChangeDuress).Snapshot()
	require.True(t, snap.Done)

	f := c.Flow(flow.ChangeReal)
	defer f.Close()
	for _, r := range realCode {
		snap = f.Digit(r)
	}
	require.Equal(t, flow.FeedbackShake, snap.Feedback, "real passcode is not the decoy passcode")

	for _, r := range duressCode {
		snap = f.Digit(r)
	}
	require.Equal(t, flow.StepEnter, snap.Step)
	for _, r := range "907364907364" {
		snap = f.Digit(r)
	}
	require.True(t, snap.Done)

	c.Background()
	require.Equal(t, credential.Duress, verify(t, c, "907364"))
	c.Background()
	require.Equal(t, credential.Invalid, verify(t, c, duressCode))
	require.Equal(t, credential.Real, verify(t, c, realCode))
}

func TestFlow_RealCreate(t *testing.T) {
	c := newTestCore(t, testConfig(t), vault.NewMemoryKeyStore())
	f := c.Flow(flow.CreateReal)
	defer f.Close()
	var snap flow.Snapshot
	for _, r := range realCode + realCode {
		snap = f.Digit(r)
	}
	require.True(t, snap.Done)
	require.True(t, c.IsPasscodeSet())
	require.True(t, c.Background().IsLocked())
}

func TestSettings_PersistAcrossRestart(t *testing.T) {
	cfg := testConfig(t)
	keys := vault.NewMemoryKeyStore()

	c, err := New(cfg, WithKeyStore(keys))
	require.NoError(t, err)
	setCodes(t, c)
	require.NoError(t, c.SetDisguise("notes"))
	require.NoError(t, c.SetPreset("travel-ideas"))
	require.NoError(t, c.SetPanicWipeEnabled(true))
	require.NoError(t, c.Close())

	c = newTestCore(t, cfg, keys)
	require.Equal(t, "notes", c.Disguise())
	require.Equal(t, lock.State{Phase: lock.Locked, ActiveDisguise: "notes"}, c.State())
	require.True(t, c.PanicWipeEnabled())
	require.Equal(t, "travel-ideas", c.Decoy().CurrentID())

	require.Equal(t, credential.Duress, verify(t, c, duressCode))
	require.Equal(t, "travel-ideas", c.State().ActiveDisguise)
}

func TestSettings_RefusedUnderDuress(t *testing.T) {
	c := newConfiguredCore(t)
	require.Equal(t, credential.Duress, verify(t, c, duressCode))
	require.ErrorIs(t, c.SetDisguise("notes"), lock.ErrNotPermitted)
	require.ErrorIs(t, c.SetPreset("travel-ideas"), decoy.ErrNotPermitted)
}

func TestExemptDisguiseSkipsGate(t *testing.T) {
	c := newTestCore(t, testConfig(t), vault.NewMemoryKeyStore())
	setCodes(t, c)
	require.NoError(t, c.SetDisguise("discretion"))
	require.True(t, c.Background().IsRealUnlocked())
	require.True(t, c.Foreground().IsRealUnlocked())
	require.False(t, c.NeedsGate())
}

func TestDecoyEditBurnsAndRegenerates(t *testing.T) {
	c := newConfiguredCore(t)
	ctx := context.Background()

	require.Equal(t, credential.Duress, verify(t, c, duressCode))
	seeded, err := c.Content().Conversations(ctx)
	require.NoError(t, err)

	_, err = c.Content().CreateConversation(ctx, "scratch")
	require.NoError(t, err)
	require.True(t, c.Decoy().IsBurned())
	require.True(t, c.State().DecoyBurned)

	c.Background()
	require.Equal(t, credential.Duress, verify(t, c, duressCode))
	require.False(t, c.Decoy().IsBurned())
	convs, err := c.Content().Conversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, len(seeded))
}

func TestSubscribe(t *testing.T) {
	c := newConfiguredCore(t)
	var seen []lock.State
	unsub := c.Subscribe(func(s lock.State) { seen = append(seen, s) })
	verify(t, c, realCode)
	c.Lock()
	unsub()
	verify(t, c, realCode)
	require.Len(t, seen, 2)
	require.True(t, seen[0].IsRealUnlocked())
	require.True(t, seen[1].IsLocked())
}

func TestStorageFailureDuringChangeLocks(t *testing.T) {
	c := newConfiguredCore(t)
	require.Equal(t, credential.Real, verify(t, c, realCode))

	f := c.Flow(flow.ChangeReal)
	defer f.Close()
	var snap flow.Snapshot
	for _, r := range realCode {
		snap = f.Digit(r)
	}
	require.Equal(t, flow.StepEnter, snap.Step)

	c.vault.Close()
	for _, r := range "907364907364" {
		snap = f.Digit(r)
	}
	require.True(t, snap.Done)
	require.Equal(t, flow.FeedbackShake, snap.Feedback)
	require.Equal(t, "Could not save. Try again.", snap.Message)
	require.True(t, c.State().IsLocked())
}

func TestStorageFailureInSettingsLocks(t *testing.T) {
	tests := []struct {
		name string
		set  func(c *AuthCore) error
	}{
		{"disguise", func(c *AuthCore) error { return c.SetDisguise("notes") }},
		{"preset", func(c *AuthCore) error { return c.SetPreset("travel-ideas") }},
		{"panic", func(c *AuthCore) error { return c.SetPanicWipeEnabled(true) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newConfiguredCore(t)
			require.Equal(t, credential.Real, verify(t, c, realCode))
			c.vault.Close()

			require.ErrorIs(t, tt.set(c), credential.ErrStorageFailure)
			require.True(t, c.State().IsLocked())
		})
	}
}

func TestFlow_DecoyCannotRemoveOrAdd(t *testing.T) {
	tests := []struct {
		kind  flow.Kind
		input string
	}{
		{flow.Remove, duressCode},
		{flow.CreateDuress, "907364907364"},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			c := newConfiguredCore(t)
			require.Equal(t, credential.Duress, verify(t, c, duressCode))

			f := c.Flow(tt.kind)
			defer f.Close()
			var snap flow.Snapshot
			for _, r := range tt.input {
				snap = f.Digit(r)
			}
			require.True(t, snap.Done)
			require.Equal(t, flow.FeedbackShake, snap.Feedback)
			require.Equal(t, "Could not save. Try again.", snap.Message)
			require.True(t, c.State().IsLocked())

			// Nothing changed: both codes still work.
			require.True(t, c.IsPasscodeSet())
			require.Equal(t, credential.Real, verify(t, c, realCode))
			c.Background()
			require.Equal(t, credential.Duress, verify(t, c, duressCode))
			c.Background()
			require.Equal(t, credential.Invalid, verify(t, c, "907364"))
		})
	}
}

func TestPanicWipeClearsPersistedFailures(t *testing.T) {
	cfg := testConfig(t)
	keys := vault.NewMemoryKeyStore()

	c, err := New(cfg, WithKeyStore(keys))
	require.NoError(t, err)
	setCodes(t, c)
	require.NoError(t, c.SetPanicWipeEnabled(true))
	c.Background()

	r, err := c.Verify(context.Background(), passcode.FromString("000000"))
	require.NoError(t, err)
	require.Equal(t, credential.Invalid, r)
	_, err = c.Verify(context.Background(), passcode.FromString("000001"))
	require.NoError(t, err)
	require.Equal(t, 2, c.Attempts().Failures())

	require.True(t, c.FirePanic())
	require.Zero(t, c.Attempts().Failures())
	require.NoError(t, c.Close())

	c = newTestCore(t, cfg, keys)
	require.Zero(t, c.Attempts().Failures())
}
