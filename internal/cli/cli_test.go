// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/veil/internal/config"
	"github.com/jeranaias/veil/internal/core"
	"github.com/jeranaias/veil/internal/credential"
	"github.com/jeranaias/veil/internal/decoy"
	"github.com/jeranaias/veil/internal/flow"
	"github.com/jeranaias/veil/internal/passcode"
	"github.com/jeranaias/veil/internal/vault"
)

const (
	realCode   = "135792"
	duressCode = "246801"
	newCode    = "864209"
)

// =============================================================================
// PARSING
// =============================================================================

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		argv    []string
		wantCmd Command
		wantSub string
		wantArg string
		json    bool
		dataDir string
		wantErr bool
	}{
		{name: "no args opens app", argv: nil, wantCmd: CmdTUI},
		{name: "passcode change", argv: []string{"passcode", "change"}, wantCmd: CmdPasscode, wantSub: "change"},
		{name: "json anywhere", argv: []string{"preset", "--json", "list"}, wantCmd: CmdPreset, wantSub: "list", json: true},
		{name: "data dir with value", argv: []string{"--data-dir", "/tmp/veil", "disguise", "set", "notes"}, wantCmd: CmdDisguise, wantSub: "set", wantArg: "notes", dataDir: "/tmp/veil"},
		{name: "equals form", argv: []string{"--data-dir=/tmp/v", "panic"}, wantCmd: CmdPanic, dataDir: "/tmp/v"},
		{name: "short version", argv: []string{"-V"}, wantCmd: CmdVersion},
		{name: "help flag wins", argv: []string{"passcode", "--help"}, wantCmd: CmdHelp},
		{name: "alias", argv: []string{"pin", "status"}, wantCmd: CmdPasscode, wantSub: "status"},
		{name: "check weak", argv: []string{"check-weak", "123456"}, wantCmd: CmdCheckWeak, wantSub: "123456"},
		{name: "unknown command", argv: []string{"frobnicate"}, wantErr: true},
		{name: "unknown flag", argv: []string{"--nope"}, wantErr: true},
		{name: "missing value", argv: []string{"--config"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := Parse(tt.argv)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%v) expected error", tt.argv)
				}
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Errorf("Parse(%v) error = %T, want *ValidationError", tt.argv, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%v) unexpected error: %v", tt.argv, err)
			}
			if args.Command != tt.wantCmd {
				t.Errorf("Command = %v, want %v", args.Command, tt.wantCmd)
			}
			if args.Subcommand != tt.wantSub {
				t.Errorf("Subcommand = %q, want %q", args.Subcommand, tt.wantSub)
			}
			if args.Arg(0) != tt.wantArg {
				t.Errorf("Arg(0) = %q, want %q", args.Arg(0), tt.wantArg)
			}
			if args.JSON != tt.json {
				t.Errorf("JSON = %v, want %v", args.JSON, tt.json)
			}
			if args.DataDir != tt.dataDir {
				t.Errorf("DataDir = %q, want %q", args.DataDir, tt.dataDir)
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitSuccess},
		{errors.New("boom"), ExitGeneralError},
		{&ValidationError{Field: "x", Reason: "y"}, ExitUsageError},
		{fmt.Errorf("%w: bad toml", ErrConfig), ExitConfigError},
		{ErrIncorrectPasscode, ExitAuthError},
		{fmt.Errorf("%w: 3s", ErrTryLater), ExitAuthError},
		{fmt.Errorf("%w: disk", credential.ErrStorageFailure), ExitStorageError},
		{&CommandError{Command: "preset", Action: "set", Err: decoy.ErrUnknownPreset}, ExitNotFoundError},
	}
	for _, tt := range tests {
		if got := GetExitCode(tt.err); got != tt.want {
			t.Errorf("GetExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// scriptPrompter answers prompts from fixed lists and fails when a list runs
// dry, so a test that prompts more than expected stops instead of looping.
type scriptPrompter struct {
	secrets  []string
	confirms []bool
	asked    []string
}

func (s *scriptPrompter) Secret(prompt string) ([]byte, error) {
	s.asked = append(s.asked, prompt)
	if len(s.secrets) == 0 {
		return nil, ErrCancelled
	}
	v := s.secrets[0]
	s.secrets = s.secrets[1:]
	return []byte(v), nil
}

func (s *scriptPrompter) Confirm(prompt string) (bool, error) {
	s.asked = append(s.asked, prompt)
	if len(s.confirms) == 0 {
		return false, ErrCancelled
	}
	v := s.confirms[0]
	s.confirms = s.confirms[1:]
	return v, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Security.Argon2Time = 1
	cfg.Security.Argon2MemoryKiB = 1024
	cfg.Security.Argon2Threads = 1
	return cfg
}

func newTestCore(t *testing.T, cfg *config.Config) *core.AuthCore {
	t.Helper()
	c, err := core.New(cfg, core.WithKeyStore(vault.NewMemoryKeyStore()))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// newLockedCore returns a locked core with both codes set.
func newLockedCore(t *testing.T, cfg *config.Config) *core.AuthCore {
	t.Helper()
	c := newTestCore(t, cfg)
	runCoreFlow(t, c.Flow(flow.CreateReal), realCode+realCode)
	runCoreFlow(t, c.Flow(flow.CreateDuress), duressCode+duressCode)
	require.True(t, c.Background().IsLocked())
	return c
}

func runCoreFlow(t *testing.T, f *flow.Controller, digits string) {
	t.Helper()
	defer f.Close()
	var s flow.Snapshot
	for _, r := range digits {
		s = f.Digit(r)
	}
	require.True(t, s.Done, s.Message)
}

func run(t *testing.T, c *core.AuthCore, cfg *config.Config, p Prompter, jsonMode bool, argv ...string) (string, error) {
	t.Helper()
	args, err := Parse(argv)
	require.NoError(t, err)
	var out bytes.Buffer
	app := NewApp(cfg, c, p, &out, jsonMode)
	err = app.Run(context.Background(), args)
	return out.String(), err
}

func verifyCode(t *testing.T, c *core.AuthCore, digits string) credential.Result {
	t.Helper()
	c.Background()
	r, err := c.Verify(context.Background(), passcode.FromString(digits))
	require.NoError(t, err)
	return r
}

// =============================================================================
// PASSCODE
// =============================================================================

func TestPasscode_SetAndStatus(t *testing.T) {
	cfg := testConfig(t)
	c := newTestCore(t, cfg)

	out, err := run(t, c, cfg, &scriptPrompter{}, false, "passcode", "status")
	require.NoError(t, err)
	require.Contains(t, out, "Passcode: off")

	p := &scriptPrompter{secrets: []string{realCode, realCode}}
	out, err = run(t, c, cfg, p, false, "passcode", "set")
	require.NoError(t, err)
	require.Contains(t, out, "Passcode saved.")
	require.True(t, c.IsPasscodeSet())

	out, err = run(t, c, cfg, &scriptPrompter{}, false, "passcode", "status")
	require.NoError(t, err)
	require.Contains(t, out, "Passcode: on (6 digits)")
}

func TestPasscode_WeakCodeDeclined(t *testing.T) {
	cfg := testConfig(t)
	c := newTestCore(t, cfg)

	p := &scriptPrompter{
		secrets:  []string{"123456", "123456", realCode, realCode},
		confirms: []bool{false},
	}
	out, err := run(t, c, cfg, p, false, "passcode", "set")
	require.NoError(t, err)
	require.Contains(t, out, "Passcode saved.")
	require.Equal(t, credential.Real, verifyCode(t, c, realCode))
}

func TestPasscode_FullWidthDigits(t *testing.T) {
	cfg := testConfig(t)
	c := newTestCore(t, cfg)

	p := &scriptPrompter{secrets: []string{"１３５７９２", realCode}}
	_, err := run(t, c, cfg, p, false, "passcode", "set")
	require.NoError(t, err)
	require.Equal(t, credential.Real, verifyCode(t, c, realCode))
}

func TestPasscode_WrongLengthReprompts(t *testing.T) {
	cfg := testConfig(t)
	c := newTestCore(t, cfg)

	p := &scriptPrompter{secrets: []string{"1357", realCode, realCode}}
	out, err := run(t, c, cfg, p, false, "passcode", "set")
	require.NoError(t, err)
	require.Contains(t, out, "Use exactly 6 digits.")
	require.Contains(t, out, "Passcode saved.")
}

func TestPasscode_ChangeAsksCurrentOnce(t *testing.T) {
	cfg := testConfig(t)
	c := newLockedCore(t, cfg)

	p := &scriptPrompter{secrets: []string{realCode, newCode, newCode}}
	out, err := run(t, c, cfg, p, false, "passcode", "change")
	require.NoError(t, err)
	require.Contains(t, out, "Passcode saved.")
	require.Len(t, p.asked, 3)

	require.Equal(t, credential.Real, verifyCode(t, c, newCode))
	require.Equal(t, credential.Invalid, verifyCode(t, c, realCode))
}

func TestPasscode_WrongCode(t *testing.T) {
	cfg := testConfig(t)
	c := newLockedCore(t, cfg)

	p := &scriptPrompter{secrets: []string{"000000"}}
	_, err := run(t, c, cfg, p, false, "passcode", "change")
	require.ErrorIs(t, err, ErrIncorrectPasscode)
	require.Equal(t, ExitAuthError, GetExitCode(err))
	require.Equal(t, 1, c.Attempts().Failures())
	require.True(t, c.State().IsLocked())
}

func TestPasscode_BackoffRefusesWithoutPrompting(t *testing.T) {
	cfg := testConfig(t)
	cfg.Security.BackoffAfterFailures = 1
	cfg.Security.BackoffBaseMs = 60000
	c := newLockedCore(t, cfg)

	_, err := run(t, c, cfg, &scriptPrompter{secrets: []string{"000000"}}, false, "panic", "status")
	require.ErrorIs(t, err, ErrIncorrectPasscode)

	p := &scriptPrompter{secrets: []string{realCode}}
	_, err = run(t, c, cfg, p, false, "panic", "status")
	require.ErrorIs(t, err, ErrTryLater)
	require.Empty(t, p.asked)
}

func TestPasscode_StatusNeverMentionsDuress(t *testing.T) {
	cfg := testConfig(t)
	c := newLockedCore(t, cfg)

	out, err := run(t, c, cfg, &scriptPrompter{}, true, "passcode", "status")
	require.NoError(t, err)
	require.NotContains(t, strings.ToLower(out), "duress")

	var resp struct {
		Success bool           `json:"success"`
		Data    PasscodeStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.True(t, resp.Success)
	require.True(t, resp.Data.Enabled)
	require.True(t, resp.Data.Locked)
	require.Equal(t, "standard", resp.Data.Disguise)
}

func TestPasscode_DuressCommandCreatesThenChanges(t *testing.T) {
	cfg := testConfig(t)
	c := newTestCore(t, cfg)
	runCoreFlow(t, c.Flow(flow.CreateReal), realCode+realCode)
	c.Background()

	p := &scriptPrompter{secrets: []string{realCode, duressCode, duressCode}}
	out, err := run(t, c, cfg, p, false, "passcode", "duress")
	require.NoError(t, err)
	require.Contains(t, out, "Duress code saved.")
	require.Equal(t, credential.Duress, verifyCode(t, c, duressCode))

	// With a duress code present the same command changes it.
	c.Background()
	p = &scriptPrompter{secrets: []string{realCode, newCode, newCode}}
	_, err = run(t, c, cfg, p, false, "passcode", "duress")
	require.NoError(t, err)
	require.Equal(t, credential.Duress, verifyCode(t, c, newCode))
	require.Equal(t, credential.Invalid, verifyCode(t, c, duressCode))
}

func TestPasscode_ChangeUnderDuressStaysInDecoy(t *testing.T) {
	cfg := testConfig(t)
	c := newLockedCore(t, cfg)

	p := &scriptPrompter{secrets: []string{duressCode, newCode, newCode}}
	out, err := run(t, c, cfg, p, false, "passcode", "change")
	require.NoError(t, err)
	require.Contains(t, out, "Passcode saved.")

	// The real passcode is untouched; what was "changed" is the duress code.
	require.Equal(t, credential.Real, verifyCode(t, c, realCode))
	require.Equal(t, credential.Duress, verifyCode(t, c, newCode))
}

func TestPasscode_RemoveDuressUnderDuress(t *testing.T) {
	cfg := testConfig(t)
	c := newLockedCore(t, cfg)

	p := &scriptPrompter{secrets: []string{duressCode}}
	_, err := run(t, c, cfg, p, false, "passcode", "remove-duress")
	require.Error(t, err)
	require.Contains(t, err.Error(), "No duress code is set.")
	require.Equal(t, credential.Duress, verifyCode(t, c, duressCode))
}

func TestPasscode_Remove(t *testing.T) {
	cfg := testConfig(t)
	c := newLockedCore(t, cfg)

	p := &scriptPrompter{secrets: []string{realCode}}
	out, err := run(t, c, cfg, p, false, "passcode", "remove")
	require.NoError(t, err)
	require.Contains(t, out, "Passcode removed.")
	require.False(t, c.IsPasscodeSet())
}

func TestPasscode_UnknownAction(t *testing.T) {
	cfg := testConfig(t)
	c := newTestCore(t, cfg)
	_, err := run(t, c, cfg, &scriptPrompter{}, false, "passcode", "reset")
	require.Equal(t, ExitUsageError, GetExitCode(err))
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestPreset_SetUnderRealPasscode(t *testing.T) {
	cfg := testConfig(t)
	c := newLockedCore(t, cfg)

	out, err := run(t, c, cfg, &scriptPrompter{secrets: []string{realCode}}, false, "preset", "set", "meal-planning")
	require.NoError(t, err)
	require.Contains(t, out, "Decoy content set to Meal Planning.")
	require.Equal(t, "meal-planning", c.Decoy().CurrentID())
}

func TestPreset_SetUnderDuressStoresNothing(t *testing.T) {
	cfg := testConfig(t)
	c := newLockedCore(t, cfg)

	out, err := run(t, c, cfg, &scriptPrompter{secrets: []string{duressCode}}, false, "preset", "set", "meal-planning")
	require.NoError(t, err)
	require.Contains(t, out, "Decoy content set to Meal Planning.")
	require.Equal(t, "study-helper", c.Decoy().CurrentID())
}

func TestPreset_Unknown(t *testing.T) {
	cfg := testConfig(t)
	c := newLockedCore(t, cfg)

	_, err := run(t, c, cfg, &scriptPrompter{secrets: []string{realCode}}, false, "preset", "set", "nope")
	require.ErrorIs(t, err, decoy.ErrUnknownPreset)
	require.Equal(t, ExitNotFoundError, GetExitCode(err))
}

func TestPreset_ListNeedsPasscode(t *testing.T) {
	cfg := testConfig(t)
	c := newLockedCore(t, cfg)

	_, err := run(t, c, cfg, &scriptPrompter{}, false, "preset", "list")
	require.ErrorIs(t, err, ErrCancelled)

	out, err := run(t, c, cfg, &scriptPrompter{secrets: []string{realCode}}, false, "preset", "list")
	require.NoError(t, err)
	require.Contains(t, out, "study-helper")
	require.Contains(t, out, "Travel Ideas")
}

func TestDisguise_ListAndSet(t *testing.T) {
	cfg := testConfig(t)
	c := newLockedCore(t, cfg)

	out, err := run(t, c, cfg, &scriptPrompter{}, false, "disguise", "list")
	require.NoError(t, err)
	require.Contains(t, out, "* standard")
	require.Contains(t, out, "discretion")
	require.Contains(t, out, "(no passcode)")

	out, err = run(t, c, cfg, &scriptPrompter{secrets: []string{realCode}}, false, "disguise", "set", "notes")
	require.NoError(t, err)
	require.Contains(t, out, "Disguise set to Notes.")
	require.Equal(t, "notes", c.Disguise())
}

func TestDisguise_SetUnderDuressStoresNothing(t *testing.T) {
	cfg := testConfig(t)
	c := newLockedCore(t, cfg)

	out, err := run(t, c, cfg, &scriptPrompter{secrets: []string{duressCode}}, false, "disguise", "set", "calculator")
	require.NoError(t, err)
	require.Contains(t, out, "Disguise set to Calculator.")
	require.Equal(t, "standard", c.Disguise())
}

func TestDisguise_UnknownFailsBeforePrompt(t *testing.T) {
	cfg := testConfig(t)
	c := newLockedCore(t, cfg)

	p := &scriptPrompter{secrets: []string{realCode}}
	_, err := run(t, c, cfg, p, false, "disguise", "set", "toaster")
	require.Equal(t, ExitNotFoundError, GetExitCode(err))
	require.Empty(t, p.asked)
}

func TestPanic_ArmThenFire(t *testing.T) {
	cfg := testConfig(t)
	c := newLockedCore(t, cfg)
	ctx := context.Background()

	require.Equal(t, credential.Real, verifyCode(t, c, realCode))
	_, err := c.Content().CreateConversation(ctx, "private")
	require.NoError(t, err)
	c.Background()

	out, err := run(t, c, cfg, &scriptPrompter{secrets: []string{realCode}}, false, "panic", "arm")
	require.NoError(t, err)
	require.Contains(t, out, "Panic wipe armed.")
	require.True(t, c.PanicWipeEnabled())

	p := &scriptPrompter{}
	out, err = run(t, c, cfg, p, false, "panic", "fire")
	require.NoError(t, err)
	require.Empty(t, out)
	require.Empty(t, p.asked)
	require.True(t, c.State().IsLocked())

	require.Equal(t, credential.Real, verifyCode(t, c, realCode))
	convs, err := c.Content().Conversations(ctx)
	require.NoError(t, err)
	require.Empty(t, convs)
}

func TestPanic_FireDisarmedLooksTheSame(t *testing.T) {
	cfg := testConfig(t)
	c := newLockedCore(t, cfg)

	out, err := run(t, c, cfg, &scriptPrompter{}, false, "panic", "fire")
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestPanic_UnderDuressPretends(t *testing.T) {
	cfg := testConfig(t)
	c := newLockedCore(t, cfg)

	out, err := run(t, c, cfg, &scriptPrompter{secrets: []string{duressCode}}, false, "panic", "arm")
	require.NoError(t, err)
	require.Contains(t, out, "Panic wipe armed.")
	require.False(t, c.PanicWipeEnabled())
}

func TestPanic_StatusJSON(t *testing.T) {
	cfg := testConfig(t)
	c := newTestCore(t, cfg)

	out, err := run(t, c, cfg, &scriptPrompter{}, true, "panic", "status")
	require.NoError(t, err)

	var resp struct {
		Data PanicStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.False(t, resp.Data.Armed)
	require.Equal(t, "ctrl+x", resp.Data.Key)
	require.Equal(t, 3, resp.Data.Presses)
}

func TestCheckWeak(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"123456", "easy to guess"},
		{"111111", "easy to guess"},
		{realCode, "No common pattern"},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		err := runCheckWeak(&out, Args{Command: CmdCheckWeak, Subcommand: tt.code})
		if err != nil {
			t.Fatalf("runCheckWeak(%s): %v", tt.code, err)
		}
		if !strings.Contains(out.String(), tt.want) {
			t.Errorf("runCheckWeak(%s) = %q, want %q", tt.code, out.String(), tt.want)
		}
	}

	var out bytes.Buffer
	err := runCheckWeak(&out, Args{Command: CmdCheckWeak, Subcommand: "12ab56"})
	if GetExitCode(err) != ExitUsageError {
		t.Errorf("non-digit input: exit %d, want %d", GetExitCode(err), ExitUsageError)
	}
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	if err := runVersion(&out, false); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "veil ") {
		t.Errorf("version output = %q", out.String())
	}
}
