// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// =============================================================================
// DEFAULT / VALIDATION TESTS
// =============================================================================

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 6, cfg.Security.PasscodeLength)
	require.Equal(t, "argon2id", cfg.Security.KDF)
}

func TestDefault_DiscretionIsExempt(t *testing.T) {
	cfg := Default()
	found := false
	for _, m := range cfg.Disguise.Modes {
		if m.ID == "discretion" {
			found = true
			require.False(t, m.RequiresPasscode)
		} else {
			require.True(t, m.RequiresPasscode, "mode %s", m.ID)
		}
	}
	require.True(t, found)
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Security.PasscodeLength = 2
	cfg.Security.KDF = "md5"
	cfg.Disguise.Default = "missing"
	cfg.Panic.Presses = 0

	err := cfg.Validate()
	require.Error(t, err)

	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))
	if len(verrs) != 4 {
		t.Fatalf("expected 4 validation errors, got %d: %v", len(verrs), verrs)
	}
}

func TestValidate_DuplicateModes(t *testing.T) {
	cfg := Default()
	cfg.Disguise.Modes = append(cfg.Disguise.Modes, DisguiseMode{ID: "standard"})
	require.Error(t, cfg.Validate())
}

// =============================================================================
// LOAD / SAVE TESTS
// =============================================================================

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VEIL_CONFIG", filepath.Join(dir, "absent.toml"))
	t.Setenv("VEIL_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, dir, cfg.DataDir)
	require.Equal(t, filepath.Join(dir, "vault.sealed"), cfg.VaultPath())
}

func TestLoadFromPath_PartialFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
data_dir = "/tmp/veil-test"

[security]
kdf = "pbkdf2"
verify_floor_ms = 50

[decoy]
default_preset = "meal-planning"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	t.Setenv("VEIL_DATA_DIR", "")
	t.Setenv("VEIL_KDF", "")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, "pbkdf2", cfg.Security.KDF)
	require.Equal(t, 50, cfg.Security.VerifyFloorMs)
	require.Equal(t, 6, cfg.Security.PasscodeLength, "unspecified keys keep defaults")
	require.Equal(t, "meal-planning", cfg.Decoy.DefaultPreset)
	require.Len(t, cfg.Disguise.Modes, 4, "default policy table kept when not specified")
}

func TestLoadFromPath_ModesReplaceDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[disguise]
default = "plain"

[[disguise.modes]]
id = "plain"
name = "Plain"
requires_passcode = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Len(t, cfg.Disguise.Modes, 1)
	require.Equal(t, "plain", cfg.Disguise.Modes[0].ID)
}

func TestLoadFromPath_FixesPermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[ui]\ndebounce_ms = 100\n"), 0644))

	_, err := LoadFromPath(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	if info.Mode().Perm()&0077 != 0 {
		t.Errorf("permissions not tightened: %o", info.Mode().Perm())
	}
}

func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")

	cfg := Default()
	cfg.DataDir = dir
	cfg.Panic.TriggerFile = filepath.Join(dir, "panic")
	require.NoError(t, Save(cfg, path))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Panic.TriggerFile, loaded.Panic.TriggerFile)
	require.Equal(t, cfg.Disguise.Modes, loaded.Disguise.Modes)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("VEIL_DATA_DIR", "/srv/veil")
	t.Setenv("VEIL_LOG_LEVEL", "debug")
	t.Setenv("VEIL_KDF", "pbkdf2")

	cfg := Default()
	cfg.ApplyEnvOverrides()
	require.Equal(t, "/srv/veil", cfg.DataDir)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "pbkdf2", cfg.Security.KDF)
}
