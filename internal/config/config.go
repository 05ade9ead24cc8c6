// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for veil.
//
// Configuration is read from a TOML file with sensible defaults, environment
// variable overrides and validation.
//
// Configuration file location (in order of precedence):
//   - $VEIL_CONFIG
//   - <data dir>/config.toml (default data dir: ~/.veil)
//   - Built-in defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/veil/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete veil configuration.
type Config struct {
	// DataDir holds the sealed vault, key file and content databases.
	DataDir string `toml:"data_dir"`

	Security SecurityConfig `toml:"security"`
	Disguise DisguiseConfig `toml:"disguise"`
	Decoy    DecoyConfig    `toml:"decoy"`
	Panic    PanicConfig    `toml:"panic"`
	Logging  LoggingConfig  `toml:"logging"`
	UI       UIConfig       `toml:"ui"`
}

// SecurityConfig contains credential hashing and validation settings.
type SecurityConfig struct {
	// PasscodeLength is the fixed number of digits in every passcode.
	PasscodeLength int `toml:"passcode_length"`
	// KDF selects the credential hash: "argon2id" (default) or "pbkdf2".
	KDF string `toml:"kdf"`
	// Argon2Time, Argon2MemoryKiB and Argon2Threads are argon2id cost parameters.
	Argon2Time      uint32 `toml:"argon2_time"`
	Argon2MemoryKiB uint32 `toml:"argon2_memory_kib"`
	Argon2Threads   uint8  `toml:"argon2_threads"`
	// PBKDF2Iterations is the PBKDF2-SHA-256 iteration count.
	PBKDF2Iterations int `toml:"pbkdf2_iterations"`
	// VerifyFloorMs pads every verify to at least this many milliseconds.
	// 0 disables padding; both hash derivations always run regardless.
	VerifyFloorMs int `toml:"verify_floor_ms"`
	// BackoffAfterFailures is the consecutive failure count at which the
	// gate starts delaying input. 0 disables backoff.
	BackoffAfterFailures int `toml:"backoff_after_failures"`
	// BackoffBaseMs is the first backoff delay; it doubles per extra failure.
	BackoffBaseMs int `toml:"backoff_base_ms"`
	// BackoffMaxMs caps the backoff delay.
	BackoffMaxMs int `toml:"backoff_max_ms"`
}

// DisguiseConfig contains the disguise ("flavor") modes and lock policy.
type DisguiseConfig struct {
	// Default is the disguise mode used before the user picks one.
	Default string `toml:"default"`
	// Modes lists every real disguise mode and whether it requires a passcode.
	Modes []DisguiseMode `toml:"modes"`
}

// DisguiseMode is one row of the lock policy table.
type DisguiseMode struct {
	ID               string `toml:"id"`
	Name             string `toml:"name"`
	RequiresPasscode bool   `toml:"requires_passcode"`
}

// DecoyConfig contains decoy content settings.
type DecoyConfig struct {
	// DefaultPreset is the decoy preset shown under duress until changed.
	DefaultPreset string `toml:"default_preset"`
	// PresetDir optionally adds user preset packs (*.yaml) to the built-ins.
	PresetDir string `toml:"preset_dir"`
	// RegenerateWhenBurned reseeds decoy content before the next duress
	// session when the previous one edited it.
	RegenerateWhenBurned bool `toml:"regenerate_when_burned"`
}

// PanicConfig contains panic wipe gesture settings. Whether the wipe is
// armed is persisted in the sealed vault, not here.
type PanicConfig struct {
	// Key is the key whose rapid repetition fires the wipe in the TUI.
	Key string `toml:"key"`
	// Presses is how many presses within WindowMs fire the wipe.
	Presses int `toml:"presses"`
	// WindowMs is the gesture window.
	WindowMs int `toml:"window_ms"`
	// TriggerFile, when set, fires the wipe as soon as the file appears.
	TriggerFile string `toml:"trigger_file"`
}

// LoggingConfig contains logger settings.
type LoggingConfig struct {
	Level   string `toml:"level"`
	Console bool   `toml:"console"`
}

// UIConfig contains gate UI settings.
type UIConfig struct {
	// DebounceMs is the minimum interval between accepted gate submissions.
	DebounceMs int `toml:"debounce_ms"`
	// Theme is "dark" or "light".
	Theme string `toml:"theme"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		DataDir: defaultDataDir(),

		Security: SecurityConfig{
			PasscodeLength:       6,
			KDF:                  "argon2id",
			Argon2Time:           3,
			Argon2MemoryKiB:      64 * 1024,
			Argon2Threads:        2,
			PBKDF2Iterations:     600000, // OWASP 2023 for PBKDF2-SHA-256
			VerifyFloorMs:        0,
			BackoffAfterFailures: 5,
			BackoffBaseMs:        1000,
			BackoffMaxMs:         5 * 60 * 1000,
		},

		Disguise: DisguiseConfig{
			Default: "standard",
			Modes: []DisguiseMode{
				{ID: "standard", Name: "Standard", RequiresPasscode: true},
				{ID: "notes", Name: "Notes", RequiresPasscode: true},
				{ID: "calculator", Name: "Calculator", RequiresPasscode: true},
				{ID: "discretion", Name: "Discretion", RequiresPasscode: false},
			},
		},

		Decoy: DecoyConfig{
			DefaultPreset:        "study-helper",
			RegenerateWhenBurned: true,
		},

		Panic: PanicConfig{
			Key:      "ctrl+x",
			Presses:  3,
			WindowMs: 1500,
		},

		Logging: LoggingConfig{
			Level:   "warn",
			Console: true,
		},

		UI: UIConfig{
			DebounceMs: 250,
			Theme:      "dark",
		},
	}
}

// =============================================================================
// PATH HELPERS
// =============================================================================

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".veil")
	}
	return filepath.Join(home, ".veil")
}

// Path returns the config file path: $VEIL_CONFIG or <data dir>/config.toml.
func Path() string {
	if p := os.Getenv("VEIL_CONFIG"); p != "" {
		return p
	}
	dir := os.Getenv("VEIL_DATA_DIR")
	if dir == "" {
		dir = defaultDataDir()
	}
	return filepath.Join(dir, "config.toml")
}

// VaultPath returns the sealed vault file path.
func (c *Config) VaultPath() string { return filepath.Join(c.DataDir, "vault.sealed") }

// KeyPath returns the vault key file path.
func (c *Config) KeyPath() string { return filepath.Join(c.DataDir, "vault.key") }

// RealDBPath returns the real content database path.
func (c *Config) RealDBPath() string { return filepath.Join(c.DataDir, "real.db") }

// DecoyDBPath returns the decoy content database path.
func (c *Config) DecoyDBPath() string { return filepath.Join(c.DataDir, "decoy.db") }

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load loads configuration from Path(), falling back to defaults when the
// file does not exist. Environment overrides are applied last.
func Load() (*Config, error) {
	path := Path()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		cfg.SetDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific TOML file.
func LoadFromPath(path string) (*Config, error) {
	// SECURITY: Check and fix file permissions if needed
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	cfg := Default()
	// Decoding over the defaults keeps unspecified keys at their default;
	// an explicit modes table replaces the default table entirely.
	cfg.Disguise.Modes = nil
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if !md.IsDefined("disguise", "modes") {
		cfg.Disguise.Modes = Default().Disguise.Modes
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to path as TOML.
// SECURITY: Config files are written 0600 inside a 0700 directory.
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func Save(cfg *Config, path string) error {
	var sb strings.Builder
	sb.WriteString("# veil configuration file\n")
	sb.WriteString("# Generated by veil - edit with care\n\n")
	if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, []byte(sb.String()), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ensureSecurePermissions checks and fixes permissions on config files.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// DEFAULTS, OVERRIDES, VALIDATION
// =============================================================================

// SetDefaults fills zero-value fields with defaults.
func (c *Config) SetDefaults() {
	d := Default()

	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.Security.PasscodeLength == 0 {
		c.Security.PasscodeLength = d.Security.PasscodeLength
	}
	if c.Security.KDF == "" {
		c.Security.KDF = d.Security.KDF
	}
	if c.Security.Argon2Time == 0 {
		c.Security.Argon2Time = d.Security.Argon2Time
	}
	if c.Security.Argon2MemoryKiB == 0 {
		c.Security.Argon2MemoryKiB = d.Security.Argon2MemoryKiB
	}
	if c.Security.Argon2Threads == 0 {
		c.Security.Argon2Threads = d.Security.Argon2Threads
	}
	if c.Security.PBKDF2Iterations == 0 {
		c.Security.PBKDF2Iterations = d.Security.PBKDF2Iterations
	}
	if c.Security.BackoffBaseMs == 0 {
		c.Security.BackoffBaseMs = d.Security.BackoffBaseMs
	}
	if c.Security.BackoffMaxMs == 0 {
		c.Security.BackoffMaxMs = d.Security.BackoffMaxMs
	}
	if c.Disguise.Default == "" {
		c.Disguise.Default = d.Disguise.Default
	}
	if len(c.Disguise.Modes) == 0 {
		c.Disguise.Modes = d.Disguise.Modes
	}
	if c.Decoy.DefaultPreset == "" {
		c.Decoy.DefaultPreset = d.Decoy.DefaultPreset
	}
	if c.Panic.Key == "" {
		c.Panic.Key = d.Panic.Key
	}
	if c.Panic.Presses == 0 {
		c.Panic.Presses = d.Panic.Presses
	}
	if c.Panic.WindowMs == 0 {
		c.Panic.WindowMs = d.Panic.WindowMs
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
}

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported environment variables:
//   - VEIL_DATA_DIR: overrides data_dir
//   - VEIL_LOG_LEVEL: overrides logging.level
//   - VEIL_KDF: overrides security.kdf
func (c *Config) ApplyEnvOverrides() {
	if dir := os.Getenv("VEIL_DATA_DIR"); dir != "" {
		c.DataDir = dir
	}
	if lvl := os.Getenv("VEIL_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
	if kdf := os.Getenv("VEIL_KDF"); kdf != "" {
		c.Security.KDF = kdf
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Security.PasscodeLength < 4 || c.Security.PasscodeLength > 12 {
		errs = append(errs, ValidationError{
			Field:   "security.passcode_length",
			Message: fmt.Sprintf("must be between 4 and 12, got %d", c.Security.PasscodeLength),
		})
	}
	switch strings.ToLower(c.Security.KDF) {
	case "argon2id", "pbkdf2":
	default:
		errs = append(errs, ValidationError{
			Field:   "security.kdf",
			Message: fmt.Sprintf("invalid kdf '%s', must be one of: argon2id, pbkdf2", c.Security.KDF),
		})
	}
	if c.Security.VerifyFloorMs < 0 {
		errs = append(errs, ValidationError{Field: "security.verify_floor_ms", Message: "must not be negative"})
	}
	if c.Security.BackoffAfterFailures < 0 {
		errs = append(errs, ValidationError{Field: "security.backoff_after_failures", Message: "must not be negative"})
	}

	seen := make(map[string]bool, len(c.Disguise.Modes))
	for _, m := range c.Disguise.Modes {
		if m.ID == "" {
			errs = append(errs, ValidationError{Field: "disguise.modes", Message: "mode id must not be empty"})
			continue
		}
		if seen[m.ID] {
			errs = append(errs, ValidationError{Field: "disguise.modes", Message: fmt.Sprintf("duplicate mode id '%s'", m.ID)})
		}
		seen[m.ID] = true
	}
	if !seen[c.Disguise.Default] {
		errs = append(errs, ValidationError{
			Field:   "disguise.default",
			Message: fmt.Sprintf("unknown mode '%s', must be one of: %s", c.Disguise.Default, strings.Join(c.ModeIDs(), ", ")),
		})
	}

	if c.Panic.Presses < 1 {
		errs = append(errs, ValidationError{Field: "panic.presses", Message: "must be at least 1"})
	}
	if c.Panic.WindowMs < 1 {
		errs = append(errs, ValidationError{Field: "panic.window_ms", Message: "must be positive"})
	}
	if c.UI.DebounceMs < 0 {
		errs = append(errs, ValidationError{Field: "ui.debounce_ms", Message: "must not be negative"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ModeIDs returns the configured disguise mode IDs, sorted.
func (c *Config) ModeIDs() []string {
	ids := make([]string, 0, len(c.Disguise.Modes))
	for _, m := range c.Disguise.Modes {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids
}
