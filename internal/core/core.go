// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/veil/internal/attempts"
	"github.com/jeranaias/veil/internal/config"
	"github.com/jeranaias/veil/internal/content"
	"github.com/jeranaias/veil/internal/credential"
	"github.com/jeranaias/veil/internal/decoy"
	"github.com/jeranaias/veil/internal/flow"
	"github.com/jeranaias/veil/internal/lock"
	"github.com/jeranaias/veil/internal/logging"
	"github.com/jeranaias/veil/internal/passcode"
	"github.com/jeranaias/veil/internal/vault"
	"github.com/jeranaias/veil/internal/wipe"
)

var (
	// ErrBusy is returned when a verify is already in flight.
	ErrBusy = errors.New("a passcode check is already in progress")
	// ErrWipedDuringVerify is returned when a panic wipe fired while a
	// verify was hashing. The result was discarded and the app is locked.
	ErrWipedDuringVerify = errors.New("panic wipe interrupted the passcode check")
	// ErrInterrupted is returned when the app left the foreground while a
	// verify was hashing. The result was discarded.
	ErrInterrupted = errors.New("passcode check interrupted")
)

// =============================================================================
// AUTH CORE
// =============================================================================

// AuthCore owns every piece of security state and is the only thing the UI
// talks to. UI state (animations, current flow screen) stays in the UI.
type AuthCore struct {
	cfg *config.Config
	log zerolog.Logger

	vault    *vault.Vault
	creds    *credential.Store
	lock     *lock.Controller
	decoy    *decoy.Manager
	trigger  *wipe.Trigger
	sequence *wipe.SequenceDetector
	watcher  *wipe.FileWatcher
	attempts *attempts.Tracker
	content  *content.Router

	// mu orders the commit of a verify result against a wipe.
	mu       sync.Mutex
	inflight atomic.Bool
	epoch    atomic.Uint64
	// backgrounds counts Background calls so a verify that straddles one
	// cannot unlock behind the user's back.
	backgrounds atomic.Uint64

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	stopWatch context.CancelFunc

	// verifyHook runs between hashing and commit. Tests use it to fire a
	// wipe mid-verify.
	verifyHook func()
}

// Option configures New.
type Option func(*options)

type options struct {
	keys vault.KeyStore
}

// WithKeyStore replaces the file key store, e.g. with platform secure
// storage or an in-memory store in tests.
func WithKeyStore(ks vault.KeyStore) Option {
	return func(o *options) {
		o.keys = ks
	}
}

// New opens the vault and content stores under cfg.DataDir and wires the
// components together. The returned core starts Locked, or Unlocked when no
// gate is needed.
func New(cfg *config.Config, opts ...Option) (*AuthCore, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.keys == nil {
		o.keys = vault.NewFileKeyStore(cfg.KeyPath())
	}

	c := &AuthCore{cfg: cfg, log: logging.Component("core")}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v, err := vault.Open(cfg.VaultPath(), o.keys)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", credential.ErrStorageFailure, err)
	}
	c.vault = v

	st, err := v.Load()
	if err != nil {
		v.Close()
		return nil, fmt.Errorf("%w: %v", credential.ErrStorageFailure, err)
	}

	c.creds, err = credential.NewStore(v,
		credential.WithLength(cfg.Security.PasscodeLength),
		credential.WithKDF(cfg.Security.KDF, kdfParams(cfg.Security)),
		credential.WithVerifyFloor(time.Duration(cfg.Security.VerifyFloorMs)*time.Millisecond),
	)
	if err != nil {
		v.Close()
		return nil, err
	}

	presets, err := decoy.LoadPresets(cfg.Decoy.PresetDir)
	if err != nil {
		v.Close()
		return nil, err
	}

	realStore, err := content.Open(cfg.RealDBPath())
	if err != nil {
		v.Close()
		return nil, err
	}
	decoyStore, err := content.Open(cfg.DecoyDBPath())
	if err != nil {
		realStore.Close()
		v.Close()
		return nil, err
	}
	c.content = content.NewRouter(realStore, decoyStore)

	policy := lock.PolicyFromConfig(cfg.Disguise)
	disguise := st.Disguise
	if !policy.Has(disguise) {
		disguise = cfg.Disguise.Default
	}
	c.lock = lock.NewController(policy, disguise,
		lock.WithPresetSource(func() string { return c.decoy.CurrentID() }))

	c.decoy, err = decoy.NewManager(presets, cfg.Decoy.DefaultPreset, c.lock,
		decoy.WithSeeder(c.content),
		decoy.WithPersister(v),
		decoy.WithRegenerate(cfg.Decoy.RegenerateWhenBurned),
		decoy.WithRestored(st.Preset, st.DecoyBurned),
	)
	if err != nil {
		c.content.Close()
		v.Close()
		return nil, err
	}
	if err := c.content.EnsureSeeded(context.Background(), c.decoy.Current()); err != nil {
		c.log.Warn().Err(err).Msg("decoy content could not be seeded")
	}

	c.lock.Subscribe(c.content.OnLockState)
	c.content.OnDecoyWrite(func() { _ = c.decoy.MarkBurned() })

	c.attempts = attempts.NewTracker(
		attempts.WithBackoff(attempts.Backoff{
			After: cfg.Security.BackoffAfterFailures,
			Base:  time.Duration(cfg.Security.BackoffBaseMs) * time.Millisecond,
			Max:   time.Duration(cfg.Security.BackoffMaxMs) * time.Millisecond,
		}),
		attempts.WithPersister(v),
		attempts.WithRestored(st.Failures),
	)

	c.trigger = wipe.NewTrigger()
	c.trigger.Arm(st.PanicWipeEnabled)
	c.trigger.OnTriggered(c.onWipe)
	c.sequence = wipe.NewSequenceDetector(cfg.Panic.Key, cfg.Panic.Presses,
		time.Duration(cfg.Panic.WindowMs)*time.Millisecond, c.trigger.Fire)

	if cfg.Panic.TriggerFile != "" {
		w, err := wipe.NewFileWatcher(cfg.Panic.TriggerFile, c.trigger)
		if err != nil {
			c.log.Warn().Err(err).Msg("panic trigger file watcher disabled")
		} else {
			ctx, cancel := context.WithCancel(context.Background())
			c.watcher, c.stopWatch = w, cancel
			w.Start(ctx)
		}
	}

	c.lock.Release(c.creds.IsPasscodeSet())
	c.log.Debug().Str("data_dir", cfg.DataDir).Msg("auth core ready")
	return c, nil
}

func kdfParams(sc config.SecurityConfig) vault.KDFParams {
	if kdf, _ := credential.NormalizeKDF(sc.KDF); kdf == credential.KDFPBKDF2 {
		return vault.KDFParams{Iterations: sc.PBKDF2Iterations}
	}
	return vault.KDFParams{Time: sc.Argon2Time, MemoryKiB: sc.Argon2MemoryKiB, Threads: sc.Argon2Threads}
}

// Close stops the trigger watcher and closes all stores.
func (c *AuthCore) Close() error {
	var errs []error
	if c.watcher != nil {
		c.stopWatch()
		errs = append(errs, c.watcher.Close())
	}
	errs = append(errs, c.content.Close())
	c.vault.Close()
	return errors.Join(errs...)
}

// =============================================================================
// VERIFY
// =============================================================================

// Verify checks code and drives the lock state. code is destroyed before
// Verify returns, whatever the outcome.
//
// Only one verify runs at a time; a concurrent call gets ErrBusy. If a panic
// wipe fires while hashing, the result is discarded, the state is Locked and
// the error is ErrWipedDuringVerify. If the app was backgrounded while
// hashing the result is discarded with ErrInterrupted. A storage failure
// also locks.
//
// SECURITY: Nothing on this path logs, and Real, Duress and Invalid take the
// same calls in the same order up to the final transition.
func (c *AuthCore) Verify(ctx context.Context, code *passcode.Code) (credential.Result, error) {
	defer code.Destroy()

	if !c.inflight.CompareAndSwap(false, true) {
		return credential.Invalid, ErrBusy
	}
	defer c.inflight.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.setCancel(cancel)
	defer c.setCancel(nil)

	epoch := c.epoch.Load()
	backgrounds := c.backgrounds.Load()
	if err := ctx.Err(); err != nil {
		return credential.Invalid, err
	}

	result, err := c.creds.Verify(code)
	if c.verifyHook != nil {
		c.verifyHook()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch.Load() != epoch {
		c.lock.ForceLock()
		return credential.Invalid, ErrWipedDuringVerify
	}
	if err != nil {
		c.lock.ForceLock()
		return credential.Invalid, err
	}
	if err := ctx.Err(); err != nil {
		return credential.Invalid, err
	}
	if c.backgrounds.Load() != backgrounds {
		return credential.Invalid, ErrInterrupted
	}
	if err := c.attempts.Record(result); err != nil {
		c.lock.ForceLock()
		return credential.Invalid, fmt.Errorf("%w: %v", credential.ErrStorageFailure, err)
	}

	if result == credential.Duress {
		// A stale decoy is still a decoy; entering it beats refusing.
		_ = c.decoy.EnterDecoy()
	}
	c.lock.Apply(result)
	return result, nil
}

func (c *AuthCore) setCancel(fn context.CancelFunc) {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()
	c.cancel = fn
}

// onWipe destroys real content and locks. It runs synchronously inside
// Trigger.Fire and takes priority over any verify in flight.
//
// SECURITY: No logging. Errors are dropped because reporting them would
// leave a trace of the wipe.
func (c *AuthCore) onWipe(wipe.Event) {
	c.mu.Lock()
	c.epoch.Add(1)
	c.cancelMu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancelMu.Unlock()
	c.mu.Unlock()

	_ = c.content.WipeReal(context.Background())
	_ = c.attempts.Reset()
	c.lock.ForceLock()
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Background must be called synchronously when the app leaves the
// foreground.
func (c *AuthCore) Background() lock.State {
	c.backgrounds.Add(1)
	return c.lock.Background(c.creds.IsPasscodeSet())
}

// Foreground must be called synchronously before the first render after
// returning to the foreground.
func (c *AuthCore) Foreground() lock.State {
	set := c.creds.IsPasscodeSet()
	c.lock.Foreground(set)
	return c.lock.Release(set)
}

// Lock locks immediately.
func (c *AuthCore) Lock() lock.State { return c.lock.ForceLock() }

// =============================================================================
// ACCESSORS
// =============================================================================

// State returns the lock state.
func (c *AuthCore) State() lock.State { return c.lock.State() }

// Subscribe registers fn for lock transitions.
func (c *AuthCore) Subscribe(fn func(lock.State)) func() { return c.lock.Subscribe(fn) }

// NeedsGate reports whether the UI must show the gate.
func (c *AuthCore) NeedsGate() bool { return c.lock.NeedsGate(c.creds.IsPasscodeSet()) }

// IsPasscodeSet reports whether a passcode exists.
func (c *AuthCore) IsPasscodeSet() bool { return c.creds.IsPasscodeSet() }

// HasDuress reports whether a duress code exists. It answers false unless
// the real passcode unlocked the app, so nothing reachable from the gate or
// a decoy session reveals that a duress code is configured.
func (c *AuthCore) HasDuress() bool {
	return c.lock.State().IsRealUnlocked() && c.creds.HasDuress()
}

// PasscodeLength returns the configured digit count.
func (c *AuthCore) PasscodeLength() int { return c.creds.Length() }

// Content returns the routed content layer.
func (c *AuthCore) Content() *content.Router { return c.content }

// Decoy returns the decoy manager.
func (c *AuthCore) Decoy() *decoy.Manager { return c.decoy }

// Attempts returns the failed-attempt tracker, the hook for backoff policy.
func (c *AuthCore) Attempts() *attempts.Tracker { return c.attempts }

// Policy returns the disguise policy table.
func (c *AuthCore) Policy() *lock.Policy { return c.lock.Policy() }

// Disguise returns the real disguise mode.
func (c *AuthCore) Disguise() string { return c.lock.Disguise() }

// =============================================================================
// SETTINGS
// =============================================================================

// SetDisguise switches and persists the disguise mode. Real Unlocked only.
func (c *AuthCore) SetDisguise(id string) error {
	if err := c.lock.SetDisguise(id); err != nil {
		return err
	}
	if err := c.vault.Update(func(st *vault.State) error {
		st.Disguise = id
		return nil
	}); err != nil {
		c.log.Error().Err(err).Msg("failed to persist disguise")
		return c.failClosed(fmt.Errorf("%w: %v", credential.ErrStorageFailure, err))
	}
	return nil
}

// SetPreset selects the decoy preset. Real Unlocked only.
func (c *AuthCore) SetPreset(id string) error {
	err := c.decoy.SetPreset(id)
	if errors.Is(err, decoy.ErrPersist) {
		return c.failClosed(fmt.Errorf("%w: %v", credential.ErrStorageFailure, err))
	}
	return err
}

// PanicWipeEnabled reports whether the panic wipe is armed.
func (c *AuthCore) PanicWipeEnabled() bool { return c.trigger.Armed() }

// SetPanicWipeEnabled arms or disarms the panic wipe and persists the flag.
func (c *AuthCore) SetPanicWipeEnabled(enabled bool) error {
	if err := c.vault.Update(func(st *vault.State) error {
		st.PanicWipeEnabled = enabled
		return nil
	}); err != nil {
		return c.failClosed(fmt.Errorf("%w: %v", credential.ErrStorageFailure, err))
	}
	c.trigger.Arm(enabled)
	return nil
}

// PanicKey feeds one key press to the panic gesture detector and reports
// whether it fired the wipe. Call it for every key in every state.
func (c *AuthCore) PanicKey(key string, at time.Time) bool {
	return c.sequence.Key(key, at)
}

// IsPanicKey reports whether key is the panic gesture key.
func (c *AuthCore) IsPanicKey(key string) bool { return c.sequence.Matches(key) }

// FirePanic fires the wipe directly. It does nothing unless armed.
func (c *AuthCore) FirePanic() bool { return c.trigger.Fire() }

// =============================================================================
// FLOWS
// =============================================================================

// Flow starts a passcode flow. During a decoy session the flow runs against
// a stand-in that treats the duress code as the passcode, so settings
// screens behave as if no other code exists.
func (c *AuthCore) Flow(kind flow.Kind) *flow.Controller {
	if c.lock.State().IsDecoyUnlocked() {
		return flow.New(kind, &decoyCredentials{core: c})
	}
	return flow.New(kind, &realCredentials{core: c})
}

// guardedVerify runs a credential check under the single in-flight rule
// without touching the lock state.
func (c *AuthCore) guardedVerify(code *passcode.Code) (credential.Result, error) {
	if !c.inflight.CompareAndSwap(false, true) {
		return credential.Invalid, ErrBusy
	}
	defer c.inflight.Store(false)

	r, err := c.creds.Verify(code)
	if err != nil {
		c.lock.ForceLock()
	}
	return r, err
}

// failClosed locks when err is a storage failure and returns err unchanged.
// Once the vault cannot be written, no session stays open on top of it.
func (c *AuthCore) failClosed(err error) error {
	if errors.Is(err, credential.ErrStorageFailure) {
		c.lock.ForceLock()
	}
	return err
}
