// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package vault

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/fxamacker/cbor/v2"

	"github.com/jeranaias/veil/internal/util"
)

// StateVersion is the current sealed state schema version.
const StateVersion = 1

// =============================================================================
// PERSISTED STATE
// =============================================================================

// KDFParams records the cost parameters a hash was derived with, so a config
// change never makes existing credentials unverifiable.
type KDFParams struct {
	Time       uint32 `cbor:"time,omitempty"`
	MemoryKiB  uint32 `cbor:"mem,omitempty"`
	Threads    uint8  `cbor:"threads,omitempty"`
	Iterations int    `cbor:"iter,omitempty"`
}

// CredentialRecord is a salted hash of one passcode. It never holds plaintext.
type CredentialRecord struct {
	Salt      []byte    `cbor:"salt"`
	Hash      []byte    `cbor:"hash"`
	CreatedAt int64     `cbor:"created"`
	Length    int       `cbor:"len"`
	KDF       string    `cbor:"kdf"`
	Params    KDFParams `cbor:"params"`
}

// Zero overwrites the salt and hash in place.
func (r *CredentialRecord) Zero() {
	if r == nil {
		return
	}
	ZeroBytes(r.Salt)
	ZeroBytes(r.Hash)
}

// Clone returns a deep copy.
func (r *CredentialRecord) Clone() *CredentialRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Salt = append([]byte(nil), r.Salt...)
	c.Hash = append([]byte(nil), r.Hash...)
	return &c
}

// State is everything veil persists about the lock: credential hashes, the
// dummy record verify compares against when a slot is empty, disguise and
// preset selection and the panic wipe arm flag.
type State struct {
	Version          int               `cbor:"v"`
	Real             *CredentialRecord `cbor:"real,omitempty"`
	Duress           *CredentialRecord `cbor:"duress,omitempty"`
	Dummy            *CredentialRecord `cbor:"dummy,omitempty"`
	Disguise         string            `cbor:"disguise,omitempty"`
	Preset           string            `cbor:"preset,omitempty"`
	DecoyBurned      bool              `cbor:"burned,omitempty"`
	PanicWipeEnabled bool              `cbor:"panic,omitempty"`
	Failures         int               `cbor:"failures,omitempty"`
}

// ZeroCredentials wipes and drops both credential records.
func (s *State) ZeroCredentials() {
	s.Real.Zero()
	s.Duress.Zero()
	s.Real = nil
	s.Duress = nil
}

// =============================================================================
// VAULT
// =============================================================================

// Vault stores State sealed with XChaCha20-Poly1305 under a key held by a
// KeyStore. Writes are atomic and serialized by an in-process mutex and an
// advisory file lock, so two veil processes never interleave writes.
type Vault struct {
	mu   sync.Mutex
	path string
	key  *memguard.Enclave
	enc  cbor.EncMode
}

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("vault is closed")
)

// Open prepares the vault at path. A sealing key is generated and stored in
// keys on first use. The sealed file itself is created lazily by Save.
func Open(path string, keys KeyStore) (*Vault, error) {
	var key []byte
	var err error
	if keys.Exists() {
		key, err = keys.Retrieve()
		if err != nil {
			return nil, fmt.Errorf("failed to load vault key: %w", err)
		}
	} else {
		if _, statErr := os.Stat(path); statErr == nil {
			// A sealed vault without its key can never be opened again.
			return nil, ErrCorrupt
		}
		key, err = GenerateKey()
		if err != nil {
			return nil, err
		}
		if err := keys.Store(key); err != nil {
			ZeroBytes(key)
			return nil, fmt.Errorf("failed to store vault key: %w", err)
		}
	}

	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		ZeroBytes(key)
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	// NewEnclave wipes key.
	return &Vault{path: path, key: memguard.NewEnclave(key), enc: enc}, nil
}

// Path returns the sealed file path.
func (v *Vault) Path() string { return v.path }

// Load reads and unseals the state. A missing file yields an empty State.
func (v *Vault) Load() (*State, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.load()
}

// Save seals and atomically writes s.
func (v *Vault) Save(s *State) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	unlock, err := lockFile(v.path + ".lock")
	if err != nil {
		return err
	}
	defer unlock()
	return v.save(s)
}

// Update loads the state, applies fn and saves the result under one lock.
// If fn returns an error nothing is written.
func (v *Vault) Update(fn func(*State) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	unlock, err := lockFile(v.path + ".lock")
	if err != nil {
		return err
	}
	defer unlock()

	s, err := v.load()
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		return err
	}
	return v.save(s)
}

// Close drops the in-memory key.
func (v *Vault) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.key = nil
}

func (v *Vault) load() (*State, error) {
	if v.key == nil {
		return nil, ErrClosed
	}
	sealed, err := os.ReadFile(v.path)
	if errors.Is(err, os.ErrNotExist) {
		return &State{Version: StateVersion}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read vault: %w", err)
	}

	key, err := v.key.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open vault key: %w", err)
	}
	plaintext, err := open(key.Bytes(), sealed)
	key.Destroy()
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(plaintext)

	var s State
	if err := cbor.Unmarshal(plaintext, &s); err != nil {
		return nil, ErrCorrupt
	}
	if s.Version > StateVersion {
		return nil, fmt.Errorf("vault version %d is newer than supported %d", s.Version, StateVersion)
	}
	return &s, nil
}

func (v *Vault) save(s *State) error {
	if v.key == nil {
		return ErrClosed
	}
	s.Version = StateVersion
	plaintext, err := v.enc.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode vault: %w", err)
	}
	defer ZeroBytes(plaintext)

	key, err := v.key.Open()
	if err != nil {
		return fmt.Errorf("failed to open vault key: %w", err)
	}
	sealed, err := seal(key.Bytes(), plaintext)
	key.Destroy()
	if err != nil {
		return err
	}
	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFile(v.path, sealed, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write vault: %w", err)
	}
	return nil
}
