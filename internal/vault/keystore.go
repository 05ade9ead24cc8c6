// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package vault

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/jeranaias/veil/internal/util"
)

// KeySize is the size of the vault sealing key (256 bits).
const KeySize = 32

// =============================================================================
// KEYSTORE INTERFACE
// =============================================================================

// KeyStore is the platform secure storage for the vault sealing key.
// A mobile shell backs this with the Keychain / Keystore; the desktop build
// uses FileKeyStore.
type KeyStore interface {
	// Store securely stores the key.
	Store(key []byte) error
	// Retrieve returns the stored key.
	Retrieve() ([]byte, error)
	// Delete removes the key.
	Delete() error
	// Exists reports whether a key is stored.
	Exists() bool
}

// ErrKeyMissing is returned by Retrieve when no key has been stored.
var ErrKeyMissing = errors.New("vault key not found")

// =============================================================================
// FILE KEYSTORE
// =============================================================================

// FileKeyStore keeps the key in a 0600 file inside a 0700 directory and
// refuses to read or write when either is group or world accessible.
type FileKeyStore struct {
	path string
}

// NewFileKeyStore creates a file-based key store at path.
func NewFileKeyStore(path string) *FileKeyStore {
	return &FileKeyStore{path: path}
}

// Store writes the key with restricted permissions.
func (f *FileKeyStore) Store(key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("vault key must be %d bytes, got %d", KeySize, len(key))
	}
	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFile(f.path, key, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return f.checkPermissions()
}

// Retrieve reads the key after verifying permissions.
func (f *FileKeyStore) Retrieve() ([]byte, error) {
	if _, err := os.Stat(f.path); errors.Is(err, os.ErrNotExist) {
		return nil, ErrKeyMissing
	}
	if err := f.checkPermissions(); err != nil {
		return nil, err
	}
	key, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	if len(key) != KeySize {
		ZeroBytes(key)
		return nil, fmt.Errorf("key file has wrong size")
	}
	return key, nil
}

// Delete overwrites the key file with zeros and removes it.
func (f *FileKeyStore) Delete() error {
	info, err := os.Stat(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat key file for deletion: %w", err)
	}
	if size := info.Size(); size > 0 {
		if file, err := os.OpenFile(f.path, os.O_WRONLY, 0600); err == nil {
			_, _ = file.Write(make([]byte, size))
			_ = file.Sync()
			_ = file.Close()
		}
	}
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete key file: %w", err)
	}
	return nil
}

// Exists reports whether the key file exists.
func (f *FileKeyStore) Exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

// checkPermissions rejects keys readable by group or world.
// Windows ACLs are not expressed in mode bits, so the check is Unix-only.
func (f *FileKeyStore) checkPermissions() error {
	if runtime.GOOS == "windows" {
		return nil
	}
	dir := filepath.Dir(f.path)
	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("failed to stat key directory: %w", err)
	}
	if mode := dirInfo.Mode().Perm(); mode&0077 != 0 {
		return fmt.Errorf("key directory has insecure permissions (%o); fix with: chmod 700 %s", mode, dir)
	}
	info, err := os.Stat(f.path)
	if err != nil {
		return fmt.Errorf("failed to stat key file: %w", err)
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		return fmt.Errorf("key file has insecure permissions (%o); fix with: chmod 600 %s", mode, f.path)
	}
	return nil
}

// =============================================================================
// MEMORY KEYSTORE
// =============================================================================

// MemoryKeyStore keeps the key in process memory. Used by tests and by hosts
// that hand the key in from their own secure storage.
type MemoryKeyStore struct {
	key []byte
}

// NewMemoryKeyStore returns an empty in-memory key store.
func NewMemoryKeyStore() *MemoryKeyStore { return &MemoryKeyStore{} }

// Store keeps a copy of key.
func (m *MemoryKeyStore) Store(key []byte) error {
	m.key = append([]byte(nil), key...)
	return nil
}

// Retrieve returns a copy of the key.
func (m *MemoryKeyStore) Retrieve() ([]byte, error) {
	if m.key == nil {
		return nil, ErrKeyMissing
	}
	return append([]byte(nil), m.key...), nil
}

// Delete wipes the key.
func (m *MemoryKeyStore) Delete() error {
	ZeroBytes(m.key)
	m.key = nil
	return nil
}

// Exists reports whether a key is held.
func (m *MemoryKeyStore) Exists() bool { return m.key != nil }

// =============================================================================
// HELPERS
// =============================================================================

// GenerateKey returns a fresh random sealing key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate vault key: %w", err)
	}
	return key, nil
}

// ZeroBytes securely zeros sensitive byte slices.
// SECURITY: Zero key material to prevent memory disclosure via crash dumps.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
