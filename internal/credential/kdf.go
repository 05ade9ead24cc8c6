// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"

	"github.com/jeranaias/veil/internal/vault"
)

// KDF names accepted in config.
const (
	KDFArgon2id = "argon2id"
	KDFPBKDF2   = "pbkdf2"
)

const (
	// SaltSize is the size of each credential salt (256 bits).
	SaltSize = 32
	// HashSize is the derived hash length.
	HashSize = 32
)

// DefaultParams are the argon2id costs used when none are configured
// (RFC 9106 second recommended option, scaled for phones).
var DefaultParams = vault.KDFParams{Time: 3, MemoryKiB: 64 * 1024, Threads: 2}

// DefaultPBKDF2Iterations is the OWASP 2023 recommendation for PBKDF2-SHA-256.
const DefaultPBKDF2Iterations = 600000

// NormalizeKDF maps a config value to a known KDF name.
func NormalizeKDF(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", KDFArgon2id, "argon2":
		return KDFArgon2id, nil
	case KDFPBKDF2, "pbkdf2-sha256":
		return KDFPBKDF2, nil
	default:
		return "", fmt.Errorf("unknown kdf %q", name)
	}
}

// deriveKey hashes code with the salt and parameters recorded in rec. The
// work done depends only on rec, never on code.
func deriveKey(code []byte, rec *vault.CredentialRecord) []byte {
	if rec.KDF == KDFPBKDF2 {
		return pbkdf2.Key(code, rec.Salt, rec.Params.Iterations, HashSize, sha256.New)
	}
	return argon2.IDKey(code, rec.Salt, rec.Params.Time, rec.Params.MemoryKiB, rec.Params.Threads, HashSize)
}

// newSalt returns SaltSize random bytes.
func newSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}
