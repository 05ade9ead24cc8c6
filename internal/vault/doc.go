// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package vault persists veil's lock state encrypted at rest.
//
// The state (credential hashes and salts, disguise and preset selection, the
// panic wipe flag) is CBOR encoded and sealed with XChaCha20-Poly1305. The
// sealing key lives in a KeyStore, the stand-in for platform secure storage;
// on desktop that is a 0600 key file next to the vault.
//
// File layout:
//
//	"VEIL\x01" || nonce (24 bytes) || ciphertext || tag (16 bytes)
//
// A truncated, tampered or foreign file fails authentication and is reported
// as ErrCorrupt. Callers treat that as a storage failure and fail closed.
package vault
