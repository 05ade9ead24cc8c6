// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package vault

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// sealMagic prefixes every sealed file and is bound as associated data, so a
// blob sealed for another purpose with the same key does not open here.
var sealMagic = []byte("VEIL\x01")

var (
	// ErrCorrupt indicates the sealed vault is truncated, tampered with or
	// sealed under a different key.
	ErrCorrupt = errors.New("vault is corrupt or sealed with a different key")
)

// seal encrypts plaintext with XChaCha20-Poly1305.
// Output: magic || nonce(24) || ciphertext || tag
func seal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, len(sealMagic)+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, sealMagic...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, sealMagic), nil
}

// open reverses seal.
func open(key, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	headerLen := len(sealMagic) + aead.NonceSize()
	if len(sealed) < headerLen+aead.Overhead() || !bytes.Equal(sealed[:len(sealMagic)], sealMagic) {
		return nil, ErrCorrupt
	}
	nonce := sealed[len(sealMagic):headerLen]
	plaintext, err := aead.Open(nil, nonce, sealed[headerLen:], sealMagic)
	if err != nil {
		return nil, ErrCorrupt
	}
	return plaintext, nil
}
