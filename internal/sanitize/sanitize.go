// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sanitize overwrites files before removing them.
//
// SECURITY: Nothing here logs or journals. The panic wipe uses this package
// and a wipe must leave no record that it happened.
package sanitize

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
)

// Passes is the number of overwrite passes: zeros, ones, random
// (DoD 5220.22-M three-pass pattern).
const Passes = 3

const chunkSize = 64 * 1024

// pass fills buf with the bytes for one overwrite pass.
type pass func(buf []byte) error

func fill(b byte) pass {
	return func(buf []byte) error {
		for i := range buf {
			buf[i] = b
		}
		return nil
	}
}

func random(buf []byte) error {
	_, err := io.ReadFull(rand.Reader, buf)
	return err
}

var passes = [Passes]pass{fill(0x00), fill(0xFF), random}

// SecureDeleteFile overwrites path three times, syncing after each pass,
// then removes it. A missing file is not an error, so a wipe can be
// repeated.
//
// Flash storage and copy-on-write filesystems may keep old blocks; the
// overwrite is best effort on those and the removal is what counts.
func SecureDeleteFile(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("cannot secure delete directory %s", path)
	}

	if err := overwrite(path, info.Size()); err != nil {
		// Still remove: an unlinked partially overwritten file beats a
		// readable one.
		_ = os.Remove(path)
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

// SecureDeleteFiles deletes every path and reports the first failure after
// attempting all of them.
func SecureDeleteFiles(paths ...string) error {
	var first error
	for _, p := range paths {
		if err := SecureDeleteFile(p); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func overwrite(path string, size int64) error {
	file, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open file for overwrite: %w", err)
	}
	defer file.Close()

	buf := make([]byte, chunkSize)
	for i, p := range passes {
		if err := writePass(file, size, buf, p); err != nil {
			return fmt.Errorf("pass %d failed: %w", i+1, err)
		}
		if err := file.Sync(); err != nil {
			return fmt.Errorf("failed to sync pass %d: %w", i+1, err)
		}
	}
	return nil
}

func writePass(file *os.File, size int64, buf []byte, p pass) error {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	for written := int64(0); written < size; {
		n := int64(len(buf))
		if size-written < n {
			n = size - written
		}
		if err := p(buf[:n]); err != nil {
			return err
		}
		w, err := file.Write(buf[:n])
		if err != nil {
			return err
		}
		written += int64(w)
	}
	return nil
}
