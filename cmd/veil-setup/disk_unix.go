// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !windows

package main

import "golang.org/x/sys/unix"

// freeDiskSpace returns the bytes available to this user at path.
func freeDiskSpace(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	// Bavail, not Bfree: blocks reserved for root are not ours to use.
	return st.Bavail * uint64(st.Bsize), nil
}
