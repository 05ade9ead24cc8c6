// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command veil-setup writes a first-run veil config.
//
// The wizard checks that the data directory is private and writable,
// then asks for the disguise shown while locked and the decoy preset a
// duress code opens. It never asks for a passcode; codes are only entered
// inside veil itself.
//
// Usage:
//
//	veil-setup              # interactive wizard
//	veil-setup --text       # checks and defaults, no prompts
//	veil-setup --config /path/to/config.toml
package main
