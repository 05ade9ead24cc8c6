// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli parses the veil command line and runs its commands.
//
// With no command veil opens the interactive app. The other commands manage
// settings from a shell and authenticate the same way the lock screen does:
//
//	veil passcode change
//	veil preset set study
//	veil disguise set notes
//	veil panic arm
//
// # Exit Codes
//
//   - 0: success
//   - 1: general error
//   - 2: usage error
//   - 3: config error
//   - 4: incorrect passcode or attempt backoff
//   - 5: storage failure
//   - 7: unknown preset or disguise
//
// Commands that succeed under a duress code report success and store
// nothing, so their output cannot tell the two codes apart.
package cli
