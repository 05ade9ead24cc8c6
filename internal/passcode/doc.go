// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package passcode holds plaintext passcodes for the shortest possible time.
//
// A Code wraps a memguard LockedBuffer: the backing memory is mlocked, guarded
// and wiped on Destroy. Codes travel from the digit entry to a single
// credential call and are destroyed by that call's caller. They are never
// placed in a structure that outlives the call, except the flow controller's
// pending first entry, which is destroyed on confirm, mismatch or cancel.
//
// # Key Types
//
//   - Code: immutable, zero-on-destroy passcode
//   - Entry: fixed-capacity mutable buffer fed one digit at a time
//
// # Weakness Advisory
//
// IsWeak flags predictable codes. It is advisory only; nothing in the
// credential store refuses a weak code.
//
//	if passcode.IsWeak("111111") {
//	    // show the interstitial, let the user decide
//	}
package passcode
