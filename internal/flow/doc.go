// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package flow drives the multi-step passcode screens: create, change and
// remove, for both the passcode and the duress code.
//
// The UI feeds key events (Digit, Backspace, Cancel, AcceptWeak, RejectWeak)
// and renders the returned Snapshot. Setup errors become messages here and
// never reach the lock gate. Weak codes get an interstitial, never a block.
package flow
