// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package core provides AuthCore, the explicit owner of veil's security
// state: the credential store, the lock controller, the decoy manager, the
// panic wipe trigger, the attempt tracker and the content router.
//
// The application shell creates one AuthCore, forwards lifecycle signals
// (Background, Foreground) synchronously, runs Verify off its UI goroutine
// and renders whatever State says. A panic wipe outranks everything: it
// destroys real content, cancels any verify in flight and leaves the app
// Locked.
package core
