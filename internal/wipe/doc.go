// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package wipe turns panic gestures into an irreversible wipe of real
// content.
//
// Trigger is armed by a flag owned outside this package and calls its
// handlers synchronously with no confirmation. Gesture sources are the
// keypress SequenceDetector used by the TUI and the FileWatcher, which fires
// when a trigger file is created. Neither needs the passcode and both work
// in any lock state.
//
// SECURITY: Nothing in this package logs.
package wipe
