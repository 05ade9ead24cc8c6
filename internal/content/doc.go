// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package content stores conversations in two isolated SQLite databases, one
// for real content and one for decoy content, and routes every read and
// write to the one the lock state selects.
//
// The panic wipe reaches the real store directly through Router.WipeReal;
// it does not depend on the lock state and never touches the decoy store.
package content
