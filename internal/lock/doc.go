// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package lock implements the lock state machine that gates the UI.
//
// States:
//
//	Locked(disguise)  --Real-->    Unlocked(disguise)
//	Locked(disguise)  --Duress-->  DecoyUnlocked(preset)
//	Locked(disguise)  --Invalid--> Locked(disguise)   (same value)
//	Unlocked | DecoyUnlocked --background/foreground--> Locked
//	any --ForceLock--> Locked
//
// The disguise shown on the gate is always the real disguise recorded when
// the app locked, including after a decoy session, so the gate looks the
// same whichever code was last entered. Which modes need the passcode at all
// is a Policy table built from config.
package lock
