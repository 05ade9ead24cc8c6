// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package decoy manages the innocuous content domain shown after a duress
// code.
//
// Presets are YAML packs embedded in the binary (presets/*.yaml), optionally
// extended from a user directory. The preset can only be changed under the
// real passcode. Edits made during a duress session mark the decoy burned;
// with regeneration enabled, the next duress entry reseeds decoy content so
// edits do not accumulate.
package decoy
