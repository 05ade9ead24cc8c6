// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package credential stores the real passcode and the duress code as salted
// slow hashes and verifies candidates against both.
//
// Verify returns Real, Duress or Invalid with identical work for every
// outcome: two hash derivations of equal cost (a dummy record stands in for
// an empty slot), constant-time comparison, and constant-time selection of
// the result. A wrong code is the Invalid result, not an error.
//
// Setup errors (ErrInvalidLength, ErrRealCredentialMissing, ErrCodeCollision)
// belong to the passcode flows. ErrStorageFailure means the sealed vault
// could not be read or written; callers must fail closed.
package credential
