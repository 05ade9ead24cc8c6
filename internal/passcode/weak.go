// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package passcode

// =============================================================================
// WEAKNESS ADVISOR
// =============================================================================

// commonPINs are six-digit codes that show up at the top of every leaked PIN
// corpus and are not caught by the structural checks below.
var commonPINs = map[string]struct{}{
	"123123": {}, "112233": {}, "121212": {}, "101010": {}, "696969": {},
	"159753": {}, "147258": {}, "258369": {}, "159357": {}, "131313": {},
	"520520": {}, "000007": {}, "102030": {}, "100200": {}, "110110": {},
	"147852": {}, "741852": {}, "963852": {}, "123654": {}, "789456": {},
	"456123": {}, "111222": {}, "222333": {}, "777888": {}, "010203": {},
	"199999": {}, "200000": {}, "112358": {}, "314159": {}, "271828": {},
	"142536": {}, "135790": {}, "246810": {}, "998877": {}, "554433": {},
}

// IsWeak reports whether code is a predictable passcode. Advisory only.
func IsWeak(code string) bool {
	return IsWeakBytes([]byte(code))
}

// IsWeakBytes is IsWeak over a byte slice, so callers holding a Code do not
// have to copy the plaintext into an immutable string.
func IsWeakBytes(b []byte) bool {
	if len(b) == 0 {
		return true
	}
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}

	switch {
	case allSame(b):
		return true
	case isRun(b, 1), isRun(b, -1):
		return true
	case repeatsPattern(b, 2), repeatsPattern(b, 3):
		return true
	case isMirrored(b):
		return true
	case halvesRepeat(b):
		return true
	}

	if len(b) == 6 {
		if _, ok := commonPINs[string(b)]; ok {
			return true
		}
		if isDateLike(b) {
			return true
		}
	}
	return false
}

func allSame(b []byte) bool {
	for i := 1; i < len(b); i++ {
		if b[i] != b[0] {
			return false
		}
	}
	return true
}

// isRun detects ascending (step=1) or descending (step=-1) runs, wrapping
// 9->0 so that 789012 and 210987 count.
func isRun(b []byte, step int) bool {
	for i := 1; i < len(b); i++ {
		want := (int(b[i-1]-'0') + step + 10) % 10
		if int(b[i]-'0') != want {
			return false
		}
	}
	return true
}

// repeatsPattern detects codes built from a repeated block: 121212, 123123.
func repeatsPattern(b []byte, period int) bool {
	if len(b) <= period || len(b)%period != 0 {
		return false
	}
	for i := period; i < len(b); i++ {
		if b[i] != b[i-period] {
			return false
		}
	}
	return true
}

// isMirrored detects palindromes such as 123321.
func isMirrored(b []byte) bool {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		if b[i] != b[j] {
			return false
		}
	}
	return true
}

// halvesRepeat detects 111222, 777888: each half is a single repeated digit.
func halvesRepeat(b []byte) bool {
	if len(b)%2 != 0 {
		return false
	}
	h := len(b) / 2
	return allSame(b[:h]) && allSame(b[h:])
}

// isDateLike flags DDMMYY and MMDDYY birthdays in the 19xx/20xx range, the
// single most guessed family of six-digit codes.
func isDateLike(b []byte) bool {
	pair := func(i int) int { return int(b[i]-'0')*10 + int(b[i+1]-'0') }
	first, second := pair(0), pair(2)
	validDM := first >= 1 && first <= 31 && second >= 1 && second <= 12
	validMD := first >= 1 && first <= 12 && second >= 1 && second <= 31
	return validDM || validMD
}
