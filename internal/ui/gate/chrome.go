// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gate

// chrome is the lock screen dressing for one disguise mode.
type chrome struct {
	Title  string
	Prompt string
	Hint   string
}

var chromes = map[string]chrome{
	"standard": {
		Title:  "veil",
		Prompt: "Enter passcode",
	},
	"notes": {
		Title:  "Notes",
		Prompt: "These notes are locked",
		Hint:   "Enter your PIN to open them",
	},
	"calculator": {
		Title:  "Calculator",
		Prompt: "0",
		Hint:   "Type to calculate",
	},
	"discretion": {
		Title:  "Study Notes",
		Prompt: "Enter passcode",
	},
}

// chromeFor returns the dressing for a disguise mode. Unknown modes get a
// plain lock screen.
func chromeFor(mode string) chrome {
	if c, ok := chromes[mode]; ok {
		return c
	}
	return chrome{Title: "Locked", Prompt: "Enter passcode"}
}
