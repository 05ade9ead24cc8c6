// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling for the veil terminal UI.

# Color System (colors.go)

All colors are Lip Gloss AdaptiveColor values so light and dark terminals
both render legibly:

	Accent     - titles, selection, filled passcode dots
	Danger     - error text and the wrong-code shake
	Caution    - backoff countdowns and weak-code warnings
	Success    - completed flows
	TextPrimary, TextSecondary, TextMuted - text hierarchy

# Theme System (theme.go)

NewTheme resolves "dark", "light" or "auto" (termenv background probe) and
builds every style the gate needs:

	theme := styles.NewTheme("auto")
	title := theme.Title.Render("Notes")

# Animation System (animations.go)

The shake played after a wrong passcode is a fixed list of horizontal
offsets, one per ShakeFrame:

	for i := range styles.ShakeOffsets {
		pad := styles.ShakeOffset(i)
	}
*/
package styles
