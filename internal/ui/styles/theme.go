// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds every style the gate renders with.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	ColorProfile termenv.Profile

	// ==========================================================================
	// LOCK SCREEN
	// ==========================================================================

	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Dot       lipgloss.Style
	DotFilled lipgloss.Style
	Error     lipgloss.Style
	Warning   lipgloss.Style
	Hint      lipgloss.Style
	Box       lipgloss.Style

	// ==========================================================================
	// CONTENT
	// ==========================================================================

	Header       lipgloss.Style
	Item         lipgloss.Style
	ItemSelected lipgloss.Style
	ItemMeta     lipgloss.Style
	Footer       lipgloss.Style
	Key          lipgloss.Style
	Done         lipgloss.Style
}

// NewTheme builds the theme. name is "dark", "light" or "auto"; anything
// else is treated as "auto".
func NewTheme(name string) *Theme {
	profile := termenv.ColorProfile()

	var isDark bool
	switch strings.ToLower(name) {
	case "dark":
		isDark = true
	case "light":
		isDark = false
	default:
		isDark = termenv.HasDarkBackground()
	}
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{IsDark: isDark, ColorProfile: profile}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	// Lock screen
	t.Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Accent)

	t.Subtitle = lipgloss.NewStyle().
		Foreground(TextSecondary)

	t.Dot = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.DotFilled = lipgloss.NewStyle().
		Foreground(Accent)

	t.Error = lipgloss.NewStyle().
		Foreground(Danger)

	t.Warning = lipgloss.NewStyle().
		Foreground(Caution)

	t.Hint = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	t.Box = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(1, 4).
		Align(lipgloss.Center)

	// Content
	t.Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(Accent).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.Item = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Padding(0, 1)

	t.ItemSelected = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Background(AccentDeep).
		Bold(true).
		Padding(0, 1)

	t.ItemMeta = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.Footer = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Padding(0, 1)

	t.Key = lipgloss.NewStyle().
		Foreground(Info).
		Bold(true)

	t.Done = lipgloss.NewStyle().
		Foreground(Success)
}

// UnicodeDots reports whether the terminal can be trusted with the round
// dot glyphs.
func (t *Theme) UnicodeDots() bool {
	return t.ColorProfile != termenv.Ascii
}

// Dots renders a passcode row: entered filled dots then empty ones.
func (t *Theme) Dots(entered, length int) string {
	filled, empty := DotFilled, DotEmpty
	if !t.UnicodeDots() {
		filled, empty = DotFilledASCII, DotEmptyASCII
	}
	if entered > length {
		entered = length
	}
	if entered < 0 {
		entered = 0
	}

	var sb strings.Builder
	for i := 0; i < length; i++ {
		if i > 0 {
			sb.WriteString(" ")
		}
		if i < entered {
			sb.WriteString(t.DotFilled.Render(filled))
		} else {
			sb.WriteString(t.Dot.Render(empty))
		}
	}
	return sb.String()
}

// Shortcut renders "key desc" for footers.
func (t *Theme) Shortcut(key, desc string) string {
	return t.Key.Render(key) + " " + desc
}
