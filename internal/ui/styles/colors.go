// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import "github.com/charmbracelet/lipgloss"

// =============================================================================
// ACCENT COLORS
// =============================================================================

// Accent - Titles, selections, filled passcode dots
var Accent = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}

// AccentDeep - Selected row background
var AccentDeep = lipgloss.AdaptiveColor{Light: "#EDE9FE", Dark: "#4C1D95"}

// Info - Hints and key labels
var Info = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}

// =============================================================================
// SEMANTIC COLORS
// =============================================================================

// Success - Completed flows
var Success = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}

// Danger - Errors and the wrong-code shake
var Danger = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}

// Caution - Backoff countdown, weak code warnings
var Caution = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}

// =============================================================================
// SURFACE AND TEXT COLORS
// =============================================================================

// Overlay - Borders and separators
var Overlay = lipgloss.AdaptiveColor{Light: "#E5E5E5", Dark: "#45475A"}

// TextPrimary - Main body text
var TextPrimary = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}

// TextSecondary - Labels
var TextSecondary = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#A6ADC8"}

// TextMuted - Hints, timestamps
var TextMuted = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}

// =============================================================================
// GLYPHS
// =============================================================================

// Passcode dot glyphs. ASCII fallbacks are used on limited terminals.
const (
	DotFilled      = "●"
	DotEmpty       = "○"
	DotFilledASCII = "*"
	DotEmptyASCII  = "-"
)
