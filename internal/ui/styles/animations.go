// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"time"
)

// =============================================================================
// SHAKE
// =============================================================================

// ShakeFrame is how long each shake offset is shown.
const ShakeFrame = 40 * time.Millisecond

// ShakeOffsets is the horizontal displacement per frame of the wrong-code
// shake. It starts and ends at rest.
var ShakeOffsets = []int{0, 4, 0, 4, 1, 3, 2, 2}

// ShakeOffset returns the offset for frame, or 0 past the end.
func ShakeOffset(frame int) int {
	if frame < 0 || frame >= len(ShakeOffsets) {
		return 0
	}
	return ShakeOffsets[frame]
}

// =============================================================================
// PROGRESS
// =============================================================================

// RenderProgressBar renders a width-wide bar for percent (0-100). The lock
// screen uses it for the backoff countdown.
func RenderProgressBar(width int, percent float64) string {
	if width <= 0 {
		return ""
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	full := int(float64(width) * percent / 100)

	var sb strings.Builder
	sb.Grow(width)
	sb.WriteString(strings.Repeat("#", full))
	sb.WriteString(strings.Repeat("-", width-full))
	return sb.String()
}
