// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gate is the bubbletea lock screen and the small content browser
// behind it.
//
// The model renders whatever the core's lock state says. Terminal focus
// events stand in for app lifecycle: BlurMsg relocks, FocusMsg re-checks.
// Run the program with tea.WithReportFocus so those events arrive, and call
// Watch so transitions fired outside the UI (the trigger file) redraw.
package gate
