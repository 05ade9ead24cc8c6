// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/veil/internal/config"
	"github.com/jeranaias/veil/internal/core"
	"github.com/jeranaias/veil/internal/ui/gate"
)

// RunTUI opens the interactive app and blocks until it quits. The core is
// locked on the way out.
func RunTUI(cfg *config.Config, c *core.AuthCore) error {
	if !IsTTY() || !IsOutputTTY() {
		return ErrNotInteractive
	}

	p := tea.NewProgram(
		gate.New(c, cfg.UI),
		tea.WithAltScreen(),
		tea.WithReportFocus(),
	)
	stop := gate.Watch(c, p)
	defer stop()
	defer c.Lock()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run app: %w", err)
	}
	return nil
}
