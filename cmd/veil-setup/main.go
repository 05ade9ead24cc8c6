// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/jeranaias/veil/internal/config"
	"github.com/jeranaias/veil/internal/decoy"
)

const version = "0.1.0"

func main() {
	text := false
	path := config.Path()
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--text", "-t":
			text = true
		case "--config":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--config needs a path")
				os.Exit(2)
			}
			i++
			path = args[i]
		case "--help", "-h":
			printHelp()
			return
		case "--version", "-v":
			fmt.Printf("veil-setup v%s\n", version)
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown option: %s\n", args[i])
			os.Exit(2)
		}
	}

	cfg, err := loadOrDefault(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(3)
	}

	if text || !term.IsTerminal(int(os.Stdin.Fd())) {
		if err := runText(cfg, path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	presets, err := decoy.LoadPresets(cfg.Decoy.PresetDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	p := tea.NewProgram(NewWizard(cfg, path, presets), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running setup: %v\n", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println(`veil-setup v` + version + `

Usage: veil-setup [OPTIONS]

Options:
  --config <path>  Write this config file instead of the default
  --text, -t       Write the current settings without the interactive wizard
  --help, -h       Show this help
  --version, -v    Show version`)
}

// loadOrDefault starts from the existing config so setup can be rerun
// without losing hand edits.
func loadOrDefault(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := config.Default()
		cfg.ApplyEnvOverrides()
		cfg.SetDefaults()
		return cfg, nil
	}
	return config.LoadFromPath(path)
}

// runText runs the checks and writes the config as is.
func runText(cfg *config.Config, path string) error {
	fmt.Println("veil setup")
	fmt.Println()
	failed := false
	for _, c := range []CheckResult{checkDataDir(cfg.DataDir), checkDisk(cfg.DataDir), checkExisting(path)} {
		fmt.Printf("  [%-4s] %-15s %s\n", c.Status, c.Name, c.Message)
		failed = failed || c.Status == "fail"
	}
	if failed {
		return errors.New("pre-flight checks failed")
	}
	if msg, ok := writeConfig(cfg, path)().(writeDoneMsg); ok && msg.err != nil {
		return msg.err
	}
	fmt.Println()
	fmt.Printf("Saved %s\n", path)
	fmt.Println("Next: veil passcode set")
	return nil
}
