// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"
)

// Prompter asks the user for input. Secret input is never echoed and the
// caller owns (and zeroes) the returned bytes.
type Prompter interface {
	Secret(prompt string) ([]byte, error)
	Confirm(prompt string) (bool, error)
}

// =============================================================================
// TERMINAL PROMPTER
// =============================================================================

// TerminalPrompter reads from the controlling terminal, or line by line from
// stdin when stdin is piped.
type TerminalPrompter struct {
	in    *os.File
	out   io.Writer
	lines *bufio.Reader
}

// NewTerminalPrompter creates a prompter on stdin that writes prompts to
// stderr so stdout stays clean for --json.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{
		in:    os.Stdin,
		out:   os.Stderr,
		lines: bufio.NewReader(os.Stdin),
	}
}

func (p *TerminalPrompter) tty() bool {
	return term.IsTerminal(int(p.in.Fd()))
}

// Secret reads a code without echo.
func (p *TerminalPrompter) Secret(prompt string) ([]byte, error) {
	fmt.Fprint(p.out, prompt)
	if p.tty() {
		b, err := term.ReadPassword(int(p.in.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return nil, fmt.Errorf("failed to read passcode: %w", err)
		}
		return b, nil
	}

	line, err := p.lines.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		if errors.Is(err, io.EOF) {
			return nil, ErrCancelled
		}
		return nil, fmt.Errorf("failed to read passcode: %w", err)
	}
	trimmed := bytes.TrimRight(line, "\r\n")
	out := make([]byte, len(trimmed))
	copy(out, trimmed)
	clear(line)
	return out, nil
}

// Confirm asks a yes/no question. Anything but y or yes is no.
func (p *TerminalPrompter) Confirm(prompt string) (bool, error) {
	var answer string
	if p.tty() {
		line := liner.NewLiner()
		defer line.Close()
		line.SetCtrlCAborts(true)

		s, err := line.Prompt(prompt)
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return false, ErrCancelled
		}
		if err != nil {
			return false, fmt.Errorf("failed to read answer: %w", err)
		}
		answer = s
	} else {
		fmt.Fprint(p.out, prompt)
		s, err := p.lines.ReadString('\n')
		if err != nil && s == "" {
			return false, ErrCancelled
		}
		answer = s
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
