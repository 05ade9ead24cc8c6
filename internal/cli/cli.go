// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"strings"
)

// Version information, set via ldflags at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// COMMANDS
// =============================================================================

// Command is a top-level veil command.
type Command int

const (
	// CmdTUI opens the interactive app (default).
	CmdTUI Command = iota
	// CmdPasscode manages the passcode and duress code.
	CmdPasscode
	// CmdPreset lists or selects decoy presets.
	CmdPreset
	// CmdDisguise lists or selects disguise modes.
	CmdDisguise
	// CmdPanic arms, disarms or fires the panic wipe.
	CmdPanic
	// CmdCheckWeak reports whether a code is easy to guess.
	CmdCheckWeak
	// CmdVersion prints version information.
	CmdVersion
	// CmdHelp prints usage.
	CmdHelp
)

var commandNames = map[Command]string{
	CmdTUI:       "tui",
	CmdPasscode:  "passcode",
	CmdPreset:    "preset",
	CmdDisguise:  "disguise",
	CmdPanic:     "panic",
	CmdCheckWeak: "check-weak",
	CmdVersion:   "version",
	CmdHelp:      "help",
}

// String returns the command name as typed on the command line.
func (c Command) String() string {
	if s, ok := commandNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Command(%d)", int(c))
}

// Args holds the parsed command line.
type Args struct {
	Command Command

	// Subcommand is the first positional after the command, e.g. "set".
	Subcommand string
	// Rest holds the remaining positionals.
	Rest []string

	// Global flags
	ConfigPath string
	DataDir    string
	JSON       bool
	Verbose    bool
}

// Arg returns positional i after the subcommand, or "".
func (a Args) Arg(i int) string {
	if i < 0 || i >= len(a.Rest) {
		return ""
	}
	return a.Rest[i]
}

// =============================================================================
// PARSING
// =============================================================================

// Parse parses argv (without the program name).
func Parse(argv []string) (Args, error) {
	p := NewArgParser(argv)
	args := Args{
		ConfigPath: p.Flag("config"),
		DataDir:    p.Flag("data-dir"),
		JSON:       p.BoolFlag("json"),
		Verbose:    p.BoolFlag("verbose", "v"),
	}
	if p.BoolFlag("version", "V") {
		args.Command = CmdVersion
		return args, nil
	}
	if p.BoolFlag("help", "h") {
		args.Command = CmdHelp
		return args, nil
	}
	pos := p.Positionals()
	if err := p.Err(); err != nil {
		return args, err
	}
	if len(pos) == 0 {
		args.Command = CmdTUI
		return args, nil
	}

	switch strings.ToLower(pos[0]) {
	case "tui", "open":
		args.Command = CmdTUI
	case "passcode", "pin":
		args.Command = CmdPasscode
	case "preset", "presets":
		args.Command = CmdPreset
	case "disguise", "disguises":
		args.Command = CmdDisguise
	case "panic":
		args.Command = CmdPanic
	case "check-weak":
		args.Command = CmdCheckWeak
	case "version":
		args.Command = CmdVersion
	case "help":
		args.Command = CmdHelp
	default:
		return args, &ValidationError{
			Field:   "command",
			Value:   pos[0],
			Reason:  "unknown command",
			Example: "veil help",
		}
	}
	if len(pos) > 1 {
		args.Subcommand = strings.ToLower(pos[1])
		args.Rest = pos[2:]
	}
	return args, nil
}

// =============================================================================
// USAGE
// =============================================================================

const usageText = `veil - a private notebook behind a passcode

Usage:
  veil [flags]                      Open the app
  veil passcode <action>            Manage the passcode
  veil preset [list|set <id>]       Choose the decoy content
  veil disguise [list|set <id>]     Choose how the app looks when locked
  veil panic [status|arm|disarm|fire]
  veil check-weak <code>            Check whether a code is easy to guess
  veil version

Passcode actions:
  status          Show whether a passcode is set
  set             Set a passcode
  change          Change the passcode
  remove          Turn the passcode off
  duress          Set or change the duress code
  remove-duress   Remove the duress code

Flags:
  --config <path>     Use this config file
  --data-dir <dir>    Keep data in this directory
  --json              Machine-readable output
  -v, --verbose       Log to stderr at debug level
  -h, --help          Show this help
  -V, --version       Show version
`

// PrintUsage writes the usage text to stdout.
func PrintUsage() {
	fmt.Fprint(os.Stdout, usageText)
}

// VersionInfo is the version payload for text and JSON output.
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
}

// CurrentVersion returns the build's version info.
func CurrentVersion() VersionInfo {
	return VersionInfo{Version: Version, GitCommit: GitCommit, BuildDate: BuildDate}
}

func (v VersionInfo) String() string {
	return fmt.Sprintf("veil %s (commit %s, built %s)", v.Version, v.GitCommit, v.BuildDate)
}
