// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/jeranaias/veil/internal/config"
	"github.com/jeranaias/veil/internal/core"
	"github.com/jeranaias/veil/internal/logging"
)

// =============================================================================
// ENTRY POINT
// =============================================================================

// Main runs veil with argv (without the program name) and returns the exit
// code.
func Main(argv []string) int {
	args, err := Parse(argv)
	if err != nil {
		DisplayError(os.Stderr, args.Command, err, args.JSON)
		return GetExitCode(err)
	}

	switch args.Command {
	case CmdHelp:
		PrintUsage()
		return ExitSuccess
	case CmdVersion:
		return finish(args, runVersion(os.Stdout, args.JSON))
	case CmdCheckWeak:
		return finish(args, runCheckWeak(os.Stdout, args))
	}

	cfg, err := LoadConfig(args)
	if err != nil {
		return finish(args, err)
	}

	logOut, closeLog := logTarget(cfg, args)
	defer closeLog()
	logging.Setup(logging.Options{
		Level:   logLevel(cfg, args),
		Console: cfg.Logging.Console,
		Out:     logOut,
	})

	c, err := core.New(cfg)
	if err != nil {
		return finish(args, err)
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if args.Command == CmdTUI {
		return finish(args, RunTUI(cfg, c))
	}
	app := NewApp(cfg, c, NewTerminalPrompter(), os.Stdout, args.JSON)
	return finish(args, app.Run(ctx, args))
}

func finish(args Args, err error) int {
	if err != nil {
		DisplayError(os.Stderr, args.Command, err, args.JSON)
	}
	return GetExitCode(err)
}

// LoadConfig loads the config file named by --config, or the default path,
// then applies --data-dir.
func LoadConfig(args Args) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if args.ConfigPath != "" {
		cfg, err = config.LoadFromPath(args.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if args.DataDir != "" {
		cfg.DataDir = args.DataDir
	}
	return cfg, nil
}

func logLevel(cfg *config.Config, args Args) string {
	if args.Verbose {
		return zerolog.DebugLevel.String()
	}
	return cfg.Logging.Level
}

// logTarget picks where logs go. The TUI owns the terminal, so it logs to a
// file only when --verbose asks for it.
func logTarget(cfg *config.Config, args Args) (io.Writer, func()) {
	if args.Command != CmdTUI {
		return os.Stderr, func() {}
	}
	if !args.Verbose {
		return io.Discard, func() {}
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return io.Discard, func() {}
	}
	f, err := os.OpenFile(filepath.Join(cfg.DataDir, "debug.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return io.Discard, func() {}
	}
	return f, func() { _ = f.Close() }
}

// =============================================================================
// APP
// =============================================================================

// App runs the non-interactive commands against an open core.
type App struct {
	cfg    *config.Config
	core   *core.AuthCore
	prompt Prompter
	out    io.Writer
	json   bool
	log    zerolog.Logger
}

// NewApp creates an App. Human-readable output goes to out.
func NewApp(cfg *config.Config, c *core.AuthCore, p Prompter, out io.Writer, jsonMode bool) *App {
	return &App{
		cfg:    cfg,
		core:   c,
		prompt: p,
		out:    out,
		json:   jsonMode,
		log:    logging.Component("cli"),
	}
}

// Run dispatches one command.
func (a *App) Run(ctx context.Context, args Args) error {
	switch args.Command {
	case CmdPasscode:
		return a.runPasscode(ctx, args)
	case CmdPreset:
		return a.runPreset(ctx, args)
	case CmdDisguise:
		return a.runDisguise(ctx, args)
	case CmdPanic:
		return a.runPanic(ctx, args)
	case CmdCheckWeak:
		return runCheckWeak(a.out, args)
	case CmdVersion:
		return runVersion(a.out, a.json)
	default:
		return &ValidationError{Field: "command", Value: args.Command.String(), Reason: "not available here", Example: "veil help"}
	}
}

// printf writes human-readable output. It is silent in JSON mode.
func (a *App) printf(format string, v ...interface{}) {
	if a.json {
		return
	}
	fmt.Fprintf(a.out, format, v...)
}

// emit writes data as a JSON envelope in JSON mode.
func (a *App) emit(cmd Command, data interface{}) error {
	if !a.json {
		return nil
	}
	return NewJSONResponse(cmd.String(), data).Write(a.out)
}

func runVersion(w io.Writer, jsonMode bool) error {
	v := CurrentVersion()
	if jsonMode {
		return NewJSONResponse(CmdVersion.String(), v).Write(w)
	}
	_, err := fmt.Fprintln(w, v.String())
	return err
}
