// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging configures the process-wide zerolog logger.
//
// SECURITY: Nothing on the verify, duress or panic-wipe paths logs. A log line
// written only on one validation branch would tell an observer which code was
// entered, and a wipe must leave no trace. Setup operations, storage failures
// and lifecycle errors are the only security-relevant events that log, and
// they never include code material.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options controls logger construction.
type Options struct {
	// Level is a zerolog level name: "debug", "info", "warn", "error", "disabled".
	Level string
	// Console selects the human-readable console writer.
	Console bool
	// Out defaults to stderr.
	Out io.Writer
}

// Setup installs the global logger and returns it.
func Setup(opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if opts.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(ParseLevel(opts.Level))

	logger := zerolog.New(out).With().Timestamp().Str("app", "veil").Logger()
	log.Logger = logger
	return logger
}

// ParseLevel maps a config string to a zerolog level, defaulting to warn so
// a misconfigured file never turns on debug output.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || s == "" {
		return zerolog.WarnLevel
	}
	return lvl
}

// Component returns a child logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
