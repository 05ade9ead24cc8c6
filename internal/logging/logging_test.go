// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{" error ", zerolog.ErrorLevel},
		{"", zerolog.WarnLevel},
		{"nonsense", zerolog.WarnLevel},
		{"disabled", zerolog.Disabled},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetup_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Level: "info", Out: &buf})
	logger.Info().Str("op", "set_real").Msg("credential stored")

	out := buf.String()
	if !strings.Contains(out, `"op":"set_real"`) {
		t.Errorf("expected structured field in output, got %q", out)
	}
	if !strings.Contains(out, `"app":"veil"`) {
		t.Errorf("expected app field in output, got %q", out)
	}
}

func TestSetup_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Level: "error", Out: &buf})
	logger.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("info line written at error level: %q", buf.String())
	}
	Setup(Options{Level: "warn", Out: &bytes.Buffer{}})
}
