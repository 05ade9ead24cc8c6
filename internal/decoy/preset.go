// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package decoy

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed presets/*.yaml
var builtinPresets embed.FS

// Preset is a canned content domain shown under duress.
type Preset struct {
	ID          string             `yaml:"id"`
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Seed        []SeedConversation `yaml:"seed"`
}

// SeedConversation is one conversation written into the decoy store.
type SeedConversation struct {
	Title    string        `yaml:"title"`
	Messages []SeedMessage `yaml:"messages"`
}

// SeedMessage is one message of a seed conversation.
type SeedMessage struct {
	Role    string `yaml:"role"`
	Content string `yaml:"content"`
}

// BuiltinPresets returns the presets shipped in the binary, sorted by ID.
func BuiltinPresets() ([]Preset, error) {
	return loadFS(builtinPresets, "presets")
}

// LoadPresets returns the built-in presets plus any *.yaml packs in dir.
// A user pack with the same ID replaces the built-in one. An empty dir
// yields only the built-ins.
func LoadPresets(dir string) ([]Preset, error) {
	presets, err := BuiltinPresets()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return presets, nil
	}
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return presets, nil
	}
	user, err := loadFS(os.DirFS(dir), ".")
	if err != nil {
		return nil, fmt.Errorf("failed to load presets from %s: %w", dir, err)
	}
	return merge(presets, user), nil
}

func loadFS(fsys fs.FS, dir string) ([]Preset, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	var out []Preset
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		data, err := fs.ReadFile(fsys, filepath.ToSlash(filepath.Join(dir, e.Name())))
		if err != nil {
			return nil, err
		}
		p, err := ParsePreset(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ParsePreset decodes and validates one YAML preset pack.
func ParsePreset(data []byte) (Preset, error) {
	var p Preset
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Preset{}, fmt.Errorf("invalid preset: %w", err)
	}
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		return Preset{}, errors.New("invalid preset: missing id")
	}
	if p.Name == "" {
		p.Name = p.ID
	}
	for _, c := range p.Seed {
		for _, m := range c.Messages {
			if m.Role != "user" && m.Role != "assistant" {
				return Preset{}, fmt.Errorf("invalid preset %s: unknown role %q", p.ID, m.Role)
			}
		}
	}
	return p, nil
}

func merge(base, extra []Preset) []Preset {
	byID := make(map[string]Preset, len(base)+len(extra))
	for _, p := range base {
		byID[p.ID] = p
	}
	for _, p := range extra {
		byID[p.ID] = p
	}
	out := make([]Preset, 0, len(byID))
	for _, p := range byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
