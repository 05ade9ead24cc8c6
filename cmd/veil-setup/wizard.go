// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/veil/internal/config"
	"github.com/jeranaias/veil/internal/decoy"
	"github.com/jeranaias/veil/internal/ui/styles"
)

// minFreeBytes is the free space the data directory should have for the
// content stores and the sealed vault.
const minFreeBytes = 16 << 20

// =============================================================================
// WIZARD MODEL
// =============================================================================

// Phase is the current wizard screen.
type Phase int

const (
	PhaseWelcome Phase = iota
	PhaseCheck
	PhaseDisguise
	PhasePreset
	PhaseWrite
	PhaseDone
)

// CheckResult is one pre-flight check.
type CheckResult struct {
	Name    string
	Status  string // "pass", "warn", "fail"
	Message string
}

// Wizard walks through first-run settings and writes the config file.
type Wizard struct {
	cfg  *config.Config
	path string

	phase   Phase
	width   int
	height  int
	theme   *styles.Theme
	spinner spinner.Model

	checks  []CheckResult
	modes   []config.DisguiseMode
	presets []decoy.Preset
	cursor  int
	err     error
}

// NewWizard creates a wizard that edits cfg and saves it to path.
func NewWizard(cfg *config.Config, path string, presets []decoy.Preset) *Wizard {
	s := spinner.New()
	s.Spinner = spinner.Dot

	sorted := append([]decoy.Preset(nil), presets...)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].ID < sorted[b].ID })

	theme := styles.NewTheme(cfg.UI.Theme)
	s.Style = theme.Key

	return &Wizard{
		cfg:     cfg,
		path:    path,
		theme:   theme,
		spinner: s,
		modes:   cfg.Disguise.Modes,
		presets: sorted,
	}
}

// Init implements tea.Model.
func (w *Wizard) Init() tea.Cmd {
	return w.spinner.Tick
}

type checksDoneMsg struct {
	results []CheckResult
}

type writeDoneMsg struct {
	err error
}

// Update implements tea.Model.
func (w *Wizard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return w.handleKey(msg)

	case tea.WindowSizeMsg:
		w.width = msg.Width
		w.height = msg.Height
		return w, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		w.spinner, cmd = w.spinner.Update(msg)
		return w, cmd

	case checksDoneMsg:
		w.checks = msg.results
		return w, nil

	case writeDoneMsg:
		w.err = msg.err
		if msg.err == nil {
			w.phase = PhaseDone
		}
		return w, nil
	}
	return w, nil
}

func (w *Wizard) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return w, tea.Quit

	case "enter", " ":
		return w.handleSelect()

	case "esc":
		switch w.phase {
		case PhaseDisguise:
			w.phase = PhaseCheck
		case PhasePreset:
			w.enterDisguise()
		}
		return w, nil

	case "up", "k":
		if w.cursor > 0 {
			w.cursor--
		}
		return w, nil

	case "down", "j":
		if w.cursor < w.choices()-1 {
			w.cursor++
		}
		return w, nil
	}
	return w, nil
}

func (w *Wizard) handleSelect() (tea.Model, tea.Cmd) {
	switch w.phase {
	case PhaseWelcome:
		w.phase = PhaseCheck
		return w, runChecks(w.cfg, w.path)

	case PhaseCheck:
		if w.checks == nil || w.checksFailed() {
			return w, nil
		}
		w.enterDisguise()

	case PhaseDisguise:
		w.cfg.Disguise.Default = w.modes[w.cursor].ID
		w.phase = PhasePreset
		w.cursor = 0
		for i, p := range w.presets {
			if p.ID == w.cfg.Decoy.DefaultPreset {
				w.cursor = i
			}
		}

	case PhasePreset:
		w.cfg.Decoy.DefaultPreset = w.presets[w.cursor].ID
		w.phase = PhaseWrite
		w.err = nil
		return w, writeConfig(w.cfg, w.path)

	case PhaseWrite:
		if w.err != nil {
			return w, writeConfig(w.cfg, w.path)
		}

	case PhaseDone:
		return w, tea.Quit
	}
	return w, nil
}

func (w *Wizard) enterDisguise() {
	w.phase = PhaseDisguise
	w.cursor = 0
	for i, m := range w.modes {
		if m.ID == w.cfg.Disguise.Default {
			w.cursor = i
		}
	}
}

func (w *Wizard) choices() int {
	switch w.phase {
	case PhaseDisguise:
		return len(w.modes)
	case PhasePreset:
		return len(w.presets)
	default:
		return 0
	}
}

func (w *Wizard) checksFailed() bool {
	for _, c := range w.checks {
		if c.Status == "fail" {
			return true
		}
	}
	return false
}

// =============================================================================
// COMMANDS
// =============================================================================

func runChecks(cfg *config.Config, path string) tea.Cmd {
	return func() tea.Msg {
		return checksDoneMsg{results: []CheckResult{
			checkDataDir(cfg.DataDir),
			checkDisk(cfg.DataDir),
			checkExisting(path),
		}}
	}
}

// checkDataDir makes sure the data directory exists, is private and takes
// writes.
func checkDataDir(dir string) CheckResult {
	r := CheckResult{Name: "Data directory"}
	if err := os.MkdirAll(dir, 0700); err != nil {
		r.Status, r.Message = "fail", err.Error()
		return r
	}
	f, err := os.CreateTemp(dir, ".veil-setup-*")
	if err != nil {
		r.Status, r.Message = "fail", "not writable: "+err.Error()
		return r
	}
	name := f.Name()
	f.Close()
	os.Remove(name)

	info, err := os.Stat(dir)
	if err == nil && info.Mode().Perm()&0077 != 0 {
		r.Status, r.Message = "warn", fmt.Sprintf("%s is readable by other users (%o)", dir, info.Mode().Perm())
		return r
	}
	r.Status, r.Message = "pass", dir
	return r
}

func checkDisk(dir string) CheckResult {
	r := CheckResult{Name: "Disk space"}
	free, err := freeDiskSpace(dir)
	switch {
	case err != nil:
		r.Status, r.Message = "warn", "could not check: "+err.Error()
	case free < minFreeBytes:
		r.Status, r.Message = "fail", fmt.Sprintf("only %d MB free", free>>20)
	default:
		r.Status, r.Message = "pass", fmt.Sprintf("%d MB free", free>>20)
	}
	return r
}

func checkExisting(path string) CheckResult {
	r := CheckResult{Name: "Config file"}
	if _, err := os.Stat(path); err == nil {
		r.Status, r.Message = "warn", path+" exists and will be replaced"
		return r
	}
	r.Status, r.Message = "pass", path
	return r
}

func writeConfig(cfg *config.Config, path string) tea.Cmd {
	return func() tea.Msg {
		if err := cfg.Validate(); err != nil {
			return writeDoneMsg{err: err}
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return writeDoneMsg{err: err}
		}
		return writeDoneMsg{err: config.Save(cfg, path)}
	}
}

// =============================================================================
// VIEW
// =============================================================================

// View implements tea.Model.
func (w *Wizard) View() string {
	var body string
	switch w.phase {
	case PhaseWelcome:
		body = w.viewWelcome()
	case PhaseCheck:
		body = w.viewChecks()
	case PhaseDisguise:
		body = w.viewDisguise()
	case PhasePreset:
		body = w.viewPreset()
	case PhaseWrite:
		body = w.viewWrite()
	case PhaseDone:
		body = w.viewDone()
	}
	box := w.theme.Box.Render(body)
	if w.width == 0 || w.height == 0 {
		return box
	}
	return lipgloss.Place(w.width, w.height, lipgloss.Center, lipgloss.Center, box)
}

func (w *Wizard) viewWelcome() string {
	t := w.theme
	return lipgloss.JoinVertical(lipgloss.Left,
		t.Title.Render("veil setup"),
		t.Subtitle.Render("A private notebook behind a passcode."),
		"",
		"This picks how veil looks when locked and what a duress",
		"code shows. You set the codes themselves inside the app.",
		"",
		t.Footer.Render(t.Shortcut("enter", "start")+"  "+t.Shortcut("q", "quit")),
	)
}

func (w *Wizard) viewChecks() string {
	t := w.theme
	lines := []string{t.Title.Render("Checking")}
	if w.checks == nil {
		lines = append(lines, w.spinner.View()+" Looking around...")
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}
	for _, c := range w.checks {
		var mark string
		switch c.Status {
		case "pass":
			mark = t.Done.Render("ok  ")
		case "warn":
			mark = t.Warning.Render("warn")
		default:
			mark = t.Error.Render("fail")
		}
		lines = append(lines, fmt.Sprintf("%s %-15s %s", mark, c.Name, t.ItemMeta.Render(c.Message)))
	}
	lines = append(lines, "")
	if w.checksFailed() {
		lines = append(lines, t.Error.Render("Fix the failed checks and run setup again."))
		lines = append(lines, t.Footer.Render(t.Shortcut("q", "quit")))
	} else {
		lines = append(lines, t.Footer.Render(t.Shortcut("enter", "continue")))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (w *Wizard) viewDisguise() string {
	t := w.theme
	lines := []string{
		t.Title.Render("Disguise"),
		t.Subtitle.Render("How veil looks while locked."),
		"",
	}
	for i, m := range w.modes {
		label := m.Name
		if !m.RequiresPasscode {
			label += t.ItemMeta.Render("  opens without a passcode")
		}
		lines = append(lines, w.item(label, i == w.cursor))
	}
	lines = append(lines, "", w.navHint())
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (w *Wizard) viewPreset() string {
	t := w.theme
	lines := []string{
		t.Title.Render("Decoy content"),
		t.Subtitle.Render("What a duress code opens."),
		"",
	}
	for i, p := range w.presets {
		lines = append(lines, w.item(p.Name, i == w.cursor))
		if i == w.cursor && p.Description != "" {
			lines = append(lines, "    "+t.ItemMeta.Render(p.Description))
		}
	}
	lines = append(lines, "", w.navHint())
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (w *Wizard) viewWrite() string {
	t := w.theme
	if w.err != nil {
		return lipgloss.JoinVertical(lipgloss.Left,
			t.Title.Render("Saving"),
			t.Error.Render("Could not save: "+w.err.Error()),
			"",
			t.Footer.Render(t.Shortcut("enter", "retry")+"  "+t.Shortcut("q", "quit")),
		)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		t.Title.Render("Saving"),
		w.spinner.View()+" Writing "+w.path,
	)
}

func (w *Wizard) viewDone() string {
	t := w.theme
	return lipgloss.JoinVertical(lipgloss.Left,
		t.Title.Render("Done"),
		t.Done.Render("Saved "+w.path),
		"",
		"Next, open veil and set a passcode:",
		t.Key.Render("  veil passcode set"),
		t.Key.Render("  veil passcode duress"),
		"",
		t.Footer.Render(t.Shortcut("enter", "close")),
	)
}

func (w *Wizard) item(label string, selected bool) string {
	if selected {
		return w.theme.ItemSelected.Render("> " + label)
	}
	return w.theme.Item.Render("  " + label)
}

func (w *Wizard) navHint() string {
	t := w.theme
	return t.Footer.Render(strings.Join([]string{
		t.Shortcut("↑/↓", "move"),
		t.Shortcut("enter", "choose"),
		t.Shortcut("esc", "back"),
	}, "  "))
}
