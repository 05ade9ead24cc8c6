// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"golang.org/x/time/rate"

	"github.com/jeranaias/veil/internal/attempts"
	"github.com/jeranaias/veil/internal/config"
	"github.com/jeranaias/veil/internal/content"
	"github.com/jeranaias/veil/internal/core"
	"github.com/jeranaias/veil/internal/credential"
	"github.com/jeranaias/veil/internal/decoy"
	"github.com/jeranaias/veil/internal/flow"
	"github.com/jeranaias/veil/internal/lock"
	"github.com/jeranaias/veil/internal/passcode"
	"github.com/jeranaias/veil/internal/ui/styles"
)

// Core is the part of core.AuthCore the gate drives.
type Core interface {
	Verify(ctx context.Context, code *passcode.Code) (credential.Result, error)
	State() lock.State
	Subscribe(fn func(lock.State)) func()
	Background() lock.State
	Foreground() lock.State
	Lock() lock.State
	PasscodeLength() int
	IsPasscodeSet() bool
	HasDuress() bool
	PanicKey(key string, at time.Time) bool
	IsPanicKey(key string) bool
	Attempts() *attempts.Tracker
	Content() *content.Router
	Decoy() *decoy.Manager
	Flow(kind flow.Kind) *flow.Controller
}

// view is the screen the model is showing.
type view int

const (
	viewLocked view = iota
	viewList
	viewThread
	viewSettings
	viewFlow
)

// Model is the bubbletea model for the lock gate and the content behind it.
//
// SECURITY: Digits live only in a locked passcode.Entry. Leaving the
// foreground, locking and quitting all wipe it.
type Model struct {
	core    Core
	theme   *styles.Theme
	keys    KeyMap
	limiter *rate.Limiter
	now     func() time.Time

	view  view
	state lock.State

	// Lock screen
	entry      *passcode.Entry
	verifying  bool
	shakeSeq   int
	shakeFrame int
	message    string

	// Content
	convs     []content.Conversation
	selected  int
	threadID  string
	viewport  viewport.Model
	input     textinput.Model
	composing bool
	renderer  *glamour.TermRenderer

	// Settings
	settingSel int
	flow       *flow.Controller
	flowSnap   flow.Snapshot
	flowBusy   bool

	width  int
	height int

	quitting bool
}

// Option configures a Model.
type Option func(*Model)

// WithClock overrides the clock used for the panic gesture.
func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		m.now = now
	}
}

// New creates the gate model.
func New(c Core, cfg config.UIConfig, opts ...Option) Model {
	limit := rate.Inf
	if cfg.DebounceMs > 0 {
		limit = rate.Every(time.Duration(cfg.DebounceMs) * time.Millisecond)
	}

	input := textinput.New()
	input.Placeholder = "Write something"
	input.CharLimit = 4000

	m := Model{
		core:       c,
		theme:      styles.NewTheme(cfg.Theme),
		keys:       DefaultKeyMap(),
		limiter:    rate.NewLimiter(limit, 1),
		now:        time.Now,
		state:      c.State(),
		entry:      passcode.NewEntry(c.PasscodeLength()),
		shakeFrame: -1,
		viewport:   viewport.New(80, 20),
		input:      input,
	}
	for _, opt := range opts {
		opt(&m)
	}
	if !m.state.IsLocked() {
		m.view = viewList
	}
	m.renderer = newRenderer(m.theme, 80)
	return m
}

func newRenderer(theme *styles.Theme, width int) *glamour.TermRenderer {
	style := "light"
	if theme.IsDark {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithColorProfile(theme.ColorProfile),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	if m.state.IsLocked() {
		return nil
	}
	return loadConversations(m.core.Content())
}

// =============================================================================
// UPDATE
// =============================================================================

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-4, 1)
		m.input.Width = max(msg.Width-4, 10)
		m.renderer = newRenderer(m.theme, max(msg.Width-4, 20))
		return m, nil

	// RELIABILITY: Focus reporting is the terminal's lifecycle signal; both
	// are forwarded before anything else renders.
	case tea.BlurMsg:
		m.core.Background()
		m.entry.Reset()
		m.message = ""
		return m.syncState()

	case tea.FocusMsg:
		m.core.Foreground()
		return m.syncState()

	case StateMsg:
		return m.syncState()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case submitMsg:
		return m.submit()

	case verifyResultMsg:
		return m.handleVerify(msg)

	case shakeTickMsg:
		if msg.seq != m.shakeSeq {
			return m, nil
		}
		if msg.frame >= len(styles.ShakeOffsets) {
			m.shakeFrame = -1
			return m, nil
		}
		m.shakeFrame = msg.frame
		return m, shakeTick(msg.seq, msg.frame+1)

	case backoffTickMsg:
		if !m.state.IsLocked() {
			return m, nil
		}
		if d := m.core.Attempts().Remaining(); d > 0 {
			m.message = backoffMessage(d)
			return m, backoffTick()
		}
		m.message = ""
		return m, nil

	case conversationsMsg:
		if m.state.IsLocked() {
			return m, nil
		}
		if msg.err != nil {
			m.message = "Could not load."
			return m, nil
		}
		m.convs = msg.convs
		if m.selected >= len(m.convs) {
			m.selected = max(len(m.convs)-1, 0)
		}
		return m, nil

	case threadMsg:
		if m.state.IsLocked() || msg.id != m.threadID {
			return m, nil
		}
		if msg.err != nil {
			m.message = "Could not load."
			return m, nil
		}
		m.viewport.SetContent(m.renderThread(msg.msgs))
		m.viewport.GotoBottom()
		return m, nil

	case contentOpMsg:
		if m.state.IsLocked() {
			return m, nil
		}
		if msg.err != nil {
			m.message = "Could not save."
		}
		if m.view == viewThread {
			return m, loadThread(m.core.Content(), m.threadID)
		}
		return m, loadConversations(m.core.Content())

	case flowMsg:
		m.flowBusy = false
		if m.flow == nil {
			return m, nil
		}
		m.flowSnap = msg.snap
		// A failed write locks the core under the flow.
		if m.core.State().IsLocked() {
			return m.syncState()
		}
		return m, nil
	}
	return m, nil
}

// syncState pulls the lock state from the core and moves the view to match.
func (m Model) syncState() (tea.Model, tea.Cmd) {
	prev := m.state
	m.state = m.core.State()

	if m.state.IsLocked() {
		if !prev.IsLocked() || m.view != viewLocked {
			m.resetUnlocked()
		}
		m.view = viewLocked
		return m, nil
	}
	if prev.IsLocked() || prev.DecoyActive != m.state.DecoyActive || m.view == viewLocked {
		m.resetUnlocked()
		m.view = viewList
		return m, loadConversations(m.core.Content())
	}
	return m, nil
}

// resetUnlocked drops everything shown behind the gate.
func (m *Model) resetUnlocked() {
	m.entry.Reset()
	m.verifying = false
	m.message = ""
	m.convs = nil
	m.selected = 0
	m.threadID = ""
	m.viewport.SetContent("")
	m.input.Reset()
	m.input.Blur()
	m.composing = false
	m.settingSel = 0
	m.closeFlow()
}

func (m *Model) closeFlow() {
	if m.flow != nil {
		m.flow.Close()
		m.flow = nil
	}
	m.flowSnap = flow.Snapshot{}
	m.flowBusy = false
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// The panic gesture is checked first in every state and never reaches
	// the views.
	if k := msg.String(); m.core.IsPanicKey(k) {
		if m.core.PanicKey(k, m.now()) {
			return m.syncState()
		}
		return m, nil
	}

	if key.Matches(msg, m.keys.Quit) {
		m.core.Lock()
		m.resetUnlocked()
		m.entry.Destroy()
		m.quitting = true
		return m, tea.Quit
	}

	switch m.view {
	case viewLocked:
		return m.updateLocked(msg)
	case viewList:
		return m.updateList(msg)
	case viewThread:
		return m.updateThread(msg)
	case viewSettings:
		return m.updateSettings(msg)
	case viewFlow:
		return m.updateFlow(msg)
	}
	return m, nil
}

// =============================================================================
// LOCK SCREEN
// =============================================================================

func (m Model) updateLocked(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.verifying {
		return m, nil
	}
	if key.Matches(msg, m.keys.Backspace) {
		m.entry.Backspace()
		return m, nil
	}
	if msg.Type != tea.KeyRunes {
		return m, nil
	}
	if d := m.core.Attempts().Remaining(); d > 0 {
		m.entry.Reset()
		m.message = backoffMessage(d)
		return m, backoffTick()
	}

	m.message = ""
	for _, r := range msg.Runes {
		m.entry.Append(r)
	}
	if !m.entry.Full() {
		return m, nil
	}

	// Debounce delays a submission rather than dropping it.
	m.verifying = true
	now := m.now()
	if d := m.limiter.ReserveN(now, 1).DelayFrom(now); d > 0 {
		return m, tea.Tick(d, func(time.Time) tea.Msg { return submitMsg{} })
	}
	return m.submit()
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if !m.state.IsLocked() || !m.entry.Full() {
		m.verifying = false
		return m, nil
	}
	code := m.entry.Take()
	m.verifying = true
	return m, verifyCmd(m.core, code)
}

func (m Model) handleVerify(msg verifyResultMsg) (tea.Model, tea.Cmd) {
	m.verifying = false

	switch {
	case errors.Is(msg.err, core.ErrBusy):
		return m, nil
	case errors.Is(msg.err, core.ErrWipedDuringVerify), errors.Is(msg.err, core.ErrInterrupted):
		// SECURITY: A wipe leaves no message behind.
		return m.syncState()
	case msg.err != nil:
		next, cmd := m.syncState()
		nm := next.(Model)
		nm.message = "Something went wrong. Try again."
		return nm.startShake(cmd)
	}

	if msg.result == credential.Invalid {
		var cmd tea.Cmd
		if d := m.core.Attempts().Remaining(); d > 0 {
			m.message = backoffMessage(d)
			cmd = backoffTick()
		}
		return m.startShake(cmd)
	}
	return m.syncState()
}

func (m Model) startShake(extra tea.Cmd) (tea.Model, tea.Cmd) {
	m.shakeSeq++
	m.shakeFrame = 0
	return m, tea.Batch(shakeTick(m.shakeSeq, 1), extra)
}

func backoffMessage(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)
	return fmt.Sprintf("Try again in %ds", secs)
}

// =============================================================================
// CONTENT
// =============================================================================

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.message = ""
	router := m.core.Content()

	switch {
	case key.Matches(msg, m.keys.Lock):
		m.core.Lock()
		return m.syncState()

	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
		}
	case key.Matches(msg, m.keys.Down):
		if m.selected < len(m.convs)-1 {
			m.selected++
		}

	case key.Matches(msg, m.keys.Open):
		if len(m.convs) == 0 {
			return m, nil
		}
		m.threadID = m.convs[m.selected].ID
		m.view = viewThread
		m.viewport.SetContent("")
		return m, loadThread(router, m.threadID)

	case key.Matches(msg, m.keys.New):
		return m, contentOp(func(ctx context.Context) error {
			_, err := router.CreateConversation(ctx, "Untitled")
			return err
		})

	case key.Matches(msg, m.keys.Delete):
		if len(m.convs) == 0 {
			return m, nil
		}
		id := m.convs[m.selected].ID
		return m, contentOp(func(ctx context.Context) error {
			return router.DeleteConversation(ctx, id)
		})

	case key.Matches(msg, m.keys.Settings):
		m.settingSel = 0
		m.view = viewSettings
	}
	return m, nil
}

func (m Model) updateThread(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	router := m.core.Content()

	if m.composing {
		switch {
		case key.Matches(msg, m.keys.Back):
			m.composing = false
			m.input.Blur()
			return m, nil
		case key.Matches(msg, m.keys.Open):
			text := m.input.Value()
			m.input.Reset()
			if text == "" {
				return m, nil
			}
			id := m.threadID
			return m, contentOp(func(ctx context.Context) error {
				_, err := router.AddMessage(ctx, id, "user", text)
				return err
			})
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Lock):
		m.core.Lock()
		return m.syncState()
	case key.Matches(msg, m.keys.Back):
		m.view = viewList
		m.threadID = ""
		return m, loadConversations(router)
	case key.Matches(msg, m.keys.Compose):
		m.composing = true
		return m, m.input.Focus()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// =============================================================================
// SETTINGS AND FLOWS
// =============================================================================

type settingItem struct {
	kind  flow.Kind
	label string
}

func (m Model) settingItems() []settingItem {
	if !m.core.IsPasscodeSet() {
		return []settingItem{{flow.CreateReal, "Set passcode"}}
	}
	items := []settingItem{
		{flow.ChangeReal, "Change passcode"},
		{flow.Remove, "Turn passcode off"},
	}
	if m.core.HasDuress() {
		items = append(items,
			settingItem{flow.ChangeDuress, "Change duress code"},
			settingItem{flow.RemoveDuress, "Remove duress code"})
	} else {
		items = append(items, settingItem{flow.CreateDuress, "Set duress code"})
	}
	return items
}

func (m Model) updateSettings(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	items := m.settingItems()
	switch {
	case key.Matches(msg, m.keys.Lock):
		m.core.Lock()
		return m.syncState()
	case key.Matches(msg, m.keys.Back):
		m.view = viewList
		return m, loadConversations(m.core.Content())
	case key.Matches(msg, m.keys.Up):
		if m.settingSel > 0 {
			m.settingSel--
		}
	case key.Matches(msg, m.keys.Down):
		if m.settingSel < len(items)-1 {
			m.settingSel++
		}
	case key.Matches(msg, m.keys.Open):
		if m.settingSel >= len(items) {
			return m, nil
		}
		m.closeFlow()
		m.flow = m.core.Flow(items[m.settingSel].kind)
		m.flowSnap = m.flow.Snapshot()
		m.view = viewFlow
	}
	return m, nil
}

func (m Model) updateFlow(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.flow == nil || m.flowBusy {
		return m, nil
	}
	f := m.flow

	if m.flowSnap.Done {
		m.closeFlow()
		m.settingSel = 0
		m.view = viewSettings
		return m, nil
	}

	switch {
	case m.flowSnap.Step == flow.StepWeak && key.Matches(msg, m.keys.AcceptYes):
		m.flowBusy = true
		return m, flowCmd(f.AcceptWeak)
	case m.flowSnap.Step == flow.StepWeak && key.Matches(msg, m.keys.AcceptNo):
		m.flowSnap = f.RejectWeak()
		return m, nil
	case key.Matches(msg, m.keys.Back):
		m.flowSnap = f.Cancel()
		return m, nil
	case key.Matches(msg, m.keys.Backspace):
		m.flowSnap = f.Backspace()
		return m, nil
	}

	if msg.Type != tea.KeyRunes || len(msg.Runes) == 0 || m.flowSnap.Step == flow.StepWeak {
		return m, nil
	}
	runes := msg.Runes
	m.flowBusy = true
	return m, flowCmd(func() flow.Snapshot {
		var s flow.Snapshot
		for _, r := range runes {
			s = f.Digit(r)
		}
		return s
	})
}
