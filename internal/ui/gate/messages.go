// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gate

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/veil/internal/content"
	"github.com/jeranaias/veil/internal/credential"
	"github.com/jeranaias/veil/internal/flow"
	"github.com/jeranaias/veil/internal/lock"
	"github.com/jeranaias/veil/internal/passcode"
	"github.com/jeranaias/veil/internal/ui/styles"
)

// =============================================================================
// MESSAGES
// =============================================================================

// StateMsg carries a lock transition that happened outside the model, e.g.
// a wipe fired by the trigger file.
type StateMsg lock.State

type verifyResultMsg struct {
	result credential.Result
	err    error
}

type submitMsg struct{}

type shakeTickMsg struct {
	seq   int
	frame int
}

type backoffTickMsg struct{}

type conversationsMsg struct {
	convs []content.Conversation
	err   error
}

type threadMsg struct {
	id   string
	msgs []content.Message
	err  error
}

type contentOpMsg struct {
	err error
}

type flowMsg struct {
	snap flow.Snapshot
}

// =============================================================================
// COMMANDS
// =============================================================================

func verifyCmd(c Core, code *passcode.Code) tea.Cmd {
	return func() tea.Msg {
		r, err := c.Verify(context.Background(), code)
		return verifyResultMsg{result: r, err: err}
	}
}

func shakeTick(seq, frame int) tea.Cmd {
	return tea.Tick(styles.ShakeFrame, func(time.Time) tea.Msg {
		return shakeTickMsg{seq: seq, frame: frame}
	})
}

func backoffTick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return backoffTickMsg{}
	})
}

func loadConversations(r *content.Router) tea.Cmd {
	return func() tea.Msg {
		convs, err := r.Conversations(context.Background())
		return conversationsMsg{convs: convs, err: err}
	}
}

func loadThread(r *content.Router, id string) tea.Cmd {
	return func() tea.Msg {
		msgs, err := r.Messages(context.Background(), id)
		return threadMsg{id: id, msgs: msgs, err: err}
	}
}

func contentOp(fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return contentOpMsg{err: fn(context.Background())}
	}
}

// flowCmd runs a flow step off the UI goroutine; steps that submit a code
// derive hashes.
func flowCmd(fn func() flow.Snapshot) tea.Cmd {
	return func() tea.Msg {
		return flowMsg{snap: fn()}
	}
}

// Watch forwards lock transitions from c to p and returns the unsubscribe
// func.
func Watch(c Core, p *tea.Program) func() {
	return c.Subscribe(func(s lock.State) {
		go p.Send(StateMsg(s))
	})
}
