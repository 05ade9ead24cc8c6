// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gate

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/veil/internal/content"
	"github.com/jeranaias/veil/internal/flow"
	"github.com/jeranaias/veil/internal/ui/styles"
	"github.com/jeranaias/veil/internal/util"
)

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var body string
	switch m.view {
	case viewLocked:
		return m.place(m.viewLocked())
	case viewList:
		body = m.viewList()
	case viewThread:
		body = m.viewThread()
	case viewSettings:
		body = m.viewSettings()
	case viewFlow:
		return m.place(m.viewFlow())
	}
	return body
}

// place centers a box in the window once the size is known.
func (m Model) place(s string) string {
	if m.width == 0 || m.height == 0 {
		return s
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, s)
}

// =============================================================================
// LOCK SCREEN
// =============================================================================

func (m Model) viewLocked() string {
	t := m.theme
	c := chromeFor(m.state.ActiveDisguise)

	dots := t.Dots(m.entry.Len(), m.entry.Capacity())
	if off := styles.ShakeOffset(m.shakeFrame); off > 0 {
		dots = strings.Repeat(" ", off) + dots
	}

	lines := []string{
		t.Title.Render(c.Title),
		t.Subtitle.Render(c.Prompt),
		"",
		dots,
	}
	if m.message != "" {
		lines = append(lines, "", t.Warning.Render(m.message))
	}
	if bar := m.backoffBar(); bar != "" {
		lines = append(lines, t.Hint.Render(bar))
	}
	if c.Hint != "" {
		lines = append(lines, "", t.Hint.Render(c.Hint))
	}
	return t.Box.Render(lipgloss.JoinVertical(lipgloss.Center, lines...))
}

// backoffBarWidth is the width of the countdown bar under the lock prompt.
const backoffBarWidth = 20

// backoffBar fills as the input delay runs out. Empty when input is open.
func (m Model) backoffBar() string {
	tr := m.core.Attempts()
	total, left := tr.Delay(), tr.Remaining()
	if total <= 0 || left <= 0 {
		return ""
	}
	return styles.RenderProgressBar(backoffBarWidth, 100*float64(total-left)/float64(total))
}

// =============================================================================
// CONTENT
// =============================================================================

// title is the header shown behind the gate: the disguise name, or the
// decoy preset name during a decoy session.
func (m Model) title() string {
	if m.state.DecoyActive {
		return m.core.Decoy().Current().Name
	}
	return chromeFor(m.state.ActiveDisguise).Title
}

func (m Model) viewList() string {
	t := m.theme
	var sb strings.Builder
	sb.WriteString(t.Header.Render(m.title()))
	sb.WriteString("\n")

	if len(m.convs) == 0 {
		sb.WriteString(t.Hint.Render("Nothing here yet."))
		sb.WriteString("\n")
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	for i, c := range m.convs {
		sb.WriteString(m.renderItem(c, i == m.selected, width))
		sb.WriteString("\n")
	}

	if m.message != "" {
		sb.WriteString(t.Error.Render(m.message))
		sb.WriteString("\n")
	}
	sb.WriteString(t.Footer.Render(strings.Join([]string{
		t.Shortcut("enter", "open"),
		t.Shortcut("n", "new"),
		t.Shortcut("d", "delete"),
		t.Shortcut("s", "passcode"),
		t.Shortcut("ctrl+l", "lock"),
	}, "  ")))
	return sb.String()
}

func (m Model) renderItem(c content.Conversation, selected bool, width int) string {
	t := m.theme
	meta := fmt.Sprintf("%d · %s", c.MessageCount, c.UpdatedAt.Local().Format("Jan 2"))
	title := util.TruncateWidth(c.Title, max(width-lipgloss.Width(meta)-6, 8))
	line := title + "  " + t.ItemMeta.Render(meta)
	if c.LastMessage != "" {
		line += "\n" + t.ItemMeta.Render(util.Preview(c.LastMessage, max(width-6, 8)))
	}
	if selected {
		return t.ItemSelected.Render(line)
	}
	return t.Item.Render(line)
}

func (m Model) viewThread() string {
	t := m.theme
	var sb strings.Builder
	for _, c := range m.convs {
		if c.ID == m.threadID {
			sb.WriteString(t.Header.Render(util.TruncateRunes(c.Title, 60)))
			sb.WriteString("\n")
			break
		}
	}
	sb.WriteString(m.viewport.View())
	sb.WriteString("\n")
	if m.composing {
		sb.WriteString(m.input.View())
		sb.WriteString("\n")
	}
	if m.message != "" {
		sb.WriteString(t.Error.Render(m.message))
		sb.WriteString("\n")
	}
	sb.WriteString(t.Footer.Render(strings.Join([]string{
		t.Shortcut("i", "write"),
		t.Shortcut("esc", "back"),
		t.Shortcut("ctrl+l", "lock"),
	}, "  ")))
	return sb.String()
}

// renderThread renders messages as markdown through glamour.
func (m Model) renderThread(msgs []content.Message) string {
	var md strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			md.WriteString("\n---\n\n")
		}
		who := "You"
		if msg.Role == "assistant" {
			who = "Assistant"
		}
		fmt.Fprintf(&md, "**%s**\n\n%s\n", who, msg.Content)
	}
	if m.renderer == nil {
		return md.String()
	}
	out, err := m.renderer.Render(md.String())
	if err != nil {
		return md.String()
	}
	return out
}

// =============================================================================
// SETTINGS AND FLOWS
// =============================================================================

func (m Model) viewSettings() string {
	t := m.theme
	var sb strings.Builder
	sb.WriteString(t.Header.Render("Passcode"))
	sb.WriteString("\n")
	for i, item := range m.settingItems() {
		if i == m.settingSel {
			sb.WriteString(t.ItemSelected.Render(item.label))
		} else {
			sb.WriteString(t.Item.Render(item.label))
		}
		sb.WriteString("\n")
	}
	sb.WriteString(t.Footer.Render(strings.Join([]string{
		t.Shortcut("enter", "choose"),
		t.Shortcut("esc", "back"),
	}, "  ")))
	return sb.String()
}

func (m Model) viewFlow() string {
	t := m.theme
	s := m.flowSnap

	lines := []string{t.Title.Render(flowTitle(s.Kind))}
	switch {
	case s.Done && s.Feedback == flow.FeedbackSuccess:
		lines = append(lines, "", t.Done.Render(s.Message))
	case s.Done:
		lines = append(lines, "", t.Subtitle.Render(s.Message))
	case s.Step == flow.StepWeak:
		lines = append(lines, "", t.Warning.Render(s.Message), "",
			t.Shortcut("y", "use anyway")+"  "+t.Shortcut("n", "choose another"))
	default:
		dots := t.Dots(s.Entered, s.Length)
		if s.Feedback == flow.FeedbackShake {
			dots = strings.Repeat(" ", styles.ShakeOffsets[1]) + dots
		}
		msgStyle := t.Subtitle
		if s.Feedback == flow.FeedbackShake {
			msgStyle = t.Error
		}
		lines = append(lines, msgStyle.Render(s.Message), "", dots)
	}
	if s.Done {
		lines = append(lines, "", t.Hint.Render("Press any key"))
	}
	return t.Box.Render(lipgloss.JoinVertical(lipgloss.Center, lines...))
}

func flowTitle(k flow.Kind) string {
	switch k {
	case flow.CreateReal:
		return "Set passcode"
	case flow.CreateDuress:
		return "Set duress code"
	case flow.ChangeReal:
		return "Change passcode"
	case flow.ChangeDuress:
		return "Change duress code"
	case flow.Remove:
		return "Turn passcode off"
	case flow.RemoveDuress:
		return "Remove duress code"
	default:
		return "Passcode"
	}
}
