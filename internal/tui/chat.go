// Package tui is the terminal chat screen. It follows the bubbletea model:
// state lives in Chat, Update applies one message, View renders it.
//
// The screen never mutates realtime state itself. It renders snapshots the
// manager publishes and calls the manager's actions.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rkvalley/campus/internal/chat"
	"github.com/rkvalley/campus/internal/model"
	"github.com/rkvalley/campus/internal/realtime"
)

// TypingIdle is how long after the last keystroke typingStop is sent.
const TypingIdle = 2 * time.Second

// Actions is the realtime surface the screen drives.
type Actions interface {
	Send(receiverID, body string)
	RequestHistory(otherID string)
	StartTyping(receiverID string)
	StopTyping(receiverID string)
}

type focus int

const (
	focusUsers focus = iota
	focusInput
)

type snapshotMsg realtime.Snapshot

type updatesClosedMsg struct{}

type typingIdleMsg struct{ seq int }

type keyMap struct {
	Up, Down, Select, Switch, Quit key.Binding
}

var keys = keyMap{
	Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Select: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open / send")),
	Switch: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch pane")),
	Quit:   key.NewBinding(key.WithKeys("ctrl+c", "esc"), key.WithHelp("esc", "quit")),
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	onlineStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#28A745"))
	offlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C757D"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#0D6EFD"))
	ownStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
)

var paneStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("#444444")).
	Padding(0, 1)

// Chat is the chat screen model.
type Chat struct {
	self    model.Identity
	actions Actions
	updates <-chan realtime.Snapshot

	users    []model.Identity
	cursor   int
	selected string
	snap     realtime.Snapshot
	focus    focus

	input    textinput.Model
	viewport viewport.Model

	typingTo  string // peer we last sent typingStart to
	typingSeq int
	status    string
	statusErr bool

	width, height int
}

// NewChat builds the screen for self. users is the contact list; updates is a
// realtime subscription channel. If peer is non-empty that conversation is
// opened on start.
func NewChat(self model.Identity, users []model.Identity, actions Actions, updates <-chan realtime.Snapshot, peer string) *Chat {
	in := textinput.New()
	in.Placeholder = "Type a message..."
	in.CharLimit = chat.MaxTextChars
	in.Prompt = "> "

	c := &Chat{
		self:     self,
		actions:  actions,
		updates:  updates,
		users:    contacts(users, self.ID),
		input:    in,
		viewport: viewport.New(60, 15),
		snap:     realtime.Snapshot{Typing: map[string]bool{}},
	}
	if peer != "" {
		for i, u := range c.users {
			if u.ID == peer {
				c.cursor = i
				break
			}
		}
		c.selected = peer
		c.focus = focusInput
		c.input.Focus()
	}
	c.refreshConversation()
	return c
}

// contacts drops self from the list; one does not chat with oneself.
func contacts(users []model.Identity, selfID string) []model.Identity {
	out := make([]model.Identity, 0, len(users))
	for _, u := range users {
		if u.ID != "" && u.ID != selfID {
			out = append(out, u)
		}
	}
	return out
}

func waitForSnapshot(ch <-chan realtime.Snapshot) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return updatesClosedMsg{}
		}
		return snapshotMsg(snap)
	}
}

// Init requests history for a preselected peer and starts listening.
func (c *Chat) Init() tea.Cmd {
	if c.selected != "" {
		c.actions.RequestHistory(c.selected)
	}
	return tea.Batch(waitForSnapshot(c.updates), textinput.Blink)
}

// Update applies one message.
func (c *Chat) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		c.width, c.height = msg.Width, msg.Height
		c.viewport.Width = max(20, msg.Width-listWidth(msg.Width)-8)
		c.viewport.Height = max(3, msg.Height-10)
		c.input.Width = c.viewport.Width - 2
		c.refreshConversation()
		return c, nil

	case snapshotMsg:
		c.snap = realtime.Snapshot(msg)
		c.refreshConversation()
		return c, waitForSnapshot(c.updates)

	case updatesClosedMsg:
		c.setStatus("realtime connection closed", true)
		return c, nil

	case typingIdleMsg:
		if msg.seq == c.typingSeq {
			c.stopTyping()
		}
		return c, nil

	case tea.KeyMsg:
		return c.handleKey(msg)
	}

	var cmd tea.Cmd
	c.viewport, cmd = c.viewport.Update(msg)
	return c, cmd
}

func (c *Chat) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		c.stopTyping()
		return c, tea.Quit
	case key.Matches(msg, keys.Switch):
		c.toggleFocus()
		return c, nil
	}

	if c.focus == focusUsers {
		switch {
		case key.Matches(msg, keys.Up):
			if c.cursor > 0 {
				c.cursor--
			}
		case key.Matches(msg, keys.Down):
			if c.cursor < len(c.users)-1 {
				c.cursor++
			}
		case key.Matches(msg, keys.Select):
			c.open()
		}
		return c, nil
	}

	if key.Matches(msg, keys.Select) {
		c.send()
		return c, nil
	}

	before := c.input.Value()
	var cmd tea.Cmd
	c.input, cmd = c.input.Update(msg)
	if c.input.Value() == before {
		return c, cmd
	}
	return c, tea.Batch(cmd, c.typed())
}

func (c *Chat) toggleFocus() {
	if c.focus == focusUsers {
		c.focus = focusInput
		c.input.Focus()
		return
	}
	c.focus = focusUsers
	c.input.Blur()
}

// open selects the user under the cursor and asks for the conversation.
func (c *Chat) open() {
	if len(c.users) == 0 {
		return
	}
	peer := c.users[c.cursor].ID
	if peer != c.selected {
		c.stopTyping()
		c.selected = peer
		c.input.Reset()
	}
	c.actions.RequestHistory(peer)
	c.focus = focusInput
	c.input.Focus()
	c.setStatus("", false)
	c.refreshConversation()
}

func (c *Chat) send() {
	if c.selected == "" {
		c.setStatus("select a user first", true)
		return
	}
	body, err := chat.ValidateBody(c.input.Value())
	if err != nil {
		c.setStatus(err.Error(), true)
		return
	}
	c.actions.Send(c.selected, body)
	c.input.Reset()
	c.stopTyping()
	c.setStatus("", false)
}

// typed announces typing to the selected peer and schedules typingStop after
// TypingIdle without further edits. An emptied input stops at once.
func (c *Chat) typed() tea.Cmd {
	if c.selected == "" {
		return nil
	}
	if strings.TrimSpace(c.input.Value()) == "" {
		c.stopTyping()
		return nil
	}
	if c.typingTo != c.selected {
		c.stopTyping()
		c.actions.StartTyping(c.selected)
		c.typingTo = c.selected
	}
	c.typingSeq++
	seq := c.typingSeq
	return tea.Tick(TypingIdle, func(time.Time) tea.Msg { return typingIdleMsg{seq: seq} })
}

func (c *Chat) stopTyping() {
	if c.typingTo == "" {
		return
	}
	c.actions.StopTyping(c.typingTo)
	c.typingTo = ""
	c.typingSeq++
}

func (c *Chat) setStatus(s string, isErr bool) {
	c.status, c.statusErr = s, isErr
}

func (c *Chat) isOnline(id string) bool {
	for _, u := range c.snap.Presence {
		if u.ID == id {
			return true
		}
	}
	return false
}

func (c *Chat) peer() (model.Identity, bool) {
	for _, u := range c.users {
		if u.ID == c.selected {
			return u, true
		}
	}
	return model.Identity{ID: c.selected}, c.selected != ""
}

func (c *Chat) refreshConversation() {
	msgs := chat.ProjectConversation(c.snap.Messages, c.self.ID, c.selected)
	if len(msgs) == 0 {
		if c.selected == "" {
			c.viewport.SetContent(mutedStyle.Render("Select a user to start chatting."))
		} else {
			c.viewport.SetContent(mutedStyle.Render("No messages yet. Start a conversation!"))
		}
		return
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, c.renderMessage(m))
	}
	c.viewport.SetContent(strings.Join(lines, "\n"))
	c.viewport.GotoBottom()
}

func (c *Chat) renderMessage(m model.Message) string {
	at := ""
	if !m.CreatedAt.IsZero() {
		at = mutedStyle.Render(" " + m.CreatedAt.Local().Format("15:04"))
	}
	if chat.IsOwn(m, c.self.ID) {
		return ownStyle.Render("You:") + " " + m.Body + at
	}
	name := chat.UnknownUser
	if m.Sender != nil {
		name = chat.DisplayName(*m.Sender)
	}
	return titleStyle.Render(name+":") + " " + m.Body + at
}

func listWidth(total int) int {
	if total <= 0 {
		return 28
	}
	return min(36, max(20, total/3))
}

// View renders the screen.
func (c *Chat) View() string {
	left := paneStyle.Width(listWidth(c.width)).Render(c.renderUsers())
	right := paneStyle.Render(c.renderConversation())
	body := lipgloss.JoinHorizontal(lipgloss.Top, left, right)

	footer := mutedStyle.Render(fmt.Sprintf("%s · tab switch pane · enter open/send · esc quit", c.snap.State))
	if c.status != "" {
		if c.statusErr {
			footer = errorStyle.Render(c.status) + "\n" + footer
		} else {
			footer = c.status + "\n" + footer
		}
	}
	return body + "\n" + footer
}

func (c *Chat) renderUsers() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Chat"))
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  Online: %d", len(c.snap.Presence))))
	b.WriteString("\n\n")
	if len(c.users) == 0 {
		b.WriteString(mutedStyle.Render("No users found"))
		return b.String()
	}
	for i, u := range c.users {
		marker := offlineStyle.Render("○")
		if c.isOnline(u.ID) {
			marker = onlineStyle.Render("●")
		}
		label := chat.DisplayName(u)
		if u.Role != "" {
			label += mutedStyle.Render(" " + string(u.Role))
		}
		line := marker + " " + label
		switch {
		case u.ID == c.selected:
			line = selectedStyle.Render(line)
		case i == c.cursor && c.focus == focusUsers:
			line = "> " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (c *Chat) renderConversation() string {
	var b strings.Builder
	if u, ok := c.peer(); ok {
		b.WriteString(titleStyle.Render(chat.DisplayName(u)))
		switch {
		case c.isOnline(u.ID):
			b.WriteString(onlineStyle.Render("  Online"))
		case !u.LastSeen.IsZero():
			b.WriteString(mutedStyle.Render("  Last seen: " + u.LastSeen.Local().Format("15:04")))
		default:
			b.WriteString(offlineStyle.Render("  Offline"))
		}
	} else {
		b.WriteString(titleStyle.Render("No conversation"))
	}
	b.WriteString("\n")
	b.WriteString(c.viewport.View())
	b.WriteString("\n")
	if c.selected != "" && c.snap.Typing[c.selected] {
		u, _ := c.peer()
		b.WriteString(mutedStyle.Render(chat.DisplayName(u) + " is typing..."))
	}
	b.WriteString("\n")
	b.WriteString(c.input.View())
	return b.String()
}
