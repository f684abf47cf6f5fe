package chat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/nhle/campaignbot/internal/campaign"
	"github.com/nhle/campaignbot/internal/keys"
	"github.com/nhle/campaignbot/internal/theme"
)

// Handler processes one conversation event. *campaign.Controller
// satisfies it.
type Handler interface {
	Handle(ctx context.Context, conversationID string, ev campaign.Event) ([]campaign.Reply, error)
}

// RepliesMsg carries the controller's answer to one event.
type RepliesMsg struct {
	ConversationID string
	Replies        []campaign.Reply

	// Saved maps a reply index to the path its document was written to.
	Saved map[int]string

	Err error
}

type focus int

const (
	focusInput focus = iota
	focusButtons
)

// Speakers shown in the transcript.
const (
	roleYou   = "You"
	roleBot   = "Bot"
	roleFile  = "File"
	roleError = "Error"
)

// entry is one line group in the transcript.
type entry struct {
	Role    string
	Content string
}

const intro = "Send /start to build a campaign. /debug shows the configuration status."

// Model is the terminal chat transport: it renders replies, offers their
// buttons for selection and forwards typed text and button presses to the
// handler one turn at a time.
type Model struct {
	handler        Handler
	conversationID string
	draftDir       string

	input    textarea.Model
	viewport viewport.Model
	spinner  spinner.Model

	messages []entry
	buttons  []campaign.Button
	selected int
	focus    focus
	busy     bool

	keys   *keys.KeyMap
	width  int
	height int
}

// New creates a chat model with a fresh conversation id. Draft documents
// are written under draftDir.
func New(h Handler, draftDir string, k *keys.KeyMap, width, height int) Model {
	ta := textarea.New()
	ta.Placeholder = "Type a message or /start..."
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.CharLimit = 4000
	ta.Focus()

	vp := viewport.New(0, 0)
	vp.Style = lipgloss.NewStyle()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		handler:        h,
		conversationID: uuid.New().String(),
		draftDir:       draftDir,
		input:          ta,
		viewport:       vp,
		spinner:        sp,
		keys:           k,
	}
	m.SetSize(width, height)
	return m
}

// Init returns the initial command for the chat panel.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// ConversationID returns the id events are currently sent under.
func (m Model) ConversationID() string {
	return m.conversationID
}

// Busy reports whether a turn is being processed.
func (m Model) Busy() bool {
	return m.busy
}

// Buttons returns the choices currently offered.
func (m Model) Buttons() []campaign.Button {
	return m.buttons
}

// Update handles messages for the chat panel.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case RepliesMsg:
		return m.handleReplies(msg)

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refreshViewport()
		return m, cmd

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	var cmds []tea.Cmd

	var taCmd tea.Cmd
	m.input, taCmd = m.input.Update(msg)
	if taCmd != nil {
		cmds = append(cmds, taCmd)
	}

	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	if vpCmd != nil {
		cmds = append(cmds, vpCmd)
	}

	return m, tea.Batch(cmds...)
}

// handleKeyMsg processes keyboard input. While a turn is in flight only
// scrolling is honored.
func (m Model) handleKeyMsg(msg tea.KeyMsg) (Model, tea.Cmd) {
	if key.Matches(msg, m.keys.ScrollUp, m.keys.ScrollDown) {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if m.busy {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Restart):
		return m.Dispatch("/start", campaign.Event{Kind: campaign.EventStart})

	case key.Matches(msg, m.keys.Status):
		return m.Dispatch("/debug", campaign.Event{Kind: campaign.EventDebug})

	case key.Matches(msg, m.keys.SwitchFocus):
		m.toggleFocus()
		return m, nil
	}

	if m.focus == focusButtons {
		return m.handleButtonKey(msg)
	}

	if key.Matches(msg, m.keys.Select) {
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.Reset()
		return m.Dispatch(text, campaign.ParseMessage(text))
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleButtonKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if len(m.buttons) == 0 {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Left):
		m.selected = (m.selected - 1 + len(m.buttons)) % len(m.buttons)
	case key.Matches(msg, m.keys.Right):
		m.selected = (m.selected + 1) % len(m.buttons)
	case key.Matches(msg, m.keys.Select):
		return m.Press(m.selected)
	}
	return m, nil
}

// Press sends the selection encoded by button i.
func (m Model) Press(i int) (Model, tea.Cmd) {
	if m.busy || i < 0 || i >= len(m.buttons) {
		return m, nil
	}
	b := m.buttons[i]
	ev, err := campaign.ParseSelection(b.Data)
	if err != nil {
		m.messages = append(m.messages, entry{Role: roleError, Content: err.Error()})
		m.refreshViewport()
		return m, nil
	}
	return m.Dispatch(b.Label, ev)
}

// Dispatch echoes shown in the transcript and hands ev to the handler in
// the background. Input stays blocked until the RepliesMsg arrives.
func (m Model) Dispatch(shown string, ev campaign.Event) (Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	m.messages = append(m.messages, entry{Role: roleYou, Content: shown})
	m.busy = true
	m.refreshViewport()

	return m, tea.Batch(m.spinner.Tick, m.handle(ev))
}

// handle returns a command that runs one controller turn and writes any
// attached documents to the draft directory.
func (m Model) handle(ev campaign.Event) tea.Cmd {
	h := m.handler
	id := m.conversationID
	dir := m.draftDir
	return func() tea.Msg {
		replies, err := h.Handle(context.Background(), id, ev)
		if err != nil {
			return RepliesMsg{ConversationID: id, Err: err}
		}

		saved := make(map[int]string)
		for i, r := range replies {
			if r.Document == nil {
				continue
			}
			path, err := saveDocument(dir, id, r.Document)
			if err != nil {
				return RepliesMsg{ConversationID: id, Replies: replies, Saved: saved, Err: err}
			}
			saved[i] = path
		}
		return RepliesMsg{ConversationID: id, Replies: replies, Saved: saved}
	}
}

// saveDocument writes doc under dir, prefixed with the conversation id so
// concurrent conversations do not overwrite each other's drafts.
func saveDocument(dir, conversationID string, doc *campaign.Document) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating draft directory %s: %w", dir, err)
	}
	prefix := conversationID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	path := filepath.Join(dir, prefix+"-"+filepath.Base(doc.Name))
	if err := os.WriteFile(path, doc.Content, 0o644); err != nil {
		return "", fmt.Errorf("writing draft %s: %w", path, err)
	}
	return path, nil
}

// handleReplies renders a finished turn. Replies for a conversation that
// was replaced meanwhile are dropped.
func (m Model) handleReplies(msg RepliesMsg) (Model, tea.Cmd) {
	if msg.ConversationID != m.conversationID {
		return m, nil
	}
	m.busy = false

	var buttons []campaign.Button
	for i, r := range msg.Replies {
		if r.Document != nil {
			content := r.Document.Caption
			if path, ok := msg.Saved[i]; ok {
				content = strings.TrimSpace(content + "\nSaved to " + path)
			}
			m.messages = append(m.messages, entry{Role: roleFile, Content: content})
		}
		if r.Text != "" {
			m.messages = append(m.messages, entry{Role: roleBot, Content: r.Text})
		}
		if len(r.Buttons) > 0 {
			buttons = r.Buttons
		}
	}
	if msg.Err != nil {
		m.messages = append(m.messages, entry{Role: roleError, Content: msg.Err.Error()})
	}

	m.setButtons(buttons)
	m.SetSize(m.width, m.height)

	if m.focus == focusInput {
		return m, m.input.Focus()
	}
	return m, nil
}

// setButtons replaces the offered choices. New choices take focus so they
// can be pressed right away; without choices focus returns to the input.
func (m *Model) setButtons(buttons []campaign.Button) {
	m.buttons = buttons
	if m.selected >= len(buttons) {
		m.selected = 0
	}
	if len(buttons) == 0 {
		m.selected = 0
		m.focus = focusInput
		return
	}
	m.focus = focusButtons
	m.input.Blur()
}

func (m *Model) toggleFocus() {
	if m.focus == focusInput && len(m.buttons) > 0 {
		m.focus = focusButtons
		m.input.Blur()
		return
	}
	m.focus = focusInput
	m.input.Focus()
}

// refreshViewport re-renders the transcript and scrolls to the bottom.
func (m *Model) refreshViewport() {
	m.viewport.SetContent(m.renderConversation())
	m.viewport.GotoBottom()
}

func (m Model) renderConversation() string {
	width := m.viewport.Width
	if width < 10 {
		width = 10
	}
	contentStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite).Width(width)

	sections := []string{theme.HelpStyle.Render(intro), ""}
	for _, msg := range m.messages {
		sections = append(sections,
			theme.SpeakerStyle(msg.Role).Render(msg.Role+":"),
			contentStyle.Render(msg.Content),
			"",
		)
	}

	if m.busy {
		sections = append(sections, theme.HelpStyle.Render(m.spinner.View()+" working..."))
	}

	return strings.Join(sections, "\n")
}

// renderButtons lays the choices out left to right, wrapping at the panel
// width.
func (m Model) renderButtons() string {
	if len(m.buttons) == 0 {
		return ""
	}

	maxWidth := m.width - 6
	var rows []string
	var row []string
	rowWidth := 0
	for i, b := range m.buttons {
		style := theme.ButtonStyle
		if m.focus == focusButtons && i == m.selected {
			style = theme.SelectedButtonStyle
		}
		cell := style.Render(b.Label)
		w := lipgloss.Width(cell)
		if rowWidth > 0 && rowWidth+w > maxWidth {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
			row, rowWidth = nil, 0
		}
		row = append(row, cell)
		rowWidth += w
	}
	rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// View renders the chat panel.
func (m Model) View() string {
	sep := lipgloss.NewStyle().
		Foreground(theme.ColorSubtle).
		Render(strings.Repeat("─", max(min(m.width-6, 80), 0)))

	parts := []string{m.viewport.View()}
	if buttons := m.renderButtons(); buttons != "" {
		parts = append(parts, buttons)
	}
	parts = append(parts, sep, m.input.View())

	return theme.PanelStyle.
		Width(m.width - 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// SetSize updates the panel dimensions. The transcript takes whatever the
// input, the buttons and the frame leave over.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.SetWidth(max(width-6, 10))

	buttonRows := 0
	if len(m.buttons) > 0 {
		buttonRows = lipgloss.Height(m.renderButtons())
	}
	vpHeight := height - 10 - buttonRows
	if vpHeight < 4 {
		vpHeight = 4
	}
	m.viewport.Width = max(width-6, 10)
	m.viewport.Height = vpHeight
	m.refreshViewport()
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	m.focus = focusInput
	return m.input.Focus()
}

// Reset clears the transcript and starts a new conversation id. Replies
// still in flight for the old conversation are discarded on arrival.
func (m *Model) Reset() {
	m.conversationID = uuid.New().String()
	m.messages = nil
	m.buttons = nil
	m.selected = 0
	m.busy = false
	m.focus = focusInput
	m.input.Reset()
	m.input.Focus()
	m.SetSize(m.width, m.height)
}
