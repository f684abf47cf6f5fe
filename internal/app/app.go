package app

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/campaignbot/internal/keys"
	"github.com/nhle/campaignbot/internal/model"
	"github.com/nhle/campaignbot/internal/theme"
	"github.com/nhle/campaignbot/internal/ui"
	"github.com/nhle/campaignbot/internal/ui/chat"
	helpview "github.com/nhle/campaignbot/internal/ui/help"
	"github.com/nhle/campaignbot/internal/ui/setup"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewChat ViewState = iota
	ViewHelp
	ViewSetup
)

// Options configures the root model.
type Options struct {
	// Handler receives every chat event.
	Handler chat.Handler

	// Config is the loaded configuration; the setup view edits a copy.
	Config *model.AppConfig

	// ConfigPath is where the setup view saves.
	ConfigPath string

	// SetSecret stores credentials entered in the setup view.
	SetSecret setup.SecretSetter

	// Setup opens the setup view first, e.g. when required settings are
	// missing.
	Setup bool
}

// Model is the root Bubble Tea model that routes between the chat, the
// help overlay and the setup form.
type Model struct {
	opts         Options
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	chatView     chat.Model
	helpView     helpview.Model
	setupView    setup.Model
	ready        bool
	notice       string
}

// New creates the root application model.
func New(opts Options) Model {
	k := keys.DefaultKeyMap()
	m := Model{
		opts:        opts,
		currentView: ViewChat,
		keys:        k,
		chatView:    chat.New(opts.Handler, opts.Config.Display.DraftDir, k, 80, 24),
		helpView:    helpview.New(k, 80, 24),
		setupView:   setup.New(opts.Config, opts.ConfigPath, opts.SetSecret, 80, 24),
	}
	if opts.Setup {
		m.currentView = ViewSetup
	}
	return m
}

// Init returns the initial command of the starting view.
func (m Model) Init() tea.Cmd {
	if m.currentView == ViewSetup {
		return m.setupView.Init()
	}
	return m.chatView.Init()
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.chatView.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.setupView.SetSize(w, h)
		// Forward to the active view so the huh form can lay itself out.
		return m.updateActiveView(msg)

	case chat.RepliesMsg, spinner.TickMsg:
		// The chat keeps running while another view is on top.
		var cmd tea.Cmd
		m.chatView, cmd = m.chatView.Update(msg)
		return m, cmd

	case setup.DoneMsg:
		m.currentView = ViewChat
		if msg.Err != nil {
			m.notice = fmt.Sprintf("setup failed: %v", msg.Err)
		} else {
			m.opts.Config = msg.Config
			m.notice = "configuration saved; restart campaignbot to apply it"
		}
		return m, m.chatView.Focus()

	case setup.CancelMsg:
		m.currentView = ViewChat
		m.notice = ""
		return m, m.chatView.Focus()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			if m.currentView == ViewSetup {
				break
			}
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil

		case key.Matches(msg, m.keys.Back):
			switch m.currentView {
			case ViewHelp:
				m.currentView = m.previousView
				return m, nil
			case ViewSetup:
				m.currentView = ViewChat
				return m, m.chatView.Focus()
			}

		case key.Matches(msg, m.keys.Setup):
			if m.currentView == ViewChat && !m.chatView.Busy() {
				return m.openSetup()
			}

		case key.Matches(msg, m.keys.NewChat):
			if m.currentView == ViewChat {
				m.chatView.Reset()
				m.notice = ""
				return m, nil
			}
		}
	}

	return m.updateActiveView(msg)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewChat:
		m.chatView, cmd = m.chatView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewSetup:
		m.setupView, cmd = m.setupView.Update(msg)
	}

	return m, cmd
}

// openSetup switches to a freshly pre-filled setup form.
func (m Model) openSetup() (Model, tea.Cmd) {
	m.previousView = m.currentView
	m.currentView = ViewSetup
	m.setupView = setup.New(m.opts.Config, m.opts.ConfigPath, m.opts.SetSecret, m.layout.ContentWidth(), m.layout.ContentHeight())
	return m, m.setupView.Init()
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader("Campaign Bot", m.indicator())
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, m.renderContent(), statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewChat:
		return m.chatView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewSetup:
		return m.setupView.View()
	default:
		return ""
	}
}

// indicator shows whether a turn is in flight and which conversation is
// active.
func (m Model) indicator() string {
	id := m.chatView.ConversationID()
	if len(id) > 8 {
		id = id[:8]
	}
	state := "ready"
	if m.chatView.Busy() {
		state = "working"
	}
	return theme.BusyStyle(m.chatView.Busy()).Inherit(theme.HeaderStyle).Render(state) + " " + id
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.notice != "" && m.currentView == ViewChat {
		return m.notice
	}

	switch m.currentView {
	case ViewHelp:
		return "f1 close help | esc back"
	case ViewSetup:
		return "enter next | shift+tab back | esc cancel"
	default:
		if len(m.chatView.Buttons()) > 0 {
			return "tab input/buttons | ←/→ choose | enter send | ctrl+r restart | f1 help | ctrl+c quit"
		}
		return "enter send | ctrl+r restart | ctrl+d status | ctrl+n new | ctrl+o setup | f1 help | ctrl+c quit"
	}
}
