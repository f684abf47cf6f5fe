package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/campaignbot/internal/campaign"
	"github.com/nhle/campaignbot/internal/model"
	"github.com/nhle/campaignbot/internal/ui/chat"
	"github.com/nhle/campaignbot/internal/ui/setup"
)

type nopHandler struct{}

func (nopHandler) Handle(context.Context, string, campaign.Event) ([]campaign.Reply, error) {
	return nil, nil
}

func newTestApp(t *testing.T, openSetup bool) Model {
	t.Helper()
	dir := t.TempDir()
	cfg := &model.AppConfig{
		Google:  model.GoogleConfig{SheetColumns: "A:Z"},
		Mail:    model.MailConfig{Backend: model.BackendGmail, Subject: "Information"},
		Display: model.DisplayConfig{DraftDir: filepath.Join(dir, "drafts")},
	}
	m := New(Options{
		Handler:    nopHandler{},
		Config:     cfg,
		ConfigPath: filepath.Join(dir, "config.yaml"),
		SetSecret:  func(string, string) error { return nil },
		Setup:      openSetup,
	})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(Model)
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestViewBeforeSize(t *testing.T) {
	m := New(Options{Handler: nopHandler{}, Config: &model.AppConfig{}})
	if got := m.View(); got != "Loading..." {
		t.Errorf("View() = %q", got)
	}
}

func TestHelpToggle(t *testing.T) {
	m := newTestApp(t, false)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyF1})
	if m.currentView != ViewHelp {
		t.Fatalf("view = %v, want help", m.currentView)
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.currentView != ViewChat {
		t.Errorf("esc should close help, view = %v", m.currentView)
	}
}

func TestRepliesReachChatUnderHelp(t *testing.T) {
	m := newTestApp(t, false)
	m.chatView, _ = m.chatView.Dispatch("/start", campaign.Event{Kind: campaign.EventStart})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyF1})

	m = update(t, m, chat.RepliesMsg{ConversationID: m.chatView.ConversationID()})
	if m.chatView.Busy() {
		t.Error("replies should be delivered to the chat while help is open")
	}
}

func TestSetupLifecycle(t *testing.T) {
	m := newTestApp(t, false)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlO})
	if m.currentView != ViewSetup {
		t.Fatalf("view = %v, want setup", m.currentView)
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.currentView != ViewChat {
		t.Fatalf("esc should leave setup, view = %v", m.currentView)
	}

	saved := &model.AppConfig{Google: model.GoogleConfig{SheetID: "sheet-9"}}
	m = update(t, m, setup.DoneMsg{Config: saved})
	if m.opts.Config != saved {
		t.Error("saved config should replace the setup defaults")
	}
	if m.notice == "" || m.keyHints() != m.notice {
		t.Errorf("status bar should show the save notice, got %q", m.keyHints())
	}

	m = update(t, m, setup.DoneMsg{Err: errors.New("disk full")})
	if m.opts.Config != saved {
		t.Error("a failed save must keep the previous config")
	}
}

func TestStartsInSetup(t *testing.T) {
	m := newTestApp(t, true)
	if m.currentView != ViewSetup {
		t.Fatalf("view = %v, want setup", m.currentView)
	}
	m = update(t, m, setup.CancelMsg{})
	if m.currentView != ViewChat {
		t.Errorf("cancel should return to chat, view = %v", m.currentView)
	}
}

func TestNewConversation(t *testing.T) {
	m := newTestApp(t, false)
	before := m.chatView.ConversationID()
	m = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlN})
	if m.chatView.ConversationID() == before {
		t.Error("ctrl+n should start a new conversation")
	}
}

func TestQuit(t *testing.T) {
	m := newTestApp(t, false)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("ctrl+c should quit")
	}
}
