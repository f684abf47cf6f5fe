package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the global keybindings for the application.
type KeyMap struct {
	// Button navigation
	Left  key.Binding
	Right key.Binding

	// Press the focused button or send the typed message
	Select key.Binding

	// Move focus between the input and the buttons
	SwitchFocus key.Binding

	// Conversation
	Restart key.Binding
	Status  key.Binding
	NewChat key.Binding

	// Open the setup form
	Setup key.Binding

	// Transcript scrolling
	ScrollUp   key.Binding
	ScrollDown key.Binding

	Help key.Binding
	Back key.Binding
	Quit key.Binding
}

// DefaultKeyMap returns the default set of keybindings. Printable keys are
// left to the text input.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Left: key.NewBinding(
			key.WithKeys("left", "up"),
			key.WithHelp("←/↑", "previous button"),
		),
		Right: key.NewBinding(
			key.WithKeys("right", "down"),
			key.WithHelp("→/↓", "next button"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send / press"),
		),
		SwitchFocus: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "input ↔ buttons"),
		),
		Restart: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "/start"),
		),
		Status: key.NewBinding(
			key.WithKeys("ctrl+d"),
			key.WithHelp("ctrl+d", "/debug"),
		),
		NewChat: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("ctrl+n", "new conversation"),
		),
		Setup: key.NewBinding(
			key.WithKeys("ctrl+o"),
			key.WithHelp("ctrl+o", "setup"),
		),
		ScrollUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "scroll up"),
		),
		ScrollDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "scroll down"),
		),
		Help: key.NewBinding(
			key.WithKeys("f1"),
			key.WithHelp("f1", "toggle help"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
	}
}

// ShortHelp returns the most essential keybindings for the compact help view.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.Select, k.SwitchFocus, k.Restart, k.Help, k.Quit,
	}
}

// FullHelp returns all keybindings grouped by category for the expanded
// help view.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Select, k.SwitchFocus, k.Left, k.Right},
		{k.Restart, k.Status, k.NewChat, k.Setup},
		{k.ScrollUp, k.ScrollDown, k.Help, k.Back, k.Quit},
	}
}
