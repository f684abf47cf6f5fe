package setup

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/campaignbot/internal/credential"
	"github.com/nhle/campaignbot/internal/model"
)

// DoneMsg signals that the form was submitted and saved.
type DoneMsg struct {
	Config *model.AppConfig
	Err    error
}

// CancelMsg signals that the form was aborted without saving.
type CancelMsg struct{}

// SecretSetter stores a credential. credential.Set satisfies it.
type SecretSetter func(key, value string) error

// Values holds the form fields. Secrets are never pre-filled; a blank
// secret keeps whatever is already stored.
type Values struct {
	DocID        string
	SheetID      string
	SheetColumns string
	Subject      string
	Backend      string
	From         string
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPTLS      bool
	OpenAIKey    string
}

// ValuesFrom pre-fills the form from cfg.
func ValuesFrom(cfg *model.AppConfig) *Values {
	return &Values{
		DocID:        cfg.Google.DocID,
		SheetID:      cfg.Google.SheetID,
		SheetColumns: cfg.Google.SheetColumns,
		Subject:      cfg.Mail.Subject,
		Backend:      cfg.Mail.Backend,
		From:         cfg.Mail.From,
		SMTPHost:     cfg.Mail.SMTP.Host,
		SMTPPort:     cfg.Mail.SMTP.Port,
		SMTPUsername: cfg.Mail.SMTP.Username,
		SMTPTLS:      cfg.Mail.SMTP.TLS,
	}
}

// Apply returns a copy of base with the form values written over it.
func (v *Values) Apply(base model.AppConfig) model.AppConfig {
	cfg := base
	cfg.Google.DocID = strings.TrimSpace(v.DocID)
	cfg.Google.SheetID = strings.TrimSpace(v.SheetID)
	if cols := strings.TrimSpace(v.SheetColumns); cols != "" {
		cfg.Google.SheetColumns = strings.ToUpper(cols)
	}
	cfg.Mail.Subject = strings.TrimSpace(v.Subject)
	cfg.Mail.Backend = v.Backend
	cfg.Mail.From = strings.TrimSpace(v.From)
	if v.Backend == model.BackendSMTP {
		cfg.Mail.SMTP.Host = strings.TrimSpace(v.SMTPHost)
		cfg.Mail.SMTP.Port = strings.TrimSpace(v.SMTPPort)
		cfg.Mail.SMTP.Username = strings.TrimSpace(v.SMTPUsername)
		cfg.Mail.SMTP.TLS = v.SMTPTLS
	}
	return cfg
}

// Save writes the configuration file and stores any secrets entered.
func Save(path string, base *model.AppConfig, v *Values, setSecret SecretSetter) (*model.AppConfig, error) {
	cfg := v.Apply(*base)
	if err := model.SaveConfig(path, &cfg); err != nil {
		return nil, err
	}

	if key := strings.TrimSpace(v.OpenAIKey); key != "" {
		if err := setSecret(credential.KeyOpenAI, key); err != nil {
			return nil, fmt.Errorf("storing OpenAI key: %w", err)
		}
	}
	if v.SMTPPassword != "" && cfg.Mail.Backend == model.BackendSMTP {
		if err := setSecret(credential.KeySMTPPassword, v.SMTPPassword); err != nil {
			return nil, fmt.Errorf("storing SMTP password: %w", err)
		}
	}
	return &cfg, nil
}

// Run shows the form as a standalone program and saves the result.
func Run(path string, base *model.AppConfig, setSecret SecretSetter) (*model.AppConfig, error) {
	v := ValuesFrom(base)
	if err := buildForm(v, 80).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil, fmt.Errorf("setup cancelled")
		}
		return nil, fmt.Errorf("running setup form: %w", err)
	}
	return Save(path, base, v, setSecret)
}

func buildForm(v *Values, width int) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Context document ID").
				Description("Google Doc holding the company context (optional)").
				Value(&v.DocID),
			huh.NewInput().
				Title("Spreadsheet ID").
				Description("Google Sheet holding one tab per prospect list").
				Value(&v.SheetID).
				Validate(validateRequired("Spreadsheet ID")),
			huh.NewInput().
				Title("Sheet columns").
				Description("Column span read from the chosen tab").
				Placeholder("A:Z").
				Value(&v.SheetColumns).
				Validate(validateColumns),
			huh.NewInput().
				Title("Subject").
				Description("May contain [Column] tokens").
				Placeholder("Information").
				Value(&v.Subject).
				Validate(validateRequired("Subject")),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Mail backend").
				Options(
					huh.NewOption("Gmail - send through the authorized Google account", model.BackendGmail),
					huh.NewOption("SMTP - send through a mail server", model.BackendSMTP),
				).
				Value(&v.Backend),
			huh.NewInput().
				Title("From address").
				Description("Ignored by Gmail, which uses the authorized account").
				Placeholder("team@example.com").
				Value(&v.From),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("SMTP Host").
				Placeholder("smtp.example.com").
				Value(&v.SMTPHost).
				Validate(validateRequired("SMTP Host")),
			huh.NewInput().
				Title("SMTP Port").
				Placeholder("587").
				Value(&v.SMTPPort).
				Validate(validatePort),
			huh.NewInput().
				Title("Username").
				Placeholder("user@example.com").
				Value(&v.SMTPUsername),
			huh.NewInput().
				Title("Password").
				Description("Stored in the system keyring; leave blank to keep the current one").
				EchoMode(huh.EchoModePassword).
				Value(&v.SMTPPassword),
			huh.NewConfirm().
				Title("Use implicit TLS").
				Description("No uses STARTTLS").
				Affirmative("Yes").
				Negative("No").
				Value(&v.SMTPTLS),
		).WithHideFunc(func() bool { return v.Backend != model.BackendSMTP }),
		huh.NewGroup(
			huh.NewInput().
				Title("OpenAI API key").
				Description("Stored in the system keyring; leave blank to keep the current key").
				EchoMode(huh.EchoModePassword).
				Value(&v.OpenAIKey),
		),
	).WithWidth(width)
}

// Model hosts the setup form inside the application.
type Model struct {
	form      *huh.Form
	values    *Values
	base      *model.AppConfig
	path      string
	setSecret SecretSetter
	saving    bool
	width     int
	height    int
}

// New creates a setup view pre-filled from cfg that saves to path.
func New(cfg *model.AppConfig, path string, setSecret SecretSetter, width, height int) Model {
	m := Model{
		values:    ValuesFrom(cfg),
		base:      cfg,
		path:      path,
		setSecret: setSecret,
		width:     width,
		height:    height,
	}
	m.form = buildForm(m.values, m.formWidth())
	return m
}

// Init starts the form.
func (m Model) Init() tea.Cmd {
	return m.form.Init()
}

// Update forwards messages to the form and saves once it completes.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.saving {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.saving = true
		return m, m.save()
	case huh.StateAborted:
		return m, func() tea.Msg { return CancelMsg{} }
	}
	return m, cmd
}

func (m Model) save() tea.Cmd {
	path, base, v, set := m.path, m.base, m.values, m.setSecret
	return func() tea.Msg {
		cfg, err := Save(path, base, v, set)
		return DoneMsg{Config: cfg, Err: err}
	}
}

// View renders the form.
func (m Model) View() string {
	return lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height).
		Render(m.form.View())
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.form = m.form.WithWidth(m.formWidth())
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validatePort(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("port is required")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return fmt.Errorf("port must be a number")
		}
	}
	return nil
}

var columnSpan = regexp.MustCompile(`^[A-Za-z]{1,3}:[A-Za-z]{1,3}$`)

func validateColumns(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || columnSpan.MatchString(s) {
		return nil
	}
	return fmt.Errorf("use a column span such as A:Z")
}
