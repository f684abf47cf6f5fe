package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/nhle/campaignbot/internal/source"
)

// GoogleConfig holds the Google Workspace documents the campaign reads.
type GoogleConfig struct {
	// DocID is the Google Doc holding the company context text.
	DocID string `mapstructure:"doc_id" yaml:"doc_id"`

	// SheetID is the spreadsheet holding the prospect tabs.
	SheetID string `mapstructure:"sheet_id" yaml:"sheet_id"`

	// SheetColumns is the A1 column span read from a tab (e.g., "A:Z").
	SheetColumns string `mapstructure:"sheet_columns" yaml:"sheet_columns"`

	// CredentialsFile is the OAuth client secrets JSON.
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`

	// TokenFile is the authorized-user token JSON. The keyring entry
	// "google-token" and GOOGLE_TOKEN_JSON take precedence.
	TokenFile string `mapstructure:"token_file" yaml:"token_file"`
}

// AIConfig holds settings for the draft generator.
type AIConfig struct {
	Model     string `mapstructure:"model" yaml:"model"`
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
}

// SMTPConfig holds settings for the SMTP mail backend. The password is
// read from the keyring entry "smtp-password" or SMTP_PASSWORD.
type SMTPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`

	// IMAPHost, when set, receives a copy of every sent message in
	// SentMailbox.
	IMAPHost    string `mapstructure:"imap_host" yaml:"imap_host"`
	IMAPPort    string `mapstructure:"imap_port" yaml:"imap_port"`
	SentMailbox string `mapstructure:"sent_mailbox" yaml:"sent_mailbox"`
}

// MailConfig controls how campaign messages are delivered.
type MailConfig struct {
	// Backend is "gmail" or "smtp".
	Backend string `mapstructure:"backend" yaml:"backend"`

	// From is the sender address. Gmail ignores it and uses the
	// authorized account.
	From string `mapstructure:"from" yaml:"from"`

	// Subject is the campaign subject line; it may contain [Column] tokens.
	Subject string `mapstructure:"subject" yaml:"subject"`

	// RatePerSecond paces sends; zero disables pacing.
	RatePerSecond float64 `mapstructure:"rate_per_second" yaml:"rate_per_second"`

	SMTP SMTPConfig `mapstructure:"smtp" yaml:"smtp"`
}

// StoreConfig holds the session database location. An empty Path keeps
// sessions in memory only.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LogConfig holds structured logging settings.
type LogConfig struct {
	File  string `mapstructure:"file" yaml:"file"`
	Level string `mapstructure:"level" yaml:"level"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	// DraftDir is where draft HTML documents are written for download.
	DraftDir string `mapstructure:"draft_dir" yaml:"draft_dir"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Google  GoogleConfig  `mapstructure:"google" yaml:"google"`
	AI      AIConfig      `mapstructure:"ai" yaml:"ai"`
	Mail    MailConfig    `mapstructure:"mail" yaml:"mail"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`
}

// Mail backends.
const (
	BackendGmail = "gmail"
	BackendSMTP  = "smtp"
)

// configDir returns ~/.config/campaignbot, falling back to the working
// directory when the home directory cannot be resolved.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "campaignbot")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/campaignbot/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	dir := configDir()
	return &AppConfig{
		Google: GoogleConfig{
			SheetColumns:    "A:Z",
			CredentialsFile: "credentials.json",
			TokenFile:       "token.json",
		},
		AI: AIConfig{
			Model:     "gpt-4o",
			MaxTokens: 4096,
		},
		Mail: MailConfig{
			Backend: BackendGmail,
			Subject: "Information",
			SMTP: SMTPConfig{
				Port:        "587",
				IMAPPort:    "993",
				SentMailbox: "Sent",
			},
		},
		Store: StoreConfig{
			Path: filepath.Join(dir, "sessions.db"),
		},
		Log: LogConfig{
			File:  filepath.Join(dir, "campaignbot.log"),
			Level: "info",
		},
		Display: DisplayConfig{
			DraftDir: filepath.Join(dir, "drafts"),
		},
	}
}

// newViper returns a viper instance with every default and the
// environment bindings registered.
func newViper(path string) *viper.Viper {
	d := defaultAppConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("google.sheet_columns", d.Google.SheetColumns)
	v.SetDefault("google.credentials_file", d.Google.CredentialsFile)
	v.SetDefault("google.token_file", d.Google.TokenFile)
	v.SetDefault("ai.model", d.AI.Model)
	v.SetDefault("ai.max_tokens", d.AI.MaxTokens)
	v.SetDefault("mail.backend", d.Mail.Backend)
	v.SetDefault("mail.subject", d.Mail.Subject)
	v.SetDefault("mail.smtp.port", d.Mail.SMTP.Port)
	v.SetDefault("mail.smtp.imap_port", d.Mail.SMTP.IMAPPort)
	v.SetDefault("mail.smtp.sent_mailbox", d.Mail.SMTP.SentMailbox)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("display.draft_dir", d.Display.DraftDir)

	// The original deployment was configured purely through these
	// variables, so they keep working without a config file.
	_ = v.BindEnv("google.doc_id", "GOOGLE_DOC_ID")
	_ = v.BindEnv("google.sheet_id", "GOOGLE_SHEET_ID")
	_ = v.BindEnv("google.credentials_file", "GOOGLE_CREDENTIALS_FILE")
	_ = v.BindEnv("google.token_file", "GOOGLE_TOKEN_FILE")
	_ = v.BindEnv("store.path", "CAMPAIGNBOT_STORE_PATH")
	_ = v.BindEnv("log.level", "CAMPAIGNBOT_LOG_LEVEL")

	return v
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, defaults plus environment overrides are used.
func LoadConfig(path string) (*AppConfig, error) {
	v := newViper(path)

	if err := v.ReadInConfig(); err != nil {
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.Mail.Backend = strings.ToLower(strings.TrimSpace(cfg.Mail.Backend))
	if cfg.Google.SheetColumns == "" {
		cfg.Google.SheetColumns = "A:Z"
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("google", cfg.Google)
	v.Set("ai", cfg.AI)
	v.Set("mail", cfg.Mail)
	v.Set("store", cfg.Store)
	v.Set("log", cfg.Log)
	v.Set("display", cfg.Display)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

// Validate returns one error per missing required setting. Problems are
// reported by the status surface and never stop the process.
func (c *AppConfig) Validate() []error {
	var errs []error
	missing := func(setting, hint string) {
		errs = append(errs, &source.ConfigurationError{Setting: setting, Hint: hint})
	}

	if c.Google.DocID == "" {
		missing("google.doc_id", "set GOOGLE_DOC_ID; the campaign runs without context")
	}
	if c.Google.SheetID == "" {
		missing("google.sheet_id", "set GOOGLE_SHEET_ID")
	}
	switch c.Mail.Backend {
	case BackendGmail:
	case BackendSMTP:
		if c.Mail.SMTP.Host == "" {
			missing("mail.smtp.host", "required by the smtp backend")
		}
		if c.Mail.SMTP.Username == "" && c.Mail.From == "" {
			missing("mail.from", "required by the smtp backend")
		}
	default:
		missing("mail.backend", fmt.Sprintf("unknown backend %q; use gmail or smtp", c.Mail.Backend))
	}
	return errs
}

// SheetRange returns the A1 range covering every configured column of
// sheet, e.g. "Prospects!A:Z".
func (c GoogleConfig) SheetRange(sheet string) string {
	return quoteSheet(sheet) + "!" + c.SheetColumns
}

// HeaderRange returns the A1 range covering only the header row of sheet,
// e.g. "Prospects!A1:Z1".
func (c GoogleConfig) HeaderRange(sheet string) string {
	first, last, ok := strings.Cut(c.SheetColumns, ":")
	if !ok {
		last = first
	}
	return quoteSheet(sheet) + "!" + first + "1:" + last + "1"
}

// quoteSheet wraps a sheet title in single quotes when A1 notation
// requires it.
func quoteSheet(sheet string) string {
	if strings.ContainsAny(sheet, " '!:") {
		return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
	}
	return sheet
}
