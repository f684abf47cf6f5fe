package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	openaiopt "github.com/openai/openai-go/option"

	"github.com/nhle/campaignbot/internal/ai"
	"github.com/nhle/campaignbot/internal/campaign"
	"github.com/nhle/campaignbot/internal/credential"
	"github.com/nhle/campaignbot/internal/diag"
	"github.com/nhle/campaignbot/internal/mailmerge"
	"github.com/nhle/campaignbot/internal/model"
	"github.com/nhle/campaignbot/internal/source"
	"github.com/nhle/campaignbot/internal/source/email"
	"github.com/nhle/campaignbot/internal/source/google"
	"github.com/nhle/campaignbot/internal/store"
)

// runtime holds everything the chat needs, built once from the config.
type runtime struct {
	Config     *model.AppConfig
	Logger     *slog.Logger
	Store      store.SessionStore
	Controller *campaign.Controller

	logFile *os.File
}

// Close releases the store and the log file.
func (r *runtime) Close() {
	if err := r.Store.Close(); err != nil {
		r.Logger.Warn("closing session store", "error", err)
	}
	if r.logFile != nil {
		_ = r.logFile.Close()
	}
}

// buildRuntime wires the collaborators. Missing credentials do not stop
// the process: the affected collaborator is replaced by one that reports
// the problem on use, and /debug lists it.
func buildRuntime(ctx context.Context, configPath string) (*runtime, error) {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger, logFile, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	s, err := openStore(cfg.Store)
	if err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, err
	}

	for _, problem := range cfg.Validate() {
		logger.Warn("configuration incomplete", "problem", problem)
	}

	var (
		docs   source.DocumentReader
		sheets source.SheetReader
		sender source.MailSender
	)

	gc, err := newGoogleClient(ctx, cfg)
	if err != nil {
		logger.Warn("google services unavailable", "error", err)
		u := unavailable{err: err}
		docs, sheets, sender = u, u, u
	} else {
		docs, sheets, sender = gc, gc, gc
	}

	if cfg.Mail.Backend == model.BackendSMTP {
		sender = newSMTPSender(cfg, logger)
	}

	var generator source.DraftGenerator
	if key, origin := credential.Lookup(credential.KeyOpenAI, diag.EnvOpenAIKey); origin != credential.OriginNone {
		var opts []openaiopt.RequestOption
		if cfg.AI.BaseURL != "" {
			opts = append(opts, openaiopt.WithBaseURL(cfg.AI.BaseURL))
		}
		generator = ai.New(key, cfg.AI.Model, cfg.AI.MaxTokens, opts...)
	} else {
		generator = unavailable{err: &source.ConfigurationError{
			Setting: "OpenAI API key",
			Hint:    "set " + diag.EnvOpenAIKey + " or run campaignbot setup",
		}}
	}

	engine := mailmerge.NewEngine(sender, cfg.Mail.Subject,
		mailmerge.WithRate(cfg.Mail.RatePerSecond),
		mailmerge.WithLogger(logger.With("component", "mailmerge")),
	)

	controller := campaign.New(
		campaign.Config{Google: cfg.Google},
		campaign.Deps{
			Docs:      docs,
			Sheets:    sheets,
			Generator: generator,
			Mailer:    engine,
			Store:     s,
			Status:    diag.New(cfg, credential.Lookup, s),
		},
		logger.With("component", "campaign"),
	)

	return &runtime{
		Config:     cfg,
		Logger:     logger,
		Store:      s,
		Controller: controller,
		logFile:    logFile,
	}, nil
}

// newLogger writes text records to cfg.File, or discards them when no file
// is configured; the terminal belongs to the chat.
func newLogger(cfg model.LogConfig) (*slog.Logger, *os.File, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.File == "" {
		return slog.New(slog.DiscardHandler), nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %s: %w", cfg.File, err)
	}
	return slog.New(slog.NewTextHandler(f, opts)), f, nil
}

// openStore opens the SQLite session database, or an in-memory store when
// no path is configured.
func openStore(cfg model.StoreConfig) (store.SessionStore, error) {
	if cfg.Path == "" {
		return store.NewMemoryStore(), nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return store.NewSQLiteStore(cfg.Path)
}

func newGoogleClient(ctx context.Context, cfg *model.AppConfig) (*google.Client, error) {
	creds, err := google.LoadCredentials(cfg.Google, credential.Lookup)
	if err != nil {
		return nil, err
	}
	return google.NewFromCredentials(ctx, cfg.Google, cfg.Mail.From, creds)
}

// newSMTPSender builds the SMTP backend. A copy of every message is filed
// over IMAP when an IMAP host is configured.
func newSMTPSender(cfg *model.AppConfig, logger *slog.Logger) *email.Sender {
	smtpCfg := cfg.Mail.SMTP
	password, _ := credential.Lookup(credential.KeySMTPPassword, diag.EnvSMTPPassword)

	var archive *email.SentArchive
	if smtpCfg.IMAPHost != "" {
		archive = email.NewSentArchive(email.IMAPConfig{
			Host:     smtpCfg.IMAPHost,
			Port:     smtpCfg.IMAPPort,
			Username: smtpCfg.Username,
			Password: password,
			TLS:      smtpCfg.IMAPPort != "143",
			Mailbox:  smtpCfg.SentMailbox,
		})
	}

	return email.NewSender(email.SMTPConfig{
		Host:     smtpCfg.Host,
		Port:     smtpCfg.Port,
		Username: smtpCfg.Username,
		Password: password,
		TLS:      smtpCfg.TLS,
	}, cfg.Mail.From, archive, logger.With("component", "smtp"))
}

// unavailable stands in for a collaborator whose credentials are missing.
type unavailable struct {
	err error
}

var (
	_ source.DocumentReader = unavailable{}
	_ source.SheetReader    = unavailable{}
	_ source.DraftGenerator = unavailable{}
	_ source.MailSender     = unavailable{}
)

func (u unavailable) ReadDocument(context.Context, string) (string, error) { return "", u.err }

func (u unavailable) ListSheets(context.Context, string) ([]string, error) { return nil, u.err }

func (u unavailable) ReadHeaders(context.Context, string, string) ([]string, error) {
	return nil, u.err
}

func (u unavailable) ReadRange(context.Context, string, string) ([][]string, error) {
	return nil, u.err
}

func (u unavailable) Generate(context.Context, source.DraftRequest) (string, error) {
	return "", u.err
}

func (u unavailable) Send(context.Context, string, string, string) error { return u.err }
