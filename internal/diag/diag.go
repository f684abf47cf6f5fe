// Package diag reports whether the bot's collaborators are configured.
package diag

import (
	"context"
	"fmt"
	"strings"

	"github.com/nhle/campaignbot/internal/credential"
	"github.com/nhle/campaignbot/internal/model"
	"github.com/nhle/campaignbot/internal/source/google"
	"github.com/nhle/campaignbot/internal/store"
)

// Environment variables read alongside the keyring.
const (
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvSMTPPassword = "SMTP_PASSWORD"
)

// Check is one line of the report.
type Check struct {
	Name   string
	OK     bool
	Detail string
}

// Report is the result of running every check.
type Report struct {
	Checks []Check
}

// Healthy reports whether every check passed.
func (r Report) Healthy() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return true
}

func (r Report) String() string {
	var b strings.Builder
	b.WriteString("--- Status ---")
	for _, c := range r.Checks {
		mark := "✅"
		if !c.OK {
			mark = "❌"
		}
		fmt.Fprintf(&b, "\n%s %s", mark, c.Name)
		if c.Detail != "" {
			b.WriteString(": " + c.Detail)
		}
	}
	return b.String()
}

// Checker inspects configuration and credentials without contacting any
// remote service.
type Checker struct {
	cfg    *model.AppConfig
	lookup google.LookupFunc
	store  store.SessionStore
}

// New creates a checker. lookup is normally credential.Lookup; store may
// be nil.
func New(cfg *model.AppConfig, lookup google.LookupFunc, s store.SessionStore) *Checker {
	return &Checker{cfg: cfg, lookup: lookup, store: s}
}

// Status renders the report as chat text.
func (c *Checker) Status(ctx context.Context) string {
	return c.Run(ctx).String()
}

// Run performs every check.
func (c *Checker) Run(ctx context.Context) Report {
	var r Report
	add := func(name string, ok bool, detail string) {
		r.Checks = append(r.Checks, Check{Name: name, OK: ok, Detail: detail})
	}

	for _, err := range c.cfg.Validate() {
		add("Configuration", false, err.Error())
	}

	if _, origin := c.lookup(credential.KeyOpenAI, EnvOpenAIKey); origin != credential.OriginNone {
		add("OpenAI API key", true, "from "+string(origin))
	} else {
		add("OpenAI API key", false, "missing; set "+EnvOpenAIKey+" or run setup")
	}

	if google.ClientSecretsPresent(c.cfg.Google) {
		add("Google client credentials", true, "")
	} else {
		add("Google client credentials", false, "missing; set "+google.EnvCredentialsJSON+" or google.credentials_file")
	}

	tok := google.InspectToken(c.cfg.Google, c.lookup)
	switch {
	case !tok.Present:
		add("Google token", false, errDetail(tok.Err, "missing"))
	case tok.Err != nil:
		add("Google token", false, tok.Err.Error())
	default:
		add("Google token", true, "from "+tok.Origin)
		switch {
		case tok.Valid:
			add("Google credentials valid", true, "")
		case tok.Refreshable:
			add("Google credentials valid", true, "access token expired; will refresh")
		default:
			add("Google credentials valid", false, "expired and cannot be refreshed")
		}
	}

	if c.cfg.Mail.Backend == model.BackendSMTP {
		if _, origin := c.lookup(credential.KeySMTPPassword, EnvSMTPPassword); origin != credential.OriginNone {
			add("SMTP password", true, "from "+string(origin))
		} else {
			add("SMTP password", false, "missing; set "+EnvSMTPPassword+" or run setup")
		}
	}

	if c.store != nil {
		if n, err := c.store.CountSessions(ctx); err != nil {
			add("Session store", false, err.Error())
		} else {
			add("Session store", true, fmt.Sprintf("%d active sessions", n))
		}
	}

	return r
}

func errDetail(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	return err.Error()
}
