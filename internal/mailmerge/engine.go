// Package mailmerge turns a sheet's rows into prospects and sends one
// personalized message per prospect.
package mailmerge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/time/rate"

	"github.com/nhle/campaignbot/internal/model"
	"github.com/nhle/campaignbot/internal/source"
)

// ValidationError aborts a send pass before anything is sent.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "mail merge: " + e.Reason
}

// IsValidationError reports whether err (or any error in its chain) is a
// ValidationError.
func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

var fold = cases.Fold()

const emailMarker = "email"

// EmailColumn picks the recipient column: the first selected column whose
// name contains "email" under Unicode case folding, else the first such
// header. ok is false when no header qualifies.
func EmailColumn(headers, selected []string) (string, bool) {
	known := make(map[string]bool, len(headers))
	for _, h := range headers {
		known[h] = true
	}
	for _, c := range selected {
		if known[c] && isEmailHeader(c) {
			return c, true
		}
	}
	for _, h := range headers {
		if isEmailHeader(h) {
			return h, true
		}
	}
	return "", false
}

func isEmailHeader(name string) bool {
	return strings.Contains(fold.String(name), emailMarker)
}

// BuildProspects parses table (row 0 holds the headers) into prospects
// for the selected columns. Rows whose email cell is missing or has no
// "@" after trimming are counted in skipped.
func BuildProspects(table [][]string, selected []string) (prospects []model.Prospect, skipped int, emailColumn string, err error) {
	if len(table) == 0 {
		return nil, 0, "", &ValidationError{Reason: "the sheet is empty"}
	}

	headers := table[0]
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}

	emailColumn, ok := EmailColumn(headers, selected)
	if !ok {
		return nil, 0, "", &ValidationError{Reason: "no column name contains \"email\""}
	}
	emailIdx := index[emailColumn]

	for _, row := range table[1:] {
		if len(row) <= emailIdx {
			skipped++
			continue
		}
		addr := strings.TrimSpace(row[emailIdx])
		if !strings.Contains(addr, "@") {
			skipped++
			continue
		}

		fields := make(map[string]string, len(selected))
		for _, col := range selected {
			value := ""
			if i, ok := index[col]; ok && i < len(row) {
				value = strings.TrimSpace(row[i])
			}
			fields[col] = value
		}
		prospects = append(prospects, model.Prospect{Email: addr, Fields: fields})
	}

	if len(prospects) == 0 {
		return nil, skipped, emailColumn, &ValidationError{
			Reason: fmt.Sprintf("no valid recipients in column %q (%d rows skipped)", emailColumn, skipped),
		}
	}
	return prospects, skipped, emailColumn, nil
}

// Placeholder returns the token a draft uses for column.
func Placeholder(column string) string {
	return "[" + column + "]"
}

// Personalize replaces every [Column] token of the selected columns with
// the prospect's value. Replacement is a single left-to-right pass, so
// inserted values are never rescanned; other tokens are left verbatim.
func Personalize(template string, columns []string, p model.Prospect) string {
	if len(columns) == 0 {
		return template
	}
	pairs := make([]string, 0, 2*len(columns))
	for _, col := range columns {
		pairs = append(pairs, Placeholder(col), p.Field(col))
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// Engine runs send passes against a MailSender.
type Engine struct {
	sender  source.MailSender
	subject string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRate paces sends to perSecond messages per second. Zero or less
// disables pacing.
func WithRate(perSecond float64) Option {
	return func(e *Engine) {
		if perSecond > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an engine that sends with subject, which may itself
// contain [Column] tokens.
func NewEngine(sender source.MailSender, subject string, opts ...Option) *Engine {
	e := &Engine{
		sender:  sender,
		subject: subject,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run sends template to every valid row of table. A ValidationError means
// nothing was sent. Otherwise every prospect gets exactly one attempt in
// row order, and failures are collected in the report without stopping
// the pass.
func (e *Engine) Run(ctx context.Context, table [][]string, selected []string, template string) (*model.SendReport, error) {
	prospects, skipped, emailColumn, err := BuildProspects(table, selected)
	if err != nil {
		return nil, err
	}

	report := &model.SendReport{
		EmailColumn: emailColumn,
		Skipped:     skipped,
	}
	e.logger.Info("send pass started",
		"recipients", len(prospects), "skipped", skipped, "email_column", emailColumn)

	for _, p := range prospects {
		report.Attempted++
		outcome := e.sendOne(ctx, selected, template, p)
		if outcome.Sent {
			report.Sent++
			continue
		}
		report.Failures = append(report.Failures, outcome)
		e.logger.Warn("send failed", "recipient", p.Email, "reason", outcome.Reason)
	}

	e.logger.Info("send pass finished",
		"attempted", report.Attempted, "sent", report.Sent, "failed", len(report.Failures))
	return report, nil
}

func (e *Engine) sendOne(ctx context.Context, selected []string, template string, p model.Prospect) model.SendOutcome {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return model.SendOutcome{Recipient: p.Email, Reason: fmt.Sprintf("not sent: %v", err)}
		}
	}

	subject := Personalize(e.subject, selected, p)
	body := Personalize(template, selected, p)
	if err := e.sender.Send(ctx, p.Email, subject, body); err != nil {
		return model.SendOutcome{Recipient: p.Email, Reason: err.Error()}
	}
	return model.SendOutcome{Recipient: p.Email, Sent: true}
}
