package source

import (
	"context"
	"errors"
	"fmt"
)

// Service identifies the external system a collaborator talks to.
type Service string

const (
	ServiceDocs   Service = "docs"
	ServiceSheets Service = "sheets"
	ServiceGmail  Service = "gmail"
	ServiceSMTP   Service = "smtp"
	ServiceOpenAI Service = "openai"
)

// AuthError indicates that authentication has failed or expired for a
// service. It is returned by clients when a 401/403 response is received.
type AuthError struct {
	Service Service
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Service, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// ConfigurationError reports a required credential or setting that is
// missing. It is surfaced by the status report and never aborts the process.
type ConfigurationError struct {
	Setting string
	Hint    string
}

func (e *ConfigurationError) Error() string {
	if e.Hint == "" {
		return fmt.Sprintf("missing configuration: %s", e.Setting)
	}
	return fmt.Sprintf("missing configuration: %s (%s)", e.Setting, e.Hint)
}

// IsConfigurationError reports whether err (or any error in its chain) is
// a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// FetchError wraps a failed read from a document or spreadsheet.
type FetchError struct {
	Service  Service
	Resource string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s %s: %v", e.Service, e.Resource, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsFetchError reports whether err (or any error in its chain) is a
// FetchError.
func IsFetchError(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr)
}

// DocumentReader reads the plain text of a document.
type DocumentReader interface {
	ReadDocument(ctx context.Context, docID string) (string, error)
}

// SheetReader reads spreadsheet tabs and cell ranges.
type SheetReader interface {
	// ListSheets returns the tab titles of a spreadsheet in sheet order.
	ListSheets(ctx context.Context, spreadsheetID string) ([]string, error)

	// ReadHeaders returns the first row of the given tab.
	ReadHeaders(ctx context.Context, spreadsheetID, sheetName string) ([]string, error)

	// ReadRange returns the row-major cell values of an A1 range. Trailing
	// empty cells of a row may be omitted.
	ReadRange(ctx context.Context, spreadsheetID, rangeSpec string) ([][]string, error)
}

// DraftRequest carries everything the generator conditions a draft on.
type DraftRequest struct {
	// Context is the company/campaign context text; may be empty.
	Context string

	// Prompt is the cumulative operator prompt, feedback included.
	Prompt string

	// ImageURL is an optional header image.
	ImageURL string

	// Columns are the personalization fields; the draft must reference
	// them as [Column] tokens.
	Columns []string
}

// DraftGenerator produces an HTML email document.
type DraftGenerator interface {
	Generate(ctx context.Context, req DraftRequest) (string, error)
}

// MailSender delivers a single HTML message to one recipient.
type MailSender interface {
	Send(ctx context.Context, to, subject, html string) error
}
