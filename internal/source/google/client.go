package google

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/nhle/campaignbot/internal/model"
	"github.com/nhle/campaignbot/internal/source"
	"github.com/nhle/campaignbot/internal/source/email"
)

// Client reads Google Docs and Sheets and sends mail through Gmail. It
// implements source.DocumentReader, source.SheetReader and
// source.MailSender.
type Client struct {
	cfg    model.GoogleConfig
	from   string
	docs   *docs.Service
	sheets *sheets.Service
	gmail  *gmail.Service
	now    func() time.Time
}

// New creates the Docs, Sheets and Gmail services with the given client
// options (typically option.WithTokenSource). from is used as the From
// header; Gmail rewrites it to the authorized account when empty.
func New(ctx context.Context, cfg model.GoogleConfig, from string, opts ...option.ClientOption) (*Client, error) {
	docsSvc, err := docs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating docs service: %w", err)
	}
	sheetsSvc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}
	gmailSvc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}

	if cfg.SheetColumns == "" {
		cfg.SheetColumns = "A:Z"
	}

	return &Client{
		cfg:    cfg,
		from:   from,
		docs:   docsSvc,
		sheets: sheetsSvc,
		gmail:  gmailSvc,
		now:    time.Now,
	}, nil
}

// NewFromCredentials creates a Client authorized by creds.
func NewFromCredentials(ctx context.Context, cfg model.GoogleConfig, from string, creds *Credentials) (*Client, error) {
	return New(ctx, cfg, from, option.WithTokenSource(creds.TokenSource(ctx)))
}

// ReadDocument returns the concatenated text runs of every paragraph in
// the document body.
func (c *Client) ReadDocument(ctx context.Context, docID string) (string, error) {
	doc, err := c.docs.Documents.Get(docID).Context(ctx).Do()
	if err != nil {
		return "", classify(source.ServiceDocs, "document "+docID, err)
	}
	if doc.Body == nil {
		return "", nil
	}

	var b strings.Builder
	for _, el := range doc.Body.Content {
		if el.Paragraph == nil {
			continue
		}
		for _, pe := range el.Paragraph.Elements {
			if pe.TextRun != nil {
				b.WriteString(pe.TextRun.Content)
			}
		}
	}
	return b.String(), nil
}

// ListSheets returns the spreadsheet's tab titles in sheet order.
func (c *Client) ListSheets(ctx context.Context, spreadsheetID string) ([]string, error) {
	ss, err := c.sheets.Spreadsheets.Get(spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify(source.ServiceSheets, "spreadsheet "+spreadsheetID, err)
	}

	names := make([]string, 0, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			names = append(names, sh.Properties.Title)
		}
	}
	return names, nil
}

// ReadHeaders returns the first row of sheetName across the configured
// columns.
func (c *Client) ReadHeaders(ctx context.Context, spreadsheetID, sheetName string) ([]string, error) {
	rows, err := c.ReadRange(ctx, spreadsheetID, c.cfg.HeaderRange(sheetName))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ReadRange returns the formatted cell values of an A1 range.
func (c *Client) ReadRange(ctx context.Context, spreadsheetID, rangeSpec string) ([][]string, error) {
	vr, err := c.sheets.Spreadsheets.Values.Get(spreadsheetID, rangeSpec).Context(ctx).Do()
	if err != nil {
		return nil, classify(source.ServiceSheets, "range "+rangeSpec, err)
	}

	rows := make([][]string, len(vr.Values))
	for i, row := range vr.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			if v != nil {
				cells[j] = fmt.Sprint(v)
			}
		}
		rows[i] = cells
	}
	return rows, nil
}

// Send delivers one HTML message through the authorized Gmail account.
func (c *Client) Send(ctx context.Context, to, subject, html string) error {
	raw, err := email.BuildMessage(email.Message{
		From:    c.from,
		To:      to,
		Subject: subject,
		HTML:    html,
	}, c.now())
	if err != nil {
		return err
	}

	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	if _, err := c.gmail.Users.Messages.Send("me", msg).Context(ctx).Do(); err != nil {
		if authErr := asAuthError(source.ServiceGmail, err); authErr != nil {
			return authErr
		}
		return fmt.Errorf("sending via gmail to %s: %w", to, err)
	}
	return nil
}

// classify wraps a read failure in a FetchError, nesting an AuthError
// when Google rejected the credentials.
func classify(service source.Service, resource string, err error) error {
	if authErr := asAuthError(service, err); authErr != nil {
		err = authErr
	}
	return &source.FetchError{Service: service, Resource: resource, Err: err}
}

func asAuthError(service source.Service, err error) *source.AuthError {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden {
			return &source.AuthError{Service: service, Message: gerr.Message}
		}
		return nil
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return &source.AuthError{Service: service, Message: "token refresh failed: " + rerr.Error()}
	}
	return nil
}
