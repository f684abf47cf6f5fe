// Package campaign drives the operator conversation that builds and sends
// a mail-merge campaign.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/nhle/campaignbot/internal/mailmerge"
	"github.com/nhle/campaignbot/internal/model"
	"github.com/nhle/campaignbot/internal/source"
	"github.com/nhle/campaignbot/internal/store"
)

// Mailer runs a send pass. *mailmerge.Engine implements it.
type Mailer interface {
	Run(ctx context.Context, table [][]string, selected []string, template string) (*model.SendReport, error)
}

// StatusReporter renders the collaborator health report for /debug.
type StatusReporter interface {
	Status(ctx context.Context) string
}

// Config holds the documents a campaign reads.
type Config struct {
	Google model.GoogleConfig
}

// Deps are the controller's collaborators. Status may be nil.
type Deps struct {
	Docs      source.DocumentReader
	Sheets    source.SheetReader
	Generator source.DraftGenerator
	Mailer    Mailer
	Store     store.SessionStore
	Status    StatusReporter
}

// Controller sequences the campaign conversation. Each Handle call loads
// the conversation's session, applies one transition and stores the
// result, so a Controller can serve many conversations.
type Controller struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New creates a controller.
func New(cfg Config, deps Deps, logger *slog.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle processes one event for a conversation and returns the replies
// to show. Collaborator failures become replies; only session storage
// failures are returned as errors.
func (c *Controller) Handle(ctx context.Context, conversationID string, ev Event) ([]Reply, error) {
	if ev.Kind == EventDebug {
		return []Reply{c.statusReply(ctx)}, nil
	}

	session, err := c.load(ctx, conversationID, ev)
	if err != nil {
		return nil, err
	}

	log := c.logger.With("conversation", conversationID, "state", session.State.String(), "event", ev.Kind.String())
	next, replies := c.transition(ctx, session, ev)
	if next.State != session.State {
		log.Info("state changed", "next", next.State.String())
	}

	if next.State == model.StateEnd {
		if err := c.deps.Store.DeleteSession(ctx, conversationID); err != nil {
			return replies, fmt.Errorf("ending session: %w", err)
		}
		return replies, nil
	}
	if err := c.deps.Store.SaveSession(ctx, next.Touch(c.now())); err != nil {
		return replies, fmt.Errorf("saving session: %w", err)
	}
	return replies, nil
}

// load returns the stored session, or a fresh one when none exists or the
// operator asked to start over.
func (c *Controller) load(ctx context.Context, conversationID string, ev Event) (model.DraftSession, error) {
	fresh := model.NewDraftSession(conversationID, c.now())
	if ev.Kind == EventStart {
		return fresh, nil
	}

	s, err := c.deps.Store.LoadSession(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return fresh, nil
	}
	if err != nil {
		return model.DraftSession{}, fmt.Errorf("loading session: %w", err)
	}
	return *s, nil
}

// transition applies ev to s and returns the next session value.
func (c *Controller) transition(ctx context.Context, s model.DraftSession, ev Event) (model.DraftSession, []Reply) {
	if ev.Kind == EventStart {
		return c.start(ctx, s)
	}

	switch s.State {
	case model.StateSheetSelection:
		switch ev.Kind {
		case EventSheetChosen, EventText:
			return c.chooseSheet(ctx, s, ev.Payload)
		}
	case model.StateColumnSelection:
		switch ev.Kind {
		case EventColumnToggled:
			return toggleColumn(s, ev.Payload)
		case EventDoneColumns:
			return doneColumns(s)
		}
	case model.StatePrompting:
		if ev.Kind == EventText {
			return takePrompt(s, ev.Payload)
		}
	case model.StateImageChoice:
		if ev.Kind == EventText {
			return c.chooseImage(ctx, s, ev.Payload)
		}
	case model.StateFeedback:
		switch ev.Kind {
		case EventText:
			return c.refine(ctx, s, ev.Payload)
		case EventRefine:
			return s, []Reply{textReply("What should change? Type your feedback.")}
		case EventApprove:
			return c.send(ctx, s)
		}
	}

	return s, []Reply{hint(s)}
}

func (c *Controller) start(ctx context.Context, s model.DraftSession) (model.DraftSession, []Reply) {
	replies := []Reply{textReply("Starting a new campaign. Reading the company context…")}

	if c.cfg.Google.DocID == "" {
		replies = append(replies, textReply("⚠️ No context document is configured. Continuing without context."))
	} else {
		text, err := c.deps.Docs.ReadDocument(ctx, c.cfg.Google.DocID)
		switch {
		case err != nil:
			c.logger.Warn("reading context document failed", "doc_id", c.cfg.Google.DocID, "error", err)
			replies = append(replies, textReply("⚠️ Could not read the context document. Continuing without context."))
		case strings.TrimSpace(text) == "":
			replies = append(replies, textReply("⚠️ The context document is empty. Continuing without context."))
		default:
			s = s.WithContext(text)
			replies = append(replies, textReply(fmt.Sprintf("Context loaded (%d characters).", len([]rune(text)))))
		}
	}

	sheets, err := c.deps.Sheets.ListSheets(ctx, c.cfg.Google.SheetID)
	if err != nil {
		c.logger.Error("listing sheets failed", "sheet_id", c.cfg.Google.SheetID, "error", err)
		return abort(s, replies, fmt.Sprintf("Could not list the spreadsheet's sheets: %v", err))
	}
	if len(sheets) == 0 {
		return abort(s, replies, "The spreadsheet has no sheets, so there are no prospects to pick from.")
	}

	s = s.WithSheets(sheets).WithState(model.StateSheetSelection)
	return s, append(replies, sheetsReply(s, "Which sheet holds your prospects?"))
}

func (c *Controller) chooseSheet(ctx context.Context, s model.DraftSession, name string) (model.DraftSession, []Reply) {
	name = strings.TrimSpace(name)
	if !s.HasSheet(name) {
		return s, []Reply{sheetsReply(s, fmt.Sprintf("There is no sheet named %q. Pick one of these:", name))}
	}

	headers, err := c.deps.Sheets.ReadHeaders(ctx, c.cfg.Google.SheetID, name)
	if err != nil {
		c.logger.Error("reading headers failed", "sheet", name, "error", err)
		return abort(s, nil, fmt.Sprintf("Could not read the header row of %q: %v", name, err))
	}
	if !hasNonBlank(headers) {
		return abort(s, nil, fmt.Sprintf("Sheet %q has no header row.", name))
	}

	s = s.WithSheet(name, headers).WithState(model.StateColumnSelection)
	return s, []Reply{columnsReply(s, fmt.Sprintf("Using sheet %q. Pick the columns to personalize with, then press Done.", name))}
}

func toggleColumn(s model.DraftSession, column string) (model.DraftSession, []Reply) {
	if !s.HasHeader(column) {
		return s, []Reply{columnsReply(s, fmt.Sprintf("%q is not a column of %q.", column, s.SheetName))}
	}
	s = s.WithColumns(s.Columns.Toggle(column))
	return s, []Reply{columnsReply(s, selectionSummary(s))}
}

func doneColumns(s model.DraftSession) (model.DraftSession, []Reply) {
	if s.Columns.Len() == 0 {
		return s, []Reply{columnsReply(s, "Select at least one column before pressing Done.")}
	}
	s = s.WithState(model.StatePrompting)
	return s, []Reply{textReply(fmt.Sprintf(
		"Personalizing with %s.\nWhat kind of email do you want to send to your prospects?",
		strings.Join(placeholders(s.Columns.Names()), ", ")))}
}

func takePrompt(s model.DraftSession, prompt string) (model.DraftSession, []Reply) {
	if prompt == "" {
		return s, []Reply{textReply("Describe the email you want to send.")}
	}
	s = s.WithPrompt(prompt).WithState(model.StateImageChoice)
	return s, []Reply{textReply("Do you want a header image? Reply with the image URL, or \"no\".")}
}

func (c *Controller) chooseImage(ctx context.Context, s model.DraftSession, answer string) (model.DraftSession, []Reply) {
	image := ""
	if !strings.EqualFold(answer, "no") {
		if !isImageURL(answer) {
			return s, []Reply{textReply("Reply with an http(s) image URL, or \"no\".")}
		}
		image = answer
	}

	candidate := s.WithImage(image)
	html, err := c.generate(ctx, candidate)
	if err != nil {
		return s, []Reply{textReply(fmt.Sprintf("Draft generation failed: %v\nSend your answer again to retry.", err))}
	}

	candidate = candidate.WithDraft(html).WithState(model.StateFeedback)
	return candidate, draftReplies(candidate)
}

func (c *Controller) refine(ctx context.Context, s model.DraftSession, feedback string) (model.DraftSession, []Reply) {
	if feedback == "" {
		return s, []Reply{textReply("Type your feedback, or press Approve.")}
	}

	candidate := s.WithFeedback(feedback)
	html, err := c.generate(ctx, candidate)
	if err != nil {
		return s, []Reply{textReply(fmt.Sprintf(
			"Regeneration failed: %v\nThe previous draft is kept. Send the feedback again to retry.", err))}
	}

	candidate = candidate.WithDraft(html)
	replies := []Reply{textReply("Regenerated with your feedback.")}
	return candidate, append(replies, draftReplies(candidate)...)
}

// generate drafts against a placeholder prospect: every selected column
// appears as its [Column] token.
func (c *Controller) generate(ctx context.Context, s model.DraftSession) (string, error) {
	html, err := c.deps.Generator.Generate(ctx, source.DraftRequest{
		Context:  s.Context,
		Prompt:   s.CumulativePrompt(),
		ImageURL: s.ImageURL,
		Columns:  s.Columns.Names(),
	})
	if err != nil {
		c.logger.Error("draft generation failed", "conversation", s.ID, "error", err)
		return "", err
	}
	if strings.TrimSpace(html) == "" {
		return "", errors.New("the generator returned an empty draft")
	}
	return html, nil
}

// send runs the mail merge. The pass is detached from ctx cancellation so
// an approved campaign always runs to completion.
func (c *Controller) send(ctx context.Context, s model.DraftSession) (model.DraftSession, []Reply) {
	s = s.WithState(model.StateSending)
	if err := c.deps.Store.SaveSession(ctx, s.Touch(c.now())); err != nil {
		c.logger.Warn("recording sending state failed", "conversation", s.ID, "error", err)
	}

	sendCtx := context.WithoutCancel(ctx)
	replies := []Reply{textReply(fmt.Sprintf("Approved. Reading prospects from %q…", s.SheetName))}

	table, err := c.deps.Sheets.ReadRange(sendCtx, c.cfg.Google.SheetID, c.cfg.Google.SheetRange(s.SheetName))
	if err != nil {
		c.logger.Error("reading prospects failed", "sheet", s.SheetName, "error", err)
		return abort(s, replies, fmt.Sprintf("Could not read the prospects: %v", err))
	}

	report, err := c.deps.Mailer.Run(sendCtx, table, s.Columns.Names(), s.DraftHTML)
	if err != nil {
		if mailmerge.IsValidationError(err) {
			return abort(s, replies, fmt.Sprintf("Nothing was sent: %v", err))
		}
		return abort(s, replies, fmt.Sprintf("The send pass failed: %v", err))
	}

	replies = append(replies, textReply(summarize(report)))
	return abort(s, replies, "Campaign finished. Send /start to run another.")
}

func (c *Controller) statusReply(ctx context.Context) Reply {
	if c.deps.Status == nil {
		return textReply("No health checks are configured.")
	}
	return textReply(c.deps.Status.Status(ctx))
}

// abort moves s to End with a final message.
func abort(s model.DraftSession, replies []Reply, message string) (model.DraftSession, []Reply) {
	return s.WithState(model.StateEnd), append(replies, textReply(message))
}

// hint tells the operator what the current state expects.
func hint(s model.DraftSession) Reply {
	switch s.State {
	case model.StateSheetSelection:
		return sheetsReply(s, "Pick a sheet from the list, or type its exact name.")
	case model.StateColumnSelection:
		return columnsReply(s, "Toggle the columns to personalize with, then press Done.")
	case model.StatePrompting:
		return textReply("Type the kind of email you want to send.")
	case model.StateImageChoice:
		return textReply("Reply with an image URL, or \"no\".")
	case model.StateFeedback:
		return Reply{Text: "Type feedback to refine the draft, or approve it.", Buttons: draftButtons()}
	case model.StateSending:
		return textReply("A send pass was interrupted. Send /start to begin again.")
	default:
		return textReply("Send /start to begin a new campaign.")
	}
}

func sheetsReply(s model.DraftSession, text string) Reply {
	buttons := make([]Button, 0, len(s.Sheets))
	for _, name := range s.Sheets {
		buttons = append(buttons, Button{Label: name, Data: SheetData(name)})
	}
	return Reply{Text: text, Buttons: buttons}
}

func columnsReply(s model.DraftSession, text string) Reply {
	buttons := make([]Button, 0, len(s.Headers)+1)
	for _, h := range s.Headers {
		if strings.TrimSpace(h) == "" {
			continue
		}
		label := h
		if s.Columns.Contains(h) {
			label = "✅ " + h
		}
		buttons = append(buttons, Button{Label: label, Data: ColumnData(h)})
	}
	buttons = append(buttons, Button{Label: "Done", Data: doneColumnsData})
	return Reply{Text: text, Buttons: buttons}
}

func selectionSummary(s model.DraftSession) string {
	if s.Columns.Len() == 0 {
		return "No columns selected."
	}
	return "Selected: " + strings.Join(s.Columns.Names(), ", ")
}

func draftButtons() []Button {
	return []Button{
		{Label: "Approve & send to all", Data: approveData},
		{Label: "Refine", Data: refineData},
	}
}

func draftReplies(s model.DraftSession) []Reply {
	return []Reply{
		{
			Text: "Here is the HTML draft.",
			Document: &Document{
				Name:    "draft.html",
				Content: []byte(s.DraftHTML),
				Caption: "Draft for " + s.SheetName,
			},
		},
		{
			Text: "--- Draft preview (text only) ---\n\n" + PlainPreview(s.DraftHTML) +
				"\n\n---\nApprove to send it to every prospect, or type feedback to refine it.",
			Buttons: draftButtons(),
		},
	}
}

func summarize(r *model.SendReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sent %d of %d emails (recipients from column %q).", r.Sent, r.Attempted, r.EmailColumn)
	if r.Skipped > 0 {
		fmt.Fprintf(&b, "\nSkipped %d rows without a valid email address.", r.Skipped)
	}
	if len(r.Failures) > 0 {
		fmt.Fprintf(&b, "\n%d failed:", len(r.Failures))
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "\n- %s: %s", f.Recipient, f.Reason)
		}
	}
	return b.String()
}

func placeholders(columns []string) []string {
	out := make([]string, len(columns))
	for i, col := range columns {
		out[i] = mailmerge.Placeholder(col)
	}
	return out
}

func hasNonBlank(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

func isImageURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
