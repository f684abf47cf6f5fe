package mailmerge

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nhle/campaignbot/internal/model"
)

type sentMessage struct {
	to, subject, html string
}

// fakeSender records every send and fails for addresses in failFor.
type fakeSender struct {
	sent    []sentMessage
	failFor map[string]error
}

func (f *fakeSender) Send(_ context.Context, to, subject, html string) error {
	f.sent = append(f.sent, sentMessage{to, subject, html})
	if err := f.failFor[to]; err != nil {
		return err
	}
	return nil
}

func TestBuildProspectsDetectsEmailColumn(t *testing.T) {
	table := [][]string{
		{"Nom", "Prenom", "Email"},
		{"Doe", "Jane", "jane@x.com"},
		{"", "", "not-an-email"},
	}

	prospects, skipped, col, err := BuildProspects(table, []string{"Email"})
	if err != nil {
		t.Fatalf("BuildProspects: %v", err)
	}
	if col != "Email" {
		t.Errorf("email column = %q", col)
	}
	if len(prospects) != 1 || prospects[0].Email != "jane@x.com" {
		t.Fatalf("prospects = %+v", prospects)
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
}

func TestBuildProspectsRowInclusion(t *testing.T) {
	table := [][]string{
		{"Name", "EMail Address", "City"},
		{"Ada", "  ada@x.com  ", "London"},
		{"Bob"},
		{"Cy", "cy.x.com"},
		{"Di", "di@x.com"},
		{"Ed", "   "},
	}

	prospects, skipped, col, err := BuildProspects(table, []string{"Name", "City"})
	if err != nil {
		t.Fatalf("BuildProspects: %v", err)
	}
	if col != "EMail Address" {
		t.Errorf("email column = %q, want fallback to header scan", col)
	}
	if got := len(prospects) + skipped; got != len(table)-1 {
		t.Fatalf("prospects+skipped = %d, want %d", got, len(table)-1)
	}
	if skipped != 3 {
		t.Errorf("skipped = %d, want 3", skipped)
	}

	if prospects[0].Email != "ada@x.com" {
		t.Errorf("email not trimmed: %q", prospects[0].Email)
	}
	if prospects[1].Field("City") != "" {
		t.Errorf("missing trailing cell should be empty, got %q", prospects[1].Field("City"))
	}
	if prospects[1].Field("Name") != "Di" {
		t.Errorf("name = %q", prospects[1].Field("Name"))
	}
}

func TestEmailColumnPrefersSelected(t *testing.T) {
	headers := []string{"Email", "Name", "Work EMAIL"}

	if col, _ := EmailColumn(headers, []string{"Name", "Work EMAIL"}); col != "Work EMAIL" {
		t.Errorf("got %q, want selected Work EMAIL", col)
	}
	if col, _ := EmailColumn(headers, []string{"Name"}); col != "Email" {
		t.Errorf("got %q, want first header Email", col)
	}
	if _, ok := EmailColumn([]string{"Nom", "Prenom"}, nil); ok {
		t.Error("expected no email column")
	}
}

func TestBuildProspectsValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		table [][]string
	}{
		{"empty table", nil},
		{"no email header", [][]string{{"Nom", "Prenom"}, {"Doe", "Jane"}}},
		{"no valid rows", [][]string{{"Email"}, {"nope"}, {}}},
		{"headers only", [][]string{{"Email"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := BuildProspects(tt.table, []string{"Email"})
			if !IsValidationError(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestPersonalize(t *testing.T) {
	ada := model.Prospect{Email: "ada@x.com", Fields: map[string]string{"Name": "Ada"}}
	blank := model.Prospect{Email: "b@x.com", Fields: map[string]string{"Name": ""}}

	tests := []struct {
		name     string
		template string
		columns  []string
		p        model.Prospect
		want     string
	}{
		{"simple", "Hello [Name]", []string{"Name"}, ada, "Hello Ada"},
		{"missing value", "Hello [Name]", []string{"Name"}, blank, "Hello "},
		{"repeated", "[Name], [Name]!", []string{"Name"}, ada, "Ada, Ada!"},
		{"case sensitive", "Hello [name]", []string{"Name"}, ada, "Hello [name]"},
		{"unselected token kept", "Hi [Name] from [Company]", []string{"Name"}, ada, "Hi Ada from [Company]"},
		{"no tokens unchanged", "<p>Plain text</p>", []string{"Name"}, ada, "<p>Plain text</p>"},
		{"no columns", "Hello [Name]", nil, ada, "Hello [Name]"},
		{
			"value not rescanned",
			"[A] and [B]",
			[]string{"A", "B"},
			model.Prospect{Fields: map[string]string{"A": "[B]", "B": "bee"}},
			"[B] and bee",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Personalize(tt.template, tt.columns, tt.p); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	sender := &fakeSender{failFor: map[string]error{
		"bob@x.com": errors.New("mailbox unavailable"),
	}}
	engine := NewEngine(sender, "Hi [Name]")

	table := [][]string{
		{"Name", "Email"},
		{"Ada", "ada@x.com"},
		{"Bob", "bob@x.com"},
	}
	report, err := engine.Run(context.Background(), table, []string{"Name", "Email"}, "<p>Hello [Name]</p>")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Attempted != 2 || report.Sent != 1 {
		t.Errorf("attempted=%d sent=%d, want 2/1", report.Attempted, report.Sent)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("failures = %+v", report.Failures)
	}
	if f := report.Failures[0]; f.Recipient != "bob@x.com" || f.Reason != "mailbox unavailable" {
		t.Errorf("failure = %+v", f)
	}

	if len(sender.sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sender.sent))
	}
	first := sender.sent[0]
	if first.to != "ada@x.com" || first.subject != "Hi Ada" || first.html != "<p>Hello Ada</p>" {
		t.Errorf("first message = %+v", first)
	}
}

func TestRunSendsNothingOnValidationError(t *testing.T) {
	sender := &fakeSender{}
	engine := NewEngine(sender, "Information")

	_, err := engine.Run(context.Background(), [][]string{{"Email"}, {"x"}}, []string{"Email"}, "body")
	if !IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("sent %d messages, want none", len(sender.sent))
	}
}

func TestRunRecordsEveryRecipientOnce(t *testing.T) {
	sender := &fakeSender{failFor: map[string]error{}}
	table := [][]string{{"Email"}}
	for i := 0; i < 25; i++ {
		addr := fmt.Sprintf("p%d@x.com", i)
		table = append(table, []string{addr})
		if i%4 == 0 {
			sender.failFor[addr] = errors.New("rejected")
		}
	}

	report, err := NewEngine(sender, "s", WithRate(1000)).
		Run(context.Background(), table, []string{"Email"}, "b")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Attempted != 25 || report.Sent+len(report.Failures) != 25 {
		t.Errorf("report = %+v", report)
	}
	for i, m := range sender.sent {
		if want := fmt.Sprintf("p%d@x.com", i); m.to != want {
			t.Fatalf("send %d went to %s, want %s", i, m.to, want)
		}
	}
}

func TestRunPacingHonorsCancellation(t *testing.T) {
	sender := &fakeSender{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewEngine(sender, "s", WithRate(1)).
		Run(ctx, [][]string{{"Email"}, {"a@x.com"}}, []string{"Email"}, "b")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("expected no send attempts, got %d", len(sender.sent))
	}
	if report.Attempted != 1 || len(report.Failures) != 1 {
		t.Errorf("report = %+v", report)
	}
}
