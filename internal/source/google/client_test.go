package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/api/option"

	"github.com/nhle/campaignbot/internal/model"
	"github.com/nhle/campaignbot/internal/source"
	"github.com/nhle/campaignbot/internal/source/email"
)

// newTestClient points every Google service at handler.
func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(),
		model.GoogleConfig{SheetColumns: "A:Z"},
		"team@example.com",
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestReadDocumentConcatenatesTextRuns(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/documents/doc-1", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"documentId": "doc-1",
			"body": map[string]any{
				"content": []any{
					map[string]any{"sectionBreak": map[string]any{}},
					map[string]any{"paragraph": map[string]any{
						"elements": []any{
							map[string]any{"textRun": map[string]any{"content": "Acme sells "}},
							map[string]any{"textRun": map[string]any{"content": "rockets.\n"}},
						},
					}},
					map[string]any{"paragraph": map[string]any{
						"elements": []any{
							map[string]any{"textRun": map[string]any{"content": "Since 1949.\n"}},
						},
					}},
				},
			},
		})
	})

	c := newTestClient(t, mux)
	got, err := c.ReadDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	if want := "Acme sells rockets.\nSince 1949.\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestListSheetsAndReadRange(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v4/spreadsheets/sheet-1", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"sheets": []any{
				map[string]any{"properties": map[string]any{"title": "Prospects"}},
				map[string]any{"properties": map[string]any{"title": "Archive"}},
			},
		})
	})
	mux.HandleFunc("/v4/spreadsheets/sheet-1/values/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v4/spreadsheets/sheet-1/values/Prospects!A1:Z1":
			writeJSON(w, map[string]any{"values": [][]any{{"Nom", "Prenom", "Email"}}})
		case "/v4/spreadsheets/sheet-1/values/Prospects!A:Z":
			writeJSON(w, map[string]any{"values": [][]any{
				{"Nom", "Prenom", "Email", "Age"},
				{"Doe", "Jane", "jane@x.com", 42},
			}})
		default:
			http.NotFound(w, r)
		}
	})

	c := newTestClient(t, mux)
	ctx := context.Background()

	names, err := c.ListSheets(ctx, "sheet-1")
	if err != nil {
		t.Fatalf("ListSheets: %v", err)
	}
	if len(names) != 2 || names[0] != "Prospects" || names[1] != "Archive" {
		t.Errorf("names = %v", names)
	}

	headers, err := c.ReadHeaders(ctx, "sheet-1", "Prospects")
	if err != nil {
		t.Fatalf("ReadHeaders: %v", err)
	}
	if len(headers) != 3 || headers[2] != "Email" {
		t.Errorf("headers = %v", headers)
	}

	rows, err := c.ReadRange(ctx, "sheet-1", "Prospects!A:Z")
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if len(rows) != 2 || rows[1][3] != "42" {
		t.Errorf("rows = %v", rows)
	}
}

func TestReadErrorsAreClassified(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v4/spreadsheets/denied", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":{"code":403,"message":"permission denied"}}`)
	})
	mux.HandleFunc("/v4/spreadsheets/broken", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	c := newTestClient(t, mux)
	ctx := context.Background()

	_, err := c.ListSheets(ctx, "denied")
	if !source.IsFetchError(err) || !source.IsAuthError(err) {
		t.Errorf("403: expected fetch error wrapping auth error, got %v", err)
	}

	_, err = c.ListSheets(ctx, "broken")
	if !source.IsFetchError(err) {
		t.Errorf("500: expected fetch error, got %v", err)
	}
	if source.IsAuthError(err) {
		t.Errorf("500: unexpected auth error %v", err)
	}
}

func TestSendPostsRawMessage(t *testing.T) {
	var raw string
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/messages/send", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Raw string `json:"raw"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		raw = body.Raw
		writeJSON(w, map[string]any{"id": "m1"})
	})

	c := newTestClient(t, mux)
	if err := c.Send(context.Background(), "jane@x.com", "Information", "<p>Hi Jane</p>"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	decoded, err := base64.URLEncoding.DecodeString(raw)
	if err != nil {
		t.Fatalf("decoding raw: %v", err)
	}
	msg, err := email.ParseMessage(decoded)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if len(msg.To) != 1 || msg.To[0] != "jane@x.com" {
		t.Errorf("to = %v", msg.To)
	}
	if msg.Subject != "Information" {
		t.Errorf("subject = %q", msg.Subject)
	}
	if msg.HTMLBody != "<p>Hi Jane</p>" {
		t.Errorf("html = %q", msg.HTMLBody)
	}
}

func TestSendMapsUnauthorized(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/messages/send", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"code":401,"message":"invalid credentials"}}`)
	})

	c := newTestClient(t, mux)
	err := c.Send(context.Background(), "jane@x.com", "s", "<p>x</p>")
	if !source.IsAuthError(err) {
		t.Errorf("expected auth error, got %v", err)
	}
}
