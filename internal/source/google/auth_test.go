package google

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nhle/campaignbot/internal/credential"
	"github.com/nhle/campaignbot/internal/model"
	"github.com/nhle/campaignbot/internal/source"
)

func noLookup(string, string) (string, credential.Origin) { return "", credential.OriginNone }

func staticLookup(v string) LookupFunc {
	return func(string, string) (string, credential.Origin) { return v, credential.OriginEnv }
}

const clientSecrets = `{"installed":{"client_id":"cid","client_secret":"csecret",` +
	`"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",` +
	`"redirect_uris":["http://localhost"]}}`

func TestParseTokenFormats(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		wantAccess string
		wantClient string
		wantExpiry time.Time
		wantErr    bool
	}{
		{
			name:       "authorized user",
			data:       `{"token":"ya29","refresh_token":"r","client_id":"cid","client_secret":"s","expiry":"2030-01-02T03:04:05.000000Z"}`,
			wantAccess: "ya29",
			wantClient: "cid",
			wantExpiry: time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		{
			name:       "oauth2 token",
			data:       `{"access_token":"abc","token_type":"Bearer","refresh_token":"r","expiry":"2030-01-02T03:04:05Z"}`,
			wantAccess: "abc",
			wantExpiry: time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		{
			name:       "expiry without zone",
			data:       `{"token":"t","expiry":"2030-01-02T03:04:05.123456"}`,
			wantAccess: "t",
			wantExpiry: time.Date(2030, 1, 2, 3, 4, 5, 123456000, time.UTC),
		},
		{name: "empty", data: `{}`, wantErr: true},
		{name: "garbage", data: `not json`, wantErr: true},
		{name: "bad expiry", data: `{"token":"t","expiry":"tomorrow"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, clientID, _, err := ParseToken([]byte(tt.data))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseToken: %v", err)
			}
			if tok.AccessToken != tt.wantAccess {
				t.Errorf("access = %q, want %q", tok.AccessToken, tt.wantAccess)
			}
			if clientID != tt.wantClient {
				t.Errorf("client id = %q, want %q", clientID, tt.wantClient)
			}
			if !tok.Expiry.Equal(tt.wantExpiry) {
				t.Errorf("expiry = %v, want %v", tok.Expiry, tt.wantExpiry)
			}
		})
	}
}

func TestLoadCredentialsFromFiles(t *testing.T) {
	t.Setenv(EnvCredentialsJSON, "")
	dir := t.TempDir()

	tokenFile := filepath.Join(dir, "token.json")
	secretsFile := filepath.Join(dir, "credentials.json")
	if err := os.WriteFile(tokenFile, []byte(`{"token":"t","refresh_token":"r"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(secretsFile, []byte(clientSecrets), 0o600); err != nil {
		t.Fatal(err)
	}

	creds, err := LoadCredentials(model.GoogleConfig{
		TokenFile:       tokenFile,
		CredentialsFile: secretsFile,
	}, noLookup)
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if creds.TokenOrigin != "file" {
		t.Errorf("origin = %q", creds.TokenOrigin)
	}
	if creds.Config == nil || creds.Config.ClientID != "cid" {
		t.Fatalf("config = %+v", creds.Config)
	}
	if creds.TokenSource(t.Context()) == nil {
		t.Error("expected token source")
	}
}

func TestLoadCredentialsPrefersLookup(t *testing.T) {
	t.Setenv(EnvCredentialsJSON, "")

	creds, err := LoadCredentials(model.GoogleConfig{TokenFile: "/nonexistent/token.json"},
		staticLookup(`{"token":"env","refresh_token":"r","client_id":"embedded","client_secret":"s"}`))
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if creds.Token.AccessToken != "env" || creds.TokenOrigin != "env" {
		t.Errorf("token = %+v origin = %q", creds.Token, creds.TokenOrigin)
	}
	if creds.Config == nil || creds.Config.ClientID != "embedded" {
		t.Errorf("expected client from token, got %+v", creds.Config)
	}
}

func TestLoadCredentialsMissing(t *testing.T) {
	t.Setenv(EnvCredentialsJSON, "")

	_, err := LoadCredentials(model.GoogleConfig{TokenFile: "/nonexistent/token.json"}, noLookup)
	if !source.IsConfigurationError(err) {
		t.Errorf("missing token: expected configuration error, got %v", err)
	}

	_, err = LoadCredentials(model.GoogleConfig{}, staticLookup(`{"refresh_token":"r"}`))
	if !source.IsConfigurationError(err) {
		t.Errorf("refresh without client: expected configuration error, got %v", err)
	}
}

func TestInspectToken(t *testing.T) {
	t.Setenv(EnvCredentialsJSON, "")

	st := InspectToken(model.GoogleConfig{}, staticLookup(`{"token":"t","expiry":"2000-01-01T00:00:00Z","refresh_token":"r"}`))
	if !st.Present || st.Valid || !st.Refreshable {
		t.Errorf("expired token status = %+v", st)
	}

	st = InspectToken(model.GoogleConfig{}, staticLookup(`{"token":"t","expiry":"2999-01-01T00:00:00Z"}`))
	if !st.Present || !st.Valid {
		t.Errorf("valid token status = %+v", st)
	}

	st = InspectToken(model.GoogleConfig{TokenFile: "/nonexistent"}, noLookup)
	if st.Present || st.Err == nil {
		t.Errorf("missing token status = %+v", st)
	}

	if ClientSecretsPresent(model.GoogleConfig{CredentialsFile: "/nonexistent"}) {
		t.Error("expected no client secrets")
	}
	t.Setenv(EnvCredentialsJSON, clientSecrets)
	if !ClientSecretsPresent(model.GoogleConfig{}) {
		t.Error("expected client secrets from environment")
	}
}
