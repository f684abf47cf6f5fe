package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/sheets/v4"

	"github.com/nhle/campaignbot/internal/credential"
	"github.com/nhle/campaignbot/internal/model"
	"github.com/nhle/campaignbot/internal/source"
)

// Scopes are the OAuth scopes the campaign needs.
var Scopes = []string{
	docs.DocumentsReadonlyScope,
	sheets.SpreadsheetsReadonlyScope,
	gmail.GmailSendScope,
}

// Environment variables that carry credentials inline, for deployments
// without a writable config directory.
const (
	EnvTokenJSON       = "GOOGLE_TOKEN_JSON"
	EnvCredentialsJSON = "GOOGLE_CREDENTIALS_JSON"
)

// LookupFunc resolves a secret by keyring key, consulting envVar first.
// credential.Lookup is the production implementation.
type LookupFunc func(key, envVar string) (string, credential.Origin)

// Credentials is a loaded authorized-user token plus the OAuth client
// used to refresh it. Refreshed tokens live only in memory.
type Credentials struct {
	Token       *oauth2.Token
	TokenOrigin string
	Config      *oauth2.Config
}

// authorizedUser accepts both the golang.org/x/oauth2 token encoding and
// the "authorized user" JSON written by Google's Python tooling.
type authorizedUser struct {
	Token        string `json:"token"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Expiry       string `json:"expiry"`
}

var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// ParseToken decodes an authorized-user token document. The returned
// client id and secret are empty unless the document embeds them.
func ParseToken(data []byte) (tok *oauth2.Token, clientID, clientSecret string, err error) {
	var u authorizedUser
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, "", "", fmt.Errorf("decoding token: %w", err)
	}

	access := u.AccessToken
	if access == "" {
		access = u.Token
	}
	if access == "" && u.RefreshToken == "" {
		return nil, "", "", errors.New("token has neither an access token nor a refresh token")
	}

	tok = &oauth2.Token{
		AccessToken:  access,
		RefreshToken: u.RefreshToken,
		TokenType:    u.TokenType,
	}
	if u.Expiry != "" {
		for _, layout := range expiryLayouts {
			if t, perr := time.Parse(layout, u.Expiry); perr == nil {
				tok.Expiry = t
				break
			}
		}
		if tok.Expiry.IsZero() {
			return nil, "", "", fmt.Errorf("decoding token expiry %q", u.Expiry)
		}
	}
	return tok, u.ClientID, u.ClientSecret, nil
}

// readToken finds the token document: environment, then keyring, then
// the configured token file.
func readToken(cfg model.GoogleConfig, lookup LookupFunc) ([]byte, string, error) {
	if v, origin := lookup(credential.KeyGoogleToken, EnvTokenJSON); v != "" {
		return []byte(v), string(origin), nil
	}
	if cfg.TokenFile == "" {
		return nil, "", &source.ConfigurationError{
			Setting: "google token",
			Hint:    "set " + EnvTokenJSON + " or google.token_file",
		}
	}
	data, err := os.ReadFile(cfg.TokenFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", &source.ConfigurationError{
			Setting: "google token",
			Hint:    cfg.TokenFile + " not found; set " + EnvTokenJSON,
		}
	}
	if err != nil {
		return nil, "", fmt.Errorf("reading token file %s: %w", cfg.TokenFile, err)
	}
	return data, "file", nil
}

// readClientSecrets returns the OAuth client secrets JSON from
// GOOGLE_CREDENTIALS_JSON or the configured credentials file. A nil slice
// with a nil error means neither is present.
func readClientSecrets(cfg model.GoogleConfig) ([]byte, error) {
	if v := strings.TrimSpace(os.Getenv(EnvCredentialsJSON)); v != "" {
		return []byte(v), nil
	}
	if cfg.CredentialsFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(cfg.CredentialsFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credentials file %s: %w", cfg.CredentialsFile, err)
	}
	return data, nil
}

// LoadCredentials loads the authorized-user token and the OAuth client
// that can refresh it. There is no interactive consent flow; a missing
// token is a ConfigurationError.
func LoadCredentials(cfg model.GoogleConfig, lookup LookupFunc) (*Credentials, error) {
	data, origin, err := readToken(cfg, lookup)
	if err != nil {
		return nil, err
	}

	tok, clientID, clientSecret, err := ParseToken(data)
	if err != nil {
		return nil, fmt.Errorf("loading google token from %s: %w", origin, err)
	}

	creds := &Credentials{Token: tok, TokenOrigin: origin}

	secrets, err := readClientSecrets(cfg)
	if err != nil {
		return nil, err
	}
	switch {
	case secrets != nil:
		oc, err := googleoauth.ConfigFromJSON(secrets, Scopes...)
		if err != nil {
			return nil, fmt.Errorf("parsing client secrets: %w", err)
		}
		creds.Config = oc
	case clientID != "":
		creds.Config = &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     googleoauth.Endpoint,
			Scopes:       Scopes,
		}
	case tok.RefreshToken != "":
		return nil, &source.ConfigurationError{
			Setting: "google client credentials",
			Hint:    "set " + EnvCredentialsJSON + " or google.credentials_file",
		}
	}

	return creds, nil
}

// TokenSource returns a refreshing token source when an OAuth client is
// known, otherwise a static one.
func (c *Credentials) TokenSource(ctx context.Context) oauth2.TokenSource {
	if c.Config == nil {
		return oauth2.StaticTokenSource(c.Token)
	}
	return c.Config.TokenSource(ctx, c.Token)
}

// TokenStatus describes the stored token without contacting Google.
type TokenStatus struct {
	Present     bool
	Origin      string
	Valid       bool
	Refreshable bool
	Expiry      time.Time
	Err         error
}

// InspectToken reports whether a token is present and still valid.
func InspectToken(cfg model.GoogleConfig, lookup LookupFunc) TokenStatus {
	data, origin, err := readToken(cfg, lookup)
	if err != nil {
		return TokenStatus{Err: err}
	}
	tok, _, _, err := ParseToken(data)
	if err != nil {
		return TokenStatus{Present: true, Origin: origin, Err: err}
	}
	return TokenStatus{
		Present:     true,
		Origin:      origin,
		Valid:       tok.Valid(),
		Refreshable: tok.RefreshToken != "",
		Expiry:      tok.Expiry,
	}
}

// ClientSecretsPresent reports whether OAuth client secrets are
// available.
func ClientSecretsPresent(cfg model.GoogleConfig) bool {
	data, err := readClientSecrets(cfg)
	return err == nil && data != nil
}
