package credential

import (
	"fmt"
	"os"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "campaignbot"

// Well-known credential keys.
const (
	KeyOpenAI       = "openai-api-key"
	KeyGoogleToken  = "google-token"
	KeySMTPPassword = "smtp-password"
)

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/campaignbot/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("campaignbot-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key string, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: serviceName + " " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key from the system keyring.
func Delete(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

// Origin tells where a looked-up credential came from.
type Origin string

const (
	OriginNone    Origin = ""
	OriginEnv     Origin = "env"
	OriginKeyring Origin = "keyring"
)

// Lookup returns the credential from the environment variable envVar when
// it is set and non-blank, falling back to the keyring entry key. An empty
// value with OriginNone means neither source had it.
func Lookup(key, envVar string) (string, Origin) {
	if envVar != "" {
		if v := strings.TrimSpace(os.Getenv(envVar)); v != "" {
			return v, OriginEnv
		}
	}
	v, err := Get(key)
	if err != nil || strings.TrimSpace(v) == "" {
		return "", OriginNone
	}
	return v, OriginKeyring
}
