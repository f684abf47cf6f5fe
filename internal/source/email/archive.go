package email

import (
	"context"
	"fmt"
	"net"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/campaignbot/internal/source"
)

// SentArchive appends delivered messages to an IMAP mailbox, since plain
// SMTP submission leaves no copy in the operator's Sent folder.
type SentArchive struct {
	cfg IMAPConfig
}

// NewSentArchive creates an archive for the given IMAP server. The
// mailbox defaults to "Sent".
func NewSentArchive(cfg IMAPConfig) *SentArchive {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "Sent"
	}
	return &SentArchive{cfg: cfg}
}

// connect establishes a connection to the IMAP server, authenticates,
// and returns the connected client. The caller is responsible for
// calling Logout on the returned client.
func (a *SentArchive) connect(_ context.Context) (*imapclient.Client, error) {
	addr := net.JoinHostPort(a.cfg.Host, a.cfg.Port)

	var client *imapclient.Client
	var err error

	if a.cfg.TLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(a.cfg.Username, a.cfg.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &source.AuthError{
			Service: source.ServiceSMTP,
			Message: fmt.Sprintf("IMAP authentication failed for %s: %v", a.cfg.Username, err),
		}
	}

	return client, nil
}

// Append stores raw in the archive mailbox flagged as seen.
func (a *SentArchive) Append(ctx context.Context, raw []byte) error {
	client, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	cmd := client.Append(a.cfg.Mailbox, int64(len(raw)), &imap.AppendOptions{
		Flags: []imap.Flag{imap.FlagSeen},
	})
	if _, err := cmd.Write(raw); err != nil {
		_ = cmd.Close()
		return fmt.Errorf("writing to %s: %w", a.cfg.Mailbox, err)
	}
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("closing append to %s: %w", a.cfg.Mailbox, err)
	}
	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("appending to %s: %w", a.cfg.Mailbox, err)
	}
	return nil
}
