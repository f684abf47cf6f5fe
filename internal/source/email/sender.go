package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"time"

	"github.com/nhle/campaignbot/internal/source"
)

const dialTimeout = 30 * time.Second

// Sender delivers campaign messages over SMTP. When an archive is
// configured, a copy of every delivered message is appended to its Sent
// mailbox; a failed append is logged and never fails the send.
type Sender struct {
	cfg     SMTPConfig
	from    string
	archive *SentArchive
	logger  *slog.Logger
	now     func() time.Time
}

// NewSender creates an SMTP sender. archive may be nil.
func NewSender(cfg SMTPConfig, from string, archive *SentArchive, logger *slog.Logger) *Sender {
	if from == "" {
		from = cfg.Username
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{
		cfg:     cfg,
		from:    from,
		archive: archive,
		logger:  logger,
		now:     time.Now,
	}
}

// Send implements source.MailSender.
func (s *Sender) Send(ctx context.Context, to, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := BuildMessage(Message{
		From:    s.from,
		To:      to,
		Subject: subject,
		HTML:    html,
	}, s.now())
	if err != nil {
		return err
	}

	if err := s.deliver(ctx, to, raw); err != nil {
		return err
	}

	if s.archive != nil {
		if err := s.archive.Append(ctx, raw); err != nil {
			s.logger.Warn("filing sent copy failed", "recipient", to, "error", err)
		}
	}
	return nil
}

func (s *Sender) deliver(ctx context.Context, to string, raw []byte) error {
	addr := net.JoinHostPort(s.cfg.Host, s.cfg.Port)

	var (
		client *smtp.Client
		err    error
	)
	if s.cfg.TLS {
		client, err = dialSMTPWithTLS(ctx, addr, s.cfg.Host)
	} else {
		client, err = dialSMTPWithStartTLS(ctx, addr, s.cfg.Host)
	}
	if err != nil {
		return err
	}
	defer client.Close()

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return &source.AuthError{
			Service: source.ServiceSMTP,
			Message: fmt.Sprintf("authentication failed for %s: %v", s.cfg.Username, err),
		}
	}

	return sendMailViaSMTPClient(client, s.from, to, raw)
}

// dialSMTPWithTLS opens an implicit TLS connection.
func dialSMTPWithTLS(ctx context.Context, addr, host string) (*smtp.Client, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: dialTimeout},
		Config:    &tls.Config{ServerName: host},
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("TLS dial to %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating SMTP client: %w", err)
	}
	return client, nil
}

// dialSMTPWithStartTLS opens a plain connection and upgrades it.
func dialSMTPWithStartTLS(ctx context.Context, addr, host string) (*smtp.Client, error) {
	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial to %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating SMTP client: %w", err)
	}

	if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
		client.Close()
		return nil, fmt.Errorf("SMTP STARTTLS: %w", err)
	}
	return client, nil
}

// sendMailViaSMTPClient sends a message using an already-authenticated
// SMTP client.
func sendMailViaSMTPClient(client *smtp.Client, from, to string, body []byte) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}

	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("SMTP RCPT TO: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}

	if _, err := writer.Write(body); err != nil {
		return fmt.Errorf("writing email body: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing email body: %w", err)
	}

	return client.Quit()
}
