package email

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/nhle/campaignbot/internal/htmltext"
)

// BuildMessage renders msg as an RFC 5322 multipart/alternative message
// with a plain-text part derived from the HTML followed by the HTML part.
func BuildMessage(msg Message, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetSubject(msg.Subject)
	if msg.From != "" {
		h.SetAddressList("From", []*mail.Address{{Address: msg.From}})
	}
	h.SetAddressList("To", []*mail.Address{{Address: msg.To}})
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generating message id: %w", err)
	}

	var buf bytes.Buffer
	w, err := mail.CreateInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating message writer: %w", err)
	}

	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain", htmltext.Strip(msg.HTML)},
		{"text/html", msg.HTML},
	}
	for _, p := range parts {
		var ph mail.InlineHeader
		ph.SetContentType(p.contentType, map[string]string{"charset": "utf-8"})
		ph.Set("Content-Transfer-Encoding", "quoted-printable")

		pw, err := w.CreatePart(ph)
		if err != nil {
			return nil, fmt.Errorf("creating %s part: %w", p.contentType, err)
		}
		if _, err := io.WriteString(pw, p.body); err != nil {
			return nil, fmt.Errorf("writing %s part: %w", p.contentType, err)
		}
		if err := pw.Close(); err != nil {
			return nil, fmt.Errorf("closing %s part: %w", p.contentType, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing message: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseMessage decodes a message produced by BuildMessage (or any MIME
// message) into its headers and text/html bodies.
func ParseMessage(raw []byte) (*ParsedMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing message: %w", err)
	}
	defer mr.Close()

	parsed := &ParsedMessage{}
	parsed.Subject, _ = mr.Header.Subject()
	parsed.MessageID, _ = mr.Header.MessageID()
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		parsed.From = from[0].Address
	}
	if to, err := mr.Header.AddressList("To"); err == nil {
		for _, a := range to {
			parsed.To = append(parsed.To, a.Address)
		}
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading message part: %w", err)
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			return nil, fmt.Errorf("reading %s body: %w", contentType, err)
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain"):
			parsed.TextBody = string(body)
		case strings.HasPrefix(contentType, "text/html"):
			parsed.HTMLBody = string(body)
		}
	}

	return parsed, nil
}
