package campaign

import (
	"github.com/nhle/campaignbot/internal/htmltext"
)

// Button is an inline choice offered with a reply.
type Button struct {
	Label string
	Data  string
}

// Document is a file attached to a reply.
type Document struct {
	Name    string
	Content []byte
	Caption string
}

// Reply is one message for the transport to render.
type Reply struct {
	Text     string
	Buttons  []Button
	Document *Document
}

const maxPreviewRunes = 3500

// PlainPreview renders a draft as chat text: markup removed, blank-line
// runs collapsed, and long drafts cut short.
func PlainPreview(html string) string {
	preview := htmltext.Preview(html)
	runes := []rune(preview)
	if len(runes) > maxPreviewRunes {
		return string(runes[:maxPreviewRunes]) + "…"
	}
	return preview
}

func textReply(text string) Reply {
	return Reply{Text: text}
}
