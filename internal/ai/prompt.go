package ai

import (
	"fmt"
	"strings"

	"github.com/nhle/campaignbot/internal/source"
)

const systemPrompt = "You are a helpful sales assistant and expert email designer. You output ONLY raw HTML."

// BuildPrompt renders the user message for a draft request. Every
// personalization column is listed as the exact [Column] token the draft
// must use, so the same template can be mail-merged later.
func BuildPrompt(req source.DraftRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Context about the company:\n%s\n\n", strings.TrimSpace(req.Context))

	if len(req.Columns) > 0 {
		tokens := make([]string, len(req.Columns))
		for i, c := range req.Columns {
			tokens[i] = "[" + c + "]"
		}
		fmt.Fprintf(&b, "Personalization fields: %s\n", strings.Join(tokens, ", "))
		b.WriteString("Write the email for a generic prospect. Wherever a prospect's details belong, " +
			"write the field token exactly as listed, brackets included, and use no other placeholders.\n\n")
	}

	fmt.Fprintf(&b, "Campaign brief:\n%s\n\n", req.Prompt)

	b.WriteString("Draft a premium, modern, newspaper-style email to this prospect.\n")
	b.WriteString("Use HTML and inline CSS.\n")
	if req.ImageURL != "" {
		fmt.Fprintf(&b, "- Include this image at the top of the email (header): "+
			"<img src='%s' alt='Header Image' style='width:100%%; max-width:600px; height:auto; display:block; margin: 0 auto;' />\n",
			req.ImageURL)
	}
	b.WriteString("- Use a clean serif font (like Merriweather or Georgia) for headings.\n")
	b.WriteString("- Use a sans-serif font (like Arial or Helvetica) for body text.\n")
	b.WriteString("- Use a subtle background color (like #f4f4f4) for the outer container and white for the content box.\n")
	b.WriteString("- Add a professional header and footer.\n")
	b.WriteString("- Make it responsive.\n")
	b.WriteString("- Return ONLY the raw HTML code, starting directly with <!DOCTYPE html> or <html>. " +
		"No conversational text and no markdown formatting.\n")

	return b.String()
}
