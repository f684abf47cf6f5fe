// Package htmltext renders HTML email bodies as plain text.
package htmltext

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// strictPolicy removes every element; the content of script and style
// elements is dropped along with the tags.
var strictPolicy = bluemonday.StrictPolicy()

// blankRuns matches a line break followed by any whitespace-only lines.
var blankRuns = regexp.MustCompile(`\n\s*\n`)

// Strip removes all markup from s and decodes entities. Line structure is
// kept as-is.
func Strip(s string) string {
	if s == "" {
		return ""
	}
	return html.UnescapeString(strictPolicy.Sanitize(s))
}

// Preview strips markup and collapses every run of blank lines into a
// single blank line, trimming surrounding whitespace.
func Preview(s string) string {
	text := Strip(s)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
