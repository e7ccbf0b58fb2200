// Package privacy screens content before it is persisted. Anything a user
// wraps in a redaction tag never reaches the store or the embedding provider.
package privacy

import (
	"regexp"
	"strings"
)

// redactTagRegex matches <private>...</private> and <redact>...</redact>
// blocks (non-greedy, dotall).
var redactTagRegex = regexp.MustCompile(`(?s)<(private|redact)>.*?</(private|redact)>`)

// Scrub removes all redaction blocks from content and trims the remainder.
func Scrub(content string) string {
	return strings.TrimSpace(redactTagRegex.ReplaceAllString(content, ""))
}

// OnlyRedacted reports whether nothing useful remains after scrubbing,
// i.e. the content was entirely redaction blocks and whitespace.
func OnlyRedacted(content string) bool {
	return Scrub(content) == ""
}
