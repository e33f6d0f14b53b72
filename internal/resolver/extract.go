package resolver

import (
	"errors"
	"fmt"
	"html"
	"regexp"
)

// ErrNoDownloadURL indicates no pattern matched the message body. Terminal:
// there is no URL to retry against.
var ErrNoDownloadURL = errors.New("no download url in message")

// Extraction patterns in priority order. The first pattern with any match
// wins; later patterns are never consulted once an earlier one matches.
var urlPatterns = []*regexp.Regexp{
	// (a) first HTML anchor href in the body
	regexp.MustCompile(`(?i)<a\s[^>]*href="([^"]+)"`),
	// (b) labeled plain-text download reference
	regexp.MustCompile(`(?i)Download at:\s*(https?://[^\s<"']+)`),
	// (c) provider path-shaped download URL
	regexp.MustCompile(`(https?://[^\s<>"']+/download/[^\s<>"']+)`),
	// (d) bare URL with a .pdf-like suffix
	regexp.MustCompile(`(?i)(https?://[^\s<>"']+\.pdf)\b`),
}

// ExtractURL scans the message body for a download reference. The match is
// HTML-entity-decoded so query separators survive HTML bodies.
func ExtractURL(msg Message) (string, error) {
	for _, pattern := range urlPatterns {
		m := pattern.FindStringSubmatch(msg.Body)
		if m == nil {
			continue
		}
		candidate := html.UnescapeString(m[1])
		if candidate == "" {
			return "", fmt.Errorf("%w: matched empty href", ErrNoDownloadURL)
		}
		return candidate, nil
	}
	return "", ErrNoDownloadURL
}
