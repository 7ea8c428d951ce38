package mail

import (
	"encoding/base64"
	"net/url"
	"regexp"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	gm "google.golang.org/api/gmail/v1"
)

// Message is one decoded inbox message.
type Message struct {
	ID        string
	ThreadID  string
	Subject   string
	From      string
	FromName  string
	FromEmail string
	To        string
	Date      time.Time
	Snippet   string
	Body      string
	Labels    []string
}

var addressRe = regexp.MustCompile(`^(?:"?([^"<]*)"?\s*)?<?([^<>\s]+@[^<>\s]+)>?$`)

// ParseAddress splits a From header into display name and address.
// Handles "Name <addr>" and bare "addr"; with no name present, the
// local part of the address becomes the display name.
func ParseAddress(header string) (name, email string) {
	header = strings.TrimSpace(header)
	m := addressRe.FindStringSubmatch(header)
	if m == nil {
		return header, header
	}
	email = strings.TrimSpace(m[2])
	name = strings.TrimSpace(m[1])
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	return name, email
}

// extractBody decodes a message payload into plain text.
// Preference order: text/plain part, then text/html stripped to text,
// then a recursive search of nested multiparts. No textual part at all
// yields an empty body, not an error.
func extractBody(payload *gm.MessagePart) string {
	if payload == nil {
		return ""
	}

	// Direct body on the payload itself.
	if payload.Body != nil && payload.Body.Data != "" {
		if decoded, err := decodeBase64URL(payload.Body.Data); err == nil {
			if strings.EqualFold(payload.MimeType, "text/html") {
				return htmlToText(decoded)
			}
			return decoded
		}
	}

	// First pass: prefer text/plain.
	for _, part := range payload.Parts {
		if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
			if decoded, err := decodeBase64URL(part.Body.Data); err == nil {
				return decoded
			}
		}
	}

	// Second pass: fall back to stripped HTML.
	for _, part := range payload.Parts {
		if part.MimeType == "text/html" && part.Body != nil && part.Body.Data != "" {
			if decoded, err := decodeBase64URL(part.Body.Data); err == nil {
				return htmlToText(decoded)
			}
		}
	}

	// Third pass: recurse into nested multiparts.
	for _, part := range payload.Parts {
		if len(part.Parts) > 0 {
			if body := extractBody(part); body != "" {
				return body
			}
		}
	}

	return ""
}

var (
	styleRe  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	scriptRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	tagRe    = regexp.MustCompile(`<[^>]+>`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// Readability requires a page URL to resolve relative links; email
// bodies have none, so a placeholder is used.
var placeholderURL = &url.URL{Scheme: "message", Host: "local"}

// htmlToText reduces an HTML email body to readable text. Readability
// handles full documents well; fragments it rejects fall through to a
// plain tag strip.
func htmlToText(html string) string {
	if article, err := readability.FromReader(strings.NewReader(html), placeholderURL); err == nil {
		if text := strings.TrimSpace(article.TextContent); text != "" {
			return text
		}
	}

	text := styleRe.ReplaceAllString(html, " ")
	text = scriptRe.ReplaceAllString(text, " ")
	text = tagRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}

// headerValue finds a header by name, case-insensitively.
func headerValue(headers []*gm.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// decodeBase64URL decodes Gmail's base64url-encoded content.
func decodeBase64URL(data string) (string, error) {
	// Gmail uses URL-safe base64 without padding.
	data = strings.ReplaceAll(data, "-", "+")
	data = strings.ReplaceAll(data, "_", "/")
	// Add padding if needed.
	switch len(data) % 4 {
	case 2:
		data += "=="
	case 3:
		data += "="
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
