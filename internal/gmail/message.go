package gmail

import (
	"encoding/base64"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	gmail "google.golang.org/api/gmail/v1"
)

var firstURLPattern = regexp.MustCompile(`https?://[^\s)\]]{12,}`)

// HeaderValue returns the first header named name, compared case-insensitively.
func HeaderValue(part *gmail.MessagePart, name string) string {
	if part == nil {
		return ""
	}
	for _, h := range part.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// HTMLBody returns the decoded body of the last text/html leaf part.
func HTMLBody(part *gmail.MessagePart) string {
	var body string
	walkParts(part, func(p *gmail.MessagePart) {
		if len(p.Parts) > 0 || !strings.HasPrefix(p.MimeType, "text/html") {
			return
		}
		if p.Body == nil || p.Body.Data == "" {
			return
		}
		if decoded, ok := decodeBody(p.Body.Data); ok {
			body = decoded
		}
	})
	return body
}

// FirstURL returns the first http(s) URL of at least 12 characters after the
// scheme, or "".
func FirstURL(text string) string {
	return firstURLPattern.FindString(text)
}

// Snippet returns the message snippet with HTML entities decoded.
func Snippet(m *gmail.Message) string {
	return html.UnescapeString(m.Snippet)
}

func walkParts(part *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	if part == nil {
		return
	}
	fn(part)
	for _, sub := range part.Parts {
		walkParts(sub, fn)
	}
}

// decodeBody decodes Gmail's base64url body data, falling back to the
// unpadded and standard alphabets.
func decodeBody(data string) (string, bool) {
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.RawURLEncoding, base64.StdEncoding} {
		if b, err := enc.DecodeString(data); err == nil {
			return string(b), true
		}
	}
	return "", false
}
