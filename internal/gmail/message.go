package gmail

import (
	"encoding/base64"
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

// Message is the flat record the tools return for a Gmail message.
type Message struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"threadId"`
	Subject  string   `json:"subject"`
	From     string   `json:"from"`
	To       string   `json:"to"`
	Date     string   `json:"date"`
	Snippet  string   `json:"snippet"`
	Body     string   `json:"body"`
	LabelIDs []string `json:"labelIds"`
}

// ParseMessage flattens an API message. The body is the payload's own data
// when present, otherwise the first text/plain part found depth-first.
func ParseMessage(m *gmail.Message) Message {
	if m == nil {
		return Message{}
	}
	out := Message{
		ID:       m.Id,
		ThreadID: m.ThreadId,
		Snippet:  m.Snippet,
		LabelIDs: m.LabelIds,
	}
	if m.Payload == nil {
		return out
	}
	out.Subject = HeaderValue(m.Payload, "Subject")
	out.From = HeaderValue(m.Payload, "From")
	out.To = HeaderValue(m.Payload, "To")
	out.Date = HeaderValue(m.Payload, "Date")

	data := ""
	if m.Payload.Body != nil && m.Payload.Body.Data != "" {
		data = m.Payload.Body.Data
	} else if part := findPart(m.Payload.Parts, "text/plain"); part != nil {
		data = part.Body.Data
	}
	out.Body = decodeBody(data)
	return out
}

// HeaderValue returns the first header called name, compared case-insensitively.
func HeaderValue(p *gmail.MessagePart, name string) string {
	if p == nil {
		return ""
	}
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func findPart(parts []*gmail.MessagePart, mimeType string) *gmail.MessagePart {
	for _, p := range parts {
		if p == nil {
			continue
		}
		if p.MimeType == mimeType && p.Body != nil && p.Body.Data != "" {
			return p
		}
		if found := findPart(p.Parts, mimeType); found != nil {
			return found
		}
	}
	return nil
}

// decodeBody decodes base64url body data, falling back to the unpadded and
// standard alphabets. Undecodable data yields "".
func decodeBody(data string) string {
	if data == "" {
		return ""
	}
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.RawURLEncoding, base64.StdEncoding} {
		if decoded, err := enc.DecodeString(data); err == nil {
			return string(decoded)
		}
	}
	return ""
}
