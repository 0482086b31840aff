package gmail

import (
	"encoding/base64"
	"errors"
	"mime"
	"strings"
)

// Outgoing is a plain-text message to send or save as a draft.
type Outgoing struct {
	To      []string
	Cc      []string
	Bcc     []string
	Subject string
	Body    string
}

// Validate checks the fields Gmail needs to accept the message.
func (o Outgoing) Validate() error {
	if len(o.To) == 0 {
		return errors.New("at least one recipient is required")
	}
	if o.Subject == "" {
		return errors.New("subject is required")
	}
	if o.Body == "" {
		return errors.New("body is required")
	}
	return nil
}

// Raw renders the RFC 2822 message and encodes it as base64url, the format
// of gmail.Message.Raw.
func (o Outgoing) Raw() (string, error) {
	if err := o.Validate(); err != nil {
		return "", err
	}
	var b strings.Builder
	writeHeader(&b, "To", strings.Join(o.To, ", "))
	if len(o.Cc) > 0 {
		writeHeader(&b, "Cc", strings.Join(o.Cc, ", "))
	}
	if len(o.Bcc) > 0 {
		writeHeader(&b, "Bcc", strings.Join(o.Bcc, ", "))
	}
	writeHeader(&b, "Subject", encodeRFC2047(o.Subject))
	writeHeader(&b, "Content-Type", `text/plain; charset="UTF-8"`)
	writeHeader(&b, "MIME-Version", "1.0")
	b.WriteString("\r\n")
	b.WriteString(o.Body)
	return base64.URLEncoding.EncodeToString([]byte(b.String())), nil
}

func writeHeader(b *strings.Builder, name, value string) {
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\r\n")
}

// encodeRFC2047 encodes non-ASCII header text, e.g. umlauts in a subject.
func encodeRFC2047(s string) string {
	for _, r := range s {
		if r > 127 {
			return mime.BEncoding.Encode("UTF-8", s)
		}
	}
	return s
}

// SplitAddresses splits a comma-separated recipient list, dropping blanks.
func SplitAddresses(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
