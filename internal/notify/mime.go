package notify

import (
	"bytes"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	gomail "github.com/wneessen/go-mail"

	"github.com/ignite/punchlist-monitor/internal/domain"
)

const userAgent = "punchlist-monitor"

// Build encodes msg as an RFC 5322 message ready for a raw SES send. Bcc
// addresses are not written to the headers; SES takes them from the
// destination list.
func Build(from mail.Address, msg domain.EmailMessage, now time.Time) ([]byte, error) {
	if len(msg.To) == 0 {
		return nil, ErrNoRecipients
	}
	if !msg.HasBody() {
		return nil, ErrEmptyMessage
	}

	m := gomail.NewMsg()
	if err := m.From(from.String()); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("recipients: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetDateWithValue(now)
	m.SetMessageIDWithValue(uuid.NewString() + "@" + domainOf(from.Address))
	m.SetUserAgent(userAgent)
	if msg.HighPriority {
		m.SetGenHeader(gomail.Header("X-Priority"), "1 (Highest)")
		m.SetGenHeader(gomail.Header("Importance"), "High")
	}

	switch {
	case msg.TextContent != "" && msg.HTMLContent != "":
		m.SetBodyString(gomail.TypeTextPlain, msg.TextContent)
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTMLContent)
	case msg.TextContent != "":
		m.SetBodyString(gomail.TypeTextPlain, msg.TextContent)
	default:
		m.SetBodyString(gomail.TypeTextHTML, msg.HTMLContent)
	}

	for _, a := range msg.Attachments {
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		m.AttachReadSeeker(a.Filename, bytes.NewReader(a.Data),
			gomail.WithFileContentType(gomail.ContentType(ct)))
	}

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	return buf.Bytes(), nil
}

func domainOf(addr string) string {
	if i := strings.LastIndexByte(addr, '@'); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}
