package domain

import "time"

// Attachment is a file carried by an outgoing report message.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

// EmailMessage is the fully-rendered report ready for the mail sender.
// By the time a message reaches this struct, all template rendering and
// attachment generation is complete.
type EmailMessage struct {
	To           []string     `json:"to"`
	BCC          []string     `json:"bcc,omitempty"`
	Subject      string       `json:"subject"`
	HTMLContent  string       `json:"html_content,omitempty"`
	TextContent  string       `json:"text_content,omitempty"`
	Attachments  []Attachment `json:"attachments,omitempty"`
	HighPriority bool         `json:"high_priority"`
}

// HasBody reports whether the message carries an HTML or plain-text body.
func (m EmailMessage) HasBody() bool {
	return m.HTMLContent != "" || m.TextContent != ""
}

// SendResult is returned by the mail sender after local hand-off.
type SendResult struct {
	MessageID string    `json:"message_id"`
	SentAt    time.Time `json:"sent_at"`
}
