package notify

import "errors"

var (
	// ErrNoRecipients is returned for a message without To addresses.
	ErrNoRecipients = errors.New("notify: message has no recipients")
	// ErrEmptyMessage is returned for a message without a body.
	ErrEmptyMessage = errors.New("notify: message has no body")
	// ErrNotConfigured is returned when the sender has no From address.
	ErrNotConfigured = errors.New("notify: sender not configured")
)
