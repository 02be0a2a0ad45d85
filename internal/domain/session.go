package domain

import "time"

// Cookie is one cookie copied from the authenticated browser session.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure"`
	HTTPOnly bool      `json:"http_only"`
}

// Credentials is the credential handle handed to the list client. It is a
// snapshot of the browser cookie jar taken once per cycle and passed by value.
type Credentials struct {
	Cookies    []Cookie  `json:"cookies"`
	CapturedAt time.Time `json:"captured_at"`
}

// Empty reports whether no cookie was captured.
func (c Credentials) Empty() bool { return len(c.Cookies) == 0 }
