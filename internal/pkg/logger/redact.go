package logger

import (
	"regexp"
	"strings"
)

var (
	emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

	// SharePoint session cookies end up in request dumps and error strings.
	cookieRegex = regexp.MustCompile(`(?i)\b(FedAuth|rtFa|SPOIDCRL|ESTSAUTH\w*|buid)=([^;\s"]+)`)
)

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "***@***"
	}
	if len(local) > 2 {
		return local[:2] + "***@" + domain
	}
	return "***@" + domain
}

// RedactCookies replaces the value of every known session cookie with ***.
func RedactCookies(s string) string {
	return cookieRegex.ReplaceAllString(s, "$1=***")
}

func redactPIIValue(val string) string {
	return RedactCookies(emailRegex.ReplaceAllStringFunc(val, RedactEmail))
}
