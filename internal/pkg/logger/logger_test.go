package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func newBufferLogger(level Level, redact bool) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return New(zapcore.AddSync(buf), level, redact), buf
}

func TestLogWritesJSONFields(t *testing.T) {
	l, buf := newBufferLogger(INFO, false)
	l.Log(INFO, "list extracted", "list", "Topside", "rows", 3)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "list extracted", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "Topside", entry["list"])
	assert.Equal(t, "3", entry["rows"])
}

func TestLogRespectsLevel(t *testing.T) {
	l, buf := newBufferLogger(WARN, false)
	l.Log(INFO, "hidden")
	assert.Empty(t, buf.String())
	l.Log(ERROR, "shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestLogRedactsEmbeddedEmails(t *testing.T) {
	l, buf := newBufferLogger(INFO, true)
	l.Log(INFO, "mail sent", "to", "julius.lorzales@example.com", "error", errors.New("rejected ana.maria@example.com"))

	out := buf.String()
	assert.NotContains(t, out, "julius.lorzales@example.com")
	assert.Contains(t, out, "ju***@example.com")
	assert.Contains(t, out, "an***@example.com")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel(" warning "))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel("verbose"))
	assert.Equal(t, "WARN", WARN.String())
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john.doe@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
}

func TestRedactCookies(t *testing.T) {
	in := `GET /_api/web failed: Cookie: FedAuth=77u/PD94bWwg; rtFa=abc+def==; other=keep`
	assert.Equal(t, `GET /_api/web failed: Cookie: FedAuth=***; rtFa=***; other=keep`, RedactCookies(in))
}

func TestLogRedactsSessionCookies(t *testing.T) {
	l, buf := newBufferLogger(INFO, true)
	l.Log(INFO, "request", "header", "FedAuth=secret-token")
	assert.Contains(t, buf.String(), "FedAuth=***")
	assert.NotContains(t, buf.String(), "secret-token")
}
