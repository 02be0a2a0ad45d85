package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

// String returns the upper-case level name.
func (l Level) String() string { return levelNames[l] }

// ParseLevel maps a config string to a Level. Unknown values map to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Logger provides structured JSON logging with optional PII redaction.
type Logger struct {
	mu        sync.Mutex
	level     zap.AtomicLevel
	zl        *zap.Logger
	redactPII bool
}

var defaultLogger = New(os.Stderr, INFO, true)

// New builds a Logger writing JSON lines to w.
func New(w zapcore.WriteSyncer, level Level, redactPII bool) *Logger {
	atom := zap.NewAtomicLevelAt(toZap(level))
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.MessageKey = "msg"
	encCfg.EncodeTime = zapcore.RFC3339TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(w), atom)
	return &Logger{level: atom, zl: zap.New(core), redactPII: redactPII}
}

// SetLevel sets the minimum log level for the default logger.
func SetLevel(l Level) { defaultLogger.level.SetLevel(toZap(l)) }

// SetRedactPII enables or disables PII redaction for the default logger.
func SetRedactPII(r bool) {
	defaultLogger.mu.Lock()
	defaultLogger.redactPII = r
	defaultLogger.mu.Unlock()
}

// Sync flushes buffered entries of the default logger.
func Sync() { _ = defaultLogger.zl.Sync() }

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { defaultLogger.Log(DEBUG, msg, fields...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { defaultLogger.Log(INFO, msg, fields...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { defaultLogger.Log(WARN, msg, fields...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { defaultLogger.Log(ERROR, msg, fields...) }

// Log writes one entry. fields are alternating key/value pairs; a trailing key
// without a value is dropped.
func (l *Logger) Log(level Level, msg string, fields ...interface{}) {
	if !l.level.Enabled(toZap(level)) {
		return
	}

	l.mu.Lock()
	redact := l.redactPII
	l.mu.Unlock()

	zf := make([]zap.Field, 0, len(fields)/2)
	for i := 0; i < len(fields)-1; i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		var val string
		if err, ok := fields[i+1].(error); ok {
			val = err.Error()
		} else {
			val = fmt.Sprintf("%v", fields[i+1])
		}
		if redact {
			val = redactPIIValue(val)
		}
		zf = append(zf, zap.String(key, val))
	}

	if ce := l.zl.Check(toZap(level), msg); ce != nil {
		ce.Write(zf...)
	}
}

func toZap(l Level) zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
