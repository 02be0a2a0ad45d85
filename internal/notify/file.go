package notify

import (
	"context"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/punchlist-monitor/internal/domain"
	"github.com/ignite/punchlist-monitor/internal/pkg/logger"
)

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// FileSender writes every message as an .eml file into a directory.
type FileSender struct {
	dir  string
	from mail.Address
	now  func() time.Time
}

// NewFileSender creates a sender writing into dir.
func NewFileSender(dir, from string) *FileSender {
	if from == "" {
		from = "punchlist-monitor@localhost"
	}
	return &FileSender{dir: dir, from: mail.Address{Address: from}, now: time.Now}
}

// Send writes msg to "<timestamp>_<subject>.eml".
func (f *FileSender) Send(ctx context.Context, msg domain.EmailMessage) (*domain.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := f.now()
	raw, err := Build(f.from, msg, now)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating mail dir: %w", err)
	}

	slug := unsafeName.ReplaceAllString(msg.Subject, "_")
	if len(slug) > 80 {
		slug = slug[:80]
	}
	path := filepath.Join(f.dir, now.Format("20060102-150405")+"_"+slug+".eml")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	logger.Info("notify: message written", "subject", msg.Subject, "path", path)
	return &domain.SendResult{MessageID: uuid.NewString(), SentAt: now}, nil
}
