// Package notify delivers the rendered report messages. The production
// sender hands raw MIME to AWS SES v2; the file sender drops .eml files for
// deployments without mail credentials.
package notify

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/punchlist-monitor/internal/config"
	"github.com/ignite/punchlist-monitor/internal/domain"
	"github.com/ignite/punchlist-monitor/internal/pkg/logger"
)

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg domain.EmailMessage) (*domain.SendResult, error)
}

// SESAPI is the subset of the SES v2 client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends raw MIME messages through AWS SES.
type SESSender struct {
	client  SESAPI
	from    mail.Address
	timeout time.Duration
	now     func() time.Time
}

// NewSESSender creates an SES sender. Static keys are used when configured,
// otherwise the default AWS credential chain.
func NewSESSender(ctx context.Context, cfg config.MailConfig) (*SESSender, error) {
	if cfg.From == "" {
		return nil, ErrNotConfigured
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewSESSenderWithClient(sesv2.NewFromConfig(awsCfg), cfg), nil
}

// NewSESSenderWithClient wraps an existing SES client.
func NewSESSenderWithClient(client SESAPI, cfg config.MailConfig) *SESSender {
	return &SESSender{
		client:  client,
		from:    mail.Address{Name: cfg.FromName, Address: cfg.From},
		timeout: cfg.Timeout(),
		now:     time.Now,
	}
}

// Send delivers msg. Bcc recipients only appear in the SES destination.
func (s *SESSender) Send(ctx context.Context, msg domain.EmailMessage) (*domain.SendResult, error) {
	now := s.now()
	raw, err := Build(s.from, msg, now)
	if err != nil {
		return nil, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from.String()),
		Destination: &types.Destination{
			ToAddresses:  msg.To,
			BccAddresses: msg.BCC,
		},
		Content: &types.EmailContent{Raw: &types.RawMessage{Data: raw}},
	})
	if err != nil {
		logger.Error("notify: SES send failed", "subject", msg.Subject, "error", err)
		return nil, fmt.Errorf("sending %q: %w", msg.Subject, err)
	}

	id := aws.ToString(out.MessageId)
	logger.Info("notify: message sent",
		"subject", msg.Subject,
		"recipients", len(msg.To)+len(msg.BCC),
		"attachments", len(msg.Attachments),
		"message_id", id)
	return &domain.SendResult{MessageID: id, SentAt: now}, nil
}
