package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// EmailSender sends a single email. Implementations can be swapped (SendGrid,
// SES, SMTP) without changing callers.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string // plain text
	HTML    string // optional HTML body
}

// SendGridSender sends emails via the SendGrid API.
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	log       *zap.Logger
}

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

func NewSendGridSender(cfg SendGridConfig, log *zap.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if cfg.FromName == "" {
		cfg.FromName = "ClinicBook"
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		log:       log,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)

	var message *mail.SGMailV3
	if msg.HTML != "" {
		message = mail.NewSingleEmail(from, msg.Subject, to, msg.Body, msg.HTML)
	} else {
		message = mail.NewSingleEmail(from, msg.Subject, to, msg.Body, msg.Body)
	}

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("notify: sendgrid returned status %d", resp.StatusCode)
	}

	s.log.Debug("email sent",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("status", resp.StatusCode),
	)
	return nil
}

// StubEmailSender logs instead of sending. Used in development and tests, and
// whenever no SendGrid key is configured.
type StubEmailSender struct {
	log *zap.Logger
}

func NewStubEmailSender(log *zap.Logger) *StubEmailSender {
	return &StubEmailSender{log: log}
}

func (s *StubEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	s.log.Info("stub email sender: would send email",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}
