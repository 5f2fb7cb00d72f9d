package mailer

import (
	"bytes"
	"context"
	"fmt"

	"github.com/clearbill/billing-api/internal/config"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Message is a single outgoing email
type Message struct {
	To             string
	Subject        string
	Body           string
	AttachmentName string
	Attachment     []byte
}

// Sender delivers email over SMTP. When no SMTP host is configured the
// sender runs in degraded mode: messages are logged and dropped instead of
// failing the calling operation's persistence.
type Sender struct {
	cfg    config.SMTPConfig
	logger *zap.Logger
}

func NewSender(cfg config.SMTPConfig, logger *zap.Logger) *Sender {
	if cfg.Host == "" {
		logger.Warn("no SMTP host configured, email delivery is disabled")
	}
	return &Sender{
		cfg:    cfg,
		logger: logger,
	}
}

// Enabled reports whether a transport is configured
func (s *Sender) Enabled() bool {
	return s.cfg.Host != ""
}

// Send delivers a single message. In degraded mode the message is logged
// and dropped without error.
func (s *Sender) Send(ctx context.Context, msg Message) error {
	if !s.Enabled() {
		s.logger.Info("email delivery disabled, dropping message",
			zap.String("to", msg.To),
			zap.String("subject", msg.Subject))
		return nil
	}

	m := mail.NewMsg()
	if err := m.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	if len(msg.Attachment) > 0 {
		m.AttachReader(msg.AttachmentName, bytes.NewReader(msg.Attachment))
	}

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if s.cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.User),
			mail.WithPassword(s.cfg.Password))
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject))
	return nil
}
