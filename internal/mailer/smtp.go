package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"
)

// SMTPConfig configures SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
}

// dialer is the part of *gomail.Dialer SMTPSender uses.
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender sends OTP emails through an SMTP relay.
type SMTPSender struct {
	cfg    SMTPConfig
	dialer dialer
	logger *slog.Logger
}

func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) *SMTPSender {
	return &SMTPSender{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		logger: logger,
	}
}

// Send delivers the OTP email. gomail does not take a context; a cancelled
// ctx is only honoured before dialling.
func (s *SMTPSender) Send(ctx context.Context, email, code string) error {
	if s.cfg.Host == "" || s.cfg.Sender == "" {
		s.logger.Error("SMTP host or sender address not set")
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.dialer.DialAndSend(s.message(email, code)); err != nil {
		s.logger.Error("sending OTP email over SMTP",
			slog.String("to", email),
			slog.String("host", s.cfg.Host),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("mailer: smtp send: %w", err)
	}

	s.logger.Info("OTP email sent", slog.String("to", email), slog.String("via", "smtp"))
	return nil
}

func (s *SMTPSender) message(email, code string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(s.cfg.Sender, fromName))
	m.SetHeader("To", email)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body(code))
	return m
}
