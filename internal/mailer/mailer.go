// Package mailer delivers account lifecycle emails over SMTP. When SMTP is
// not configured the service degrades to a logging sender so registration and
// password reset keep working in development.
package mailer

import (
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"
)

// Sender delivers the two account lifecycle emails.
type Sender interface {
	SendVerificationEmail(to string, token string) error
	SendPasswordResetEmail(to string, token string) error
}

// SMTPConfig holds the dialer settings for the SMTP sender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	BaseURL  string
}

// Configured reports whether the settings are complete enough to dial.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.Port != 0 && c.From != ""
}

// New returns an SMTP sender when the configuration is complete, otherwise a
// logging sender that records what would have been sent.
func New(cfg SMTPConfig, logger *slog.Logger) Sender {
	if !cfg.Configured() {
		logger.Warn("SMTP not configured, emails will be logged instead of sent")
		return &logSender{logger: logger}
	}

	return &smtpSender{
		config: cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

type smtpSender struct {
	config SMTPConfig
	dialer *gomail.Dialer
}

func (s *smtpSender) SendVerificationEmail(to string, token string) error {
	link := fmt.Sprintf("%s/verify-email?token=%s", s.config.BaseURL, token)
	body := fmt.Sprintf(
		"Welcome!\n\nPlease verify your email address by opening the link below:\n\n%s\n\nIf you did not create an account, ignore this message.\n",
		link,
	)

	return s.send(to, "Verify your email address", body)
}

func (s *smtpSender) SendPasswordResetEmail(to string, token string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", s.config.BaseURL, token)
	body := fmt.Sprintf(
		"A password reset was requested for your account.\n\nOpen the link below to choose a new password. The link expires in 1 hour:\n\n%s\n\nIf you did not request a reset, ignore this message.\n",
		link,
	)

	return s.send(to, "Reset your password", body)
}

func (s *smtpSender) send(to string, subject string, body string) error {
	if to == "" {
		return fmt.Errorf("no recipient specified")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", s.config.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

// logSender stands in for SMTP in environments without mail credentials. The
// raw token lands in the log on purpose so a developer can finish the flow.
type logSender struct {
	logger *slog.Logger
}

func (l *logSender) SendVerificationEmail(to string, token string) error {
	l.logger.Info("verification email (not sent)", "to", to, "token", token)
	return nil
}

func (l *logSender) SendPasswordResetEmail(to string, token string) error {
	l.logger.Info("password reset email (not sent)", "to", to, "token", token)
	return nil
}
