package mailer

import (
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail/v2"
)

// Config carries SMTP connection settings.
type Config struct {
	Host          string
	Port          int
	User          string
	Password      string
	From          string
	SkipTLSVerify bool
}

// Mailer sends transactional email over SMTP with mandatory STARTTLS.
type Mailer struct {
	dialer *mail.Dialer
	from   string
}

// New constructs a mailer; returns an error when the config is incomplete.
func New(cfg Config) (*Mailer, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("smtp host and from address are required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}

	dialer := mail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	dialer.StartTLSPolicy = mail.MandatoryStartTLS
	dialer.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.SkipTLSVerify,
	}

	return &Mailer{dialer: dialer, from: cfg.From}, nil
}

// Send delivers an HTML message to the given recipients.
func (m *Mailer) Send(to []string, subject, htmlBody string) error {
	if len(to) == 0 {
		return nil
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
