package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	gomail "gopkg.in/mail.v2"
)

const defaultSMTPPort = 587

// EmailConfig holds SMTP configuration for the email channel.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

type emailSender struct {
	cfg    EmailConfig
	dialer *gomail.Dialer
}

func newEmailSender(cfg EmailConfig) (*emailSender, error) {
	if cfg.Host == "" {
		return nil, errors.New("host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("from is required")
	}
	if len(cfg.To) == 0 {
		return nil, errors.New("at least one recipient is required")
	}
	if cfg.Port == 0 {
		cfg.Port = defaultSMTPPort
	}

	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.Timeout = defaultRequestTimeout

	return &emailSender{cfg: cfg, dialer: dialer}, nil
}

func (s *emailSender) send(ctx context.Context, msg Message) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", s.cfg.To...)
	m.SetHeader("Subject", msg.Title)
	m.SetDateHeader("Date", msg.Time)
	m.SetBody("text/plain", renderEmailText(msg))

	// DialAndSend has no context; bound it by the dialer timeout and give
	// up early if ctx ends first
	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send to %v: %w", s.cfg.To, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func renderEmailText(msg Message) string {
	text := msg.Body + "\n"
	if msg.URL != "" {
		text += "\nURL: " + msg.URL
	}
	if msg.Rule != "" {
		text += "\nRule: " + msg.Rule
	}
	text += "\nTime: " + msg.Time.Format(time.RFC1123) + "\n"
	return text
}
