package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseSSL   bool
	Timeout  time.Duration
}

// SMTPSender sends plain text mail through gomail. Without a username it
// speaks unauthenticated SMTP, which is what Mailpit expects.
type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.From = strings.TrimSpace(cfg.From)
	if cfg.From == "" {
		cfg.From = "no-reply@clinicbook.local"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	msg, err := buildMessage(s.cfg.From, to, subject, body)
	if err != nil {
		return err
	}
	d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	d.SSL = s.cfg.UseSSL

	done := make(chan error, 1)
	go func() { done <- d.DialAndSend(msg) }()

	wait := s.cfg.Timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left > 0 && left < wait {
			wait = left
		}
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return context.DeadlineExceeded
	}
}

func buildMessage(from, to, subject, body string) (*gomail.Message, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return nil, errors.New("recipient is required")
	}
	if strings.TrimSpace(subject) == "" {
		return nil, errors.New("subject is required")
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	return msg, nil
}
