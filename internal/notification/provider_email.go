package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// EmailConfig holds SMTP credentials. When Host or Port is empty/zero the
// provider operates in mock-success mode — decided once at construction,
// on credential presence alone.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// EmailProvider sends notifications over SMTP.
type EmailProvider struct {
	cfg        EmailConfig
	configured bool
}

// NewEmailProvider builds an EmailProvider. No connectivity probe is made at
// construction — matching SMS/Telegram, "configured" just means the host and
// port are present. Timeout bounds each SMTP send, not reachability at startup.
func NewEmailProvider(cfg EmailConfig) *EmailProvider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &EmailProvider{
		cfg:        cfg,
		configured: cfg.Host != "" && cfg.Port > 0,
	}
}

// ChannelTag implements Provider.
func (p *EmailProvider) ChannelTag() Channel { return ChannelEmail }

// Send implements Provider.
func (p *EmailProvider) Send(ctx context.Context, recipient, body string) SendResult {
	if !p.configured {
		return SendResult{Success: true}
	}

	done := make(chan SendResult, 1)
	go func() {
		done <- p.sendSMTP(recipient, body)
	}()

	select {
	case <-ctx.Done():
		return SendResult{Success: false, Cause: ctx.Err()}
	case <-time.After(p.cfg.Timeout):
		return SendResult{Success: false, Cause: fmt.Errorf("smtp send: timed out after %s", p.cfg.Timeout)}
	case result := <-done:
		return result
	}
}

func (p *EmailProvider) sendSMTP(recipient, body string) SendResult {
	subject := "Notification"
	if nl := strings.IndexByte(body, '\n'); nl > 0 && nl < 120 {
		subject = body[:nl]
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		p.cfg.From, recipient, subject, body)

	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)
	var auth smtp.Auth
	if p.cfg.Username != "" {
		auth = smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, p.cfg.From, []string{recipient}, []byte(msg)); err != nil {
		return SendResult{Success: false, Cause: fmt.Errorf("smtp send: %w", err)}
	}
	return SendResult{Success: true}
}
