package notification

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SMSConfig holds Twilio credentials. When AccountSID, AuthToken or
// FromNumber is empty the provider operates in mock-success mode, decided
// once at construction.
type SMSConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	BaseURL    string // defaults to https://api.twilio.com
	Timeout    time.Duration
}

// SMSProvider sends notifications through the Twilio Messages API.
type SMSProvider struct {
	cfg        SMSConfig
	httpClient *http.Client
	configured bool
}

// NewSMSProvider builds an SMSProvider. No connectivity probe is made at
// construction — Twilio's endpoint requires signed credentials to reach
// meaningfully, so "configured" just means the credentials are present.
func NewSMSProvider(cfg SMSConfig) *SMSProvider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twilio.com"
	}
	return &SMSProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		configured: cfg.AccountSID != "" && cfg.AuthToken != "" && cfg.FromNumber != "",
	}
}

// ChannelTag implements Provider.
func (p *SMSProvider) ChannelTag() Channel { return ChannelSMS }

// Send implements Provider.
func (p *SMSProvider) Send(ctx context.Context, recipient, body string) SendResult {
	if !p.configured {
		return SendResult{Success: true}
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", p.cfg.BaseURL, p.cfg.AccountSID)

	form := url.Values{}
	form.Set("To", recipient)
	form.Set("From", p.cfg.FromNumber)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return SendResult{Success: false, Cause: fmt.Errorf("build sms request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.cfg.AccountSID, p.cfg.AuthToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return SendResult{Success: false, Cause: fmt.Errorf("sms request: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return SendResult{Success: false, Cause: fmt.Errorf("twilio returned status %d", resp.StatusCode)}
	}
	return SendResult{Success: true}
}
