package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/arsmn/go-smsir/smsir"
)

// ErrSMSDisabled is returned by senders that accept a message without
// delivering it. Callers treat it as "channel unavailable", not a failure.
var ErrSMSDisabled = errors.New("sms delivery disabled")

type SMSSender interface {
	Send(ctx context.Context, to string, body string) error
	ProviderID() string
}

// NewSMSSender picks a provider by name. Unknown names fall back to the webhook.
func NewSMSSender(provider string, cfg SMSConfig) (SMSSender, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "noop":
		return NewNoopSender(), nil
	case "smsir":
		return NewSMSIRSender(cfg.SMSIRAPIKey, cfg.SMSIRSecretKey, cfg.SMSIRTemplateID)
	default:
		return NewWebhookSender(cfg.WebhookURL, cfg.WebhookToken), nil
	}
}

type SMSConfig struct {
	WebhookURL      string
	WebhookToken    string
	SMSIRAPIKey     string
	SMSIRSecretKey  string
	SMSIRTemplateID string
}

type WebhookSender struct {
	url   string
	token string
	http  *http.Client
}

func NewWebhookSender(url string, token string) *WebhookSender {
	return &WebhookSender{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *WebhookSender) ProviderID() string {
	return "sms-webhook"
}

func (s *WebhookSender) Send(ctx context.Context, to string, body string) error {
	if s.url == "" {
		return errors.New("sms webhook url not configured")
	}
	raw, err := json.Marshal(map[string]string{"to": to, "body": body})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms webhook returned %d", resp.StatusCode)
	}
	return nil
}

// SMSIRSender sends through an sms.ir template whose single parameter
// "message" receives the reminder text.
type SMSIRSender struct {
	client     *smsir.Client
	templateID string
}

func NewSMSIRSender(apiKey, secretKey, templateID string) (*SMSIRSender, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("sms.ir api key required")
	}
	if strings.TrimSpace(templateID) == "" {
		return nil, errors.New("sms.ir template id required")
	}
	return &SMSIRSender{
		client:     smsir.NewClient().WithAuthentication(apiKey, secretKey),
		templateID: templateID,
	}, nil
}

func (s *SMSIRSender) ProviderID() string {
	return "sms-smsir"
}

func (s *SMSIRSender) Send(ctx context.Context, to string, body string) error {
	_, err := s.client.Verification.UltraFastSend(ctx, &smsir.UltraFastSendRequest{
		Mobile:     to,
		TemplateID: s.templateID,
		Parameters: []smsir.UltraFastParameter{{Key: "message", Value: body}},
	})
	if err != nil {
		return fmt.Errorf("sms.ir send failed: %w", err)
	}
	return nil
}

type NoopSender struct{}

func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

func (s *NoopSender) ProviderID() string {
	return "sms-noop"
}

func (s *NoopSender) Send(context.Context, string, string) error {
	return ErrSMSDisabled
}
