package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	svix "github.com/svix/svix-webhooks/go"
)

var (
	ErrMissingWebhookHeaders = errors.New("auth: missing webhook headers")
	ErrInvalidWebhook        = errors.New("auth: invalid webhook signature")
)

// WebhookVerifier checks Svix signatures sent by the auth provider.
type WebhookVerifier struct {
	wh *svix.Webhook
}

// NewWebhookVerifier accepts a "whsec_" prefixed base64 secret.
func NewWebhookVerifier(secret string) (*WebhookVerifier, error) {
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("auth: webhook secret: %w", err)
	}
	return &WebhookVerifier{wh: wh}, nil
}

// Verify checks the svix-id, svix-timestamp and svix-signature headers against
// body. Timestamps more than five minutes from the local clock are rejected.
func (v *WebhookVerifier) Verify(h http.Header, body []byte) error {
	if h.Get("svix-id") == "" || h.Get("svix-timestamp") == "" || h.Get("svix-signature") == "" {
		return ErrMissingWebhookHeaders
	}
	if err := v.wh.Verify(body, h); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	return nil
}

// Sign returns the "v1,<base64>" signature header value for a message.
func (v *WebhookVerifier) Sign(id string, timestamp time.Time, body []byte) (string, error) {
	return v.wh.Sign(id, timestamp, body)
}
