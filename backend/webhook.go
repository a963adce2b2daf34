package backend

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sumup/ucheckout"
)

// WebhookEventType enumerates the supported webhook events.
type WebhookEventType string

const (
	WebhookEventTypeChargeSettled WebhookEventType = "charge_settled"
)

// webhookTimeout bounds one asynchronous delivery.
const webhookTimeout = 10 * time.Second

// WebhookOptions configures settlement notifications sent after every
// successful charge.
type WebhookOptions struct {
	// Endpoint receives POSTed events.
	Endpoint string
	// HeaderName carries the base64url HMAC-SHA256 of the body. Defaults to
	// "Webhook-Signature".
	HeaderName string
	SecretKey  []byte
	// Client defaults to http.DefaultClient.
	Client *http.Client
}

type webhookConfig struct {
	endpoint string
	header   string
	secret   []byte
	client   *http.Client
}

// WithWebhookOptions enables settlement webhooks.
func WithWebhookOptions(opts WebhookOptions) Option {
	if opts.Endpoint == "" {
		panic("backend: webhook endpoint is required")
	}
	if len(opts.SecretKey) == 0 {
		panic("backend: webhook secret key is required")
	}
	wc := &webhookConfig{
		endpoint: opts.Endpoint,
		header:   opts.HeaderName,
		secret:   opts.SecretKey,
		client:   opts.Client,
	}
	if wc.header == "" {
		wc.header = "Webhook-Signature"
	}
	if wc.client == nil {
		wc.client = http.DefaultClient
	}
	return func(cfg *config) {
		cfg.webhook = wc
	}
}

// ChargeSettled is emitted after the provider accepted a charge.
type ChargeSettled struct {
	Amount    string          `json:"amount"`
	Currency  string          `json:"currency"`
	RequestID string          `json:"request_id,omitempty"`
	Result    json.RawMessage `json:"result"`
}

// WebhookEvent is the envelope POSTed to the webhook endpoint.
type WebhookEvent struct {
	ID        string           `json:"id"`
	Type      WebhookEventType `json:"type"`
	CreatedAt time.Time        `json:"created_at"`
	Data      ChargeSettled    `json:"data"`
}

// notifySettlement delivers the event in the background. Failures are logged.
func (h *Handler) notifySettlement(ctx context.Context, req ucheckout.ChargeRequest, result json.RawMessage) {
	if h.cfg.webhook == nil {
		return
	}
	event := WebhookEvent{
		ID:        uuid.NewString(),
		Type:      WebhookEventTypeChargeSettled,
		CreatedAt: h.cfg.clock().UTC(),
		Data: ChargeSettled{
			Amount:    req.Amount,
			Currency:  req.Currency,
			RequestID: RequestContextFromContext(ctx).RequestID,
			Result:    result,
		},
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), webhookTimeout)
	go func() {
		defer cancel()
		if err := h.SendWebhook(ctx, event); err != nil {
			h.cfg.logger.Error("settlement webhook failed",
				slog.String("event_id", event.ID),
				slog.String("error", err.Error()))
		}
	}()
}

// SendWebhook posts event to the endpoint configured via [WithWebhookOptions].
func (h *Handler) SendWebhook(ctx context.Context, event WebhookEvent) error {
	if h.cfg.webhook == nil {
		return errors.New("backend: webhook options must be configured")
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("backend: marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.webhook.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("backend: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("API-Version", APIVersion)
	req.Header.Set(h.cfg.webhook.header, signWebhookPayload(h.cfg.webhook.secret, body))

	resp, err := h.cfg.webhook.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend: send webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("backend: webhook endpoint %s returned %s: %s", h.cfg.webhook.endpoint, resp.Status, strings.TrimSpace(string(snippet)))
	}
	return nil
}

func signWebhookPayload(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(payload)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
