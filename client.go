package ucheckout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sumup/ucheckout/signature"
)

// maxResponseBytes bounds how much of a backend response is read.
const maxResponseBytes = 1 << 20

// Backend is the merchant backend as seen by the orchestrator.
type Backend interface {
	AcquireCaptureContext(ctx context.Context, params PaymentRequestParams) (*CaptureContext, error)
	Charge(ctx context.Context, token TransientToken, amount, currency string) (*SettlementResult, error)
}

// Client talks to the merchant backend endpoints.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	clientVersion string
	signer        signature.Signer
	logger        *slog.Logger
}

// ClientOption customizes a [Client].
type ClientOption func(*Client)

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithClientVersion overrides the widget client version sent with capture
// context requests.
func WithClientVersion(version string) ClientOption {
	return func(cl *Client) {
		cl.clientVersion = version
	}
}

// WithRequestSigner signs every request body.
func WithRequestSigner(s signature.Signer) ClientOption {
	return func(cl *Client) {
		cl.signer = s
	}
}

// WithClientLogger sets the logger used for resolver warnings.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(cl *Client) {
		cl.logger = l
	}
}

// NewClient builds a [Client] for the backend served at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("ucheckout: parse backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("ucheckout: backend url %q must be absolute", baseURL)
	}
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		clientVersion: DefaultClientVersion,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c, nil
}

// AcquireCaptureContext requests a capture context for params and resolves
// the client library it references.
func (c *Client) AcquireCaptureContext(ctx context.Context, params PaymentRequestParams) (*CaptureContext, error) {
	body := CaptureContextRequest{
		AllowedCardNetworks: params.AllowedCardNetworks,
		AllowedPaymentTypes: params.AllowedPaymentTypes,
		Amount:              params.Amount,
		Currency:            params.Currency,
		Country:             params.Country,
		Locale:              params.Locale,
		ClientVersion:       c.clientVersion,
		TargetOrigins:       params.TargetOrigins,
	}
	status, raw, err := c.post(ctx, OperationCaptureContext, CaptureContextPath, body, nil)
	if err != nil {
		return nil, err
	}
	if !successful(status) {
		msg, isJSON := backendMessage(raw)
		switch {
		case !isJSON:
			msg = msgUnknownError
		case msg == "":
			msg = fmt.Sprintf("HTTP %d", status)
		}
		return nil, &BackendError{Op: OperationCaptureContext, Status: status, Message: msg}
	}
	var resp CaptureContextResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &BackendError{Op: OperationCaptureContext, Status: status, Message: "invalid capture context response"}
	}
	if resp.CaptureContext == "" {
		return nil, &BackendError{Op: OperationCaptureContext, Status: status, Message: "capture context missing from response"}
	}
	ref := ResolveLibrary(resp.CaptureContext, c.logger)
	return &CaptureContext{
		JWT:                    resp.CaptureContext,
		ClientLibraryURL:       ref.URL,
		ClientLibraryIntegrity: ref.Integrity,
	}, nil
}

// Charge submits token for settlement. It is attempted once; an
// Idempotency-Key header guards against duplicate delivery.
func (c *Client) Charge(ctx context.Context, token TransientToken, amount, currency string) (*SettlementResult, error) {
	body := ChargeRequest{TransientToken: token, Amount: amount, Currency: currency}
	header := http.Header{}
	header.Set("Idempotency-Key", uuid.NewString())
	status, raw, err := c.post(ctx, OperationCharge, ChargePath, body, header)
	if err != nil {
		return nil, err
	}
	if !successful(status) {
		msg, _ := backendMessage(raw)
		if msg == "" {
			msg = fmt.Sprintf("Payment failed: %d", status)
		}
		return nil, &BackendError{Op: OperationCharge, Status: status, Message: msg}
	}
	if !json.Valid(raw) {
		return nil, &BackendError{Op: OperationCharge, Status: status, Message: "invalid settlement response"}
	}
	return &SettlementResult{Raw: json.RawMessage(raw)}, nil
}

func (c *Client) post(ctx context.Context, op Operation, path string, payload any, header http.Header) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("ucheckout: marshal %s request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("ucheckout: build %s request: %w", op, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Request-Id", uuid.NewString())
	if c.signer != nil {
		if err := c.signer.SignRequest(req, body); err != nil {
			return 0, nil, fmt.Errorf("ucheckout: sign %s request: %w", op, err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &NetworkError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, &NetworkError{Op: op, Err: err}
	}
	return resp.StatusCode, raw, nil
}

func successful(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

// backendMessage extracts the `message` field of an error body and reports
// whether the body was JSON at all.
func backendMessage(raw []byte) (string, bool) {
	if !json.Valid(raw) {
		return "", false
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", true
	}
	return payload.Message, true
}
