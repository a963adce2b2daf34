package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/google/uuid"

	"github.com/sumup/ucheckout"
)

// SandboxProvider is an in-process [Provider] for demos and tests. It issues
// real signed capture contexts and authorizes every charge except the
// configured decline amounts.
type SandboxProvider struct {
	issuer    *Issuer
	logger    *slog.Logger
	maxAmount float64
	declines  []string
}

// SandboxOption customizes a [SandboxProvider].
type SandboxOption func(*SandboxProvider)

// WithMaxAmount rejects capture contexts above amount with "invalid amount".
func WithMaxAmount(amount float64) SandboxOption {
	return func(p *SandboxProvider) {
		p.maxAmount = amount
	}
}

// WithDeclinedAmounts makes charges for these exact amounts fail as declined.
func WithDeclinedAmounts(amounts ...string) SandboxOption {
	return func(p *SandboxProvider) {
		p.declines = append(p.declines, amounts...)
	}
}

// WithSandboxLogger sets the provider logger.
func WithSandboxLogger(logger *slog.Logger) SandboxOption {
	return func(p *SandboxProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewSandboxProvider returns a provider minting contexts with issuer.
func NewSandboxProvider(issuer *Issuer, opts ...SandboxOption) *SandboxProvider {
	if issuer == nil {
		panic("backend: issuer is required")
	}
	p := &SandboxProvider{issuer: issuer, logger: slog.Default()}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(p)
	}
	return p
}

func (p *SandboxProvider) CreateCaptureContext(_ context.Context, req ucheckout.CaptureContextRequest) (*ucheckout.CaptureContextResponse, error) {
	if p.maxAmount > 0 {
		amount, err := strconv.ParseFloat(req.Amount, 64)
		if err != nil || amount > p.maxAmount {
			return nil, NewUnprocessableError("invalid amount", WithOffendingParam("$.amount"))
		}
	}
	token, err := p.issuer.Issue(req)
	if err != nil {
		return nil, NewProcessingError("unable to create capture context")
	}
	p.logger.Info("capture context issued",
		slog.String("amount", req.Amount),
		slog.String("currency", req.Currency))
	return &ucheckout.CaptureContextResponse{CaptureContext: token}, nil
}

type sandboxCharge struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (p *SandboxProvider) Charge(_ context.Context, req ucheckout.ChargeRequest) (json.RawMessage, error) {
	if slices.Contains(p.declines, req.Amount) {
		return nil, NewPaymentDeclinedError("Card declined")
	}
	body, err := json.Marshal(sandboxCharge{
		ID:       "ch_" + uuid.NewString(),
		Status:   "AUTHORIZED",
		Amount:   req.Amount,
		Currency: req.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("backend: encode charge: %w", err)
	}
	p.logger.Info("charge authorized",
		slog.String("amount", req.Amount),
		slog.String("currency", req.Currency))
	return body, nil
}
