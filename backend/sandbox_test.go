package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/sumup/ucheckout"
)

func newSandbox(t *testing.T, opts ...SandboxOption) (*SandboxProvider, *Issuer) {
	t.Helper()

	issuer, err := NewIssuer([]byte("sandbox-key"), WithClientLibrary("https://x/lib.js", ""))
	if err != nil {
		t.Fatalf("NewIssuer() error = %v", err)
	}
	opts = append([]SandboxOption{WithSandboxLogger(discardLogger)}, opts...)
	return NewSandboxProvider(issuer, opts...), issuer
}

func TestSandboxProviderIssuesVerifiableContext(t *testing.T) {
	t.Parallel()

	provider, issuer := newSandbox(t)
	resp, err := provider.CreateCaptureContext(context.Background(), sampleCaptureRequest())
	if err != nil {
		t.Fatalf("CreateCaptureContext() error = %v", err)
	}
	if _, err := issuer.Verify(resp.CaptureContext); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
}

func TestSandboxProviderRejectsLargeAmounts(t *testing.T) {
	t.Parallel()

	provider, _ := newSandbox(t, WithMaxAmount(100))
	req := sampleCaptureRequest()
	req.Amount = "100.01"
	_, err := provider.CreateCaptureContext(context.Background(), req)
	var httpErr *Error
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *Error got %v", err)
	}
	if httpErr.StatusCode() != http.StatusUnprocessableEntity || httpErr.Message != "invalid amount" {
		t.Fatalf("unexpected error %d %q", httpErr.StatusCode(), httpErr.Message)
	}
}

func TestSandboxProviderCharge(t *testing.T) {
	t.Parallel()

	provider, _ := newSandbox(t, WithDeclinedAmounts("4.04"))

	var tok ucheckout.TransientToken
	if err := tok.FromString("eyJ.t.k"); err != nil {
		t.Fatalf("FromString() error = %v", err)
	}
	result, err := provider.Charge(context.Background(), ucheckout.ChargeRequest{TransientToken: tok, Amount: "1.50", Currency: "USD"})
	if err != nil {
		t.Fatalf("Charge() error = %v", err)
	}
	var decoded sandboxCharge
	if err := json.Unmarshal(result, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !strings.HasPrefix(decoded.ID, "ch_") || decoded.Status != "AUTHORIZED" || decoded.Amount != "1.50" {
		t.Fatalf("unexpected charge %+v", decoded)
	}

	_, err = provider.Charge(context.Background(), ucheckout.ChargeRequest{TransientToken: tok, Amount: "4.04", Currency: "USD"})
	var httpErr *Error
	if !errors.As(err, &httpErr) || httpErr.Code != CardDeclined {
		t.Fatalf("expected decline, got %v", err)
	}
}
