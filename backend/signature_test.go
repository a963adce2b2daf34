package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sumup/ucheckout"
	"github.com/sumup/ucheckout/signature"
)

var chargeBody = []byte(`{"transientToken":"tok","amount":"1.50","currency":"USD"}`)

func TestSignatureMiddlewareAllowsValidRequest(t *testing.T) {
	t.Parallel()

	key := []byte("secret")
	ts := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	handler := NewHandler(chargingProvider(), WithSignatureVerifier(signature.HMACVerifier{Key: key}), withClock(func() time.Time {
		return ts.Add(30 * time.Second)
	}))

	req := newSignedChargeRequest(t, key, ts)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestSignatureMiddlewareRejectsInvalidSignature(t *testing.T) {
	t.Parallel()

	key := []byte("secret")
	ts := time.Now().UTC()
	handler := NewHandler(chargingProvider(), WithSignatureVerifier(signature.HMACVerifier{Key: key}), withClock(func() time.Time {
		return ts
	}))

	req := httptest.NewRequest(http.MethodPost, ucheckout.ChargePath, bytes.NewReader(chargeBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Signature", "bogus")
	req.Header.Set("Timestamp", ts.Format(time.RFC3339Nano))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
	if want, got := "invalid_signature", getErrorCode(rec.Body.Bytes()); want != got {
		t.Fatalf("expected code %s got %s", want, got)
	}
}

func TestSignatureMiddlewareRejectsSkew(t *testing.T) {
	t.Parallel()

	key := []byte("secret")
	ts := time.Now().UTC()
	handler := NewHandler(chargingProvider(), WithSignatureVerifier(signature.HMACVerifier{Key: key}), WithMaxClockSkew(time.Minute), withClock(func() time.Time {
		return ts.Add(2 * time.Minute)
	}))

	req := newSignedChargeRequest(t, key, ts)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
	if want, got := "stale_timestamp", getErrorCode(rec.Body.Bytes()); want != got {
		t.Fatalf("expected code %s got %s", want, got)
	}
}

func TestSignatureMiddlewareRejectsHalfSignedRequest(t *testing.T) {
	t.Parallel()

	handler := NewHandler(chargingProvider(), WithSignatureVerifier(signature.HMACVerifier{Key: []byte("secret")}))

	req := httptest.NewRequest(http.MethodPost, ucheckout.ChargePath, bytes.NewReader(chargeBody))
	req.Header.Set("Signature", "abc")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestSignatureMiddlewareNamesMissingHeader(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	handler := NewHandler(chargingProvider(), WithSignatureVerifier(signature.HMACVerifier{Key: []byte("secret")}), WithLogger(logger))

	req := httptest.NewRequest(http.MethodPost, ucheckout.ChargePath, bytes.NewReader(chargeBody))
	req.Header.Set("Timestamp", time.Now().UTC().Format(time.RFC3339))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	payload := decodeError(t, rec.Body.Bytes())
	if payload.Message != "Timestamp header sent without Signature" {
		t.Fatalf("unexpected message %q", payload.Message)
	}
	if !strings.Contains(logs.String(), "code=invalid_signature") {
		t.Fatalf("expected rejection to be logged, got %q", logs.String())
	}
}

func TestSignatureMiddlewareRequiresHeadersWhenEnforced(t *testing.T) {
	t.Parallel()

	handler := NewHandler(chargingProvider(), WithSignatureVerifier(signature.HMACVerifier{Key: []byte("secret")}), WithRequireSignedRequests(), withClock(time.Now))

	req := httptest.NewRequest(http.MethodPost, ucheckout.ChargePath, bytes.NewReader(chargeBody))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
	if want, got := "signature_required", getErrorCode(rec.Body.Bytes()); want != got {
		t.Fatalf("expected code %s got %s", want, got)
	}
}

func TestRequireSignedRequestsWithoutVerifierPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	NewHandler(chargingProvider(), WithRequireSignedRequests())
}

func newSignedChargeRequest(t *testing.T, key []byte, ts time.Time) *http.Request {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, ucheckout.ChargePath, bytes.NewReader(chargeBody))
	req.Header.Set("Content-Type", "application/json")
	signer := signature.HMACSigner{Key: key, Clock: func() time.Time { return ts }}
	if err := signer.SignRequest(req, chargeBody); err != nil {
		t.Fatalf("sign request: %v", err)
	}
	return req
}

func chargingProvider() *stubProvider {
	return &stubProvider{
		charge: func(_ context.Context, _ ucheckout.ChargeRequest) (json.RawMessage, error) {
			return json.RawMessage(`{"status":"AUTHORIZED"}`), nil
		},
	}
}

func getErrorCode(body []byte) string {
	var resp Error
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	return string(resp.Code)
}
