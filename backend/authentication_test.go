package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sumup/ucheckout"
)

func TestAuthenticationMiddlewareRequiresAuthorizationHeader(t *testing.T) {
	t.Parallel()

	handler := NewHandler(successProvider(), WithAuthenticator(AuthenticatorFunc(func(ctx context.Context, key string) error {
		return nil
	})))

	req := newCaptureHTTPRequest(t)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d body=%s", rec.Code, rec.Body.String())
	}
	if payload := decodeError(t, rec.Body.Bytes()); payload.Code != MissingAuthorization {
		t.Fatalf("expected error code %s got %s", MissingAuthorization, payload.Code)
	}
}

func TestAuthenticationMiddlewareValidatesBearerFormat(t *testing.T) {
	t.Parallel()

	handler := NewHandler(successProvider(), WithAuthenticator(AuthenticatorFunc(func(ctx context.Context, key string) error {
		return nil
	})))

	req := newCaptureHTTPRequest(t)
	req.Header.Set("Authorization", "Token abc")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
	if payload := decodeError(t, rec.Body.Bytes()); payload.Code != InvalidAuthorization {
		t.Fatalf("expected error code %s got %s", InvalidAuthorization, payload.Code)
	}
}

func TestAuthenticationMiddlewareRejectsInvalidAPIKey(t *testing.T) {
	t.Parallel()

	handler := NewHandler(successProvider(), WithAuthenticator(AuthenticatorFunc(func(ctx context.Context, key string) error {
		return errors.New("invalid api key")
	})))

	req := newCaptureHTTPRequest(t)
	req.Header.Set("Authorization", "Bearer bad-key")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
	if payload := decodeError(t, rec.Body.Bytes()); payload.Code != InvalidAuthorization {
		t.Fatalf("expected error code %s got %s", InvalidAuthorization, payload.Code)
	}
}

func TestAuthenticationMiddlewareSurfacesAuthenticatorErrors(t *testing.T) {
	t.Parallel()

	authErr := NewHTTPError(http.StatusServiceUnavailable, ServiceUnavailable, ErrorCode(ServiceUnavailable), "auth service unavailable")
	handler := NewHandler(successProvider(), WithAuthenticator(AuthenticatorFunc(func(ctx context.Context, key string) error {
		return authErr
	})))

	req := newCaptureHTTPRequest(t)
	req.Header.Set("Authorization", "Bearer auth-down")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
	if payload := decodeError(t, rec.Body.Bytes()); payload.Type != ServiceUnavailable {
		t.Fatalf("expected error type %s got %s", ServiceUnavailable, payload.Type)
	}
}

func TestAuthenticationMiddlewareAllowsValidRequests(t *testing.T) {
	t.Parallel()

	handler := NewHandler(successProvider(), WithAuthenticator(AuthenticatorFunc(func(ctx context.Context, key string) error {
		if key != "valid-key" {
			return errors.New("invalid")
		}
		return nil
	})))

	req := newCaptureHTTPRequest(t)
	req.Header.Set("Authorization", "Bearer valid-key")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", rec.Code, rec.Body.String())
	}
}

func newCaptureHTTPRequest(t *testing.T) *http.Request {
	t.Helper()
	return newJSONRequest(t, ucheckout.CaptureContextPath, sampleCaptureRequest())
}

func successProvider() *stubProvider {
	return &stubProvider{
		capture: func(ctx context.Context, req ucheckout.CaptureContextRequest) (*ucheckout.CaptureContextResponse, error) {
			return &ucheckout.CaptureContextResponse{CaptureContext: "a.b.c"}, nil
		},
	}
}
