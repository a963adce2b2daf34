package ucheckout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumup/ucheckout/signature"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...ClientOption) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]ClientOption{WithHTTPClient(srv.Client()), WithClientLogger(discardLogger)}, opts...)
	c, err := NewClient(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func TestClientAcquireCaptureContext(t *testing.T) {
	t.Parallel()

	jwt := mintContext(t, map[string]any{
		"clientLibrary":          "https://x/lib.js",
		"clientLibraryIntegrity": "sha384-abc",
	})
	received := make(chan CaptureContextRequest, 1)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, CaptureContextPath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("Request-Id"))
		var body CaptureContextRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		received <- body
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(CaptureContextResponse{CaptureContext: jwt})
	})

	params := DefaultPaymentRequestParams("https://shop.example")
	cc, err := c.AcquireCaptureContext(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, jwt, cc.JWT)
	assert.Equal(t, "https://x/lib.js", cc.ClientLibraryURL)
	assert.Equal(t, "sha384-abc", cc.ClientLibraryIntegrity)

	assert.Equal(t, CaptureContextRequest{
		AllowedCardNetworks: []string{"VISA", "MASTERCARD", "AMEX"},
		AllowedPaymentTypes: []string{"PANENTRY"},
		Amount:              "1.50",
		Currency:            "USD",
		Country:             "KE",
		Locale:              "en_KE",
		ClientVersion:       DefaultClientVersion,
		TargetOrigins:       []string{"https://shop.example"},
	}, <-received)
}

func TestClientAcquireCaptureContextErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		status  int
		body    string
		wantMsg string
	}{
		"json message":          {status: http.StatusUnprocessableEntity, body: `{"message":"invalid amount"}`, wantMsg: "invalid amount"},
		"json without message":  {status: http.StatusBadGateway, body: `{"error":"upstream"}`, wantMsg: "HTTP 502"},
		"not json":              {status: http.StatusInternalServerError, body: `<html>oops</html>`, wantMsg: "Unknown error"},
		"success without token": {status: http.StatusOK, body: `{}`, wantMsg: "capture context missing from response"},
		"success not json":      {status: http.StatusOK, body: `nope`, wantMsg: "invalid capture context response"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := c.AcquireCaptureContext(context.Background(), testParams())
			var berr *BackendError
			require.ErrorAs(t, err, &berr)
			assert.Equal(t, tt.status, berr.Status)
			assert.Equal(t, tt.wantMsg, UserMessage(err))
		})
	}
}

func TestClientUnreachableBackend(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(url, WithClientLogger(discardLogger))
	require.NoError(t, err)

	_, err = c.AcquireCaptureContext(context.Background(), testParams())
	var nerr *NetworkError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "Failed to initialize payment form", UserMessage(err))

	_, err = c.Charge(context.Background(), TransientToken{}, "1.50", "USD")
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "Payment failed", UserMessage(err))
}

func TestClientCharge(t *testing.T) {
	t.Parallel()

	type captured struct {
		body        map[string]json.RawMessage
		idempotency string
	}
	received := make(chan captured, 2)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ChargePath, r.URL.Path)
		req := captured{idempotency: r.Header.Get("Idempotency-Key")}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req.body))
		received <- req
		_, _ = io.WriteString(w, `{"id":"ch_1","status":"AUTHORIZED"}`)
	})

	var tok TransientToken
	require.NoError(t, tok.FromString("eyJ.a.b"))
	result, err := c.Charge(context.Background(), tok, "1.50", "USD")
	require.NoError(t, err)

	require.Len(t, received, 1)
	got := <-received
	assert.NotEmpty(t, got.idempotency)
	assert.JSONEq(t, `"eyJ.a.b"`, string(got.body["transientToken"]))
	assert.JSONEq(t, `"1.50"`, string(got.body["amount"]))
	assert.JSONEq(t, `"USD"`, string(got.body["currency"]))

	var decoded struct {
		ID string `json:"id"`
	}
	require.NoError(t, result.Decode(&decoded))
	assert.Equal(t, "ch_1", decoded.ID)
	assert.Contains(t, result.Pretty(), "\n  \"status\": \"AUTHORIZED\"")
}

func TestClientChargeErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		status  int
		body    string
		wantMsg string
	}{
		"declined with message": {status: http.StatusPaymentRequired, body: `{"message":"Card declined"}`, wantMsg: "Card declined"},
		"no message":            {status: http.StatusInternalServerError, body: `{}`, wantMsg: "Payment failed: 500"},
		"not json":              {status: http.StatusBadGateway, body: `bad gateway`, wantMsg: "Payment failed: 502"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			var tok TransientToken
			require.NoError(t, tok.FromString("t"))
			_, err := c.Charge(context.Background(), tok, "1.50", "USD")
			var berr *BackendError
			require.ErrorAs(t, err, &berr)
			assert.Equal(t, tt.wantMsg, UserMessage(err))
			assert.EqualValues(t, 1, calls.Load())
		})
	}
}

func TestClientSignsRequests(t *testing.T) {
	t.Parallel()

	key := []byte("secret")
	ts := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	verified := make(chan error, 1)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, err := signature.ReadAndBufferBody(r)
		if err != nil {
			verified <- err
			return
		}
		canonical, err := signature.CanonicalizeJSONBody(raw)
		if err != nil {
			verified <- err
			return
		}
		parsed, err := signature.ParseTimestamp(r.Header.Get(signature.HeaderTimestamp))
		if err != nil {
			verified <- err
			return
		}
		verified <- signature.HMACVerifier{Key: key}.Verify(r.Context(), signature.Material{
			Signature:     r.Header.Get(signature.HeaderSignature),
			Timestamp:     parsed,
			CanonicalBody: canonical,
		})
		_, _ = io.WriteString(w, `{}`)
	}, WithRequestSigner(signature.HMACSigner{Key: key, Clock: func() time.Time { return ts }}))

	var tok TransientToken
	require.NoError(t, tok.FromString("t"))
	_, err := c.Charge(context.Background(), tok, "1.50", "USD")
	require.NoError(t, err)
	require.NoError(t, <-verified)
}

func TestNewClientRejectsRelativeURL(t *testing.T) {
	t.Parallel()

	_, err := NewClient("/api")
	require.Error(t, err)
	_, err = NewClient("http://localhost:3000/")
	require.NoError(t, err)
}

func TestUserMessageFallsBackToErrorText(t *testing.T) {
	t.Parallel()

	assert.Empty(t, UserMessage(nil))
	assert.Equal(t, "boom", UserMessage(errors.New("boom")))
	wrapped := errors.Join(errors.New("context"), &ScriptLoadError{URL: "https://x/lib.js"})
	assert.Equal(t, "Failed to load payment form", UserMessage(wrapped))
}
