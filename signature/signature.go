// Package signature signs and verifies checkout requests exchanged between the
// page and the merchant backend. Signatures are the base64url-encoded
// HMAC-SHA256 of `RFC3339Nano(timestamp) + "." + canonicalJSON(body)`.
package signature

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
	"net/http"
	"time"

	canonicaljson "github.com/gibson042/canonicaljson-go"
)

// Header names carrying the signature material.
const (
	HeaderSignature = "Signature"
	HeaderTimestamp = "Timestamp"
)

// Material captures the inputs needed to validate a signed request.
type Material struct {
	Signature     string
	Timestamp     time.Time
	CanonicalBody []byte
	Method        string
	Path          string
	RawQuery      string
	Headers       http.Header
}

// Verifier validates the authenticity of incoming requests.
type Verifier interface {
	Verify(ctx context.Context, material Material) error
}

// VerifierFunc lifts bare functions into [Verifier].
type VerifierFunc func(ctx context.Context, material Material) error

// Verify delegates to the wrapped function.
func (f VerifierFunc) Verify(ctx context.Context, material Material) error {
	return f(ctx, material)
}

// Signer attaches signature headers to an outgoing request whose JSON body
// has already been serialized.
type Signer interface {
	SignRequest(r *http.Request, body []byte) error
}

// HMACVerifier validates signatures produced by [HMACSigner] with the same key.
type HMACVerifier struct {
	Key []byte
}

// Verify implements [Verifier] by recomputing the expected HMAC signature.
func (v HMACVerifier) Verify(_ context.Context, material Material) error {
	if len(v.Key) == 0 {
		return errors.New("signature: HMACVerifier requires a non-empty key")
	}
	expected, err := computeMAC(v.Key, material.Timestamp, material.CanonicalBody)
	if err != nil {
		return err
	}
	decoded, err := base64.RawURLEncoding.DecodeString(material.Signature)
	if err != nil {
		return fmt.Errorf("signature: decode signature: %w", err)
	}
	if !hmac.Equal(decoded, expected) {
		return errors.New("signature: invalid signature")
	}
	return nil
}

// HMACSigner signs outgoing requests for an [HMACVerifier] holding the same key.
type HMACSigner struct {
	Key []byte
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// SignRequest sets the Signature and Timestamp headers on r.
func (s HMACSigner) SignRequest(r *http.Request, body []byte) error {
	if len(s.Key) == 0 {
		return errors.New("signature: HMACSigner requires a non-empty key")
	}
	clock := s.Clock
	if clock == nil {
		clock = time.Now
	}
	canonical, err := CanonicalizeJSONBody(body)
	if err != nil {
		return fmt.Errorf("signature: canonicalize body: %w", err)
	}
	ts := clock().UTC()
	sig, err := Sign(s.Key, ts, canonical)
	if err != nil {
		return err
	}
	r.Header.Set(HeaderSignature, sig)
	r.Header.Set(HeaderTimestamp, ts.Format(time.RFC3339Nano))
	return nil
}

// Sign returns the base64url HMAC of the signing payload for ts and canonicalBody.
func Sign(key []byte, ts time.Time, canonicalBody []byte) (string, error) {
	mac, err := computeMAC(key, ts, canonicalBody)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(mac), nil
}

func computeMAC(key []byte, ts time.Time, canonicalBody []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, key)
	if _, err := mac.Write(BuildSigningPayload(ts, canonicalBody)); err != nil {
		return nil, fmt.Errorf("signature: compute signature: %w", err)
	}
	return mac.Sum(nil), nil
}

// ReadAndBufferBody reads the request body while keeping it accessible for later handlers.
func ReadAndBufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		r.Body = io.NopCloser(bytes.NewReader(nil))
		return nil, nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	return raw, nil
}

// CanonicalizeJSONBody normalizes arbitrary JSON into canonical form for signing.
func CanonicalizeJSONBody(raw []byte) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("null"), nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("signature: multiple JSON documents in body")
	}
	return canonicaljson.Marshal(payload)
}

// ParseTimestamp accepts Timestamp header values in RFC3339 or RFC3339Nano format.
func ParseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("signature: empty timestamp")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}

// AbsDuration returns the absolute value of the supplied duration.
func AbsDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// BuildSigningPayload constructs the canonical string that is HMAC-signed.
func BuildSigningPayload(ts time.Time, canonicalBody []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(ts.UTC().Format(time.RFC3339Nano))
	buf.WriteByte('.')
	buf.Write(canonicalBody)
	return buf.Bytes()
}
