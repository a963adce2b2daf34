package backend

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sumup/ucheckout/signature"
)

// requestVerifier authenticates signed checkout requests.
type requestVerifier struct {
	verifier signature.Verifier
	required bool
	skew     time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func newSignatureMiddleware(cfg config) Middleware {
	if cfg.signatureVerifier == nil {
		return nil
	}
	v := &requestVerifier{
		verifier: cfg.signatureVerifier,
		required: cfg.requireSignedRequests,
		skew:     cfg.maxClockSkew,
		now:      cfg.clock,
		logger:   cfg.logger,
	}
	if v.now == nil {
		v.now = time.Now
	}
	if v.logger == nil {
		v.logger = slog.Default()
	}
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if apiErr := v.check(r); apiErr != nil {
				v.logger.WarnContext(r.Context(), "checkout request signature rejected",
					slog.String("path", r.URL.Path),
					slog.String("code", string(apiErr.Code)))
				writeJSONError(w, apiErr)
				return
			}
			next(w, r)
		}
	}
}

// check returns nil for an unsigned request when signing is optional, and for
// a request whose signature matches its canonical body.
func (v *requestVerifier) check(r *http.Request) *Error {
	sig := strings.TrimSpace(r.Header.Get(signature.HeaderSignature))
	stamp := strings.TrimSpace(r.Header.Get(signature.HeaderTimestamp))
	switch {
	case sig == "" && stamp == "":
		if v.required {
			return NewHTTPError(http.StatusUnauthorized, InvalidRequest, SignatureRequired,
				"checkout requests must be signed with Signature and Timestamp headers")
		}
		return nil
	case sig == "":
		return NewHTTPError(http.StatusBadRequest, InvalidRequest, InvalidSignature,
			"Timestamp header sent without Signature")
	case stamp == "":
		return NewHTTPError(http.StatusBadRequest, InvalidRequest, InvalidSignature,
			"Signature header sent without Timestamp")
	}

	ts, err := signature.ParseTimestamp(stamp)
	if err != nil {
		return NewHTTPError(http.StatusBadRequest, InvalidRequest, InvalidSignature,
			"Timestamp must be an RFC 3339 time")
	}
	ts = ts.UTC()
	if v.skew > 0 {
		if drift := signature.AbsDuration(v.now().Sub(ts)); drift > v.skew {
			return NewHTTPError(http.StatusUnauthorized, InvalidRequest, StaleTimestamp,
				fmt.Sprintf("request timestamp is %s away from server time, limit %s", drift.Truncate(time.Second), v.skew))
		}
	}

	raw, err := signature.ReadAndBufferBody(r)
	if err != nil {
		return NewInvalidRequestError("checkout request body could not be read")
	}
	body, err := signature.CanonicalizeJSONBody(raw)
	if err != nil {
		return NewInvalidRequestError("signed checkout request body must be JSON")
	}
	err = v.verifier.Verify(r.Context(), signature.Material{
		Signature:     sig,
		Timestamp:     ts,
		CanonicalBody: body,
		Method:        r.Method,
		Path:          r.URL.Path,
		RawQuery:      r.URL.RawQuery,
		Headers:       r.Header.Clone(),
	})
	if err != nil {
		return NewHTTPError(http.StatusUnauthorized, InvalidRequest, InvalidSignature,
			"checkout request signature does not match its body")
	}
	return nil
}
