package backend

import (
	"context"
	"net/http"
	"strings"
)

type RequestContext struct {
	// API Key used to make requests
	//
	// Example: Bearer api_key_123
	Authorization string
	// Page origin of a browser caller
	//
	// Example: https://shop.example
	Origin string
	// The preferred locale for content like messages and errors
	//
	// Example: en-KE
	AcceptLanguage string
	// Information about the client making this request
	//
	// Example: Mozilla/5.0 (X11; Linux x86_64)
	UserAgent string
	// Key used to ensure charges are not repeated
	//
	// Example: 5f0c7c3e-2b0e-4d8e-9d53-5a0f3b1e9f11
	IdempotencyKey string
	// Unique key for each request for tracing purposes
	//
	// Example: 0d9e4c56-7b1f-4f9c-a2d1-3f5b1c9e8a70
	RequestID string
	// Base64url encoded signature of the request body
	//
	// Example: eyJtZX...
	Signature string
	// Formatted as an RFC 3339 string.
	//
	// Example: 2025-09-25T10:30:00Z
	Timestamp string
}

func requestContextFromRequest(r *http.Request) *RequestContext {
	return &RequestContext{
		Authorization:  strings.TrimSpace(r.Header.Get("Authorization")),
		Origin:         strings.TrimSpace(r.Header.Get("Origin")),
		AcceptLanguage: strings.TrimSpace(r.Header.Get("Accept-Language")),
		UserAgent:      strings.TrimSpace(r.Header.Get("User-Agent")),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		RequestID:      strings.TrimSpace(r.Header.Get("Request-Id")),
		Signature:      strings.TrimSpace(r.Header.Get("Signature")),
		Timestamp:      strings.TrimSpace(r.Header.Get("Timestamp")),
	}
}

type requestContextKey struct{}

func contextWithRequestContext(ctx context.Context, requestCtx *RequestContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if requestCtx == nil {
		return ctx
	}
	return context.WithValue(ctx, requestContextKey{}, requestCtx)
}

// RequestContextFromContext extracts the HTTP request metadata previously stored in the context.
func RequestContextFromContext(ctx context.Context) *RequestContext {
	if ctx == nil {
		return nil
	}
	if requestCtx, ok := ctx.Value(requestContextKey{}).(*RequestContext); ok {
		return requestCtx
	}
	return nil
}
