package ucheckout

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// LibraryRef points at the widget client library and its optional
// subresource integrity digest.
type LibraryRef struct {
	URL       string
	Integrity string
}

type captureContextPayload struct {
	Ctx []struct {
		Data struct {
			ClientLibrary          string `json:"clientLibrary"`
			ClientLibraryIntegrity string `json:"clientLibraryIntegrity"`
		} `json:"data"`
	} `json:"ctx"`
}

var base64URLReplacer = strings.NewReplacer("-", "+", "_", "/")

// ResolveLibrary derives the client library reference from a capture context
// JWT. The signature is not verified. Any decoding problem, or a payload that
// names no library, yields [FallbackClientLibraryURL] without integrity.
func ResolveLibrary(jwt string, logger *slog.Logger) LibraryRef {
	ref, err := resolveLibrary(jwt)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("using fallback client library",
			slog.String("url", FallbackClientLibraryURL),
			slog.Any("error", err))
		return LibraryRef{URL: FallbackClientLibraryURL}
	}
	return ref
}

func resolveLibrary(jwt string) (LibraryRef, error) {
	parts := strings.Split(jwt, ".")
	if len(parts) != 3 {
		return LibraryRef{}, fmt.Errorf("capture context has %d segments, want 3", len(parts))
	}
	segment := strings.TrimRight(base64URLReplacer.Replace(parts[1]), "=")
	raw, err := base64.RawStdEncoding.DecodeString(segment)
	if err != nil {
		return LibraryRef{}, fmt.Errorf("decode capture context payload: %w", err)
	}
	var payload captureContextPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return LibraryRef{}, fmt.Errorf("parse capture context payload: %w", err)
	}
	if len(payload.Ctx) == 0 || payload.Ctx[0].Data.ClientLibrary == "" {
		return LibraryRef{}, errors.New("capture context names no client library")
	}
	data := payload.Ctx[0].Data
	return LibraryRef{URL: data.ClientLibrary, Integrity: data.ClientLibraryIntegrity}, nil
}
