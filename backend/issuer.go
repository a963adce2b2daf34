package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"

	"github.com/sumup/ucheckout"
)

// ContextData is the widget configuration embedded in a capture context.
type ContextData struct {
	ClientLibrary          string   `json:"clientLibrary,omitempty"`
	ClientLibraryIntegrity string   `json:"clientLibraryIntegrity,omitempty"`
	TargetOrigins          []string `json:"targetOrigins"`
	AllowedCardNetworks    []string `json:"allowedCardNetworks"`
	AllowedPaymentTypes    []string `json:"allowedPaymentTypes"`
	ClientVersion          string   `json:"clientVersion"`
	Amount                 string   `json:"amount"`
	Currency               string   `json:"currency"`
	Country                string   `json:"country,omitempty"`
	Locale                 string   `json:"locale,omitempty"`

	// Extra fields are merged into the encoded object. They are not decoded.
	Extra map[string]any `json:"-"`
}

// MarshalJSON merges Extra over the typed fields.
func (d ContextData) MarshalJSON() ([]byte, error) {
	type plain ContextData
	base, err := json.Marshal(plain(d))
	if err != nil {
		return nil, err
	}
	if len(d.Extra) == 0 {
		return base, nil
	}
	patch, err := json.Marshal(d.Extra)
	if err != nil {
		return nil, err
	}
	return runtime.JSONMerge(base, patch)
}

// ContextEntry is one element of the ctx claim.
type ContextEntry struct {
	Type string      `json:"type,omitempty"`
	Data ContextData `json:"data"`
}

// CaptureContextClaims is the payload of an issued capture context.
type CaptureContextClaims struct {
	jwt.RegisteredClaims
	Contexts []ContextEntry `json:"ctx"`
}

// Issuer mints capture contexts as HS256-signed JWTs.
type Issuer struct {
	key     []byte
	name    string
	ttl     time.Duration
	library ucheckout.LibraryRef
	extra   map[string]any
	clock   func() time.Time
	newID   func() string
}

// IssuerOption customizes an [Issuer].
type IssuerOption func(*Issuer)

// WithIssuerName sets the iss claim. Defaults to "ucheckout".
func WithIssuerName(name string) IssuerOption {
	return func(i *Issuer) {
		i.name = name
	}
}

// WithContextTTL sets how long issued contexts stay valid. Defaults to 15 minutes.
func WithContextTTL(ttl time.Duration) IssuerOption {
	if ttl <= 0 {
		panic("backend: context ttl must be positive")
	}
	return func(i *Issuer) {
		i.ttl = ttl
	}
}

// WithClientLibrary embeds the widget client library reference. Without it
// pages fall back to their default library.
func WithClientLibrary(url, integrity string) IssuerOption {
	return func(i *Issuer) {
		i.library = ucheckout.LibraryRef{URL: url, Integrity: integrity}
	}
}

// WithContextData merges additional fields into every context's data object.
func WithContextData(extra map[string]any) IssuerOption {
	return func(i *Issuer) {
		i.extra = extra
	}
}

func withIssuerClock(fn func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.clock = fn
	}
}

// NewIssuer returns an issuer signing with key.
func NewIssuer(key []byte, opts ...IssuerOption) (*Issuer, error) {
	if len(key) == 0 {
		return nil, errors.New("backend: issuer key is required")
	}
	i := &Issuer{
		key:   key,
		name:  "ucheckout",
		ttl:   15 * time.Minute,
		clock: time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(i)
	}
	return i, nil
}

// Issue mints a capture context for req.
func (i *Issuer) Issue(req ucheckout.CaptureContextRequest) (string, error) {
	now := i.clock()
	claims := CaptureContextClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        i.newID(),
			Issuer:    i.name,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Contexts: []ContextEntry{{
			Type: "uc-capture-context",
			Data: ContextData{
				ClientLibrary:          i.library.URL,
				ClientLibraryIntegrity: i.library.Integrity,
				TargetOrigins:          req.TargetOrigins,
				AllowedCardNetworks:    req.AllowedCardNetworks,
				AllowedPaymentTypes:    req.AllowedPaymentTypes,
				ClientVersion:          req.ClientVersion,
				Amount:                 req.Amount,
				Currency:               req.Currency,
				Country:                req.Country,
				Locale:                 req.Locale,
				Extra:                  i.extra,
			},
		}},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("backend: sign capture context: %w", err)
	}
	return signed, nil
}

// Verify parses a context previously returned by Issue.
func (i *Issuer) Verify(token string) (*CaptureContextClaims, error) {
	var claims CaptureContextClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.name),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock),
	)
	if err != nil {
		return nil, fmt.Errorf("backend: verify capture context: %w", err)
	}
	if len(claims.Contexts) == 0 {
		return nil, errors.New("backend: capture context has no ctx entry")
	}
	return &claims, nil
}
