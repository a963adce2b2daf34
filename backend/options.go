package backend

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/time/rate"

	"github.com/sumup/ucheckout/signature"
)

type config struct {
	signatureVerifier     signature.Verifier
	maxClockSkew          time.Duration
	requireSignedRequests bool
	middleware            []Middleware
	authenticator         Authenticator
	clock                 func() time.Time
	logger                *slog.Logger
	rateLimit             rate.Limit
	rateBurst             int
	allowedOrigins        []string
	clientVersions        *semver.Constraints
	webhook               *webhookConfig
}

type Middleware func(http.HandlerFunc) http.HandlerFunc

func applyMiddleware(h http.HandlerFunc, middleware ...Middleware) http.HandlerFunc {
	for _, m := range middleware {
		h = m(h)
	}
	return h
}

// Option customizes the handler behavior.
type Option func(*config)

// WithSignatureVerifier enables canonical JSON signature enforcement.
func WithSignatureVerifier(verifier signature.Verifier) Option {
	return func(cfg *config) {
		cfg.signatureVerifier = verifier
	}
}

// WithMaxClockSkew sets the tolerated absolute difference between the
// Timestamp header and the server clock when verifying signed requests.
func WithMaxClockSkew(skew time.Duration) Option {
	if skew <= 0 {
		panic("backend: max clock skew must be positive")
	}
	return func(cfg *config) {
		cfg.maxClockSkew = skew
	}
}

// WithRequireSignedRequests enforces that every request carries Signature and
// Timestamp headers when a verifier is configured.
func WithRequireSignedRequests() Option {
	return func(cfg *config) {
		cfg.requireSignedRequests = true
	}
}

// WithMiddleware appends custom middleware in the order provided.
func WithMiddleware(mw ...Middleware) Option {
	return func(cfg *config) {
		for _, m := range mw {
			if m == nil {
				continue
			}
			cfg.middleware = append(cfg.middleware, m)
		}
	}
}

// WithAuthenticator enables Authorization header API key validation.
func WithAuthenticator(auth Authenticator) Option {
	return func(cfg *config) {
		cfg.authenticator = auth
	}
}

// WithLogger sets the logger used for request and webhook failures.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithRateLimit allows each client rps requests per second with the given
// burst. Clients are keyed by the Authorization header, falling back to the
// remote address.
func WithRateLimit(rps float64, burst int) Option {
	if rps <= 0 || burst <= 0 {
		panic("backend: rate limit and burst must be positive")
	}
	return func(cfg *config) {
		cfg.rateLimit = rate.Limit(rps)
		cfg.rateBurst = burst
	}
}

// WithAllowedOrigins enables CORS for the given page origins.
func WithAllowedOrigins(origins ...string) Option {
	return func(cfg *config) {
		cfg.allowedOrigins = append(cfg.allowedOrigins, origins...)
	}
}

// WithClientVersions restricts the clientVersion accepted by the
// capture-context endpoint to a semver constraint such as ">= 0.30, < 1".
func WithClientVersions(constraint string) Option {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		panic("backend: invalid client version constraint: " + err.Error())
	}
	return func(cfg *config) {
		cfg.clientVersions = c
	}
}

// withClock provides deterministic time in tests.
func withClock(fn func() time.Time) Option {
	return func(cfg *config) {
		cfg.clock = fn
	}
}
