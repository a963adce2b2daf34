package backend

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/sumup/ucheckout"
)

// Provider is implemented by the payment processor integration that issues
// capture contexts and settles transient tokens.
type Provider interface {
	CreateCaptureContext(ctx context.Context, req ucheckout.CaptureContextRequest) (*ucheckout.CaptureContextResponse, error)
	// Charge returns the processor's success payload verbatim.
	Charge(ctx context.Context, req ucheckout.ChargeRequest) (json.RawMessage, error)
}

// Handler serves the capture-context and charge endpoints on top of a
// [Provider].
type Handler struct {
	provider    Provider
	mux         *http.ServeMux
	cfg         config
	limiter     *rateLimiter
	idempotency *idempotencyStore
}

// NewHandler builds a [Handler] backed by net/http's ServeMux.
func NewHandler(provider Provider, opts ...Option) *Handler {
	if provider == nil {
		panic("backend: provider is required")
	}
	cfg := config{
		maxClockSkew: 5 * time.Minute,
		clock:        time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	if cfg.requireSignedRequests && cfg.signatureVerifier == nil {
		panic("backend: signature verifier required when signed requests are enforced")
	}
	h := &Handler{
		provider:    provider,
		mux:         http.NewServeMux(),
		cfg:         cfg,
		idempotency: newIdempotencyStore(cfg.clock),
	}
	var middleware []Middleware
	if cfg.rateLimit > 0 {
		h.limiter = newRateLimiter(cfg.rateLimit, cfg.rateBurst, cfg.clock)
		middleware = append(middleware, h.limiter.middleware())
	}
	if mw := newAuthenticationMiddleware(cfg.authenticator); mw != nil {
		middleware = append(middleware, mw)
	}
	if mw := newSignatureMiddleware(cfg); mw != nil {
		middleware = append(middleware, mw)
	}
	middleware = append(middleware, cfg.middleware...)
	// applyMiddleware wraps in order, so the last entry runs first.
	slices.Reverse(middleware)
	h.registerRoutes(middleware...)
	return h
}

// ServeHTTP satisfies http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.cors(w, r) {
		return
	}
	requestCtx := requestContextFromRequest(r)
	ctx := contextWithRequestContext(r.Context(), requestCtx)
	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

func (h *Handler) registerRoutes(middleware ...Middleware) {
	h.mux.HandleFunc("POST "+ucheckout.CaptureContextPath, applyMiddleware(h.handleCaptureContext, middleware...))
	h.mux.HandleFunc("POST "+ucheckout.ChargePath, applyMiddleware(h.handleCharge, middleware...))
}

func (h *Handler) handleCaptureContext(w http.ResponseWriter, r *http.Request) {
	var req ucheckout.CaptureContextRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeJSONError(w, NewInvalidRequestError(err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONError(w, validationError(err))
		return
	}
	if verr := h.checkClientVersion(req.ClientVersion); verr != nil {
		writeJSONError(w, verr)
		return
	}
	if origin := RequestContextFromContext(r.Context()).Origin; origin != "" && !slices.Contains(req.TargetOrigins, origin) {
		writeJSONError(w, NewHTTPError(http.StatusBadRequest, InvalidRequest, OriginMismatch,
			"targetOrigins must include the requesting origin", WithOffendingParam("$.targetOrigins")))
		return
	}
	resp, err := h.provider.CreateCaptureContext(r.Context(), req)
	if err != nil {
		h.logFailure(r, "capture context failed", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleCharge(w http.ResponseWriter, r *http.Request) {
	var req ucheckout.ChargeRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeJSONError(w, NewInvalidRequestError(err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONError(w, validationError(err))
		return
	}

	key := RequestContextFromContext(r.Context()).IdempotencyKey
	if key != "" {
		entry, ierr := h.idempotency.begin(key, req)
		if ierr != nil {
			writeJSONError(w, ierr)
			return
		}
		if entry != nil {
			w.Header().Set("Idempotent-Replayed", "true")
			writeJSON(w, http.StatusOK, entry)
			return
		}
	}

	result, err := h.provider.Charge(r.Context(), req)
	if err != nil {
		h.idempotency.abandon(key)
		h.logFailure(r, "charge failed", err)
		writeServiceError(w, err)
		return
	}
	h.idempotency.complete(key, result)
	h.notifySettlement(r.Context(), req, result)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) logFailure(r *http.Request, msg string, err error) {
	attrs := []any{slog.String("path", r.URL.Path), slog.String("error", err.Error())}
	if id := RequestContextFromContext(r.Context()).RequestID; id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}
	h.cfg.logger.Warn(msg, attrs...)
}
