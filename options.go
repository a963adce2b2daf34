package ucheckout

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type config struct {
	timings        Timings
	logger         *slog.Logger
	trustedOrigins []string
	messages       MessageChannel
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option customizes the [Orchestrator].
type Option func(*config)

// WithTimings overrides the state machine delays.
func WithTimings(t Timings) Option {
	if t.LibraryGrace < 0 || t.ReadyFallback < 0 || t.AutoReset < 0 {
		panic("ucheckout: timings must not be negative")
	}
	return func(cfg *config) {
		cfg.timings = t
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *config) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithTrustedOrigins replaces the window message origins accepted from
// widgets that cannot emit events. Patterns are exact origins or
// `scheme://*.domain` wildcards.
func WithTrustedOrigins(origins ...string) Option {
	return func(cfg *config) {
		cfg.trustedOrigins = append([]string(nil), origins...)
	}
}

// WithMessageChannel sets the source of window messages.
func WithMessageChannel(ch MessageChannel) Option {
	return func(cfg *config) {
		cfg.messages = ch
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *config) {
		cfg.tracerProvider = tp
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *config) {
		cfg.meterProvider = mp
	}
}

func newConfig(opts []Option) config {
	cfg := config{
		timings:        DefaultTimings,
		logger:         slog.Default(),
		trustedOrigins: DefaultTrustedOrigins,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	if cfg.tracerProvider == nil {
		cfg.tracerProvider = otel.GetTracerProvider()
	}
	if cfg.meterProvider == nil {
		cfg.meterProvider = otel.GetMeterProvider()
	}
	return cfg
}
