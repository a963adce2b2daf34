package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sumup/ucheckout"
)

// Config aggregates runtime configuration grouped by concern.
type Config struct {
	ServiceName string          `yaml:"service_name"`
	LogLevel    string          `yaml:"log_level"`
	Checkout    CheckoutConfig  `yaml:"checkout"`
	Backend     BackendConfig   `yaml:"backend"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
}

// CheckoutConfig configures the page-side orchestrator.
type CheckoutConfig struct {
	BackendURL     string        `yaml:"backend_url"`
	ClientVersion  string        `yaml:"client_version"`
	TrustedOrigins []string      `yaml:"trusted_origins"`
	LibraryGrace   time.Duration `yaml:"library_grace"`
	ReadyFallback  time.Duration `yaml:"ready_fallback"`
	AutoReset      time.Duration `yaml:"auto_reset"`
}

// BackendConfig configures the demo merchant backend.
type BackendConfig struct {
	ListenAddr             string   `yaml:"listen_addr"`
	SigningKey             string   `yaml:"signing_key"`
	RequireSigned          bool     `yaml:"require_signed"`
	IssuerKey              string   `yaml:"issuer_key"`
	ClientLibraryURL       string   `yaml:"client_library_url"`
	ClientLibraryIntegrity string   `yaml:"client_library_integrity"`
	AllowedOrigins         []string `yaml:"allowed_origins"`
	ClientVersions         string   `yaml:"client_versions"`
	RateLimit              float64  `yaml:"rate_limit"`
	RateBurst              int      `yaml:"rate_burst"`
	MaxAmount              float64  `yaml:"max_amount"`
	WebhookURL             string   `yaml:"webhook_url"`
	WebhookSecret          string   `yaml:"webhook_secret"`
}

// TelemetryConfig selects the trace exporter.
type TelemetryConfig struct {
	// OTLPEndpoint is a full URL or host:port. Empty disables export.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		ServiceName: "ucheckout",
		LogLevel:    "INFO",
		Checkout: CheckoutConfig{
			BackendURL:     "http://localhost:3000",
			ClientVersion:  ucheckout.DefaultClientVersion,
			TrustedOrigins: append([]string(nil), ucheckout.DefaultTrustedOrigins...),
			LibraryGrace:   ucheckout.DefaultTimings.LibraryGrace,
			ReadyFallback:  ucheckout.DefaultTimings.ReadyFallback,
			AutoReset:      ucheckout.DefaultTimings.AutoReset,
		},
		Backend: BackendConfig{
			ListenAddr:     ":3000",
			ClientVersions: ">= 0.20",
			RateLimit:      5,
			RateBurst:      10,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, the given dotenv files (".env" when none are given, ignored when
// missing) and UCHECKOUT_* environment variables, in that order.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %q: %w", f, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.ServiceName = getEnv("UCHECKOUT_SERVICE_NAME", cfg.ServiceName)
	cfg.LogLevel = getEnv("UCHECKOUT_LOG_LEVEL", cfg.LogLevel)

	cfg.Checkout.BackendURL = getEnv("UCHECKOUT_BACKEND_URL", cfg.Checkout.BackendURL)
	cfg.Checkout.ClientVersion = getEnv("UCHECKOUT_CLIENT_VERSION", cfg.Checkout.ClientVersion)
	if raw, ok := lookupEnv("UCHECKOUT_TRUSTED_ORIGINS"); ok {
		cfg.Checkout.TrustedOrigins = splitAndTrim(raw)
	}

	cfg.Backend.ListenAddr = getEnv("UCHECKOUT_LISTEN_ADDR", cfg.Backend.ListenAddr)
	cfg.Backend.SigningKey = getEnv("UCHECKOUT_SIGNING_KEY", cfg.Backend.SigningKey)
	cfg.Backend.IssuerKey = getEnv("UCHECKOUT_ISSUER_KEY", cfg.Backend.IssuerKey)
	cfg.Backend.ClientLibraryURL = getEnv("UCHECKOUT_CLIENT_LIBRARY_URL", cfg.Backend.ClientLibraryURL)
	cfg.Backend.ClientLibraryIntegrity = getEnv("UCHECKOUT_CLIENT_LIBRARY_INTEGRITY", cfg.Backend.ClientLibraryIntegrity)
	cfg.Backend.ClientVersions = getEnv("UCHECKOUT_CLIENT_VERSIONS", cfg.Backend.ClientVersions)
	cfg.Backend.WebhookURL = getEnv("UCHECKOUT_WEBHOOK_URL", cfg.Backend.WebhookURL)
	cfg.Backend.WebhookSecret = getEnv("UCHECKOUT_WEBHOOK_SECRET", cfg.Backend.WebhookSecret)
	if raw, ok := lookupEnv("UCHECKOUT_ALLOWED_ORIGINS"); ok {
		cfg.Backend.AllowedOrigins = splitAndTrim(raw)
	}

	cfg.Telemetry.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", cfg.Telemetry.OTLPEndpoint)

	var err error
	if cfg.Backend.RequireSigned, err = getBool("UCHECKOUT_REQUIRE_SIGNED", cfg.Backend.RequireSigned); err != nil {
		return err
	}
	if cfg.Backend.RateLimit, err = getFloat("UCHECKOUT_RATE_LIMIT", cfg.Backend.RateLimit); err != nil {
		return err
	}
	if cfg.Backend.MaxAmount, err = getFloat("UCHECKOUT_MAX_AMOUNT", cfg.Backend.MaxAmount); err != nil {
		return err
	}
	if cfg.Backend.RateBurst, err = getInt("UCHECKOUT_RATE_BURST", cfg.Backend.RateBurst); err != nil {
		return err
	}
	if cfg.Checkout.LibraryGrace, err = getDuration("UCHECKOUT_LIBRARY_GRACE", cfg.Checkout.LibraryGrace); err != nil {
		return err
	}
	if cfg.Checkout.ReadyFallback, err = getDuration("UCHECKOUT_READY_FALLBACK", cfg.Checkout.ReadyFallback); err != nil {
		return err
	}
	if cfg.Checkout.AutoReset, err = getDuration("UCHECKOUT_AUTO_RESET", cfg.Checkout.AutoReset); err != nil {
		return err
	}
	return nil
}

// Validate rejects settings the checkout cannot run with.
func (c Config) Validate() error {
	u, err := url.Parse(c.Checkout.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("checkout.backend_url %q must be an absolute URL", c.Checkout.BackendURL)
	}
	if c.Checkout.LibraryGrace < 0 || c.Checkout.ReadyFallback < 0 || c.Checkout.AutoReset < 0 {
		return errors.New("checkout timings must not be negative")
	}
	if c.Backend.RequireSigned && c.Backend.SigningKey == "" {
		return errors.New("backend.require_signed needs backend.signing_key")
	}
	if c.Backend.RateLimit < 0 || c.Backend.RateBurst < 0 {
		return errors.New("backend rate limit must not be negative")
	}
	if (c.Backend.WebhookURL == "") != (c.Backend.WebhookSecret == "") {
		return errors.New("backend.webhook_url and backend.webhook_secret must be set together")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Timings returns the orchestrator delays.
func (c Config) Timings() ucheckout.Timings {
	return ucheckout.Timings{
		LibraryGrace:  c.Checkout.LibraryGrace,
		ReadyFallback: c.Checkout.ReadyFallback,
		AutoReset:     c.Checkout.AutoReset,
	}
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

func getEnv(key, fallback string) string {
	if value, ok := lookupEnv(key); ok {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool) (bool, error) {
	raw, ok := lookupEnv(key)
	if !ok {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func getInt(key string, fallback int) (int, error) {
	raw, ok := lookupEnv(key)
	if !ok {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	raw, ok := lookupEnv(key)
	if !ok {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookupEnv(key)
	if !ok {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
