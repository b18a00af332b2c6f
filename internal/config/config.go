// Package config defines the process configuration for the SEEP chat service.
// Configuration is loaded once at startup and is immutable thereafter; nothing
// in the service mutates it. Per-visitor bot settings live in the session, not
// here.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> struct tag defaults (Lowest)
//
// Any invalid value causes startup to fail immediately (fail fast).
package config

import (
	"time"

	"seep/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only the
// specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"seep"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Session       SessionConfig
	Bot           BotDefaults
	LLM           LLMConfig
	Storefront    StorefrontConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// IsLocal reports whether the service runs on a developer machine.
func (c *Config) IsLocal() bool { return c.Environment == "local" }

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"10000"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	// PublicURL is sent to the LLM provider as the HTTP-Referer attribution.
	PublicURL string `envconfig:"PUBLIC_URL" validate:"omitempty,url"`
	// ChatRateLimit is the per-client request budget for /chat per minute. Zero disables it.
	ChatRateLimit int `envconfig:"CHAT_RATE_LIMIT" default:"30" validate:"gte=0"`
	// TrustProxy keys the rate limit on the last X-Forwarded-For entry. Enable
	// only when a reverse proxy that appends to the header fronts the server.
	TrustProxy bool `envconfig:"TRUST_PROXY" default:"false"`
	// Origins allowed to embed the widget and call /chat cross-origin.
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// SessionConfig controls the visitor session cookie and the in-memory store
// behind it.
type SessionConfig struct {
	Key        SecretString  `envconfig:"SESSION_KEY" validate:"required,min=32"`
	CookieName string        `envconfig:"SESSION_COOKIE_NAME" default:"seep_session"`
	IdleTTL    time.Duration `envconfig:"SESSION_IDLE_TTL" default:"24h" validate:"gt=0"`
	MaxEntries int           `envconfig:"SESSION_MAX_ENTRIES" default:"10000" validate:"gt=0"`
	Secure     bool          `envconfig:"SESSION_COOKIE_SECURE" default:"false"`
}

// BotDefaults are the values a visitor sees before completing setup.
type BotDefaults struct {
	Name            string       `envconfig:"BOT_NAME" default:"SEEP"`
	ShopDomain      string       `envconfig:"SHOP_DOMAIN" default:"example.myshopify.com"`
	StorefrontToken SecretString `envconfig:"SHOPIFY_STOREFRONT_TOKEN"`
}

// LLMConfig holds the chat completion provider settings (OpenAI-compatible API).
type LLMConfig struct {
	APIKey  SecretString  `envconfig:"OPENROUTER_API_KEY" validate:"required_unless=Stub true"`
	BaseURL string        `envconfig:"LLM_BASE_URL" default:"https://openrouter.ai/api/v1" validate:"required,url"`
	Model   string        `envconfig:"LLM_MODEL" default:"deepseek/deepseek-chat-v3-0324:free" validate:"required"`
	Timeout time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`
	// Stub replaces both upstreams with canned local responses.
	Stub bool `envconfig:"UPSTREAM_STUB" default:"false"`
}

// StorefrontConfig holds the commerce platform Storefront API settings.
type StorefrontConfig struct {
	APIVersion   string        `envconfig:"SHOPIFY_API_VERSION" default:"2023-10"`
	ProductCount int           `envconfig:"STOREFRONT_PRODUCT_COUNT" default:"5" validate:"gt=0,lte=50"`
	Timeout      time.Duration `envconfig:"STOREFRONT_TIMEOUT" default:"10s"`
	// Scheme is overridable so local development can point at a plain-HTTP mock.
	Scheme string `envconfig:"STOREFRONT_SCHEME" default:"https" validate:"oneof=http https"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricsBackend  string `envconfig:"METRICS_BACKEND" default:"prometheus" validate:"oneof=prometheus cloudwatch none"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"SEEP"`
	AWSRegion       string `envconfig:"AWS_REGION" default:"us-east-1"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string `ignored:"true"`
	Commit    string `ignored:"true"`
	BuildTime string `ignored:"true"`
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrDotenv indicates a .env file exists but could not be parsed.
	ErrDotenv ConfigErrorType = "DOTENV_FAILED"
)
