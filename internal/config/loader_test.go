package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSessionKey = "a-very-long-session-key-that-is-at-least-32-chars-long"

// setMinimalTestEnv sets the required environment variables for a valid Config.
// It uses t.Setenv so values are automatically cleaned up after the test.
func setMinimalTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "local")
	t.Setenv("SESSION_KEY", testSessionKey)
	t.Setenv("OPENROUTER_API_KEY", "sk-or-test")
}

// noDotenv returns loader deps that never touch the filesystem.
func noDotenv() loaderDeps {
	return loaderDeps{loadDotenv: func(...string) error { return nil }}
}

func TestLoadConfig_Defaults(t *testing.T) {
	setMinimalTestEnv(t)

	cfg, err := loadConfigWithDeps(noDotenv())
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "10000", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, []string{"*"}, cfg.Server.CorsAllowedOrigins)

	assert.Equal(t, testSessionKey, cfg.Session.Key.Unmask())
	assert.Equal(t, "seep_session", cfg.Session.CookieName)
	assert.Equal(t, 24*time.Hour, cfg.Session.IdleTTL)
	assert.Equal(t, 10000, cfg.Session.MaxEntries)

	assert.Equal(t, "SEEP", cfg.Bot.Name)
	assert.Equal(t, "example.myshopify.com", cfg.Bot.ShopDomain)
	assert.True(t, cfg.Bot.StorefrontToken.IsZero())

	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "deepseek/deepseek-chat-v3-0324:free", cfg.LLM.Model)

	assert.Equal(t, "2023-10", cfg.Storefront.APIVersion)
	assert.Equal(t, 5, cfg.Storefront.ProductCount)
	assert.Equal(t, 10*time.Second, cfg.Storefront.Timeout)
	assert.Equal(t, "https", cfg.Storefront.Scheme)

	assert.Equal(t, "prometheus", cfg.Observability.MetricsBackend)
	assert.Equal(t, "dev", cfg.Build.Version)
}

func TestLoadConfig_Overrides(t *testing.T) {
	setMinimalTestEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("BOT_NAME", "Shopbot")
	t.Setenv("SHOP_DOMAIN", "acme.myshopify.com")
	t.Setenv("SHOPIFY_STOREFRONT_TOKEN", "tok_123")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://acme.com,https://www.acme.com")
	t.Setenv("SESSION_IDLE_TTL", "2h")
	t.Setenv("METRICS_BACKEND", "cloudwatch")

	cfg, err := loadConfigWithDeps(noDotenv())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "Shopbot", cfg.Bot.Name)
	assert.Equal(t, "acme.myshopify.com", cfg.Bot.ShopDomain)
	assert.Equal(t, "tok_123", cfg.Bot.StorefrontToken.Unmask())
	assert.Equal(t, []string{"https://acme.com", "https://www.acme.com"}, cfg.Server.CorsAllowedOrigins)
	assert.Equal(t, 2*time.Hour, cfg.Session.IdleTTL)
	assert.Equal(t, "cloudwatch", cfg.Observability.MetricsBackend)
}

func TestLoadConfig_MissingSessionKey(t *testing.T) {
	setMinimalTestEnv(t)
	t.Setenv("SESSION_KEY", "")

	_, err := loadConfigWithDeps(noDotenv())
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ErrValidation, cfgErr.Type)
}

func TestLoadConfig_ShortSessionKey(t *testing.T) {
	setMinimalTestEnv(t)
	t.Setenv("SESSION_KEY", "too-short")

	_, err := loadConfigWithDeps(noDotenv())

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ErrValidation, cfgErr.Type)
}

func TestLoadConfig_MissingLLMKey(t *testing.T) {
	setMinimalTestEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "")

	_, err := loadConfigWithDeps(noDotenv())

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ErrValidation, cfgErr.Type)
}

func TestLoadConfig_StubModeNeedsNoLLMKey(t *testing.T) {
	setMinimalTestEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("UPSTREAM_STUB", "true")

	cfg, err := loadConfigWithDeps(noDotenv())
	require.NoError(t, err)
	assert.True(t, cfg.LLM.Stub)
	assert.True(t, cfg.IsLocal())
}

func TestLoadConfig_InvalidEnvironment(t *testing.T) {
	setMinimalTestEnv(t)
	t.Setenv("APP_ENV", "qa")

	_, err := loadConfigWithDeps(noDotenv())

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ErrValidation, cfgErr.Type)
}

func TestLoadConfig_UnknownMetricsBackend(t *testing.T) {
	setMinimalTestEnv(t)
	t.Setenv("METRICS_BACKEND", "statsd")

	_, err := loadConfigWithDeps(noDotenv())

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ErrValidation, cfgErr.Type)
}

func TestLoadConfig_BadDuration(t *testing.T) {
	setMinimalTestEnv(t)
	t.Setenv("LLM_TIMEOUT", "forever")

	_, err := loadConfigWithDeps(noDotenv())

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ErrParsing, cfgErr.Type)
}

func TestLoadConfig_DotenvFile(t *testing.T) {
	setMinimalTestEnv(t)
	// Unset so the dotenv value is visible; godotenv never overrides real env.
	t.Setenv("BOT_NAME", "")
	os.Unsetenv("BOT_NAME")

	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("BOT_NAME=FromDotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("BOT_NAME") })

	deps := defaultDeps()
	deps.files = []string{path}

	cfg, err := loadConfigWithDeps(deps)
	require.NoError(t, err)
	assert.Equal(t, "FromDotenv", cfg.Bot.Name)
}

func TestLoadConfig_MissingDotenvIsNotFatal(t *testing.T) {
	setMinimalTestEnv(t)

	deps := defaultDeps()
	deps.files = []string{filepath.Join(t.TempDir(), "does-not-exist.env")}

	_, err := loadConfigWithDeps(deps)
	assert.NoError(t, err)
}

func TestLoadConfig_EnforcesUTC(t *testing.T) {
	setMinimalTestEnv(t)

	_, err := loadConfigWithDeps(noDotenv())
	require.NoError(t, err)
	assert.Equal(t, time.UTC, time.Local)
}

func TestConfigError_Format(t *testing.T) {
	inner := errors.New("boom")
	err := &ConfigError{Type: ErrParsing, Message: "bad env", Err: inner}

	assert.Equal(t, "[PARSING_FAILED] bad env: boom", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "[VALIDATION_FAILED] nope", (&ConfigError{Type: ErrValidation, Message: "nope"}).Error())
}
