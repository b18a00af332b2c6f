package external

import (
	"log/slog"
	"net/http"

	"seep/internal/config"
	"seep/internal/security"
)

// maxStorefrontRedirects caps redirects followed on storefront calls.
const maxStorefrontRedirects = 3

// ClientRegistry holds the upstream clients. Breakers is the list health
// checks walk.
type ClientRegistry struct {
	LLM        ChatCompleter
	Storefront ProductSource
	Breakers   []*BaseClient
}

// NewClientRegistry builds the upstream clients from cfg. With
// cfg.LLM.Stub set, both upstreams are replaced by canned local stubs. Outside
// the local environment the storefront client refuses private addresses,
// since visitors choose the storefront domain.
func NewClientRegistry(cfg *config.Config, logger *slog.Logger, opts ...BaseClientOption) *ClientRegistry {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.LLM.Stub {
		logger.Info("initializing upstream clients in STUB mode", "environment", cfg.Environment)
		stubLogger := logger.With("mode", "stub")
		return &ClientRegistry{
			LLM:        NewStubChatCompleter(stubLogger),
			Storefront: NewStubProductSource(stubLogger),
		}
	}

	logger.Info("initializing upstream clients",
		"environment", cfg.Environment,
		"llm_model", cfg.LLM.Model,
		"storefront_api_version", cfg.Storefront.APIVersion,
	)

	llm := NewOpenRouterClient(&http.Client{Timeout: cfg.LLM.Timeout}, OpenRouterConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Referer: cfg.Server.PublicURL,
		Title:   cfg.Bot.Name,
		Logger:  logger.With("client", "llm"),
	}, opts...)

	var storefrontHTTP *http.Client
	if cfg.IsLocal() {
		storefrontHTTP = &http.Client{Timeout: cfg.Storefront.Timeout}
	} else {
		storefrontHTTP = security.NewSafeHTTPClient(cfg.Storefront.Timeout, maxStorefrontRedirects)
	}
	storefront := NewStorefrontClient(storefrontHTTP, StorefrontConfig{
		APIVersion:   cfg.Storefront.APIVersion,
		ProductCount: cfg.Storefront.ProductCount,
		Scheme:       cfg.Storefront.Scheme,
		Logger:       logger.With("client", "storefront"),
	}, opts...)

	return &ClientRegistry{
		LLM:        llm,
		Storefront: storefront,
		Breakers:   []*BaseClient{llm.Breaker(), storefront.Breaker()},
	}
}
