package external

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"seep/internal/types"
)

const (
	storefrontTokenHeader = "X-Shopify-Storefront-Access-Token"
	maxProductCount       = 50
)

// ErrStoreNotConfigured is returned when the domain or token is empty.
var ErrStoreNotConfigured = errors.New("storefront: domain or token not configured")

// productsQuery asks for title, description and the first image of the first
// N products.
const productsQuery = `query Products($first: Int!) {
  products(first: $first) {
    edges {
      node {
        title
        description
        images(first: 1) { edges { node { src } } }
      }
    }
  }
}`

// StorefrontConfig holds the configuration for creating a StorefrontClient.
type StorefrontConfig struct {
	APIVersion   string // e.g. "2023-10"
	ProductCount int
	Scheme       string // "https" unless testing
	Logger       *slog.Logger
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type productsResponse struct {
	Data struct {
		Products struct {
			Edges []struct {
				Node struct {
					Title       string `json:"title"`
					Description string `json:"description"`
					Images      struct {
						Edges []struct {
							Node struct {
								Src string `json:"src"`
							} `json:"node"`
						} `json:"edges"`
					} `json:"images"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"products"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// StorefrontClient implements ProductSource against the storefront GraphQL
// API. Concurrent fetches for the same store share one upstream call; results
// are not cached.
type StorefrontClient struct {
	base   *BaseClient
	cfg    StorefrontConfig
	group  singleflight.Group
	logger *slog.Logger
}

var _ ProductSource = (*StorefrontClient)(nil)

// NewStorefrontClient creates a StorefrontClient. Pass a client from
// security.NewSafeHTTPClient when the domain comes from visitors.
func NewStorefrontClient(httpClient *http.Client, cfg StorefrontConfig, opts ...BaseClientOption) *StorefrontClient {
	base := NewBaseClient(
		httpClient,
		"storefront",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    200 * time.Millisecond,
			MaxWait:    2 * time.Second,
		},
		"SEEP/1.0",
		opts...,
	)
	return NewStorefrontClientWithBase(base, cfg)
}

// NewStorefrontClientWithBase creates a StorefrontClient with a
// pre-configured BaseClient.
func NewStorefrontClientWithBase(base *BaseClient, cfg StorefrontConfig) *StorefrontClient {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2023-10"
	}
	if cfg.ProductCount <= 0 {
		cfg.ProductCount = 5
	}
	if cfg.ProductCount > maxProductCount {
		cfg.ProductCount = maxProductCount
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Logger = logger
	return &StorefrontClient{base: base, cfg: cfg, logger: logger}
}

// Breaker exposes the underlying BaseClient for health checks.
func (c *StorefrontClient) Breaker() *BaseClient { return c.base }

// FetchProducts returns the first products of store.
func (c *StorefrontClient) FetchProducts(ctx context.Context, store StoreRef) ([]Product, error) {
	if store.Domain == "" || store.Token == "" {
		return nil, ErrStoreNotConfigured
	}

	ch := c.group.DoChan(flightKey(store), func() (any, error) {
		// Detached so one caller going away does not fail the others.
		return c.fetch(context.WithoutCancel(ctx), store)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		products := res.Val.([]Product)
		out := make([]Product, len(products))
		copy(out, products)
		return out, nil
	case <-ctx.Done():
		return nil, types.NewAppError(types.ErrCodeUpstreamStorefront, "storefront request canceled", ctx.Err())
	}
}

func (c *StorefrontClient) fetch(ctx context.Context, store StoreRef) ([]Product, error) {
	body, err := json.Marshal(graphQLRequest{
		Query:     productsQuery,
		Variables: map[string]any{"first": c.cfg.ProductCount},
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to serialize storefront query", err)
	}

	url := fmt.Sprintf("%s://%s/api/%s/graphql.json", c.cfg.Scheme, store.Domain, c.cfg.APIVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamStorefront, "invalid storefront domain", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(storefrontTokenHeader, store.Token)

	resp, err := c.base.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "storefront fetch failed", "domain", store.Domain, "error", err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamStorefront,
			fmt.Sprintf("storefront returned %d", resp.StatusCode),
			nil,
		)
	}

	var out productsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamStorefront, "failed to decode storefront response", err)
	}
	if len(out.Errors) > 0 && len(out.Data.Products.Edges) == 0 {
		return nil, types.NewAppError(types.ErrCodeUpstreamStorefront, "storefront query error: "+out.Errors[0].Message, nil)
	}

	products := make([]Product, 0, len(out.Data.Products.Edges))
	for _, edge := range out.Data.Products.Edges {
		p := Product{Title: edge.Node.Title, Description: edge.Node.Description}
		if imgs := edge.Node.Images.Edges; len(imgs) > 0 {
			p.ImageURL = imgs[0].Node.Src
		}
		products = append(products, p)
	}

	c.logger.DebugContext(ctx, "storefront products fetched",
		"domain", store.Domain,
		"count", len(products),
	)
	return products, nil
}

// flightKey identifies a store without putting the token in memory twice.
func flightKey(store StoreRef) string {
	sum := sha256.Sum256([]byte(store.Domain + "\x00" + store.Token))
	return hex.EncodeToString(sum[:])
}
