// Package access decides whether a visitor may use the chat widget. Billing
// is checked before setup so an unbilled visitor always sees plan selection
// first.
package access

import (
	"strings"

	"seep/internal/types"
)

// Session keys holding the per-visitor bot configuration.
const (
	KeyBotName    = "bot_name"
	KeyShopDomain = "shopify_domain"
	KeyShopToken  = "shopify_token"
)

// Defaults are the process-wide bot settings used when a session has not
// recorded its own.
type Defaults struct {
	BotName         string
	ShopDomain      string
	StorefrontToken types.SecretString
}

// BotSettings is the configuration recorded on the setup page.
type BotSettings struct {
	BotName         string
	ShopDomain      string
	StorefrontToken string
}

// LoadBotSettings reads whatever settings the session has recorded.
func LoadBotSettings(sess types.SessionValues) BotSettings {
	var s BotSettings
	s.BotName, _ = sess.Get(KeyBotName)
	s.ShopDomain, _ = sess.Get(KeyShopDomain)
	s.StorefrontToken, _ = sess.Get(KeyShopToken)
	return s
}

// SaveBotSettings records s in the session. An empty token keeps any token
// recorded earlier.
func SaveBotSettings(sess types.SessionValues, s BotSettings) {
	sess.Set(KeyBotName, strings.TrimSpace(s.BotName))
	sess.Set(KeyShopDomain, NormalizeDomain(s.ShopDomain))
	if tok := strings.TrimSpace(s.StorefrontToken); tok != "" {
		sess.Set(KeyShopToken, tok)
	}
}

// Complete reports whether both the bot name and storefront domain are set.
func (s BotSettings) Complete() bool {
	return strings.TrimSpace(s.BotName) != "" && strings.TrimSpace(s.ShopDomain) != ""
}

// Resolve fills unset fields from d.
func (s BotSettings) Resolve(d Defaults) BotSettings {
	if s.BotName == "" {
		s.BotName = d.BotName
	}
	if s.ShopDomain == "" {
		s.ShopDomain = d.ShopDomain
	}
	if s.StorefrontToken == "" {
		s.StorefrontToken = d.StorefrontToken.Unmask()
	}
	return s
}

// NormalizeDomain strips a scheme, path and surrounding whitespace so that
// "https://shop.example.com/" and "shop.example.com" are stored the same.
func NormalizeDomain(raw string) string {
	d := strings.TrimSpace(raw)
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	return strings.ToLower(d)
}
