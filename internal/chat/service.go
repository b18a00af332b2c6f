// Package chat turns a visitor prompt into a reply: it summarizes the store's
// products into the system prompt and asks the LLM.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"seep/internal/external"
	"seep/internal/types"
)

// ProductsCommand returns the product summary without calling the LLM.
const ProductsCommand = "/products"

// Summary texts shown in place of a product list.
const (
	SummaryNotConfigured = "Store info not configured."
	SummaryFetchFailed   = "Could not fetch products."
	SummaryEmpty         = "No products found."
)

const noImage = "No image"

// ErrEmptyPrompt is returned for blank prompts.
var ErrEmptyPrompt = types.NewAppError(types.ErrCodeValidationMissingField, "prompt is required", nil)

// Bot identifies who is answering and for which store.
type Bot struct {
	Name  string
	Store external.StoreRef
}

// Service answers chat prompts.
type Service struct {
	products external.ProductSource
	llm      external.ChatCompleter
	logger   *slog.Logger
}

// NewService creates a Service.
func NewService(products external.ProductSource, llm external.ChatCompleter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{products: products, llm: llm, logger: logger}
}

// Summary renders the store's products as plain text. Failures become one of
// the Summary* messages rather than errors.
func (s *Service) Summary(ctx context.Context, store external.StoreRef) string {
	products, err := s.products.FetchProducts(ctx, store)
	switch {
	case errors.Is(err, external.ErrStoreNotConfigured):
		return SummaryNotConfigured
	case err != nil:
		s.logger.WarnContext(ctx, "product summary unavailable",
			"domain", store.Domain,
			"error", err,
		)
		return SummaryFetchFailed
	case len(products) == 0:
		return SummaryEmpty
	}
	return FormatProducts(products)
}

// FormatProducts renders products as blank-line separated blocks.
func FormatProducts(products []external.Product) string {
	blocks := make([]string, len(products))
	for i, p := range products {
		img := p.ImageURL
		if img == "" {
			img = noImage
		}
		blocks[i] = fmt.Sprintf("Title: %s\nDescription: %s\nImage: %s", p.Title, p.Description, img)
	}
	return strings.Join(blocks, "\n\n")
}

// SystemPrompt builds the instruction message for bot given a product summary.
func SystemPrompt(botName, summary string) string {
	return fmt.Sprintf(
		"You are %s, a smart, witty assistant for a Shopify store. "+
			"Here's what's in the store:\n%s\n\n"+
			"Answer in clear, human-like text with no markdown, code, or links.",
		botName, summary,
	)
}

// IsProductsCommand reports whether prompt asks for the raw product list.
func IsProductsCommand(prompt string) bool {
	return strings.EqualFold(strings.TrimSpace(prompt), ProductsCommand)
}

var markdownStripper = strings.NewReplacer("*", "", "_", "", "`", "")

// StripMarkdown removes emphasis and code markers from an LLM reply. Nothing
// else is changed, whitespace included.
func StripMarkdown(s string) string {
	return markdownStripper.Replace(s)
}

// Reply answers prompt on behalf of bot.
func (s *Service) Reply(ctx context.Context, bot Bot, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	summary := s.Summary(ctx, bot.Store)
	if IsProductsCommand(prompt) {
		return summary, nil
	}

	reply, err := s.llm.Complete(ctx, []external.ChatMessage{
		{Role: external.RoleSystem, Content: SystemPrompt(bot.Name, summary)},
		{Role: external.RoleUser, Content: prompt},
	})
	if err != nil {
		return "", err
	}
	return StripMarkdown(reply), nil
}
