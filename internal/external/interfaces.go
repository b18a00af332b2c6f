package external

import "context"

// ---------------------------------------------------------------------------
// LLM chat completion
// ---------------------------------------------------------------------------

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one message in a completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompleter sends a conversation to the LLM and returns the reply text.
type ChatCompleter interface {
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
}

// ---------------------------------------------------------------------------
// Storefront catalog
// ---------------------------------------------------------------------------

// Product is the slice of a storefront product the system prompt uses.
type Product struct {
	Title       string
	Description string
	// ImageURL is empty when the product has no image.
	ImageURL string
}

// StoreRef names a storefront and the token used to query it.
type StoreRef struct {
	Domain string
	Token  string
}

// ProductSource fetches the first few products of a storefront.
type ProductSource interface {
	FetchProducts(ctx context.Context, store StoreRef) ([]Product, error)
}
