package external

import (
	"context"
	"fmt"
	"log/slog"
)

// ---------------------------------------------------------------------------
// Stub implementations
//
// Let the service boot without an LLM key or a real storefront. They log
// every call and return predictable values.
// ---------------------------------------------------------------------------

// StubChatCompleter echoes the last user message.
type StubChatCompleter struct {
	logger *slog.Logger
}

// NewStubChatCompleter creates a new StubChatCompleter.
func NewStubChatCompleter(logger *slog.Logger) *StubChatCompleter {
	return &StubChatCompleter{logger: logger}
}

func (s *StubChatCompleter) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	var last string
	for _, m := range messages {
		if m.Role == RoleUser {
			last = m.Content
		}
	}
	s.logger.InfoContext(ctx, "stub: Complete called", "messages", len(messages))
	return fmt.Sprintf("You said: %s", last), nil
}

// StubProductSource returns a fixed two-product catalog for any configured
// store.
type StubProductSource struct {
	logger *slog.Logger
}

// NewStubProductSource creates a new StubProductSource.
func NewStubProductSource(logger *slog.Logger) *StubProductSource {
	return &StubProductSource{logger: logger}
}

func (s *StubProductSource) FetchProducts(ctx context.Context, store StoreRef) ([]Product, error) {
	s.logger.InfoContext(ctx, "stub: FetchProducts called", "domain", store.Domain)
	if store.Domain == "" || store.Token == "" {
		return nil, ErrStoreNotConfigured
	}
	return []Product{
		{Title: "Stub Tee", Description: "A plain cotton tee.", ImageURL: "https://cdn.example.com/tee.png"},
		{Title: "Stub Mug", Description: "Holds coffee."},
	}, nil
}
