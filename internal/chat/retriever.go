package chat

import (
	"context"
	"errors"
)

// ErrRetrieverUnavailable is returned when no document store is configured
// or the configured one is unhealthy.
var ErrRetrieverUnavailable = errors.New("document retriever unavailable")

// Retriever is the narrow interface to the external vector store. The store
// itself is owned by the ingestion pipeline; the chat core only searches.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]Snippet, error)
	Healthy(ctx context.Context) bool
}

// NullRetriever is the RAG_STORE=none implementation.
type NullRetriever struct{}

func (NullRetriever) Search(context.Context, string, int) ([]Snippet, error) {
	return nil, ErrRetrieverUnavailable
}

func (NullRetriever) Healthy(context.Context) bool { return false }
