package vector

import (
	"context"
	"fmt"

	"github.com/kalambet/whatnow/internal/llm"
)

// Embedder wraps the LLM client to generate text embeddings.
type Embedder struct {
	client llm.Client
}

// NewEmbedder creates an Embedder backed by the given client.
func NewEmbedder(client llm.Client) *Embedder {
	return &Embedder{client: client}
}

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.client.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	return vec, nil
}
