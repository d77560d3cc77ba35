// Package embeddings provides embedding providers for memory retrieval.
package embeddings

import "context"

// Provider turns text into embedding vectors. The vector dimension is
// whatever the backing model produces; callers that care probe it with
// a sample embedding rather than trusting configuration.
type Provider interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Name returns the provider name.
	Name() string
}
