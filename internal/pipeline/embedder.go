package pipeline

import "context"

// Embedder computes vector embeddings for chunks that do not have one
// yet. The pipeline reserves a stage for it but ships no provider;
// deployments plug one in through Orchestrator.WithEmbedder.
type Embedder interface {
	// EmbedPending embeds every chunk missing an embedding and
	// returns how many were processed.
	EmbedPending(ctx context.Context) (int, error)
}
