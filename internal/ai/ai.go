package ai

import "context"

// Embedder turns text into a dense vector. Implementations must return
// vectors of a fixed dimensionality reported by Dimensions.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Generator produces an answer grounded on the supplied context chunks.
type Generator interface {
	Generate(ctx context.Context, query string, contextChunks []string) (string, error)
}
