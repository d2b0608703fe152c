package toolzoo

import "context"

// Embedder is the text-embedder collaborator: deterministic for the same
// input, safe for concurrent use. internal/embedding.Provider implementations
// (OpenAI, Ollama) satisfy this through the embedderAdapter below.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Provider is the subset of internal/embedding.Provider the Tool Zoo needs;
// declared locally to avoid a hard dependency on a single embedding backend.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// embedderAdapter narrows any Provider (OpenAI, Ollama, ...) to the Embedder
// interface the zoo consumes.
type embedderAdapter struct {
	provider Provider
}

// NewEmbedder adapts an embedding.Provider into the Tool Zoo's Embedder
// collaborator.
func NewEmbedder(provider Provider) Embedder {
	return &embedderAdapter{provider: provider}
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	return a.provider.Embed(ctx, text)
}

func (a *embedderAdapter) Dimension() int {
	return a.provider.Dimension()
}
