package llm

import (
	"context"
	"fmt"
	"math"

	"paper-auditor/config"

	"github.com/openai/openai-go/v3"
	openaiopt "github.com/openai/openai-go/v3/option"
)

// Embedder turns texts into embedding vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// OpenAIEmbedder uses the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client openai.Client
	model  string
}

// NewEmbedder returns an embedder when an embedding model and an OpenAI key
// are configured, nil otherwise.
func NewEmbedder(cfg *config.Config) Embedder {
	if cfg.EmbeddingModel == "" || cfg.OpenAIAPIKey == "" {
		return nil
	}
	return &OpenAIEmbedder{
		client: openai.NewClient(openaiopt.WithAPIKey(cfg.OpenAIAPIKey)),
		model:  cfg.EmbeddingModel,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding with %s: %w", e.model, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding with %s: got %d vectors for %d texts", e.model, len(resp.Data), len(texts))
	}
	out := make([][]float64, len(resp.Data))
	for _, d := range resp.Data {
		if int(d.Index) < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	return out, nil
}

// Cosine returns the cosine similarity of a and b clamped to [0,1].
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return math.Max(0, math.Min(1, dot/(math.Sqrt(na)*math.Sqrt(nb))))
}
