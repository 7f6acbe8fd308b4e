package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"

	"bookrag/internal/domain"
)

// OllamaEmbedder uses a local Ollama server.
type OllamaEmbedder struct {
	client    *api.Client
	model     string
	dimension int
}

func NewOllamaEmbedder(model, baseURL string, dimension int) (*OllamaEmbedder, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama URL %q: %w", baseURL, err)
	}

	return &OllamaEmbedder{
		client:    api.NewClient(u, &http.Client{Timeout: 120 * time.Second}),
		model:     model,
		dimension: dimension,
	}, nil
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	rsp, err := e.client.Embeddings(ctx, &api.EmbeddingRequest{
		Model:  e.model,
		Prompt: text,
	})
	if err != nil {
		return nil, domain.NewEmbeddingError("ollama embed", err)
	}

	if rsp == nil || len(rsp.Embedding) == 0 {
		return nil, domain.NewEmbeddingError("ollama embed", errors.New("no embedding in response"))
	}

	vec := make([]float32, len(rsp.Embedding))
	for i, v := range rsp.Embedding {
		vec[i] = float32(v)
	}

	return checkDimension("ollama embed", vec, e.dimension)
}

func (e *OllamaEmbedder) Dimension() int {
	return e.dimension
}

func (e *OllamaEmbedder) ModelName() string {
	return e.model
}
