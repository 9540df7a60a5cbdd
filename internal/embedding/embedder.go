// Package embedding produces vector embeddings for chunks and queries, via
// the Gemini API, a local ONNX model, or a deterministic mock.
package embedding

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/hyperjump/shiraberu/internal/config"
	"github.com/hyperjump/shiraberu/internal/gemini"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// ErrUnavailable reports that the embedding backend could not be reached
// after retries. Callers that serve queries should translate it to a
// service-unavailable response.
var ErrUnavailable = gemini.ErrUnavailable

// Provider names accepted in the embedding config.
const (
	ProviderGemini = "gemini"
	ProviderONNX   = "onnx"
	ProviderMock   = "mock"
)

// New builds the embedder named by cfg.Provider. The gemini provider reads
// its API key from the environment.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	switch cfg.Provider {
	case ProviderGemini, "":
		client, err := gemini.NewClient(config.GeminiAPIKey(), gemini.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return NewGeminiEmbedder(client, cfg.Model, cfg.Dimensions, cfg.CacheSize, logger), nil
	case ProviderONNX:
		return NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens, cfg.CacheSize)
	case ProviderMock:
		return NewMockEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// normalizeL2 scales x in place to unit L2 norm. A zero vector is left as-is.
func normalizeL2(x []float32) {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(1.0 / math.Sqrt(sum))
	for i := range x {
		x[i] *= norm
	}
}
