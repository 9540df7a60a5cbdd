package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/shiraberu/internal/gemini"
)

// Task types tell the API which side of the retrieval pair a text is on:
// chunks are indexed as documents, single embeds are queries against them.
const (
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
)

// geminiBatchLimit is the API's cap on requests per batchEmbedContents call.
const geminiBatchLimit = 100

// GeminiEmbedder embeds text through the Generative Language API. Query
// embeddings are cached by text so repeated queries do not re-bill; chunk
// batches are embedded once at ingest and bypass the cache.
type GeminiEmbedder struct {
	client     *gemini.Client
	model      string
	dimensions int
	cache      *Cache
	logger     *zap.Logger
}

// NewGeminiEmbedder creates an embedder for the given model, validating every
// response against dimensions.
func NewGeminiEmbedder(client *gemini.Client, model string, dimensions, cacheSize int, logger *zap.Logger) *GeminiEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiEmbedder{
		client:     client,
		model:      model,
		dimensions: dimensions,
		cache:      NewCache(cacheSize),
		logger:     logger,
	}
}

type embedContent struct {
	Parts []embedPart `json:"parts"`
}

type embedPart struct {
	Text string `json:"text"`
}

type embedRequest struct {
	Model    string       `json:"model"`
	Content  embedContent `json:"content"`
	TaskType string       `json:"taskType,omitempty"`
}

type embedValues struct {
	Values []float32 `json:"values"`
}

type embedResponse struct {
	Embedding embedValues `json:"embedding"`
}

type batchEmbedRequest struct {
	Requests []embedRequest `json:"requests"`
}

type batchEmbedResponse struct {
	Embeddings []embedValues `json:"embeddings"`
}

// Embed returns the query embedding for text. Transient API failures surface
// as gemini.ErrUnavailable; no substitute vector is ever fabricated.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}
	var resp embedResponse
	err := e.client.Post(ctx, e.model, "embedContent", e.request(text, taskRetrievalQuery), &resp)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if err := e.checkDimensions(resp.Embedding.Values); err != nil {
		return nil, err
	}
	e.cache.Set(text, resp.Embedding.Values)
	return resp.Embedding.Values, nil
}

// EmbedBatch embeds texts in API-sized batches, preserving input order. The
// call fails as a whole if any batch fails, so a partial result is never
// handed to the index.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiBatchLimit {
		end := start + geminiBatchLimit
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := e.embedSlice(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (e *GeminiEmbedder) embedSlice(ctx context.Context, texts []string) ([][]float32, error) {
	req := batchEmbedRequest{Requests: make([]embedRequest, len(texts))}
	for i, text := range texts {
		req.Requests[i] = e.request(text, taskRetrievalDocument)
	}
	var resp batchEmbedResponse
	if err := e.client.Post(ctx, e.model, "batchEmbedContents", req, &resp); err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed batch: requested %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}
	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if err := e.checkDimensions(emb.Values); err != nil {
			return nil, err
		}
		out[i] = emb.Values
	}
	return out, nil
}

func (e *GeminiEmbedder) request(text, task string) embedRequest {
	return embedRequest{
		Model:    "models/" + e.model,
		Content:  embedContent{Parts: []embedPart{{Text: text}}},
		TaskType: task,
	}
}

func (e *GeminiEmbedder) checkDimensions(v []float32) error {
	if len(v) != e.dimensions {
		return fmt.Errorf("embedding dimension %d, expected %d", len(v), e.dimensions)
	}
	return nil
}

// Dimensions returns the configured embedding dimension.
func (e *GeminiEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the HTTP client holds no resources needing teardown.
func (e *GeminiEmbedder) Close() error {
	return nil
}
