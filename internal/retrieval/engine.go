// Package retrieval answers queries against the ingested corpus in three
// modes: semantic (vector similarity), keyword (bleve match), and hybrid
// (both legs fused).
package retrieval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/shiraberu/internal/config"
	"github.com/hyperjump/shiraberu/internal/embedding"
	"github.com/hyperjump/shiraberu/internal/generation"
	"github.com/hyperjump/shiraberu/internal/keyword"
	"github.com/hyperjump/shiraberu/internal/models"
	"github.com/hyperjump/shiraberu/internal/storage"
	"github.com/hyperjump/shiraberu/internal/vector"
)

// keywordRetryFuzziness is applied when an exact keyword query matches
// nothing, so a typo still finds its term.
const keywordRetryFuzziness = 1

// Engine runs retrieval queries.
type Engine struct {
	store        storage.Storage
	embedder     embedding.Embedder
	index        *vector.FlatIndex
	keywordIndex keyword.Index
	generator    *generation.Client
	cfg          config.SearchConfig
	logger       *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a logger for query events.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithGenerator enables LLM explanations and query suggestions. Without one,
// include_explanation requests return plain results.
func WithGenerator(g *generation.Client) Option {
	return func(e *Engine) {
		e.generator = g
	}
}

// NewEngine creates a retrieval engine with the given dependencies.
func NewEngine(
	store storage.Storage,
	embedder embedding.Embedder,
	index *vector.FlatIndex,
	keywordIndex keyword.Index,
	cfg config.SearchConfig,
	opts ...Option,
) *Engine {
	e := &Engine{
		store:        store,
		embedder:     embedder,
		index:        index,
		keywordIndex: keywordIndex,
		cfg:          cfg,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query validates req, runs it in the requested mode, and returns ranked
// results. The query is logged to query_logs best-effort.
func (e *Engine) Query(ctx context.Context, req *models.QueryRequest) (*models.QueryResponse, error) {
	start := time.Now()
	if err := req.Validate(e.cfg.DefaultK, e.cfg.MaxK, e.cfg.DefaultThreshold); err != nil {
		return nil, err
	}

	var (
		results []*models.QueryResult
		err     error
	)
	switch req.Mode {
	case models.ModeSemantic:
		results, err = e.semantic(ctx, req)
	case models.ModeKeyword:
		results, err = e.keyword(ctx, req)
	case models.ModeHybrid:
		results, err = e.hybrid(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	for i, r := range results {
		r.Rank = i + 1
	}

	var explanation string
	var suggestions []string
	if req.IncludeExplanation {
		explanation, suggestions = e.insights(ctx, req.Query, results)
	}

	resp := &models.QueryResponse{
		Query:            req.Query,
		Mode:             req.Mode,
		Results:          results,
		TotalResults:     len(results),
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Explanation:      explanation,
		SuggestedQueries: suggestions,
	}
	e.logQuery(ctx, req, resp)
	return resp, nil
}

func (e *Engine) semantic(ctx context.Context, req *models.QueryRequest) ([]*models.QueryResult, error) {
	queryVec, err := e.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := e.index.Search(ctx, queryVec, vector.SearchOptions{
		K:         req.MaxResults,
		Threshold: req.Threshold(),
		Scope:     req.DocumentIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	results := make([]*models.QueryResult, 0, len(hits))
	filenames := make(map[string]string)
	for _, hit := range hits {
		r, ok := e.hydrate(ctx, hit.ID, filenames)
		if !ok {
			continue
		}
		r.Score = hit.Score
		results = append(results, r)
	}
	return results, nil
}

func (e *Engine) keyword(ctx context.Context, req *models.QueryRequest) ([]*models.QueryResult, error) {
	hits, err := e.keywordSearch(ctx, req.Query, req.MaxResults, req.DocumentIDs)
	if err != nil {
		return nil, err
	}

	results := make([]*models.QueryResult, 0, len(hits))
	filenames := make(map[string]string)
	for _, hit := range hits {
		r, ok := e.hydrate(ctx, hit.ChunkID, filenames)
		if !ok {
			continue
		}
		r.Score = hit.Score
		results = append(results, r)
	}
	return results, nil
}

func (e *Engine) hybrid(ctx context.Context, req *models.QueryRequest) ([]*models.QueryResult, error) {
	var (
		semanticHits []*vector.Result
		keywordHits  []*keyword.Result
		errChan      = make(chan error, 2)
		wg           sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		queryVec, err := e.embedder.Embed(ctx, req.Query)
		if err != nil {
			errChan <- fmt.Errorf("embed query: %w", err)
			return
		}
		hits, err := e.index.Search(ctx, queryVec, vector.SearchOptions{
			K:         req.MaxResults,
			Threshold: req.Threshold(),
			Scope:     req.DocumentIDs,
		})
		if err != nil {
			errChan <- fmt.Errorf("vector search: %w", err)
			return
		}
		semanticHits = hits
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		hits, err := e.keywordSearch(ctx, req.Query, req.MaxResults, req.DocumentIDs)
		if err != nil {
			errChan <- err
			return
		}
		keywordHits = hits
	}()

	wg.Wait()
	close(errChan)
	for err := range errChan {
		if err != nil {
			return nil, err
		}
	}

	fused := Fuse(
		NormalizeKeywordScores(keywordHits),
		SemanticScores(semanticHits),
		hybridKeywordWeight,
		hybridSemanticWeight,
	)
	if len(fused) > req.MaxResults {
		fused = fused[:req.MaxResults]
	}

	results := make([]*models.QueryResult, 0, len(fused))
	filenames := make(map[string]string)
	for _, hit := range fused {
		r, ok := e.hydrate(ctx, hit.ChunkID, filenames)
		if !ok {
			continue
		}
		r.Score = hit.Score
		r.KeywordScore = hit.KeywordScore
		r.SemanticScore = hit.SemanticScore
		results = append(results, r)
	}
	return results, nil
}

// keywordSearch runs an exact match query, retrying with fuzziness when
// nothing matches.
func (e *Engine) keywordSearch(ctx context.Context, query string, limit int, documentIDs []string) ([]*keyword.Result, error) {
	opts := &keyword.SearchOptions{DocumentIDs: documentIDs}
	hits, err := e.keywordIndex.Search(ctx, query, limit, opts)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	if len(hits) > 0 {
		return hits, nil
	}
	opts.Fuzziness = keywordRetryFuzziness
	hits, err = e.keywordIndex.Search(ctx, query, limit, opts)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	return hits, nil
}

// hydrate resolves a chunk id to a result row. An index entry without a
// matching chunk row is drift from an interrupted delete and is skipped.
func (e *Engine) hydrate(ctx context.Context, chunkID string, filenames map[string]string) (*models.QueryResult, bool) {
	chunk, err := e.store.GetChunk(ctx, chunkID)
	if err != nil {
		e.logger.Debug("skipping stale index entry",
			zap.String("chunk_id", chunkID), zap.Error(err))
		return nil, false
	}
	name, ok := filenames[chunk.DocumentID]
	if !ok {
		if doc, err := e.store.GetDocument(ctx, chunk.DocumentID); err == nil {
			name = doc.OriginalFilename
		}
		filenames[chunk.DocumentID] = name
	}
	return &models.QueryResult{
		ChunkID:          chunk.ID,
		DocumentID:       chunk.DocumentID,
		DocumentFilename: name,
		ChunkIndex:       chunk.ChunkIndex,
		Content:          chunk.Content,
	}, true
}

// insights asks the generator for an explanation and follow-up queries.
// Failures degrade to absent fields.
func (e *Engine) insights(ctx context.Context, query string, results []*models.QueryResult) (string, []string) {
	if e.generator == nil {
		e.logger.Debug("explanation requested but no generator configured")
		return "", nil
	}
	explanation, err := e.generator.ExplainResults(ctx, query, results)
	if err != nil {
		e.logger.Warn("explanation generation failed", zap.Error(err))
	}
	suggestions, err := e.generator.SuggestQueries(ctx, query, results)
	if err != nil {
		e.logger.Warn("query suggestion failed", zap.Error(err))
	}
	return explanation, suggestions
}

func (e *Engine) logQuery(ctx context.Context, req *models.QueryRequest, resp *models.QueryResponse) {
	entry := &models.QueryLog{
		ID:                  uuid.New().String(),
		QueryText:           req.Query,
		QueryType:           req.Mode,
		DocumentIDs:         req.DocumentIDs,
		ResultsCount:        resp.TotalResults,
		ProcessingTimeMs:    resp.ProcessingTimeMs,
		SimilarityThreshold: req.Threshold(),
	}
	if err := e.store.LogQuery(ctx, entry); err != nil {
		e.logger.Warn("failed to log query", zap.Error(err))
	}
}
