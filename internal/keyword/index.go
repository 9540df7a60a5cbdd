// Package keyword provides the BM25 side of retrieval: a bleve index over
// chunk content and document filenames.
package keyword

import (
	"context"

	"github.com/hyperjump/shiraberu/internal/models"
)

// SearchOptions are optional search parameters. Nil means defaults.
type SearchOptions struct {
	// Fuzziness is the maximum Levenshtein edit distance applied per query
	// term for typo tolerance. Zero disables fuzzy matching.
	Fuzziness int
	// DocumentIDs restricts hits to chunks of these documents.
	DocumentIDs []string
}

// Index defines keyword search operations over chunks.
type Index interface {
	IndexChunks(ctx context.Context, doc *models.Document, chunks []*models.DocumentChunk) error
	DeleteChunks(ctx context.Context, ids []string) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Result, error)
	DocCount() (uint64, error)
	Close() error
}

// Result is a single keyword hit.
type Result struct {
	ChunkID    string
	DocumentID string
	Score      float64
}
