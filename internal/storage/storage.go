// Package storage persists document metadata, chunk rows, and query logs.
// Chunk embeddings are not stored here; the vector index image is their
// durable home.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/shiraberu/internal/models"
)

// ErrNotFound is returned when a requested row does not exist. Handlers map
// it to 404.
var ErrNotFound = errors.New("storage: not found")

// Storage defines document, chunk, and query-log persistence operations.
type Storage interface {
	// Document operations
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	UpdateDocument(ctx context.Context, doc *models.Document) error
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
	FindDocumentByPath(ctx context.Context, filePath string) (*models.Document, error)

	// Chunk operations
	BatchCreateChunks(ctx context.Context, chunks []*models.DocumentChunk) error
	GetChunk(ctx context.Context, id string) (*models.DocumentChunk, error)
	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.DocumentChunk, error)
	ChunkIDsByDocumentID(ctx context.Context, docID string) ([]string, error)
	DeleteChunksByDocumentID(ctx context.Context, docID string) error

	// Query log (best-effort audit trail)
	LogQuery(ctx context.Context, entry *models.QueryLog) error

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error

	Close() error
}
