// Package ingest turns uploaded files into searchable state: stored blob,
// document and chunk rows, embeddings in the vector index, and keyword index
// entries.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/shiraberu/internal/config"
	"github.com/hyperjump/shiraberu/internal/embedding"
	"github.com/hyperjump/shiraberu/internal/extract"
	"github.com/hyperjump/shiraberu/internal/keyword"
	"github.com/hyperjump/shiraberu/internal/models"
	"github.com/hyperjump/shiraberu/internal/storage"
	"github.com/hyperjump/shiraberu/internal/vector"
	"github.com/hyperjump/shiraberu/pkg/utils"
)

// Validation errors. Handlers map ErrFileTooLarge to 413 and the others to 400.
var (
	ErrFileTooLarge   = errors.New("ingest: file exceeds maximum size")
	ErrTypeNotAllowed = errors.New("ingest: file type not allowed")
	ErrEmptyDocument  = errors.New("ingest: no extractable text")
)

// Ingester runs the upload pipeline and its inverse.
type Ingester struct {
	store        storage.Storage
	embedder     embedding.Embedder
	index        *vector.FlatIndex
	keywordIndex keyword.Index
	extractor    *extract.Extractor
	chunker      *Chunker
	uploadDir    string
	indexPath    string
	maxFileSize  int64
	allowedTypes []string
	logger       *zap.Logger
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithLogger sets a logger for pipeline events.
func WithLogger(l *zap.Logger) Option {
	return func(ing *Ingester) {
		if l != nil {
			ing.logger = l
		}
	}
}

// NewIngester creates an ingester with the given dependencies.
func NewIngester(
	store storage.Storage,
	embedder embedding.Embedder,
	index *vector.FlatIndex,
	keywordIndex keyword.Index,
	storageCfg config.StorageConfig,
	ingestCfg config.IngestConfig,
	opts ...Option,
) *Ingester {
	ing := &Ingester{
		store:        store,
		embedder:     embedder,
		index:        index,
		keywordIndex: keywordIndex,
		extractor:    extract.NewExtractor(),
		chunker:      NewChunker(ingestCfg.ChunkSize, ingestCfg.ChunkOverlap),
		uploadDir:    storageCfg.UploadDir,
		indexPath:    storageCfg.IndexPath,
		maxFileSize:  ingestCfg.MaxFileSize,
		allowedTypes: ingestCfg.AllowedTypes,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// IngestBytes runs the upload pipeline: validate, store the blob under the
// upload directory, create the document row, then extract, chunk, embed, and
// index. On pipeline failure the document row survives with status failed and
// the error recorded, so the upload can be retried with Reprocess.
func (ing *Ingester) IngestBytes(ctx context.Context, filename, contentType string, data []byte) (*models.Document, error) {
	filename = filepath.Base(filename)
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return nil, fmt.Errorf("%w: missing filename", ErrTypeNotAllowed)
	}
	if ing.maxFileSize > 0 && int64(len(data)) > ing.maxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrFileTooLarge, len(data), ing.maxFileSize)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	docType, err := ing.checkExtension(ext)
	if err != nil {
		return nil, err
	}

	storedName := hashHex(data)[:12] + "_" + filename
	path := filepath.Join(ing.uploadDir, storedName)
	if err := os.MkdirAll(ing.uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	doc := &models.Document{
		ID:               uuid.New().String(),
		Filename:         storedName,
		OriginalFilename: filename,
		FilePath:         path,
		FileSize:         int64(len(data)),
		ContentType:      contentType,
		DocumentType:     docType,
		ProcessingStatus: models.StatusPending,
	}
	if err := ing.store.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	if err := ing.process(ctx, doc, data, ext); err != nil {
		return doc, err
	}
	return doc, nil
}

// IngestFile ingests a file in place: the document's file_path is the source
// path, and no copy is made. A file already ingested from the same path with
// unchanged size and mtime is skipped. A changed file replaces its previous
// document.
func (ing *Ingester) IngestFile(ctx context.Context, path string) (*models.Document, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	docType, err := ing.checkExtension(ext)
	if err != nil {
		return nil, err
	}
	if ing.maxFileSize > 0 && info.Size() > ing.maxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrFileTooLarge, info.Size(), ing.maxFileSize)
	}

	if prev, err := ing.store.FindDocumentByPath(ctx, absPath); err == nil {
		if prev.ProcessingStatus == models.StatusCompleted &&
			prev.FileSize == info.Size() && !info.ModTime().After(prev.UploadTimestamp) {
			ing.logger.Debug("skipping unchanged file", zap.String("path", absPath))
			return prev, nil
		}
		if err := ing.Delete(ctx, prev.ID); err != nil {
			return nil, fmt.Errorf("failed to replace previous document: %w", err)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	doc := &models.Document{
		ID:               uuid.New().String(),
		Filename:         filepath.Base(absPath),
		OriginalFilename: filepath.Base(absPath),
		FilePath:         absPath,
		FileSize:         int64(len(data)),
		DocumentType:     docType,
		ProcessingStatus: models.StatusPending,
	}
	if err := ing.store.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	if err := ing.process(ctx, doc, data, ext); err != nil {
		return doc, err
	}
	return doc, nil
}

// process runs extract -> chunk -> embed -> index for a created document row
// and finalizes its status. data is the raw file content, ext its lowercase
// extension.
func (ing *Ingester) process(ctx context.Context, doc *models.Document, data []byte, ext string) error {
	start := time.Now()
	doc.ProcessingStatus = models.StatusProcessing
	if err := ing.store.UpdateDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}

	text, err := ing.extractor.ExtractBytes(data, ext)
	if err != nil {
		return ing.fail(ctx, doc, fmt.Errorf("extract: %w", err))
	}
	text = utils.CollapseSpace(text)
	if text == "" {
		return ing.fail(ctx, doc, ErrEmptyDocument)
	}

	pieces := ing.chunker.Chunk(text)
	if len(pieces) == 0 {
		return ing.fail(ctx, doc, ErrEmptyDocument)
	}

	chunks := make([]*models.DocumentChunk, len(pieces))
	texts := make([]string, len(pieces))
	chunkIDs := make([]string, len(pieces))
	for i, content := range pieces {
		chunks[i] = &models.DocumentChunk{
			ID:          uuid.New().String(),
			DocumentID:  doc.ID,
			ChunkIndex:  i,
			Content:     content,
			ContentHash: hashHex([]byte(content)),
		}
		texts[i] = content
		chunkIDs[i] = chunks[i].ID
	}
	if err := ing.store.BatchCreateChunks(ctx, chunks); err != nil {
		return ing.fail(ctx, doc, fmt.Errorf("store chunks: %w", err))
	}

	embeddings, err := ing.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		// Chunk rows stay for Reprocess; no vectors were added.
		return ing.fail(ctx, doc, fmt.Errorf("embed: %w", err))
	}
	for i := range chunks {
		chunks[i].Embedding = embeddings[i]
	}

	if err := ing.index.Add(ctx, chunkIDs, embeddings); err != nil {
		return ing.fail(ctx, doc, fmt.Errorf("index vectors: %w", err))
	}

	// Underscores become spaces so the standard analyzer can match words of
	// filenames like "company_profile_2021.pptx".
	docForKeyword := *doc
	docForKeyword.Filename = strings.ReplaceAll(doc.Filename, "_", " ")
	if err := ing.keywordIndex.IndexChunks(ctx, &docForKeyword, chunks); err != nil {
		return ing.fail(ctx, doc, fmt.Errorf("index keywords: %w", err))
	}

	ing.persistIndex()

	doc.ProcessingStatus = models.StatusCompleted
	doc.ProcessingError = ""
	doc.ChunkCount = len(chunks)
	if err := ing.store.UpdateDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to finalize document: %w", err)
	}
	ing.logger.Info("document ingested",
		zap.String("document_id", doc.ID),
		zap.String("filename", doc.OriginalFilename),
		zap.Int("chunks", len(chunks)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// fail marks the document failed with the error recorded, then returns err.
func (ing *Ingester) fail(ctx context.Context, doc *models.Document, err error) error {
	doc.ProcessingStatus = models.StatusFailed
	doc.ProcessingError = err.Error()
	if updateErr := ing.store.UpdateDocument(ctx, doc); updateErr != nil {
		ing.logger.Warn("failed to record processing error",
			zap.String("document_id", doc.ID), zap.Error(updateErr))
	}
	ing.logger.Warn("ingestion failed",
		zap.String("document_id", doc.ID),
		zap.String("filename", doc.OriginalFilename),
		zap.Error(err))
	return err
}

// Delete removes a document everywhere: vectors first, then keyword entries,
// chunk rows, the document row, and finally the stored blob. Vector removal
// precedes row removal so a crash cannot leave searchable vectors pointing at
// deleted metadata.
func (ing *Ingester) Delete(ctx context.Context, documentID string) error {
	doc, err := ing.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	chunkIDs, err := ing.store.ChunkIDsByDocumentID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to list chunk ids: %w", err)
	}

	if len(chunkIDs) > 0 {
		member := make(map[string]struct{}, len(chunkIDs))
		for _, id := range chunkIDs {
			member[id] = struct{}{}
		}
		removed := ing.index.Remove(ctx, func(id string) bool {
			_, ok := member[id]
			return ok
		})
		ing.logger.Debug("vectors removed",
			zap.String("document_id", documentID), zap.Int("count", removed))
		ing.persistIndex()

		if err := ing.keywordIndex.DeleteChunks(ctx, chunkIDs); err != nil {
			return fmt.Errorf("failed to delete keyword entries: %w", err)
		}
	}

	if err := ing.store.DeleteChunksByDocumentID(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if err := ing.store.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	// Only blobs we copied into the upload directory are ours to remove;
	// files ingested in place stay put.
	if ing.uploadDir != "" && strings.HasPrefix(doc.FilePath, ing.uploadDir+string(filepath.Separator)) {
		if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
			ing.logger.Warn("failed to remove stored file",
				zap.String("path", doc.FilePath), zap.Error(err))
		}
	}

	ing.logger.Info("document deleted",
		zap.String("document_id", documentID),
		zap.Int("chunks", len(chunkIDs)))
	return nil
}

// DeleteByPath removes the document previously ingested from path. Returns
// storage.ErrNotFound when no document corresponds to the path.
func (ing *Ingester) DeleteByPath(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	doc, err := ing.store.FindDocumentByPath(ctx, absPath)
	if err != nil {
		return err
	}
	return ing.Delete(ctx, doc.ID)
}

// Reprocess re-runs the pipeline for an existing document from its stored
// file, clearing any chunks and index entries from the previous attempt.
func (ing *Ingester) Reprocess(ctx context.Context, documentID string) (*models.Document, error) {
	doc, err := ing.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(doc.FilePath)
	if err != nil {
		return doc, ing.fail(ctx, doc, fmt.Errorf("read stored file: %w", err))
	}

	chunkIDs, err := ing.store.ChunkIDsByDocumentID(ctx, documentID)
	if err != nil {
		return doc, fmt.Errorf("failed to list chunk ids: %w", err)
	}
	if len(chunkIDs) > 0 {
		member := make(map[string]struct{}, len(chunkIDs))
		for _, id := range chunkIDs {
			member[id] = struct{}{}
		}
		ing.index.Remove(ctx, func(id string) bool {
			_, ok := member[id]
			return ok
		})
		if err := ing.keywordIndex.DeleteChunks(ctx, chunkIDs); err != nil {
			return doc, fmt.Errorf("failed to delete keyword entries: %w", err)
		}
		if err := ing.store.DeleteChunksByDocumentID(ctx, documentID); err != nil {
			return doc, fmt.Errorf("failed to delete chunks: %w", err)
		}
	}

	ext := strings.ToLower(filepath.Ext(doc.Filename))
	if err := ing.process(ctx, doc, data, ext); err != nil {
		return doc, err
	}
	return doc, nil
}

// persistIndex saves the vector index image. Persistence failures are
// warn-class: memory stays authoritative and the operation succeeds.
func (ing *Ingester) persistIndex() {
	if ing.indexPath == "" {
		return
	}
	if err := ing.index.Save(ing.indexPath); err != nil {
		ing.logger.Warn("failed to persist vector index",
			zap.String("path", ing.indexPath), zap.Error(err))
	}
}

func (ing *Ingester) checkExtension(ext string) (string, error) {
	docType, known := models.DocumentTypeForExt(ext)
	if !known {
		return "", fmt.Errorf("%w: %q", ErrTypeNotAllowed, ext)
	}
	if len(ing.allowedTypes) > 0 && !extensionAllowed(ext, ing.allowedTypes) {
		return "", fmt.Errorf("%w: %q", ErrTypeNotAllowed, ext)
	}
	return docType, nil
}

func extensionAllowed(ext string, allowed []string) bool {
	norm := strings.TrimPrefix(strings.ToLower(ext), ".")
	for _, a := range allowed {
		if strings.TrimPrefix(strings.ToLower(a), ".") == norm {
			return true
		}
	}
	return false
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
