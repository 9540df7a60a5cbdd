package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/shiraberu/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and
// initializes the schema. Parent directories are created if absent.
// Foreign keys are enabled per connection via the DSN, so the pool cannot
// hand out a connection without them.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		original_filename TEXT NOT NULL,
		file_path TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		document_type TEXT NOT NULL,
		upload_timestamp TIMESTAMP NOT NULL,
		processing_status TEXT NOT NULL DEFAULT 'pending',
		processing_error TEXT NOT NULL DEFAULT '',
		chunk_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_documents_upload ON documents(upload_timestamp);
	CREATE INDEX IF NOT EXISTS idx_documents_file_path ON documents(file_path);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		content_hash TEXT NOT NULL DEFAULT '',
		created_timestamp TIMESTAMP NOT NULL,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON document_chunks(document_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_document_chunk ON document_chunks(document_id, chunk_index);

	CREATE TABLE IF NOT EXISTS query_logs (
		id TEXT PRIMARY KEY,
		query_text TEXT NOT NULL,
		query_type TEXT NOT NULL,
		document_ids TEXT NOT NULL DEFAULT '[]',
		results_count INTEGER NOT NULL DEFAULT 0,
		processing_time_ms INTEGER NOT NULL DEFAULT 0,
		similarity_threshold REAL NOT NULL DEFAULT 0,
		timestamp TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_query_logs_timestamp ON query_logs(timestamp);
	`
	_, err := db.Exec(schema)
	return err
}

const documentColumns = `id, filename, original_filename, file_path, file_size,
	content_type, document_type, upload_timestamp, processing_status,
	processing_error, chunk_count`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var doc models.Document
	err := row.Scan(&doc.ID, &doc.Filename, &doc.OriginalFilename, &doc.FilePath,
		&doc.FileSize, &doc.ContentType, &doc.DocumentType, &doc.UploadTimestamp,
		&doc.ProcessingStatus, &doc.ProcessingError, &doc.ChunkCount)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// CreateDocument inserts a document. A zero UploadTimestamp is set to now.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc.UploadTimestamp.IsZero() {
		doc.UploadTimestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.OriginalFilename, doc.FilePath, doc.FileSize,
		doc.ContentType, doc.DocumentType, doc.UploadTimestamp,
		doc.ProcessingStatus, doc.ProcessingError, doc.ChunkCount,
	)
	return err
}

// GetDocument returns a document by id, or ErrNotFound.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return doc, err
}

// FindDocumentByPath returns the document ingested from filePath, or
// ErrNotFound. The watcher uses it to correlate filesystem events with
// previously ingested documents.
func (s *SQLiteStorage) FindDocumentByPath(ctx context.Context, filePath string) (*models.Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE file_path = ?
		 ORDER BY upload_timestamp DESC LIMIT 1`, filePath))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document at %s: %w", filePath, ErrNotFound)
	}
	return doc, err
}

// UpdateDocument updates the mutable fields of an existing document.
func (s *SQLiteStorage) UpdateDocument(ctx context.Context, doc *models.Document) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET processing_status = ?, processing_error = ?,
		 chunk_count = ?, filename = ?, file_path = ?, file_size = ?
		 WHERE id = ?`,
		doc.ProcessingStatus, doc.ProcessingError, doc.ChunkCount,
		doc.Filename, doc.FilePath, doc.FileSize, doc.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document %s: %w", doc.ID, ErrNotFound)
	}
	return nil
}

// DeleteDocument removes a document by id, or ErrNotFound.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListDocuments returns documents newest first with offset and limit.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents
		 ORDER BY upload_timestamp DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// BatchCreateChunks inserts chunks in one transaction.
func (s *SQLiteStorage) BatchCreateChunks(ctx context.Context, chunks []*models.DocumentChunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO document_chunks (id, document_id, chunk_index, content, content_hash, created_timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, chunk := range chunks {
		if chunk.CreatedTimestamp.IsZero() {
			chunk.CreatedTimestamp = now
		}
		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.DocumentID,
			chunk.ChunkIndex, chunk.Content, chunk.ContentHash, chunk.CreatedTimestamp); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetChunk returns a chunk by id, or ErrNotFound.
func (s *SQLiteStorage) GetChunk(ctx context.Context, id string) (*models.DocumentChunk, error) {
	var chunk models.DocumentChunk
	err := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, chunk_index, content, content_hash, created_timestamp
		 FROM document_chunks WHERE id = ?`, id,
	).Scan(&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex, &chunk.Content,
		&chunk.ContentHash, &chunk.CreatedTimestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chunk %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

// GetChunksByDocumentID returns all chunks for a document ordered by chunk_index.
func (s *SQLiteStorage) GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.DocumentChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, chunk_index, content, content_hash, created_timestamp
		 FROM document_chunks WHERE document_id = ? ORDER BY chunk_index`,
		docID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*models.DocumentChunk
	for rows.Next() {
		var chunk models.DocumentChunk
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex,
			&chunk.Content, &chunk.ContentHash, &chunk.CreatedTimestamp); err != nil {
			return nil, err
		}
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

// ChunkIDsByDocumentID returns the chunk ids of a document, for index removal
// without loading chunk content.
func (s *SQLiteStorage) ChunkIDsByDocumentID(ctx context.Context, docID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM document_chunks WHERE document_id = ? ORDER BY chunk_index`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteChunksByDocumentID removes all chunks for a document.
func (s *SQLiteStorage) DeleteChunksByDocumentID(ctx context.Context, docID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, docID)
	return err
}

// LogQuery records one executed query. A zero Timestamp is set to now.
func (s *SQLiteStorage) LogQuery(ctx context.Context, entry *models.QueryLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	idsJSON, err := json.Marshal(entry.DocumentIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal document ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO query_logs (id, query_text, query_type, document_ids,
		 results_count, processing_time_ms, similarity_threshold, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.QueryText, entry.QueryType, string(idsJSON),
		entry.ResultsCount, entry.ProcessingTimeMs, entry.SimilarityThreshold,
		entry.Timestamp,
	)
	return err
}

// ListQueryLogs returns the most recent query logs, newest first.
func (s *SQLiteStorage) ListQueryLogs(ctx context.Context, limit int) ([]*models.QueryLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query_text, query_type, document_ids, results_count,
		 processing_time_ms, similarity_threshold, timestamp
		 FROM query_logs ORDER BY timestamp DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*models.QueryLog
	for rows.Next() {
		var entry models.QueryLog
		var idsJSON string
		if err := rows.Scan(&entry.ID, &entry.QueryText, &entry.QueryType, &idsJSON,
			&entry.ResultsCount, &entry.ProcessingTimeMs, &entry.SimilarityThreshold,
			&entry.Timestamp); err != nil {
			return nil, err
		}
		if idsJSON != "" {
			_ = json.Unmarshal([]byte(idsJSON), &entry.DocumentIDs)
		}
		logs = append(logs, &entry)
	}
	return logs, rows.Err()
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// CountChunks returns the total number of chunks.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&count)
	return count, err
}

// Ping reports database liveness.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
