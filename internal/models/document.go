// Package models defines core data structures for documents, chunks, queries, and results.
package models

import "time"

// Processing status values for Document.ProcessingStatus.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Document represents an uploaded document and its processing state.
type Document struct {
	ID               string    `json:"id" db:"id"`
	Filename         string    `json:"filename" db:"filename"`
	OriginalFilename string    `json:"original_filename" db:"original_filename"`
	FilePath         string    `json:"file_path" db:"file_path"`
	FileSize         int64     `json:"file_size" db:"file_size"`
	ContentType      string    `json:"content_type" db:"content_type"`
	DocumentType     string    `json:"document_type" db:"document_type"`
	UploadTimestamp  time.Time `json:"upload_timestamp" db:"upload_timestamp"`
	ProcessingStatus string    `json:"processing_status" db:"processing_status"`
	ProcessingError  string    `json:"processing_error,omitempty" db:"processing_error"`
	ChunkCount       int       `json:"chunk_count" db:"chunk_count"`
}

// DocumentChunk represents one bounded slice of a document's extracted text,
// the unit of embedding and retrieval. Embedding is carried through the
// ingestion pipeline but never serialized; the vector index is its durable home.
type DocumentChunk struct {
	ID               string    `json:"id" db:"id"`
	DocumentID       string    `json:"document_id" db:"document_id"`
	ChunkIndex       int       `json:"chunk_index" db:"chunk_index"`
	Content          string    `json:"content" db:"content"`
	ContentHash      string    `json:"content_hash" db:"content_hash"`
	Embedding        []float32 `json:"-" db:"-"`
	CreatedTimestamp time.Time `json:"created_timestamp" db:"created_timestamp"`
}

// QueryLog records one executed query for auditing.
type QueryLog struct {
	ID                  string    `json:"id" db:"id"`
	QueryText           string    `json:"query_text" db:"query_text"`
	QueryType           string    `json:"query_type" db:"query_type"`
	DocumentIDs         []string  `json:"document_ids,omitempty" db:"document_ids"`
	ResultsCount        int       `json:"results_count" db:"results_count"`
	ProcessingTimeMs    int64     `json:"processing_time_ms" db:"processing_time_ms"`
	SimilarityThreshold float64   `json:"similarity_threshold" db:"similarity_threshold"`
	Timestamp           time.Time `json:"timestamp" db:"timestamp"`
}

// documentTypes maps a lowercase file extension to its document type.
var documentTypes = map[string]string{
	".pdf":  "pdf",
	".docx": "docx",
	".txt":  "text",
	".md":   "markdown",
	".eml":  "email",
	".xlsx": "spreadsheet",
	".ods":  "spreadsheet",
	".pptx": "presentation",
	".odp":  "presentation",
	".rtf":  "rtf",
	".odt":  "odt",
}

// DocumentTypeForExt returns the document type for a lowercase file extension
// (including the leading dot), and whether the extension is known.
func DocumentTypeForExt(ext string) (string, bool) {
	t, ok := documentTypes[ext]
	return t, ok
}
