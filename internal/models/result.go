package models

import "time"

// QueryResult is a single retrieved chunk with its similarity score.
// KeywordScore and SemanticScore are populated in hybrid mode only.
type QueryResult struct {
	ChunkID          string  `json:"chunk_id"`
	DocumentID       string  `json:"document_id"`
	DocumentFilename string  `json:"document_filename,omitempty"`
	ChunkIndex       int     `json:"chunk_index"`
	Content          string  `json:"content"`
	Score            float64 `json:"score"`
	KeywordScore     float64 `json:"keyword_score,omitempty"`
	SemanticScore    float64 `json:"semantic_score,omitempty"`
	Rank             int     `json:"rank"`
}

// QueryResponse is the response for a retrieval request.
type QueryResponse struct {
	Query            string         `json:"query"`
	Mode             string         `json:"mode"`
	Results          []*QueryResult `json:"results"`
	TotalResults     int            `json:"total_results"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	Explanation      string         `json:"explanation,omitempty"`
	SuggestedQueries []string       `json:"suggested_queries,omitempty"`
}

// UploadResponse is returned after a successful document upload.
type UploadResponse struct {
	Message       string `json:"message"`
	DocumentID    string `json:"document_id"`
	Filename      string `json:"filename"`
	ChunksCreated int    `json:"chunks_created"`
	FileSize      int64  `json:"file_size"`
}

// DocumentListResponse is a paginated document listing.
type DocumentListResponse struct {
	Documents  []*Document `json:"documents"`
	TotalCount int64       `json:"total_count"`
}

// DocumentDetailResponse is a single document, optionally with an LLM summary.
type DocumentDetailResponse struct {
	Document *Document `json:"document"`
	Summary  string    `json:"summary,omitempty"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}
