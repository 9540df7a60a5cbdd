package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/shiraberu/internal/embedding"
	"github.com/hyperjump/shiraberu/internal/ingest"
	"github.com/hyperjump/shiraberu/internal/models"
	"github.com/hyperjump/shiraberu/internal/storage"
)

// uploadOverhead is slack on top of the file size limit for multipart
// framing and headers.
const uploadOverhead = 1 << 20

// summaryChunkCount is how many leading chunks feed a document summary.
const summaryChunkCount = 5

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Ingest.MaxFileSize+uploadOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respondError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("file size exceeds maximum allowed size of %d bytes", s.cfg.Ingest.MaxFileSize))
			return
		}
		s.respondError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()
	if header.Filename == "" {
		s.respondError(w, http.StatusBadRequest, "no file provided")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	s.logger.Debug("upload request",
		zap.String("filename", header.Filename), zap.Int("size", len(data)))
	doc, err := s.ingester.IngestBytes(r.Context(), header.Filename, contentType, data)
	switch {
	case errors.Is(err, ingest.ErrFileTooLarge):
		s.respondError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	case errors.Is(err, ingest.ErrTypeNotAllowed):
		s.respondError(w, http.StatusBadRequest,
			fmt.Sprintf("file type not supported, allowed types: %s", strings.Join(s.cfg.Ingest.AllowedTypes, ", ")))
		return
	case err != nil:
		s.logger.Error("upload failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, &models.UploadResponse{
		Message:       fmt.Sprintf("Document processed successfully with %d chunks", doc.ChunkCount),
		DocumentID:    doc.ID,
		Filename:      doc.Filename,
		ChunksCreated: doc.ChunkCount,
		FileSize:      doc.FileSize,
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(s.cfg.Search.DefaultK, s.cfg.Search.MaxK, s.cfg.Search.DefaultThreshold); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("query request",
		zap.String("query", req.Query), zap.String("mode", req.Mode))
	resp, err := s.engine.Query(r.Context(), &req)
	if err != nil {
		if errors.Is(err, embedding.ErrUnavailable) {
			s.respondError(w, http.StatusServiceUnavailable, "embedding service unavailable, try again later")
			return
		}
		s.logger.Error("query failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	docs, err := s.store.ListDocuments(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.store.CountDocuments(r.Context())
	if err != nil {
		s.logger.Error("count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, &models.DocumentListResponse{
		Documents:  docs,
		TotalCount: total,
	})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.store.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "document not found")
			return
		}
		s.logger.Error("get document failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := &models.DocumentDetailResponse{Document: doc}
	if r.URL.Query().Get("summary") == "true" {
		resp.Summary = s.documentSummary(r, id)
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// documentSummary builds an LLM summary from the document's leading chunks.
// Best-effort: any failure returns an empty summary.
func (s *Server) documentSummary(r *http.Request, documentID string) string {
	if s.generator == nil {
		return ""
	}
	chunks, err := s.store.GetChunksByDocumentID(r.Context(), documentID)
	if err != nil || len(chunks) == 0 {
		return ""
	}
	if len(chunks) > summaryChunkCount {
		chunks = chunks[:summaryChunkCount]
	}
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	summary, err := s.generator.SummarizeDocument(r.Context(), strings.Join(parts, "\n\n"))
	if err != nil {
		s.logger.Warn("document summary failed",
			zap.String("document_id", documentID), zap.Error(err))
		return ""
	}
	return summary
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	if err := s.ingester.Delete(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "document not found")
			return
		}
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Document deleted successfully"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Error("health: database ping failed", zap.Error(err))
		status = "unhealthy"
	}
	s.respondJSON(w, http.StatusOK, &models.HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Version:   Version,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.store.CountDocuments(ctx)
	if err != nil {
		s.logger.Error("stats: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	chunkCount, err := s.store.CountChunks(ctx)
	if err != nil {
		s.logger.Error("stats: count chunks failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	indexStats := s.index.Stats()

	vectorStore := map[string]any{
		"total_vectors": indexStats.Count,
		"dimensions":    indexStats.Dimensions,
	}
	if bytes, err := storage.DiskUsageBytes(s.cfg.Storage.IndexPath); err == nil {
		vectorStore["index_size_bytes"] = bytes
	}

	kwStats := map[string]any{}
	if count, err := s.keywordIndex.DocCount(); err == nil {
		kwStats["docs"] = count
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"documents":    map[string]any{"total": docCount},
		"chunks":       map[string]any{"total": chunkCount},
		"vector_store": vectorStore,
		"keyword":      kwStats,
		"system": map[string]any{
			"version":            Version,
			"max_file_size":      s.cfg.Ingest.MaxFileSize,
			"allowed_file_types": s.cfg.Ingest.AllowedTypes,
		},
	})
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
