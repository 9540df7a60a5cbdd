// Package cli renders server responses for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/hyperjump/shiraberu/internal/models"
)

// OutputFormat selects how responses are rendered.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const contentPreviewLen = 200

// WriteQueryResults writes a query response to w in the given format.
func WriteQueryResults(w io.Writer, response *models.QueryResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	default:
		writeQueryResultsText(w, response)
		return nil
	}
}

func writeQueryResultsText(w io.Writer, response *models.QueryResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms (%s mode)\n\n",
		response.TotalResults, response.ProcessingTimeMs, response.Mode)
	for _, result := range response.Results {
		writeOneResult(w, result, response.Mode)
	}
	if response.Explanation != "" {
		fmt.Fprintln(w, "--- Explanation ---")
		fmt.Fprintln(w, response.Explanation)
		fmt.Fprintln(w)
	}
	if len(response.SuggestedQueries) > 0 {
		fmt.Fprintln(w, "Related queries:")
		for i, q := range response.SuggestedQueries {
			fmt.Fprintf(w, "  %d. %s\n", i+1, q)
		}
	}
}

func writeOneResult(w io.Writer, result *models.QueryResult, mode string) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	if mode == models.ModeHybrid {
		fmt.Fprintf(w, "Rank: %d | Score: %.4f (Keyword: %.4f, Semantic: %.4f)\n",
			result.Rank, result.Score, result.KeywordScore, result.SemanticScore)
	} else {
		fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", result.Rank, result.Score)
	}
	if result.DocumentFilename != "" {
		fmt.Fprintf(w, "File: %s (chunk %d)\n", result.DocumentFilename, result.ChunkIndex)
	} else {
		fmt.Fprintf(w, "Document: %s (chunk %d)\n", result.DocumentID, result.ChunkIndex)
	}
	fmt.Fprintf(w, "\n%s\n", Truncate(result.Content, contentPreviewLen))
	fmt.Fprintln(w)
}

// WriteDocumentList writes a document listing to w in the given format.
func WriteDocumentList(w io.Writer, list *models.DocumentListResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	default:
		writeDocumentListText(w, list)
		return nil
	}
}

func writeDocumentListText(w io.Writer, list *models.DocumentListResponse) {
	fmt.Fprintf(w, "\n%d documents (%d shown)\n\n", list.TotalCount, len(list.Documents))
	for _, doc := range list.Documents {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "%s\n", doc.OriginalFilename)
		fmt.Fprintf(w, "ID: %s\n", doc.ID)
		fmt.Fprintf(w, "Status: %s", doc.ProcessingStatus)
		if doc.ProcessingStatus == models.StatusFailed && doc.ProcessingError != "" {
			fmt.Fprintf(w, " (%s)", doc.ProcessingError)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Chunks: %d | Size: %s | Uploaded: %s\n",
			doc.ChunkCount, humanize.Bytes(uint64(doc.FileSize)), humanize.Time(doc.UploadTimestamp))
		fmt.Fprintln(w)
	}
}

// Truncate truncates s to maxLen bytes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
