package models

import "fmt"

// Query modes for QueryRequest.Mode.
const (
	ModeSemantic = "semantic"
	ModeKeyword  = "keyword"
	ModeHybrid   = "hybrid"
)

// QueryRequest represents a retrieval request against the document corpus.
// SimilarityThreshold is a pointer so an explicit zero can be distinguished
// from an absent field.
type QueryRequest struct {
	Query               string   `json:"query"`
	MaxResults          int      `json:"max_results,omitempty"`
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`
	DocumentIDs         []string `json:"document_ids,omitempty"`
	Mode                string   `json:"mode,omitempty"`
	IncludeExplanation  bool     `json:"include_explanation,omitempty"`
}

// Validate checks the request and fills defaults: MaxResults defaults to
// defaultK and is capped at maxK, SimilarityThreshold defaults to
// defaultThreshold, Mode defaults to semantic. Returns an error for an empty
// query, an out-of-range threshold, or an unknown mode.
func (q *QueryRequest) Validate(defaultK, maxK int, defaultThreshold float64) error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.MaxResults <= 0 {
		q.MaxResults = defaultK
	}
	if q.MaxResults > maxK {
		q.MaxResults = maxK
	}
	if q.SimilarityThreshold == nil {
		t := defaultThreshold
		q.SimilarityThreshold = &t
	}
	if *q.SimilarityThreshold < 0 || *q.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0, 1], got %g", *q.SimilarityThreshold)
	}
	switch q.Mode {
	case "":
		q.Mode = ModeSemantic
	case ModeSemantic, ModeKeyword, ModeHybrid:
	default:
		return fmt.Errorf("unknown query mode %q", q.Mode)
	}
	return nil
}

// Threshold returns the similarity threshold, or 0 when unset.
func (q *QueryRequest) Threshold() float64 {
	if q.SimilarityThreshold == nil {
		return 0
	}
	return *q.SimilarityThreshold
}
