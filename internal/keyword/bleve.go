package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/shiraberu/internal/models"
)

// BleveIndex implements Index using bleve. Each bleve document is one chunk,
// keyed by chunk id, carrying the owning document's id and filename so scope
// filtering and hydration need no storage round-trip.
type BleveIndex struct {
	index bleve.Index
}

// chunkDoc is the shape stored per chunk.
type chunkDoc struct {
	Content    string `json:"content"`
	Filename   string `json:"filename"`
	DocumentID string `json:"document_id"`
}

// NewBleveIndex creates or opens a bleve index at path. An existing index is
// reused; remove the directory to force a rebuild after a mapping change.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	chunkMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so queries like
	// "bayes" match the exact word; English stemming maps "Bayesian" -> "bayesi"
	// and "bayes" -> "bay", which never meet.
	textFieldMapping.Analyzer = standard.Name
	chunkMapping.AddFieldMappingsAt("content", textFieldMapping)
	chunkMapping.AddFieldMappingsAt("filename", textFieldMapping)
	idFieldMapping := bleve.NewKeywordFieldMapping()
	chunkMapping.AddFieldMappingsAt("document_id", idFieldMapping)
	im.AddDocumentMapping("chunk", chunkMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = chunkMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// IndexChunks indexes all chunks of a document in one batch.
func (b *BleveIndex) IndexChunks(ctx context.Context, doc *models.Document, chunks []*models.DocumentChunk) error {
	batch := b.index.NewBatch()
	for _, chunk := range chunks {
		entry := chunkDoc{
			Content:    chunk.Content,
			Filename:   doc.Filename,
			DocumentID: doc.ID,
		}
		if err := batch.Index(chunk.ID, entry); err != nil {
			return fmt.Errorf("failed to batch chunk %s: %w", chunk.ID, err)
		}
	}
	return b.index.Batch(batch)
}

// DeleteChunks removes the given chunk ids in one batch. Unknown ids are
// ignored.
func (b *BleveIndex) DeleteChunks(ctx context.Context, ids []string) error {
	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return b.index.Batch(batch)
}

// Search runs a match query over content and filename and returns up to limit
// hits, best first. Options add per-term fuzziness and a document scope.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Result, error) {
	fuzziness := 0
	var documentIDs []string
	if opts != nil {
		fuzziness = opts.Fuzziness
		documentIDs = opts.DocumentIDs
	}

	q := buildQuery(query, fuzziness)
	if len(documentIDs) > 0 {
		q = bleve.NewConjunctionQuery(q, scopeQuery(documentIDs))
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"document_id"}
	results, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}

	out := make([]*Result, 0, len(results.Hits))
	for _, hit := range results.Hits {
		r := &Result{ChunkID: hit.ID, Score: hit.Score}
		if docID, ok := hit.Fields["document_id"].(string); ok {
			r.DocumentID = docID
		}
		out = append(out, r)
	}
	return out, nil
}

// buildQuery returns a match query, or a disjunction of per-term fuzzy
// queries when fuzziness is positive.
func buildQuery(query string, fuzziness int) blevequery.Query {
	if fuzziness <= 0 {
		return bleve.NewMatchQuery(query)
	}
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return bleve.NewMatchQuery(query)
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// scopeQuery matches chunks whose document_id is any of ids.
func scopeQuery(ids []string) blevequery.Query {
	queries := make([]blevequery.Query, 0, len(ids))
	for _, id := range ids {
		tq := bleve.NewTermQuery(id)
		tq.SetField("document_id")
		queries = append(queries, tq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// DocCount returns the number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
