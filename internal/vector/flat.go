// Package vector provides the similarity index at the heart of retrieval: a
// flat, exact, brute-force inner-product index over L2-normalized vectors,
// with copy-rebuild deletion and an atomic on-disk snapshot.
package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ChunkResolver maps a chunk id to its owning document id via the external
// metadata store. ok is false when the chunk is unknown there; such candidates
// are dropped from search results (index/metadata drift is non-fatal).
type ChunkResolver func(ctx context.Context, chunkID string) (documentID string, ok bool)

// Result is a single search hit.
type Result struct {
	ID    string
	Score float64
}

// SearchOptions bounds a search. Scope restricts hits to chunks owned by the
// listed documents; nil or empty means no restriction.
type SearchOptions struct {
	K         int
	Threshold float64
	Scope     []string
}

// IndexStats is a point-in-time size snapshot.
type IndexStats struct {
	Count      int `json:"count"`
	Dimensions int `json:"dimensions"`
}

// FlatIndex holds chunk vectors and their ids as parallel slices: position i
// of vectors corresponds to ids[i], and len(vectors) == len(ids) always. All
// vectors are unit length, so inner product equals cosine similarity. A
// single RWMutex serializes mutation against search: Add and Remove are
// exclusive, searches run concurrently.
type FlatIndex struct {
	dimensions int
	resolver   ChunkResolver
	logger     *zap.Logger

	mu      sync.RWMutex
	ids     []string
	vectors [][]float32
	present map[string]struct{}
}

// Option configures a FlatIndex.
type Option func(*FlatIndex)

// WithResolver sets the chunk-to-document resolver used for scope filtering
// and drift detection during search.
func WithResolver(r ChunkResolver) Option {
	return func(x *FlatIndex) { x.resolver = r }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(x *FlatIndex) { x.logger = logger }
}

// NewFlatIndex creates an empty index with the given fixed dimension.
func NewFlatIndex(dimensions int, opts ...Option) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	x := &FlatIndex{
		dimensions: dimensions,
		logger:     zap.NewNop(),
		ids:        make([]string, 0),
		vectors:    make([][]float32, 0),
		present:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x, nil
}

// Dimensions returns the fixed vector dimension.
func (x *FlatIndex) Dimensions() int {
	return x.dimensions
}

// Add appends the batch in input order, normalizing each vector to unit
// length. The batch is validated in full before any state changes, so a
// dimension mismatch, zero-norm vector, or duplicate id anywhere in the batch
// leaves the index exactly as it was.
func (x *FlatIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	normalized := make([][]float32, len(vectors))
	batch := make(map[string]struct{}, len(ids))
	for i, id := range ids {
		if _, exists := x.present[id]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateID, id)
		}
		if _, exists := batch[id]; exists {
			return fmt.Errorf("%w: %q repeated in batch", ErrDuplicateID, id)
		}
		batch[id] = struct{}{}
		cp, err := normalizedCopy(vectors[i], x.dimensions, i)
		if err != nil {
			return err
		}
		normalized[i] = cp
	}

	for i, id := range ids {
		x.ids = append(x.ids, id)
		x.vectors = append(x.vectors, normalized[i])
		x.present[id] = struct{}{}
	}
	return nil
}

// Search normalizes a copy of query and scans every stored vector by inner
// product (exact, no approximation). The top 2*k raw candidates are ranked
// deterministically (score descending, insertion order on ties), then walked
// applying the threshold, owning-document resolution, and scope filters until
// k results are accepted or the candidates run out. An empty result is
// success, not an error.
func (x *FlatIndex) Search(ctx context.Context, query []float32, opts SearchOptions) ([]*Result, error) {
	if len(query) != x.dimensions {
		return nil, fmt.Errorf("query: %w: got %d, expected %d", ErrDimensionMismatch, len(query), x.dimensions)
	}
	q := make([]float32, x.dimensions)
	copy(q, query)
	if err := Normalize(q); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	if opts.K <= 0 {
		return nil, nil
	}

	var scope map[string]struct{}
	if len(opts.Scope) > 0 {
		scope = make(map[string]struct{}, len(opts.Scope))
		for _, docID := range opts.Scope {
			scope[docID] = struct{}{}
		}
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.ids) == 0 {
		return nil, nil
	}

	scores := make([]float64, len(x.vectors))
	for i, vec := range x.vectors {
		scores[i] = InnerProduct(q, vec)
	}
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		if scores[order[a]] != scores[order[b]] {
			return scores[order[a]] > scores[order[b]]
		}
		return order[a] < order[b]
	})

	// Oversample so threshold and scope filtering can discard candidates
	// without forcing a second scan.
	limit := 2 * opts.K
	if limit > len(order) {
		limit = len(order)
	}

	results := make([]*Result, 0, opts.K)
	for _, pos := range order[:limit] {
		if scores[pos] < opts.Threshold {
			break
		}
		id := x.ids[pos]
		docID := ""
		if x.resolver != nil {
			var ok bool
			docID, ok = x.resolver(ctx, id)
			if !ok {
				x.logger.Debug("skipping unresolvable chunk", zap.String("chunk_id", id))
				continue
			}
		}
		if scope != nil {
			if _, allowed := scope[docID]; !allowed {
				continue
			}
		}
		results = append(results, &Result{ID: id, Score: scores[pos]})
		if len(results) == opts.K {
			break
		}
	}
	return results, nil
}

// Remove drops every entry whose id matches the predicate, preserving the
// relative order of survivors. Fresh slices are built and swapped in whole,
// so a search never observes a partial rebuild. Returns the number removed.
func (x *FlatIndex) Remove(ctx context.Context, match func(id string) bool) int {
	x.mu.Lock()
	defer x.mu.Unlock()

	removed := 0
	newIDs := make([]string, 0, len(x.ids))
	newVectors := make([][]float32, 0, len(x.vectors))
	for i, id := range x.ids {
		if match(id) {
			removed++
			continue
		}
		newIDs = append(newIDs, id)
		newVectors = append(newVectors, x.vectors[i])
	}
	if removed == 0 {
		return 0
	}

	newPresent := make(map[string]struct{}, len(newIDs))
	for _, id := range newIDs {
		newPresent[id] = struct{}{}
	}
	x.ids = newIDs
	x.vectors = newVectors
	x.present = newPresent
	return removed
}

// Stats returns the current entry count and dimension.
func (x *FlatIndex) Stats() IndexStats {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return IndexStats{Count: len(x.ids), Dimensions: x.dimensions}
}

// Size returns the number of vectors in the index.
func (x *FlatIndex) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.ids)
}
