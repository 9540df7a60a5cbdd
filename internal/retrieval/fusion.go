package retrieval

import (
	"sort"

	"github.com/hyperjump/shiraberu/internal/keyword"
	"github.com/hyperjump/shiraberu/internal/vector"
)

// Hybrid fusion weights. Both legs contribute equally.
const (
	hybridKeywordWeight  = 0.5
	hybridSemanticWeight = 0.5
)

// FusedHit is a chunk with combined keyword and semantic scores.
type FusedHit struct {
	ChunkID       string
	Score         float64
	KeywordScore  float64
	SemanticScore float64
}

// NormalizeKeywordScores scales keyword scores to [0,1] by the maximum.
// Bleve scores are query-relative, so only the ratio carries meaning.
func NormalizeKeywordScores(hits []*keyword.Result) map[string]float64 {
	if len(hits) == 0 {
		return make(map[string]float64)
	}
	maxScore := hits[0].Score
	for _, h := range hits {
		if h.Score > maxScore {
			maxScore = h.Score
		}
	}
	normalized := make(map[string]float64, len(hits))
	for _, h := range hits {
		if maxScore > 0 {
			normalized[h.ChunkID] = h.Score / maxScore
		} else {
			normalized[h.ChunkID] = 0
		}
	}
	return normalized
}

// SemanticScores maps chunk id to cosine score. Scores are already in [0,1]
// because vectors are normalized at add time.
func SemanticScores(hits []*vector.Result) map[string]float64 {
	scores := make(map[string]float64, len(hits))
	for _, h := range hits {
		scores[h.ID] = h.Score
	}
	return scores
}

// Fuse merges per-chunk keyword and semantic scores with the given weights
// and returns hits sorted by fused score, ties broken by chunk id.
func Fuse(keywordScores, semanticScores map[string]float64, keywordWeight, semanticWeight float64) []*FusedHit {
	merged := make(map[string]*FusedHit, len(keywordScores)+len(semanticScores))
	for id, score := range keywordScores {
		merged[id] = &FusedHit{ChunkID: id, KeywordScore: score}
	}
	for id, score := range semanticScores {
		if hit, ok := merged[id]; ok {
			hit.SemanticScore = score
		} else {
			merged[id] = &FusedHit{ChunkID: id, SemanticScore: score}
		}
	}
	hits := make([]*FusedHit, 0, len(merged))
	for _, hit := range merged {
		hit.Score = keywordWeight*hit.KeywordScore + semanticWeight*hit.SemanticScore
		hits = append(hits, hit)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	return hits
}
