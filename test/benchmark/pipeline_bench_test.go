package benchmark

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/hyperjump/shiraberu/internal/embedding"
	"github.com/hyperjump/shiraberu/internal/ingest"
	"github.com/hyperjump/shiraberu/internal/retrieval"
	"github.com/hyperjump/shiraberu/internal/vector"
)

func BenchmarkFuse(b *testing.B) {
	kw := make(map[string]float64)
	sem := make(map[string]float64)
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("chunk-%d", i)
		kw[id] = float64(i) / 100
		sem[id] = float64(100-i) / 100
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = retrieval.Fuse(kw, sem, 0.5, 0.5)
	}
}

func BenchmarkFlatIndexSearch(b *testing.B) {
	idx, err := vector.NewFlatIndex(384)
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	vecs := make([][]float32, 1000)
	ids := make([]string, 1000)
	for i := 0; i < 1000; i++ {
		vecs[i] = make([]float32, 384)
		vecs[i][0] = float32(i) / 1000
		vecs[i][1] = float32(1000-i) / 1000
		ids[i] = fmt.Sprintf("chunk-%d", i)
	}
	if err := idx.Add(ctx, ids, vecs); err != nil {
		b.Fatal(err)
	}
	query := make([]float32, 384)
	query[0] = 1.0
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Search(ctx, query, vector.SearchOptions{K: 10})
	}
}

func BenchmarkMockEmbedder_Embed(b *testing.B) {
	e := embedding.NewMockEmbedder(384)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "benchmark query text for embedding")
	}
}

func BenchmarkChunker(b *testing.B) {
	var sb strings.Builder
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&sb, "Sentence number %d carries a modest amount of benchmark text. ", i)
	}
	text := sb.String()
	c := ingest.NewChunker(1000, 200)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Chunk(text)
	}
}
