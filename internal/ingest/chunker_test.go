package ingest

import (
	"reflect"
	"strings"
	"testing"
)

func TestChunker_Chunk_singleSentence(t *testing.T) {
	c := NewChunker(100, 20)
	chunks := c.Chunk("Hello world.")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != "Hello world" {
		t.Errorf("chunk = %q", chunks[0])
	}
}

func TestChunker_Chunk_empty(t *testing.T) {
	c := NewChunker(100, 20)
	if chunks := c.Chunk(""); chunks != nil {
		t.Errorf("empty text should return nil, got %v", chunks)
	}
	if chunks := c.Chunk("   \n\t  "); chunks != nil {
		t.Errorf("whitespace text should return nil, got %v", chunks)
	}
	if chunks := c.Chunk("...!!!???"); chunks != nil {
		t.Errorf("punctuation-only text should return nil, got %v", chunks)
	}
}

func TestChunker_Chunk_splitsWithOverlap(t *testing.T) {
	c := NewChunker(20, 20)
	text := "The quick brown fox jumps. Pack my box with five dozen jugs. Sphinx of black quartz."
	chunks := c.Chunk(text)
	want := []string{
		"The quick brown fox jumps",
		"fox jumps Pack my box with five dozen jugs",
		"dozen jugs Sphinx of black quartz",
	}
	if !reflect.DeepEqual(chunks, want) {
		t.Errorf("chunks = %#v, want %#v", chunks, want)
	}
}

func TestChunker_Chunk_noOverlapBelowTenChars(t *testing.T) {
	// overlap/10 words of overlap: below 10 the seed rounds down to nothing.
	for _, overlap := range []int{0, 5, 9} {
		c := NewChunker(12, overlap)
		chunks := c.Chunk("Alpha beta. Gamma delta. Epsilon zeta.")
		want := []string{"Alpha beta", "Gamma delta", "Epsilon zeta"}
		if !reflect.DeepEqual(chunks, want) {
			t.Errorf("overlap=%d: chunks = %#v, want %#v", overlap, chunks, want)
		}
	}
}

func TestChunker_Chunk_oversizedSentenceEmittedWhole(t *testing.T) {
	c := NewChunker(10, 0)
	chunks := c.Chunk("This sentence is far longer than the chunk limit allows.")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if len(chunks[0]) <= 10 {
		t.Errorf("oversized sentence should be emitted whole, got %q", chunks[0])
	}
}

func TestChunker_Chunk_exactFitBoundary(t *testing.T) {
	// "abcd efgh" + space + "ijkl mnopq" is exactly 20 bytes.
	text := "abcd efgh. ijkl mnopq."
	if got := NewChunker(20, 0).Chunk(text); len(got) != 1 {
		t.Errorf("exact fit should stay one chunk, got %v", got)
	}
	if got := NewChunker(19, 0).Chunk(text); len(got) != 2 {
		t.Errorf("one byte under should split, got %v", got)
	}
}

func TestChunker_Chunk_punctuationRuns(t *testing.T) {
	c := NewChunker(100, 0)
	chunks := c.Chunk("Wait... what?! Really.")
	if len(chunks) != 1 || chunks[0] != "Wait what Really" {
		t.Errorf("chunks = %#v", chunks)
	}
}

func TestChunker_Chunk_coversAllSentences(t *testing.T) {
	c := NewChunker(40, 20)
	text := "One sentence here. Another follows it! A third appears? Then a fourth one. Finally the fifth."
	chunks := c.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for _, sentence := range splitSentences(text) {
		found := false
		for _, ch := range chunks {
			if strings.Contains(ch, sentence) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("sentence %q missing from all chunks", sentence)
		}
	}
}

func TestChunker_Chunk_deterministic(t *testing.T) {
	c := NewChunker(30, 20)
	text := "Reports arrive daily. Numbers are checked twice. Errors get flagged early. Summaries go out at noon."
	first := c.Chunk(text)
	for i := 0; i < 5; i++ {
		if got := c.Chunk(text); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %#v vs %#v", i, got, first)
		}
	}
}
