package ingest

import "strings"

// Chunker splits extracted text into bounded-size chunks along sentence
// boundaries, carrying a few words of overlap across each boundary so a
// split never strands a sentence from its context.
type Chunker struct {
	maxSize int
	overlap int
}

// NewChunker creates a chunker. maxSize bounds the chunk length in bytes;
// overlap controls the carried context, overlap/10 words per boundary.
func NewChunker(maxSize, overlap int) *Chunker {
	return &Chunker{
		maxSize: maxSize,
		overlap: overlap,
	}
}

// Chunk splits text into chunks. Sentences are accumulated greedily until
// adding the next one would exceed maxSize, at which point the buffer is
// flushed and the next buffer starts with the tail words of the previous
// chunk. A single sentence longer than maxSize is emitted whole rather
// than truncated. Empty input yields no chunks. Output is deterministic.
func (c *Chunker) Chunk(text string) []string {
	fragments := splitSentences(text)
	if len(fragments) == 0 {
		return nil
	}

	var chunks []string
	var buf string
	for _, frag := range fragments {
		if len(buf)+len(frag)+1 > c.maxSize {
			if buf != "" {
				chunks = append(chunks, buf)
			}
			if seed := c.overlapSeed(buf); seed != "" {
				buf = seed + " " + frag
			} else {
				buf = frag
			}
			continue
		}
		if buf == "" {
			buf = frag
		} else {
			buf += " " + frag
		}
	}
	if buf != "" {
		chunks = append(chunks, buf)
	}
	return chunks
}

// splitSentences splits text on runs of sentence-terminal punctuation and
// returns the trimmed non-empty fragments.
func splitSentences(text string) []string {
	raw := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	fragments := make([]string, 0, len(raw))
	for _, f := range raw {
		f = strings.TrimSpace(f)
		if f != "" {
			fragments = append(fragments, f)
		}
	}
	return fragments
}

// overlapSeed returns the last overlap/10 words of the flushed chunk, or ""
// when the overlap rounds down to zero words.
func (c *Chunker) overlapSeed(flushed string) string {
	n := c.overlap / 10
	if n <= 0 || flushed == "" {
		return ""
	}
	words := strings.Fields(flushed)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}
