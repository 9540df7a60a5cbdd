package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/shiraberu/internal/models"
	"github.com/hyperjump/shiraberu/pkg/utils"
)

const (
	explanationMaxTokens = 150
	summaryMaxTokens     = 200
	suggestionMaxTokens  = 150

	explanationResultLimit = 3
	explanationSnippetLen  = 500
	summaryContentLimit    = 2000
	suggestionResultLimit  = 2
	suggestionSnippetLen   = 200
	maxSuggestions         = 3
)

// ExplainResults asks the model why the top results match the query. Only the
// top explanationResultLimit results feed the prompt.
func (c *Client) ExplainResults(ctx context.Context, query string, results []*models.QueryResult) (string, error) {
	if len(results) == 0 {
		return "", nil
	}
	if len(results) > explanationResultLimit {
		results = results[:explanationResultLimit]
	}

	var snippets strings.Builder
	for i, r := range results {
		if i > 0 {
			snippets.WriteString("\n\n")
		}
		fmt.Fprintf(&snippets, "Result %d (Score: %.3f):\n%s", i+1, r.Score, utils.Truncate(r.Content, explanationSnippetLen))
	}

	prompt := fmt.Sprintf(`Based on the following query and search results, provide a brief explanation of why these results are relevant:

Query: %q

Search Results:
%s

Please provide a concise explanation (2-3 sentences) of how these results relate to the query and what key information they contain.`,
		query, snippets.String())

	return c.Generate(ctx, prompt, explanationMaxTokens)
}

// SummarizeDocument produces a 2-3 sentence summary of content, which the
// caller assembles from a document's leading chunks.
func (c *Client) SummarizeDocument(ctx context.Context, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", nil
	}

	prompt := fmt.Sprintf(`Please provide a concise summary of the following document content:

%s

Summary should be 2-3 sentences highlighting the main topics and key information.`,
		utils.Truncate(content, summaryContentLimit))

	return c.Generate(ctx, prompt, summaryMaxTokens)
}

// SuggestQueries proposes up to maxSuggestions follow-up questions based on
// the query and the top results.
func (c *Client) SuggestQueries(ctx context.Context, query string, results []*models.QueryResult) ([]string, error) {
	if len(results) == 0 {
		return nil, nil
	}
	if len(results) > suggestionResultLimit {
		results = results[:suggestionResultLimit]
	}

	samples := make([]string, len(results))
	for i, r := range results {
		samples[i] = utils.Truncate(r.Content, suggestionSnippetLen)
	}

	prompt := fmt.Sprintf(`Based on the original query and the document content found, suggest %d related questions that a user might want to ask:

Original Query: %q

Document Content Sample:
%s

Please provide %d short, specific questions that would help explore this topic further.
Format as a simple list, one question per line.`,
		maxSuggestions, query, strings.Join(samples, "\n"), maxSuggestions)

	text, err := c.Generate(ctx, prompt, suggestionMaxTokens)
	if err != nil {
		return nil, err
	}
	return parseSuggestions(text), nil
}

// parseSuggestions splits the model output into clean question lines, capped
// at maxSuggestions. List markers and numbering are stripped.
func parseSuggestions(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789. )")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}
