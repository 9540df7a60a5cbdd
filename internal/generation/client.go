// Package generation produces LLM text for result explanations, document
// summaries, and follow-up query suggestions. All callers treat it as
// best-effort: a failure degrades to an absent field, never a failed request.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/shiraberu/internal/gemini"
)

const generationTemperature = 0.3

// Client wraps the generateContent endpoint for a fixed model.
type Client struct {
	api    *gemini.Client
	model  string
	logger *zap.Logger
}

// NewClient creates a generation client for model.
func NewClient(api *gemini.Client, model string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{api: api, model: model, logger: logger}
}

type genContent struct {
	Parts []genPart `json:"parts"`
}

type genPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature"`
}

type generateRequest struct {
	Contents         []genContent     `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content genContent `json:"content"`
	} `json:"candidates"`
}

// Generate sends prompt and returns the first candidate's text, trimmed.
func (c *Client) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	req := generateRequest{
		Contents:         []genContent{{Parts: []genPart{{Text: prompt}}}},
		GenerationConfig: generationConfig{MaxOutputTokens: maxTokens, Temperature: generationTemperature},
	}
	var resp generateResponse
	if err := c.api.Post(ctx, c.model, "generateContent", req, &resp); err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("generate: response has no candidates")
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String()), nil
}
