package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// EmbeddingConfig holds API settings for text-embedding (OpenAI-compatible).
// Dimensions is sent to the provider so models with a larger native size
// return vectors of exactly this length.
type EmbeddingConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
}

// Embed returns the raw embedding vector for the given text.
func (c *OpenAICompatibleClient) Embed(ctx context.Context, cfg EmbeddingConfig, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: input is empty", ErrEmbedding)
	}

	reqBody := map[string]interface{}{
		"model":           cfg.Model,
		"input":           text,
		"encoding_format": "float",
	}
	if cfg.Dimensions > 0 {
		reqBody["dimensions"] = cfg.Dimensions
	}
	raw, err := c.postJSON(ctx, cfg.BaseURL, cfg.APIKey, "/embeddings", reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parse embedding json failed: %v", ErrEmbedding, err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding in response", ErrEmbedding)
	}
	return parsed.Data[0].Embedding, nil
}

// TextEmbedder produces unit-length vectors of a fixed dimension, suitable
// for dot-product similarity.
type TextEmbedder struct {
	client *OpenAICompatibleClient
	cfg    EmbeddingConfig
}

func NewTextEmbedder(client *OpenAICompatibleClient, cfg EmbeddingConfig) *TextEmbedder {
	return &TextEmbedder{client: client, cfg: cfg}
}

func (e *TextEmbedder) Dimension() int {
	return e.cfg.Dimensions
}

func (e *TextEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.client.Embed(ctx, e.cfg, text)
	if err != nil {
		return nil, err
	}
	if e.cfg.Dimensions > 0 && len(vec) != e.cfg.Dimensions {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", ErrEmbedding, len(vec), e.cfg.Dimensions)
	}
	if !Normalize(vec) {
		return nil, fmt.Errorf("%w: zero or non-finite vector", ErrEmbedding)
	}
	return vec, nil
}

// Normalize scales vec to unit L2 norm in place. It reports false for a
// zero or non-finite vector.
func Normalize(vec []float32) bool {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return false
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return true
}
