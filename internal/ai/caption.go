package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

const captionPrompt = "Describe this image briefly and factually in 2-4 lines. Focus on the main visual elements, objects, text, charts, diagrams, or any important content that would be useful for document search and retrieval."

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type visionMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

// CaptionImage asks a vision-capable chat model to describe a PNG image.
func (c *OpenAICompatibleClient) CaptionImage(ctx context.Context, cfg ChatConfig, png []byte) (string, error) {
	if len(png) == 0 {
		return "", fmt.Errorf("%w: empty image", ErrCaption)
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	reqBody := map[string]interface{}{
		"model": cfg.Model,
		"messages": []visionMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: captionPrompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			},
		}},
		"max_tokens":  cfg.MaxTokens,
		"temperature": cfg.Temperature,
	}
	content, err := c.chatCompletion(ctx, cfg, reqBody)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCaption, err)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w: empty description", ErrCaption)
	}
	return content, nil
}

// ImageCaptioner binds a client to a vision model configuration.
type ImageCaptioner struct {
	client *OpenAICompatibleClient
	cfg    ChatConfig
}

func NewImageCaptioner(client *OpenAICompatibleClient, cfg ChatConfig) *ImageCaptioner {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 200
	}
	return &ImageCaptioner{client: client, cfg: cfg}
}

func (c *ImageCaptioner) Caption(ctx context.Context, png []byte) (string, error) {
	return c.client.CaptionImage(ctx, c.cfg, png)
}
