package rag

import (
	"context"
	"log/slog"

	"gopherai-docqa/internal/ai"
	"gopherai-docqa/internal/pkg/sanitize"
)

const (
	FallbackAnswer = "I apologize, but I encountered an error while generating a response. Please try again."
	EmptyAnswer    = "The model returned an empty response."
)

type Generator interface {
	Generate(ctx context.Context, messages []ai.ChatMessage) (string, error)
}

type Answerer struct {
	generator Generator
}

func NewAnswerer(generator Generator) *Answerer {
	return &Answerer{generator: generator}
}

// Answer always returns displayable text: generator failures become
// FallbackAnswer and the output is sanitized.
func (a *Answerer) Answer(ctx context.Context, window []ai.ChatMessage, userTurn string) string {
	messages := make([]ai.ChatMessage, 0, len(window)+1)
	messages = append(messages, window...)
	messages = append(messages, ai.ChatMessage{Role: "user", Content: userTurn})

	out, err := a.generator.Generate(ctx, messages)
	if err != nil {
		slog.Warn("answer generation failed, using fallback", "err", err)
		return FallbackAnswer
	}
	out = sanitize.Text(out)
	if out == "" {
		return EmptyAnswer
	}
	return out
}
