package rag

import (
	"fmt"
	"strings"

	"gopherai-docqa/internal/ai"
	"gopherai-docqa/internal/model"
)

const (
	NoContextText     = "No relevant information found in the uploaded documents."
	DefaultWindowSize = 10
)

const SystemPrompt = `You are a helpful AI assistant that answers questions based on the provided context from uploaded documents.

Instructions:
1. Use only the information provided in the context to answer questions
2. If the context doesn't contain enough information to answer the question, say so clearly
3. When referencing information, mention the source document and page number when possible
4. Be concise but thorough in your responses
5. If the question is not related to the provided context, politely redirect to document-related queries

Always ground your responses in the provided context and cite your sources.`

// ContextBlock is the formatted retrieval context. Found is false when no
// fragment was retrieved, in which case Text is NoContextText.
type ContextBlock struct {
	Found bool
	Text  string
}

func FormatContext(fragments []Fragment) ContextBlock {
	if len(fragments) == 0 {
		return ContextBlock{Found: false, Text: NoContextText}
	}
	parts := make([]string, 0, len(fragments))
	for i, f := range fragments {
		parts = append(parts, fmt.Sprintf("%d. %s\n[Source: %s, Page %d, %s]",
			i+1, f.Content, f.Metadata.FileName, f.Metadata.Page, f.Metadata.Source))
	}
	return ContextBlock{Found: true, Text: strings.Join(parts, "\n\n")}
}

// BuildConversationWindow keeps the last size stored messages in
// chronological order, drops anything that is not a user or assistant turn
// and prepends the system prompt.
func BuildConversationWindow(history []model.Message, size int) []ai.ChatMessage {
	if size <= 0 {
		size = DefaultWindowSize
	}
	if len(history) > size {
		history = history[len(history)-size:]
	}
	window := make([]ai.ChatMessage, 0, len(history)+1)
	window = append(window, ai.ChatMessage{Role: "system", Content: SystemPrompt})
	for _, m := range history {
		if m.Role != model.RoleUser && m.Role != model.RoleAssistant {
			continue
		}
		window = append(window, ai.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return window
}

func BuildUserTurn(block ContextBlock, question string) string {
	return fmt.Sprintf("Context from uploaded documents:\n%s\n\nQuestion: %s", block.Text, question)
}
