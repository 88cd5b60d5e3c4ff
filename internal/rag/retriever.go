// Package rag assembles retrieval-augmented prompts: it retrieves scoped
// fragments, formats them as context, and produces a grounded answer.
package rag

import (
	"context"
	"log/slog"
	"strings"

	"gopherai-docqa/internal/vectorindex"
)

const DefaultTopK = 5

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Fragment struct {
	Content    string               `json:"content"`
	Metadata   vectorindex.Metadata `json:"metadata"`
	Similarity float64              `json:"similarity"`
}

type Retriever struct {
	embedder Embedder
	index    vectorindex.Index
	topK     int
}

func NewRetriever(embedder Embedder, index vectorindex.Index, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{embedder: embedder, index: index, topK: topK}
}

// Retrieve returns the k fragments of the user's session most similar to
// query, in index order. A failed query embedding yields no fragments and no
// error; an index failure is returned.
func (r *Retriever) Retrieve(ctx context.Context, query, userID, sessionID string, k int) ([]Fragment, error) {
	if k <= 0 {
		k = r.topK
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []Fragment{}, nil
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		slog.Warn("query embedding failed, continuing without context",
			"user_id", userID, "session_id", sessionID, "err", err)
		return []Fragment{}, nil
	}

	matches, err := r.index.Search(ctx, vec, vectorindex.Filter{UserID: userID, SessionID: sessionID}, k)
	if err != nil {
		return nil, err
	}
	fragments := make([]Fragment, 0, len(matches))
	for _, m := range matches {
		fragments = append(fragments, Fragment{Content: m.Content, Metadata: m.Metadata, Similarity: m.Similarity})
	}
	return fragments, nil
}
