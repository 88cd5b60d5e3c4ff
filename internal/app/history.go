package app

import (
	"context"
	"log/slog"

	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/repository"
)

// conversationHistory reads messages through the Redis cache when it is
// clean and falls back to the database otherwise.
type conversationHistory struct {
	repo  *repository.MessageRepository
	cache HistoryCache
}

func (h conversationHistory) load(ctx context.Context, userID, sessionID string) ([]model.Message, error) {
	if h.cache != nil {
		dirty, err := h.cache.IsDirty(ctx, userID, sessionID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := h.cache.GetHistory(ctx, userID, sessionID); cacheErr == nil && hit {
				return cached, nil
			}
		}
	}

	messages, err := h.repo.ListBySession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if h.cache != nil {
		if dirty, dirtyErr := h.cache.IsDirty(ctx, userID, sessionID); dirtyErr == nil && !dirty {
			_ = h.cache.SetHistory(ctx, userID, sessionID, messages)
		}
	}
	return messages, nil
}

func (h conversationHistory) invalidate(ctx context.Context, userID, sessionID string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Invalidate(ctx, userID, sessionID); err != nil {
		slog.Warn("invalidate history cache failed", "user_id", userID, "session_id", sessionID, "err", err)
	}
}

func (h conversationHistory) drop(ctx context.Context, userID, sessionID string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.DeleteHistory(ctx, userID, sessionID); err != nil {
		slog.Warn("drop history cache failed", "user_id", userID, "session_id", sessionID, "err", err)
	}
}
