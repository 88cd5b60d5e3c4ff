package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"gopherai-docqa/internal/model"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, message *model.Message) error {
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return fmt.Errorf("create message failed: %w", err)
	}
	return nil
}

// ListBySession returns the session's messages oldest first.
func (r *MessageRepository) ListBySession(ctx context.Context, userID, sessionID string) ([]model.Message, error) {
	var messages []model.Message
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Order("created_at ASC").Order("id ASC").
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	return messages, nil
}

func (r *MessageRepository) DeleteBySession(ctx context.Context, userID, sessionID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Delete(&model.Message{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete messages by session failed: %w", res.Error)
	}
	return res.RowsAffected, nil
}
