package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"gopherai-docqa/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

// ListBySession returns the session's documents, most recent upload first.
func (r *DocumentRepository) ListBySession(ctx context.Context, userID, sessionID string) ([]model.Document, error) {
	var docs []model.Document
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Order("uploaded_at DESC").
		Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepository) GetByIDAndUserID(ctx context.Context, id, userID string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

// DeleteBySession removes every document of the session. Running it twice
// returns 0 the second time.
func (r *DocumentRepository) DeleteBySession(ctx context.Context, userID, sessionID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Delete(&model.Document{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete documents by session failed: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *DocumentRepository) DeleteByIDAndUserID(ctx context.Context, id, userID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&model.Document{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete document failed: %w", res.Error)
	}
	return res.RowsAffected, nil
}
