package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"gopherai-docqa/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("create session failed: %w", err)
	}
	return nil
}

// ListByUserID returns the user's active sessions, newest first.
func (r *SessionRepository) ListByUserID(ctx context.Context, userID string) ([]model.Session, error) {
	var sessions []model.Session
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.SessionActive).
		Order("created_at DESC").
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions failed: %w", err)
	}
	return sessions, nil
}

// GetByIDAndUserID returns nil when the session does not exist, belongs to
// someone else, or is being deleted.
func (r *SessionRepository) GetByIDAndUserID(ctx context.Context, sessionID, userID string) (*model.Session, error) {
	return r.get(ctx, sessionID, userID, model.SessionActive)
}

// GetForDelete also returns sessions already marked DELETING so an
// interrupted cascade can be resumed.
func (r *SessionRepository) GetForDelete(ctx context.Context, sessionID, userID string) (*model.Session, error) {
	return r.get(ctx, sessionID, userID, model.SessionActive, model.SessionDeleting)
}

func (r *SessionRepository) get(ctx context.Context, sessionID, userID string, statuses ...model.SessionStatus) (*model.Session, error) {
	var session model.Session
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ? AND status IN ?", sessionID, userID, statuses).
		First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

func (r *SessionRepository) Rename(ctx context.Context, sessionID, userID, name string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Session{}).
		Where("id = ? AND user_id = ? AND status = ?", sessionID, userID, model.SessionActive).
		Update("name", name)
	if res.Error != nil {
		return false, fmt.Errorf("rename session failed: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *SessionRepository) MarkDeleting(ctx context.Context, sessionID, userID string) error {
	if err := r.db.WithContext(ctx).Model(&model.Session{}).
		Where("id = ? AND user_id = ?", sessionID, userID).
		Update("status", model.SessionDeleting).Error; err != nil {
		return fmt.Errorf("mark session deleting failed: %w", err)
	}
	return nil
}

// ListDeleting returns every session whose cascade has not finished.
func (r *SessionRepository) ListDeleting(ctx context.Context) ([]model.Session, error) {
	var sessions []model.Session
	if err := r.db.WithContext(ctx).Where("status = ?", model.SessionDeleting).Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list deleting sessions failed: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) DeleteByIDAndUserID(ctx context.Context, sessionID, userID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", sessionID, userID).Delete(&model.Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete session failed: %w", res.Error)
	}
	return res.RowsAffected, nil
}
