package model

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type SessionStatus string

const (
	SessionActive   SessionStatus = "ACTIVE"
	SessionDeleting SessionStatus = "DELETING"
)

// Session is a named, user-owned scope for documents and messages.
// Status DELETING marks a cascade in progress; such sessions are hidden from reads.
type Session struct {
	ID        string        `gorm:"type:varchar(36);primaryKey" json:"sessionId"`
	UserID    string        `gorm:"type:varchar(36);not null;index" json:"-"`
	Name      string        `gorm:"size:256;not null" json:"name"`
	Status    SessionStatus `gorm:"size:16;not null;index" json:"-"`
	CreatedAt time.Time     `json:"createdAt"`
}

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" || s.UserID == "" || s.Name == "" {
		return errors.New("session record missing id, user or name")
	}
	if s.Status == "" {
		s.Status = SessionActive
	}
	return nil
}
