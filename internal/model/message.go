package model

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message IDs are ULIDs, so ordering by (created_at, id) is stable even when
// two turns share a timestamp.
type Message struct {
	ID        string    `gorm:"type:varchar(26);primaryKey" json:"messageId"`
	UserID    string    `gorm:"type:varchar(36);not null;index:idx_messages_owner,priority:1" json:"-"`
	SessionID string    `gorm:"type:varchar(36);not null;index:idx_messages_owner,priority:2" json:"sessionId"`
	Role      string    `gorm:"size:16;not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"not null;index" json:"createdAt"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" || m.UserID == "" || m.SessionID == "" {
		return errors.New("message record missing id, user or session")
	}
	if m.Role != RoleUser && m.Role != RoleAssistant {
		return errors.New("message role must be user or assistant")
	}
	return nil
}
