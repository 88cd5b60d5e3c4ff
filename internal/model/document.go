package model

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// Document is the metadata of one uploaded PDF. It is written only after the
// content was extracted and indexed, and never updated afterwards.
type Document struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"documentId"`
	UserID     string    `gorm:"type:varchar(36);not null;index:idx_documents_owner,priority:1" json:"-"`
	SessionID  string    `gorm:"type:varchar(36);not null;index:idx_documents_owner,priority:2" json:"sessionId"`
	FileName   string    `gorm:"size:512;not null" json:"fileName"`
	S3Key      string    `gorm:"size:512;not null" json:"s3Key"`
	Pages      int       `gorm:"not null" json:"pages"`
	UploadedAt time.Time `gorm:"not null;index" json:"uploadedAt"`
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" || d.UserID == "" || d.SessionID == "" || d.FileName == "" || d.S3Key == "" {
		return errors.New("document record missing required fields")
	}
	if d.Pages < 0 {
		return errors.New("document record has negative page count")
	}
	return nil
}
