// Package vectorindex stores embedded fragments and answers similarity
// queries scoped to one user and session.
package vectorindex

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	ErrIndexUnavailable = errors.New("vector index unavailable")
	ErrUnscoped         = errors.New("vector index filter must include user and session")
	ErrDimension        = errors.New("embedding dimension mismatch")
	ErrInvalidRecord    = errors.New("invalid vector index record")
)

type Metadata struct {
	UserID     string `json:"userId"`
	SessionID  string `json:"sessionId"`
	DocumentID string `json:"documentId"`
	FileName   string `json:"fileName"`
	Page       int    `json:"page"`
	Source     string `json:"source"`
}

type Record struct {
	ID       string
	Content  string
	Vector   []float32
	Metadata Metadata
}

type Match struct {
	ID         string
	Content    string
	Metadata   Metadata
	Similarity float64
}

// Filter is an equality AND over the non-empty fields.
type Filter struct {
	UserID     string
	SessionID  string
	DocumentID string
	Source     string
}

func (f Filter) Scoped() bool {
	return f.UserID != "" && f.SessionID != ""
}

type Index interface {
	// Insert stores all records or none of them.
	Insert(ctx context.Context, records []Record) error
	// Search returns at most k matches by descending dot-product similarity.
	Search(ctx context.Context, vector []float32, filter Filter, k int) ([]Match, error)
	// Delete removes every record matching filter and returns how many were removed.
	Delete(ctx context.Context, filter Filter) (int64, error)
}

func applyFilter(db *gorm.DB, f Filter) *gorm.DB {
	db = db.Where("user_id = ? AND session_id = ?", f.UserID, f.SessionID)
	if f.DocumentID != "" {
		db = db.Where("document_id = ?", f.DocumentID)
	}
	if f.Source != "" {
		db = db.Where("source = ?", f.Source)
	}
	return db
}

func validateRecords(records []Record, dim int) error {
	for i, r := range records {
		if r.Metadata.UserID == "" || r.Metadata.SessionID == "" || r.Metadata.DocumentID == "" {
			return fmt.Errorf("%w: record %d missing user, session or document", ErrInvalidRecord, i)
		}
		if len(r.Vector) == 0 {
			return fmt.Errorf("%w: record %d has no vector", ErrInvalidRecord, i)
		}
		if dim > 0 && len(r.Vector) != dim {
			return fmt.Errorf("%w: record %d has %d, want %d", ErrDimension, i, len(r.Vector), dim)
		}
	}
	return nil
}

func checkQuery(vector []float32, filter Filter, dim int) error {
	if !filter.Scoped() {
		return ErrUnscoped
	}
	if len(vector) == 0 || (dim > 0 && len(vector) != dim) {
		return fmt.Errorf("%w: query has %d, want %d", ErrDimension, len(vector), dim)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrIndexUnavailable, op, err)
}
