package vectorindex

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type vectorRecord struct {
	ID         string          `gorm:"type:varchar(36);primaryKey"`
	UserID     string          `gorm:"type:varchar(36);not null;index:idx_vector_scope,priority:1"`
	SessionID  string          `gorm:"type:varchar(36);not null;index:idx_vector_scope,priority:2"`
	DocumentID string          `gorm:"type:varchar(36);not null;index"`
	FileName   string          `gorm:"size:512"`
	Page       int             `gorm:"not null"`
	Source     string          `gorm:"size:32;not null"`
	Content    string          `gorm:"type:text;not null"`
	Embedding  pgvector.Vector `gorm:"type:vector"`
	CreatedAt  time.Time
}

func (vectorRecord) TableName() string {
	return "embedding_vectors"
}

type vectorMatch struct {
	vectorRecord
	Similarity float64
}

// PGVectorIndex runs the similarity search inside Postgres with the
// negative inner product operator.
type PGVectorIndex struct {
	db  *gorm.DB
	dim int
}

func NewPGVectorIndex(db *gorm.DB, dim int) *PGVectorIndex {
	return &PGVectorIndex{db: db, dim: dim}
}

func (p *PGVectorIndex) Migrate(ctx context.Context) error {
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("create pgvector extension: %w", err)
		}
		if err := tx.AutoMigrate(&vectorRecord{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if p.dim > 0 {
			if err := tx.Exec(fmt.Sprintf("ALTER TABLE embedding_vectors ALTER COLUMN embedding TYPE vector(%d)", p.dim)).Error; err != nil {
				return fmt.Errorf("alter embedding type: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return unavailable("migrate", err)
	}
	return nil
}

func (p *PGVectorIndex) Insert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records, p.dim); err != nil {
		return err
	}
	rows := make([]vectorRecord, 0, len(records))
	for _, r := range records {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		rows = append(rows, vectorRecord{
			ID:         id,
			UserID:     r.Metadata.UserID,
			SessionID:  r.Metadata.SessionID,
			DocumentID: r.Metadata.DocumentID,
			FileName:   r.Metadata.FileName,
			Page:       r.Metadata.Page,
			Source:     r.Metadata.Source,
			Content:    r.Content,
			Embedding:  pgvector.NewVector(r.Vector),
		})
	}
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&rows, 100).Error
	})
	if err != nil {
		return unavailable("insert", err)
	}
	return nil
}

func (p *PGVectorIndex) Search(ctx context.Context, vector []float32, filter Filter, k int) ([]Match, error) {
	if err := checkQuery(vector, filter, p.dim); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Match{}, nil
	}
	vec := pgvector.NewVector(vector)
	var rows []vectorMatch
	if err := applyFilter(p.db.WithContext(ctx).Model(&vectorRecord{}), filter).
		Select("*, (embedding <#> ?) * -1 AS similarity", vec).
		Order(clause.Expr{SQL: "embedding <#> ?", Vars: []any{vec}}).
		Limit(k).
		Scan(&rows).Error; err != nil {
		return nil, unavailable("search", err)
	}
	matches := make([]Match, 0, len(rows))
	for _, row := range rows {
		matches = append(matches, Match{
			ID:      row.ID,
			Content: row.Content,
			Metadata: Metadata{
				UserID:     row.UserID,
				SessionID:  row.SessionID,
				DocumentID: row.DocumentID,
				FileName:   row.FileName,
				Page:       row.Page,
				Source:     row.Source,
			},
			Similarity: row.Similarity,
		})
	}
	return matches, nil
}

func (p *PGVectorIndex) Delete(ctx context.Context, filter Filter) (int64, error) {
	if !filter.Scoped() {
		return 0, ErrUnscoped
	}
	res := applyFilter(p.db.WithContext(ctx), filter).Delete(&vectorRecord{})
	if res.Error != nil {
		return 0, unavailable("delete", res.Error)
	}
	return res.RowsAffected, nil
}
