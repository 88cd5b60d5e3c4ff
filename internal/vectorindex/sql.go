package vectorindex

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type embeddingRecord struct {
	ID         string                       `gorm:"type:varchar(36);primaryKey"`
	UserID     string                       `gorm:"type:varchar(36);not null;index:idx_embedding_scope,priority:1"`
	SessionID  string                       `gorm:"type:varchar(36);not null;index:idx_embedding_scope,priority:2"`
	DocumentID string                       `gorm:"type:varchar(36);not null;index"`
	FileName   string                       `gorm:"size:512"`
	Page       int                          `gorm:"not null"`
	Source     string                       `gorm:"size:32;not null"`
	Content    string                       `gorm:"type:text;not null"`
	Embedding  datatypes.JSONSlice[float32] `gorm:"not null"`
	CreatedAt  time.Time
}

func (embeddingRecord) TableName() string {
	return "embedding_records"
}

// SQLIndex keeps vectors as JSON next to their metadata in any gorm dialect
// and scores candidates in process. Filtering happens in SQL, so only the
// requesting session's rows are loaded.
type SQLIndex struct {
	db  *gorm.DB
	dim int
}

func NewSQLIndex(db *gorm.DB, dim int) *SQLIndex {
	return &SQLIndex{db: db, dim: dim}
}

func (s *SQLIndex) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&embeddingRecord{}); err != nil {
		return unavailable("migrate", err)
	}
	return nil
}

func (s *SQLIndex) Insert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records, s.dim); err != nil {
		return err
	}
	rows := make([]embeddingRecord, 0, len(records))
	for _, r := range records {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		rows = append(rows, embeddingRecord{
			ID:         id,
			UserID:     r.Metadata.UserID,
			SessionID:  r.Metadata.SessionID,
			DocumentID: r.Metadata.DocumentID,
			FileName:   r.Metadata.FileName,
			Page:       r.Metadata.Page,
			Source:     r.Metadata.Source,
			Content:    r.Content,
			Embedding:  datatypes.NewJSONSlice(r.Vector),
		})
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&rows, 100).Error
	})
	if err != nil {
		return unavailable("insert", err)
	}
	return nil
}

func (s *SQLIndex) Search(ctx context.Context, vector []float32, filter Filter, k int) ([]Match, error) {
	if err := checkQuery(vector, filter, s.dim); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Match{}, nil
	}

	var rows []embeddingRecord
	if err := applyFilter(s.db.WithContext(ctx).Model(&embeddingRecord{}), filter).
		Order("created_at ASC").Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, unavailable("search", err)
	}

	matches := make([]Match, 0, len(rows))
	for _, row := range rows {
		if len(row.Embedding) != len(vector) {
			continue
		}
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
			Similarity: dot(vector, row.Embedding),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (s *SQLIndex) Delete(ctx context.Context, filter Filter) (int64, error) {
	if !filter.Scoped() {
		return 0, ErrUnscoped
	}
	res := applyFilter(s.db.WithContext(ctx), filter).Delete(&embeddingRecord{})
	if res.Error != nil {
		return 0, unavailable("delete", res.Error)
	}
	return res.RowsAffected, nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
