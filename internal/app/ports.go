package app

import (
	"context"
	"io"
	"time"

	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/pkg/pdfextract"
)

type HistoryCache interface {
	GetHistory(ctx context.Context, userID, sessionID string) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, userID, sessionID string, messages []model.Message) error
	Invalidate(ctx context.Context, userID, sessionID string) error
	DeleteHistory(ctx context.Context, userID, sessionID string) error
	IsDirty(ctx context.Context, userID, sessionID string) (bool, error)
}

type PurgePublisher interface {
	PublishPurge(ctx context.Context, userID, sessionID string) error
}

type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// Captioner turns a PNG image into searchable text.
type Captioner interface {
	Caption(ctx context.Context, png []byte) (string, error)
}

type Extractor interface {
	Extract(data []byte) (*pdfextract.Result, error)
}

// ExtractorFunc adapts a plain function such as pdfextract.Extract.
type ExtractorFunc func(data []byte) (*pdfextract.Result, error)

func (f ExtractorFunc) Extract(data []byte) (*pdfextract.Result, error) {
	return f(data)
}
