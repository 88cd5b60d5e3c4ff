package app

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/pkg/pdfextract"
	"gopherai-docqa/internal/pkg/sanitize"
	"gopherai-docqa/internal/pkg/textsplit"
	"gopherai-docqa/internal/rag"
	"gopherai-docqa/internal/repository"
	"gopherai-docqa/internal/storage"
	"gopherai-docqa/internal/vectorindex"
)

const (
	DefaultMaxUploadBytes   = 50 << 20
	defaultEmbedConcurrency = 4
	defaultPresignTTL       = time.Hour
)

type DocumentOptions struct {
	MaxUploadBytes   int64
	EmbedConcurrency int
	PresignTTL       time.Duration
}

type DocumentService struct {
	sessionRepo  *repository.SessionRepository
	documentRepo *repository.DocumentRepository
	extractor    Extractor
	store        ObjectStore
	captioner    Captioner
	embedder     rag.Embedder
	index        vectorindex.Index
	splitter     *textsplit.Splitter
	opts         DocumentOptions
}

func NewDocumentService(
	sessionRepo *repository.SessionRepository,
	documentRepo *repository.DocumentRepository,
	extractor Extractor,
	store ObjectStore,
	captioner Captioner,
	embedder rag.Embedder,
	index vectorindex.Index,
	splitter *textsplit.Splitter,
	opts DocumentOptions,
) *DocumentService {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.EmbedConcurrency <= 0 {
		opts.EmbedConcurrency = defaultEmbedConcurrency
	}
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = defaultPresignTTL
	}
	return &DocumentService{
		sessionRepo:  sessionRepo,
		documentRepo: documentRepo,
		extractor:    extractor,
		store:        store,
		captioner:    captioner,
		embedder:     embedder,
		index:        index,
		splitter:     splitter,
		opts:         opts,
	}
}

type UploadInput struct {
	UserID    string
	SessionID string
	FileName  string
	Data      []byte
}

type UploadResult struct {
	Document      *model.Document
	ChunksIndexed int
}

type piece struct {
	content string
	page    int
	source  string
}

func (s *DocumentService) validateUpload(in UploadInput) (string, error) {
	name := filepath.Base(strings.TrimSpace(in.FileName))
	if in.UserID == "" || in.SessionID == "" || name == "" || name == "." || name == "/" {
		return "", ErrInvalidInput
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return "", ErrNotPDF
	}
	if len(in.Data) == 0 {
		return "", ErrEmptyFile
	}
	if int64(len(in.Data)) > s.opts.MaxUploadBytes {
		return "", ErrFileTooLarge
	}
	return name, nil
}

// Upload runs extract, store, caption, chunk, embed and index, then writes
// the document record. Chunks whose embedding fails are skipped. Nothing is
// searchable until the whole batch is inserted, and a cancelled request is
// abandoned before insertion.
func (s *DocumentService) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	fileName, err := s.validateUpload(in)
	if err != nil {
		return nil, err
	}
	session, err := s.sessionRepo.GetByIDAndUserID(ctx, in.SessionID, in.UserID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	extracted, err := s.extractor.Extract(in.Data)
	if err != nil {
		return nil, err
	}

	docID := uuid.NewString()
	key := storage.DocumentKey(in.UserID, in.SessionID, docID, fileName)
	if err := s.store.Put(ctx, key, bytes.NewReader(in.Data), int64(len(in.Data)), "application/pdf"); err != nil {
		return nil, fmt.Errorf("store document failed: %w", err)
	}
	log := slog.With("user_id", in.UserID, "session_id", in.SessionID, "document_id", docID)

	pieces := s.collectPieces(ctx, log, extracted)
	records := s.embedPieces(ctx, log, pieces, vectorindex.Metadata{
		UserID:     in.UserID,
		SessionID:  in.SessionID,
		DocumentID: docID,
		FileName:   fileName,
	})

	if err := ctx.Err(); err != nil {
		s.discardObject(log, key)
		return nil, err
	}
	// The session may have been deleted while this upload was running.
	if err := s.requireSession(ctx, in); err != nil {
		s.discardObject(log, key)
		return nil, err
	}
	if err := s.index.Insert(ctx, records); err != nil {
		s.discardObject(log, key)
		return nil, err
	}

	doc := &model.Document{
		ID:         docID,
		UserID:     in.UserID,
		SessionID:  in.SessionID,
		FileName:   fileName,
		S3Key:      key,
		Pages:      extracted.TotalPages,
		UploadedAt: time.Now().UTC(),
	}
	if err := s.documentRepo.Create(ctx, doc); err != nil {
		s.rollback(ctx, log, doc, false)
		return nil, err
	}
	// A cascade that ran between Insert and Create missed these rows.
	if err := s.requireSession(ctx, in); err != nil {
		s.rollback(ctx, log, doc, true)
		return nil, err
	}

	log.Info("document indexed", "pages", extracted.TotalPages, "pieces", len(pieces), "chunks_indexed", len(records))
	return &UploadResult{Document: doc, ChunksIndexed: len(records)}, nil
}

// collectPieces chunks page text and captions images. An image that cannot
// be captioned is skipped.
func (s *DocumentService) collectPieces(ctx context.Context, log *slog.Logger, res *pdfextract.Result) []piece {
	var pieces []piece
	for _, page := range res.Texts {
		for _, chunk := range s.splitter.Split(page.Content) {
			pieces = append(pieces, piece{content: chunk, page: page.Page, source: pdfextract.SourceText})
		}
	}
	if s.captioner == nil {
		return pieces
	}
	for _, img := range res.Images {
		caption, err := s.captioner.Caption(ctx, img.PNG)
		if err != nil {
			log.Warn("image caption failed, skipping image", "page", img.Page, "image_index", img.ImageIndex, "err", err)
			continue
		}
		caption = sanitize.Text(caption)
		if caption == "" {
			continue
		}
		pieces = append(pieces, piece{content: caption, page: img.Page, source: pdfextract.SourceImageCaption})
	}
	return pieces
}

// embedPieces embeds with bounded fan-out and keeps the input order. Failed
// embeddings are dropped.
func (s *DocumentService) embedPieces(ctx context.Context, log *slog.Logger, pieces []piece, meta vectorindex.Metadata) []vectorindex.Record {
	vectors := make([][]float32, len(pieces))
	var g errgroup.Group
	g.SetLimit(s.opts.EmbedConcurrency)
	for i := range pieces {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			vec, err := s.embedder.Embed(ctx, pieces[i].content)
			if err != nil {
				log.Warn("chunk embedding failed, skipping chunk", "page", pieces[i].page, "source", pieces[i].source, "err", err)
				return nil
			}
			vectors[i] = vec
			return nil
		})
	}
	_ = g.Wait()

	records := make([]vectorindex.Record, 0, len(pieces))
	for i, p := range pieces {
		if vectors[i] == nil {
			continue
		}
		m := meta
		m.Page = p.page
		m.Source = p.source
		records = append(records, vectorindex.Record{
			ID:       uuid.NewString(),
			Content:  p.content,
			Vector:   vectors[i],
			Metadata: m,
		})
	}
	return records
}

func (s *DocumentService) requireSession(ctx context.Context, in UploadInput) error {
	session, err := s.sessionRepo.GetByIDAndUserID(ctx, in.SessionID, in.UserID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	return nil
}

// rollback undoes the writes of a failed upload. The document row is only
// removed when created is set.
func (s *DocumentService) rollback(ctx context.Context, log *slog.Logger, doc *model.Document, created bool) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if _, err := s.index.Delete(cleanupCtx, vectorindex.Filter{
		UserID: doc.UserID, SessionID: doc.SessionID, DocumentID: doc.ID,
	}); err != nil {
		log.Error("remove embeddings of failed upload", "err", err)
	}
	if created {
		if _, err := s.documentRepo.DeleteByIDAndUserID(cleanupCtx, doc.ID, doc.UserID); err != nil {
			log.Error("remove document record of failed upload", "err", err)
		}
	}
	s.discardObject(log, doc.S3Key)
}

func (s *DocumentService) discardObject(log *slog.Logger, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.Delete(ctx, key); err != nil {
		log.Warn("remove stored object of failed upload", "key", key, "err", err)
	}
}

// PresignURL returns a temporary download link for a document the user owns.
func (s *DocumentService) PresignURL(ctx context.Context, userID, documentID string) (string, error) {
	if userID == "" || documentID == "" {
		return "", ErrDocumentNotFound
	}
	doc, err := s.documentRepo.GetByIDAndUserID(ctx, documentID, userID)
	if err != nil {
		return "", err
	}
	if doc == nil {
		return "", ErrDocumentNotFound
	}
	session, err := s.sessionRepo.GetByIDAndUserID(ctx, doc.SessionID, userID)
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", ErrDocumentNotFound
	}
	return s.store.PresignGet(ctx, doc.S3Key, s.opts.PresignTTL)
}
