package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"gopherai-docqa/internal/ai"
	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/pkg/textsplit"
	"gopherai-docqa/internal/rag"
	"gopherai-docqa/internal/repository"
	"gopherai-docqa/internal/vectorindex"
)

const testDim = 3

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.Session{}, &model.Document{}, &model.Message{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  func(text string) bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail != nil && f.fail(text) {
		return nil, ai.ErrEmbedding
	}
	return []float32{1, 0, 0}, nil
}

type fakeCaptioner struct {
	caption string
	err     error
}

func (f *fakeCaptioner) Caption(ctx context.Context, png []byte) (string, error) {
	return f.caption, f.err
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	putErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	b, _ := io.ReadAll(r)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = b
	return nil
}

func (f *fakeStore) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://objects.test/" + key + "?expires=" + expiry.String(), nil
}

func (f *fakeStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type fakeGenerator struct {
	mu       sync.Mutex
	answer   string
	err      error
	requests [][]ai.ChatMessage
	onCall   func()
}

func (g *fakeGenerator) Generate(ctx context.Context, messages []ai.ChatMessage) (string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, messages)
	g.mu.Unlock()
	if g.onCall != nil {
		g.onCall()
	}
	return g.answer, g.err
}

type fakePurger struct {
	calls []string
}

func (p *fakePurger) PublishPurge(ctx context.Context, userID, sessionID string) error {
	p.calls = append(p.calls, userID+"/"+sessionID)
	return nil
}

// flakyIndex fails deletes while failDelete is set. afterInsert runs once
// a successful insert returns.
type flakyIndex struct {
	vectorindex.Index
	failDelete  bool
	failInsert  bool
	afterInsert func()
}

func (f *flakyIndex) Insert(ctx context.Context, records []vectorindex.Record) error {
	if f.failInsert {
		return vectorindex.ErrIndexUnavailable
	}
	if err := f.Index.Insert(ctx, records); err != nil {
		return err
	}
	if f.afterInsert != nil {
		f.afterInsert()
	}
	return nil
}

func (f *flakyIndex) Delete(ctx context.Context, filter vectorindex.Filter) (int64, error) {
	if f.failDelete {
		return 0, vectorindex.ErrIndexUnavailable
	}
	return f.Index.Delete(ctx, filter)
}

type fixture struct {
	db        *gorm.DB
	sessions  *repository.SessionRepository
	documents *repository.DocumentRepository
	messages  *repository.MessageRepository
	index     *flakyIndex
	embedder  *fakeEmbedder
	captioner *fakeCaptioner
	store     *fakeStore
	generator *fakeGenerator
	purger    *fakePurger

	sessionSvc  *SessionService
	documentSvc *DocumentService
	chatSvc     *ChatService
}

func newFixture(t *testing.T, extractor Extractor) *fixture {
	t.Helper()
	db := openTestDB(t)
	sqlIndex := vectorindex.NewSQLIndex(db, testDim)
	if err := sqlIndex.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate index: %v", err)
	}
	splitter, err := textsplit.New(1000, 150)
	if err != nil {
		t.Fatalf("splitter: %v", err)
	}

	f := &fixture{
		db:        db,
		sessions:  repository.NewSessionRepository(db),
		documents: repository.NewDocumentRepository(db),
		messages:  repository.NewMessageRepository(db),
		index:     &flakyIndex{Index: sqlIndex},
		embedder:  &fakeEmbedder{},
		captioner: &fakeCaptioner{caption: "A bar chart comparing quarterly revenue."},
		store:     newFakeStore(),
		generator: &fakeGenerator{answer: "Grounded answer."},
		purger:    &fakePurger{},
	}
	f.sessionSvc = NewSessionService(f.sessions, f.documents, f.messages, f.index, nil, f.purger)
	f.documentSvc = NewDocumentService(f.sessions, f.documents, extractor, f.store, f.captioner,
		f.embedder, f.index, splitter, DocumentOptions{EmbedConcurrency: 3})
	retriever := rag.NewRetriever(f.embedder, f.index, 5)
	f.chatSvc = NewChatService(f.sessions, f.messages, nil, retriever, rag.NewAnswerer(f.generator), 5, 10)
	return f
}

func (f *fixture) createSession(t *testing.T, userID string) *model.Session {
	t.Helper()
	s, err := f.sessionSvc.Create(context.Background(), userID, "Quarterly reports")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return s
}

func longPageText() string {
	words := make([]string, 250)
	for i := range words {
		words[i] = "abcdefghi"
	}
	return strings.Join(words, " ")
}

var errBoom = errors.New("boom")

var pdfBytes = bytes.Repeat([]byte("%PDF-1.4 fake"), 4)
