package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"

	"gopherai-docqa/internal/cache"
	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/vectorindex"
)

func seedSession(t *testing.T, f *fixture) *model.Session {
	t.Helper()
	ctx := context.Background()
	session := f.createSession(t, "u1")
	if _, err := f.documentSvc.Upload(ctx, UploadInput{UserID: "u1", SessionID: session.ID, FileName: "r.pdf", Data: pdfBytes}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := f.chatSvc.Query(ctx, QueryInput{UserID: "u1", SessionID: session.ID, Message: "hi"}); err != nil {
		t.Fatalf("query: %v", err)
	}
	return session
}

func assertSessionEmpty(t *testing.T, f *fixture, sessionID string) {
	t.Helper()
	ctx := context.Background()
	docs, _ := f.documents.ListBySession(ctx, "u1", sessionID)
	msgs, _ := f.messages.ListBySession(ctx, "u1", sessionID)
	vecs, _ := f.index.Search(ctx, []float32{1, 0, 0}, vectorindex.Filter{UserID: "u1", SessionID: sessionID}, 100)
	if len(docs) != 0 || len(msgs) != 0 || len(vecs) != 0 {
		t.Fatalf("leftovers: %d documents, %d messages, %d vectors", len(docs), len(msgs), len(vecs))
	}
}

func TestSessionCRUD(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, twoPageResult())

	s, err := f.sessionSvc.Create(ctx, "u1", "  ")
	if err != nil || s.Name != defaultSessionName || s.Status != model.SessionActive {
		t.Fatalf("create = %+v, %v", s, err)
	}
	if _, err := f.sessionSvc.Create(ctx, "u1", strings.Repeat("x", maxSessionName+1)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for long name, got %v", err)
	}

	renamed, err := f.sessionSvc.Rename(ctx, "u1", s.ID, "Contracts")
	if err != nil || renamed.Name != "Contracts" {
		t.Fatalf("rename = %+v, %v", renamed, err)
	}
	if _, err := f.sessionSvc.Rename(ctx, "u2", s.ID, "Mine now"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found for other user rename, got %v", err)
	}

	list, err := f.sessionSvc.List(ctx, "u1")
	if err != nil || len(list) != 1 {
		t.Fatalf("list = %v, %v", list, err)
	}
	if other, _ := f.sessionSvc.List(ctx, "u2"); len(other) != 0 {
		t.Fatalf("sessions leaked to another user")
	}
	if _, err := f.sessionSvc.Get(ctx, "u2", s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteCascadesEverything(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, twoPageResult())
	session := seedSession(t, f)
	keep := seedSession(t, f)

	res, err := f.sessionSvc.Delete(ctx, "u1", session.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !res.Complete || res.DocumentsDeleted != 1 || res.EmbeddingsDeleted != 4 || res.MessagesDeleted != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	assertSessionEmpty(t, f, session.ID)
	if _, err := f.sessionSvc.Get(ctx, "u1", session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("deleted session still readable: %v", err)
	}
	if len(f.purger.calls) != 1 || f.purger.calls[0] != "u1/"+session.ID {
		t.Fatalf("purge not published: %v", f.purger.calls)
	}

	docs, _ := f.sessionSvc.ListDocuments(ctx, "u1", keep.ID)
	if len(docs) != 1 {
		t.Fatalf("other session affected by delete")
	}

	if _, err := f.sessionSvc.Delete(ctx, "u1", session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("second delete should be not found, got %v", err)
	}
}

func TestDeleteByNonOwnerIsNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, twoPageResult())
	session := seedSession(t, f)

	if _, err := f.sessionSvc.Delete(ctx, "u2", session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	got, err := f.sessionSvc.Get(ctx, "u1", session.ID)
	if err != nil || got.Status != model.SessionActive {
		t.Fatalf("owner's session changed: %+v, %v", got, err)
	}
}

func TestDeletePartialFailureThenResume(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, twoPageResult())
	session := seedSession(t, f)

	f.index.failDelete = true
	res, err := f.sessionSvc.Delete(ctx, "u1", session.ID)
	if !errors.Is(err, ErrCascadeIncomplete) || !errors.Is(err, vectorindex.ErrIndexUnavailable) {
		t.Fatalf("expected incomplete cascade, got %v", err)
	}
	if res == nil || res.Complete || res.DocumentsDeleted != 1 || res.MessagesDeleted != 2 || res.EmbeddingsDeleted != 0 {
		t.Fatalf("unexpected partial result %+v", res)
	}
	if _, err := f.sessionSvc.Get(ctx, "u1", session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("DELETING session must be hidden, got %v", err)
	}
	if len(f.purger.calls) != 0 {
		t.Fatalf("purge must wait for a complete cascade")
	}

	f.index.failDelete = false
	res, err = f.sessionSvc.Delete(ctx, "u1", session.ID)
	if err != nil || !res.Complete {
		t.Fatalf("resume = %+v, %v", res, err)
	}
	if res.EmbeddingsDeleted != 4 || res.DocumentsDeleted != 0 || res.MessagesDeleted != 0 {
		t.Fatalf("resumed run should only remove leftovers: %+v", res)
	}
	assertSessionEmpty(t, f, session.ID)
}

func TestResumePendingDeletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, twoPageResult())
	session := seedSession(t, f)

	if err := f.sessions.MarkDeleting(ctx, session.ID, "u1"); err != nil {
		t.Fatalf("mark deleting: %v", err)
	}
	n, err := f.sessionSvc.ResumePendingDeletes(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ResumePendingDeletes = %d, %v", n, err)
	}
	assertSessionEmpty(t, f, session.ID)
	if pending, _ := f.sessions.ListDeleting(ctx); len(pending) != 0 {
		t.Fatalf("sessions still pending: %d", len(pending))
	}
}

func TestListMessagesThroughCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, twoPageResult())
	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	historyCache := cache.NewHistoryCache(client, time.Minute, time.Second)
	f.sessionSvc = NewSessionService(f.sessions, f.documents, f.messages, f.index, historyCache, f.purger)
	f.chatSvc.history = conversationHistory{repo: f.messages, cache: historyCache}

	session := f.createSession(t, "u1")
	if _, err := f.chatSvc.Query(ctx, QueryInput{UserID: "u1", SessionID: session.ID, Message: "first"}); err != nil {
		t.Fatalf("query: %v", err)
	}
	mr.FastForward(2 * time.Second)

	msgs, err := f.sessionSvc.ListMessages(ctx, "u1", session.ID)
	if err != nil || len(msgs) != 2 {
		t.Fatalf("ListMessages = %d, %v", len(msgs), err)
	}
	if _, hit, _ := historyCache.GetHistory(ctx, "u1", session.ID); !hit {
		t.Fatalf("history should be cached after a clean read")
	}

	if _, err := f.chatSvc.Query(ctx, QueryInput{UserID: "u1", SessionID: session.ID, Message: "second"}); err != nil {
		t.Fatalf("query: %v", err)
	}
	msgs, _ = f.sessionSvc.ListMessages(ctx, "u1", session.ID)
	if len(msgs) != 4 || msgs[2].Content != "second" {
		t.Fatalf("stale history returned: %+v", msgs)
	}

	if _, err := f.sessionSvc.Delete(ctx, "u1", session.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, hit, _ := historyCache.GetHistory(ctx, "u1", session.ID); hit {
		t.Fatalf("history cache must be dropped with the session")
	}
}
