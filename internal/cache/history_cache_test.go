package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"

	"gopherai-docqa/internal/model"
)

func newTestCache(t *testing.T) (*HistoryCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewHistoryCache(client, time.Minute, 5*time.Second), mr
}

func TestHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	if _, ok, err := c.GetHistory(ctx, "u1", "s1"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	msgs := []model.Message{
		{ID: "01A", SessionID: "s1", Role: model.RoleUser, Content: "hi"},
		{ID: "01B", SessionID: "s1", Role: model.RoleAssistant, Content: "hello"},
	}
	if err := c.SetHistory(ctx, "u1", "s1", msgs); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := c.GetHistory(ctx, "u1", "s1")
	if err != nil || !ok || len(got) != 2 || got[1].Content != "hello" {
		t.Fatalf("unexpected cached history: %+v ok=%v err=%v", got, ok, err)
	}
	if _, ok, _ := c.GetHistory(ctx, "u2", "s1"); ok {
		t.Fatalf("history leaked to another user")
	}

	mr.FastForward(2 * time.Minute)
	if _, ok, _ := c.GetHistory(ctx, "u1", "s1"); ok {
		t.Fatalf("expected history to expire")
	}
}

func TestInvalidateMarksDirty(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)
	_ = c.SetHistory(ctx, "u1", "s1", []model.Message{{ID: "01A", Role: model.RoleUser, Content: "hi"}})

	if err := c.Invalidate(ctx, "u1", "s1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := c.GetHistory(ctx, "u1", "s1"); ok {
		t.Fatalf("history should be dropped")
	}
	dirty, err := c.IsDirty(ctx, "u1", "s1")
	if err != nil || !dirty {
		t.Fatalf("expected dirty marker, got %v %v", dirty, err)
	}
	mr.FastForward(6 * time.Second)
	if dirty, _ := c.IsDirty(ctx, "u1", "s1"); dirty {
		t.Fatalf("dirty marker should expire")
	}
}

func TestDeleteHistoryClearsBothKeys(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)
	_ = c.SetHistory(ctx, "u1", "s1", nil)
	_ = c.Invalidate(ctx, "u1", "s1")
	if err := c.DeleteHistory(ctx, "u1", "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if dirty, _ := c.IsDirty(ctx, "u1", "s1"); dirty {
		t.Fatalf("dirty marker survived delete")
	}
}
