package cache

import (
	"context"
	"testing"
	"time"

	"tg-reviews-api/internal/domain"
)

func TestMemoryKeepsExpiredEntry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, ok, _ := m.Get(ctx); ok {
		t.Fatalf("пустой кэш не должен отдавать слот")
	}

	entry := domain.CachedMessages{
		Messages:  []domain.ChannelMessage{{MessageID: 1, Date: 100, Text: "отзыв"}},
		FetchedAt: time.Now().Add(-time.Hour),
		ExpiresAt: time.Now().Add(-55 * time.Minute),
	}
	if err := m.Set(ctx, entry); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	got, ok, err := m.Get(ctx)
	if err != nil || !ok {
		t.Fatalf("слот должен быть доступен: ok=%v err=%v", ok, err)
	}
	if got.Fresh(time.Now()) {
		t.Fatalf("слот должен считаться протухшим")
	}
	if len(got.Messages) != 1 {
		t.Fatalf("протухший слот должен сохранять сообщения")
	}
}
