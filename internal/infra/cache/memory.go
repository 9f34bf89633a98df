package cache

import (
	"context"
	"sync"

	"tg-reviews-api/internal/domain"
)

// Memory — однослотовый кэш сообщений в памяти процесса. Протухший
// слот не очищается: он нужен как резерв при недоступности Telegram.
type Memory struct {
	mu    sync.RWMutex
	entry domain.CachedMessages
	has   bool
}

var _ domain.MessageCache = (*Memory)(nil)

// NewMemory создаёт пустой кэш.
func NewMemory() *Memory {
	return &Memory{}
}

// Get возвращает слот и признак его наличия.
func (m *Memory) Get(context.Context) (domain.CachedMessages, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entry, m.has, nil
}

// Set перезаписывает слот.
func (m *Memory) Set(_ context.Context, entry domain.CachedMessages) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry = entry
	m.has = true
	return nil
}
