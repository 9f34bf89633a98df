package ratelimit

import (
	"context"
	"sync"
	"time"
)

// staleAfterWindows задаёт, сколько окон простоя переживает ведро до
// удаления уборщиком. Без уборки карты растут неограниченно по числу
// уникальных IP.
const staleAfterWindows = 10

// AttemptLimiter ограничивает попытки по фиксированному окну: не более
// max попыток за window, по истечении окна счётчик начинается заново
// без переноса излишка.
type AttemptLimiter struct {
	mu      sync.Mutex
	buckets map[string]*attemptBucket
	max     int
	window  time.Duration
	now     func() time.Time
}

type attemptBucket struct {
	count       int
	windowStart time.Time
}

// NewAttemptLimiter создаёт ограничитель попыток.
func NewAttemptLimiter(max int, window time.Duration) *AttemptLimiter {
	return &AttemptLimiter{
		buckets: make(map[string]*attemptBucket),
		max:     max,
		window:  window,
		now:     time.Now,
	}
}

// Allow регистрирует попытку и сообщает, разрешена ли она.
func (l *AttemptLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok || now.Sub(b.windowStart) > l.window {
		l.buckets[key] = &attemptBucket{count: 1, windowStart: now}
		return true
	}
	b.count++
	return b.count <= l.max
}

// Janitor периодически удаляет давно не использованные вёдра.
// Блокируется до отмены контекста.
func (l *AttemptLimiter) Janitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *AttemptLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-time.Duration(staleAfterWindows) * l.window)
	for key, b := range l.buckets {
		if b.windowStart.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// TokenBucket ограничивает общий поток запросов: каждому ключу выдаётся
// capacity жетонов, пополнение идёт целыми окнами — неполное окно
// жетонов не даёт.
type TokenBucket struct {
	mu       sync.Mutex
	buckets  map[string]*tokenBucket
	capacity int
	window   time.Duration
	now      func() time.Time
}

type tokenBucket struct {
	tokens     int
	lastRefill time.Time
}

// NewTokenBucket создаёт ограничитель с жетонами.
func NewTokenBucket(capacity int, window time.Duration) *TokenBucket {
	return &TokenBucket{
		buckets:  make(map[string]*tokenBucket),
		capacity: capacity,
		window:   window,
		now:      time.Now,
	}
}

// Allow списывает один жетон, если он есть.
func (l *TokenBucket) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &tokenBucket{tokens: l.capacity - 1, lastRefill: now}
		return true
	}

	elapsed := now.Sub(b.lastRefill)
	refill := int(elapsed/l.window) * l.capacity
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// Janitor периодически удаляет давно не использованные вёдра.
func (l *TokenBucket) Janitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *TokenBucket) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-time.Duration(staleAfterWindows) * l.window)
	for key, b := range l.buckets {
		if b.lastRefill.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}
