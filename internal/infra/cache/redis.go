package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tg-reviews-api/internal/domain"
)

// retention задаёт TTL ключа в Redis. Намного больше срока годности
// слота: свежесть решается по ExpiresAt внутри значения, а долгий TTL
// сохраняет протухшие данные для резерва.
const retention = 7 * 24 * time.Hour

const messagesKey = "reviews:messages"

// Redis — кэш сообщений в Redis для развёртывания в несколько
// экземпляров.
type Redis struct {
	client *redis.Client
}

var _ domain.MessageCache = (*Redis)(nil)

// NewRedis создаёт кэш поверх готового клиента.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Get читает слот. Отсутствие ключа не считается ошибкой.
func (r *Redis) Get(ctx context.Context) (domain.CachedMessages, bool, error) {
	raw, err := r.client.Get(ctx, messagesKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.CachedMessages{}, false, nil
	}
	if err != nil {
		return domain.CachedMessages{}, false, fmt.Errorf("чтение кэша: %w", err)
	}
	var entry domain.CachedMessages
	if err := json.Unmarshal(raw, &entry); err != nil {
		return domain.CachedMessages{}, false, fmt.Errorf("разбор кэша: %w", err)
	}
	return entry, true, nil
}

// Set перезаписывает слот.
func (r *Redis) Set(ctx context.Context, entry domain.CachedMessages) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("сериализация кэша: %w", err)
	}
	if err := r.client.Set(ctx, messagesKey, raw, retention).Err(); err != nil {
		return fmt.Errorf("запись кэша: %w", err)
	}
	return nil
}
