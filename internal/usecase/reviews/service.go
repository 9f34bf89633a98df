package reviews

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tg-reviews-api/internal/domain"
	"tg-reviews-api/internal/infra/metrics"
)

const overFetch = 10

// Service выгружает сообщения канала с кэшированием и резервом на
// случай недоступности Telegram API.
type Service struct {
	source   domain.MessageSource
	cache    domain.MessageCache
	reporter domain.ErrorReporter
	log      zerolog.Logger
	ttl      time.Duration
	timeout  time.Duration
	now      func() time.Time

	// гарантирует не более одной выгрузки из Telegram одновременно
	mu sync.Mutex
}

// NewService создаёт сервис отзывов. ttl — срок годности кэша,
// timeout — ограничение на запрос к Telegram API.
func NewService(source domain.MessageSource, cache domain.MessageCache, reporter domain.ErrorReporter, logger zerolog.Logger, ttl, timeout time.Duration) *Service {
	return &Service{
		source:   source,
		cache:    cache,
		reporter: reporter,
		log:      logger,
		ttl:      ttl,
		timeout:  timeout,
		now:      time.Now,
	}
}

// List возвращает не более limit последних сообщений канала, новые
// первыми. Свежий кэш с достаточным числом сообщений обслуживается без
// обращения к Telegram. При ошибке выгрузки возвращается даже
// протухший кэш; ошибка доходит до вызывающей стороны только когда
// кэша нет вовсе.
func (s *Service) List(ctx context.Context, limit int) ([]domain.ChannelMessage, error) {
	if entry, ok := s.cachedFresh(ctx, limit); ok {
		metrics.ReviewsCacheTotal.WithLabelValues("hit").Inc()
		return entry.Messages[:limit], nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// параллельный запрос мог обновить кэш, пока мы ждали
	if entry, ok := s.cachedFresh(ctx, limit); ok {
		metrics.ReviewsCacheTotal.WithLabelValues("hit").Inc()
		return entry.Messages[:limit], nil
	}
	metrics.ReviewsCacheTotal.WithLabelValues("miss").Inc()

	now := s.now()
	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	raw, err := s.source.FetchMessages(fetchCtx, limit+overFetch)
	metrics.ObserveUpstreamFetch(start, err)
	if err != nil {
		s.reporter.CaptureException(ctx, err, map[string]any{
			"operation": "reviews_list",
			"limit":     limit,
		})
		if stale, ok := s.cachedAny(ctx); ok {
			metrics.ReviewsCacheTotal.WithLabelValues("stale").Inc()
			s.log.Warn().Err(err).Msg("Telegram недоступен, отдаём кэш")
			return truncate(stale.Messages, limit), nil
		}
		return nil, err
	}

	messages := s.normalize(ctx, raw)
	messages = truncate(messages, limit)

	entry := domain.CachedMessages{
		Messages:  messages,
		FetchedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.cache.Set(ctx, entry); err != nil {
		s.log.Error().Err(err).Msg("не удалось обновить кэш сообщений")
		s.reporter.CaptureException(ctx, err, map[string]any{"operation": "reviews_cache_set"})
	}

	return messages, nil
}

// cachedFresh возвращает слот, если он жив и покрывает запрошенный лимит.
func (s *Service) cachedFresh(ctx context.Context, limit int) (domain.CachedMessages, bool) {
	entry, ok, err := s.cache.Get(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("кэш сообщений недоступен")
		return domain.CachedMessages{}, false
	}
	if !ok || !entry.Fresh(s.now()) || len(entry.Messages) < limit {
		return domain.CachedMessages{}, false
	}
	return entry, true
}

// cachedAny возвращает слот независимо от срока годности.
func (s *Service) cachedAny(ctx context.Context) (domain.CachedMessages, bool) {
	entry, ok, err := s.cache.Get(ctx)
	if err != nil || !ok || len(entry.Messages) == 0 {
		return domain.CachedMessages{}, false
	}
	return entry, true
}

// normalize отбрасывает сообщения без текста и с нарушенными границами
// сущностей, остальные сортирует по дате по убыванию. Каждое отброшенное
// сообщение логируется отдельно, партия целиком не падает.
func (s *Service) normalize(ctx context.Context, raw []domain.ChannelMessage) []domain.ChannelMessage {
	messages := make([]domain.ChannelMessage, 0, len(raw))
	for _, m := range raw {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		if m.MessageID <= 0 || m.Date <= 0 || !m.ValidEntities() {
			s.log.Debug().Int64("message_id", m.MessageID).Msg("сообщение отброшено при валидации")
			s.reporter.CaptureMessage(ctx, "некорректное сообщение из Telegram API", domain.SeverityMedium, map[string]any{
				"message_id": m.MessageID,
			})
			continue
		}
		messages = append(messages, m)
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].Date > messages[j].Date })
	return messages
}

func truncate(messages []domain.ChannelMessage, limit int) []domain.ChannelMessage {
	if len(messages) > limit {
		return messages[:limit]
	}
	return messages
}
