package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"tg-reviews-api/internal/adapters/repo"
	"tg-reviews-api/internal/adapters/report"
	"tg-reviews-api/internal/adapters/telegram"
	"tg-reviews-api/internal/domain"
	"tg-reviews-api/internal/infra/cache"
	"tg-reviews-api/internal/infra/config"
	"tg-reviews-api/internal/infra/db"
	httpinfra "tg-reviews-api/internal/infra/http"
	"tg-reviews-api/internal/infra/log"
	"tg-reviews-api/internal/infra/metrics"
	"tg-reviews-api/internal/infra/ratelimit"
	"tg-reviews-api/internal/usecase/auth"
	"tg-reviews-api/internal/usecase/reviews"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reporters := report.Multi{report.NewLogReporter(logger)}

	var userRepo domain.UserRepo
	var errRepo domain.ErrorRepo
	if cfg.PGDSN != "" {
		pool, err := db.Connect(cfg.PGDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: нет подключения к БД")
		}
		defer pool.Close()
		pg := repo.NewPostgres(pool)
		userRepo = pg
		errRepo = pg
		reporters = append(reporters, report.NewRepoReporter(pg, logger))
	}

	if cfg.AMQP.URL != "" {
		amqpReporter, err := report.NewAMQPReporter(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
		if err != nil {
			logger.Error().Err(err).Msg("api: RabbitMQ недоступен, отчёты пойдут мимо очереди")
		} else {
			defer amqpReporter.Close()
			reporters = append(reporters, amqpReporter)
		}
	}

	if cfg.Telegram.Token == "" || cfg.Telegram.ChannelID == "" {
		reporters.CaptureMessage(ctx, "отсутствуют TG_BOT_TOKEN или TG_CHANNEL_ID", domain.SeverityCritical, map[string]any{
			"service": "tg-reviews-api",
		})
		logger.Fatal().Msg("api: не задана конфигурация Telegram")
	}

	verifier, err := auth.NewVerifier(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось создать верификатор")
	}
	validator := auth.NewValidator(verifier, reporters, cfg.Auth.TTL)

	var messageCache domain.MessageCache = cache.NewMemory()
	if cfg.RedisAddr != "" {
		messageCache = cache.NewRedis(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	}
	source := telegram.NewClient(cfg.Telegram.Token, cfg.Telegram.ChannelID, logger)
	reviewsService := reviews.NewService(source, messageCache, reporters, logger, cfg.Reviews.CacheTTL, cfg.Reviews.FetchTimeout)

	attempts := ratelimit.NewAttemptLimiter(cfg.Auth.MaxAttempts, cfg.Auth.AttemptWindow)
	bucket := ratelimit.NewTokenBucket(cfg.API.BucketCapacity, cfg.API.RefillWindow)
	go attempts.Janitor(ctx, cfg.Auth.AttemptWindow)
	go bucket.Janitor(ctx, cfg.API.RefillWindow)

	srv := httpinfra.NewServer(logger)
	handlers := httpinfra.NewHandlers(validator, reviewsService, attempts, reporters, userRepo, errRepo, cfg.Telegram.BotName, logger)
	srv.Router.Group(func(api chi.Router) {
		api.Use(httpinfra.CORS(cfg.AppURL))
		api.Use(httpinfra.RateLimit(bucket))
		handlers.Mount(api)
	})

	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("остановка сервиса")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
