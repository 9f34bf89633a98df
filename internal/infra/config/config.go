package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервиса.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`
	AppURL string `envconfig:"APP_URL"`

	Telegram struct {
		Token     string `envconfig:"TG_BOT_TOKEN"`
		BotName   string `envconfig:"TG_BOT_NAME"`
		BotID     string `envconfig:"TG_BOT_ID"`
		ChannelID string `envconfig:"TG_CHANNEL_ID"`
	} `envconfig:""`

	Auth struct {
		TTL           time.Duration `envconfig:"AUTH_TTL" default:"24h"`
		MaxAttempts   int           `envconfig:"AUTH_MAX_ATTEMPTS" default:"5"`
		AttemptWindow time.Duration `envconfig:"AUTH_ATTEMPT_WINDOW" default:"1m"`
	} `envconfig:""`

	API struct {
		BucketCapacity int           `envconfig:"API_BUCKET_CAPACITY" default:"50"`
		RefillWindow   time.Duration `envconfig:"API_REFILL_WINDOW" default:"1m"`
	} `envconfig:""`

	Reviews struct {
		CacheTTL     time.Duration `envconfig:"REVIEWS_CACHE_TTL" default:"5m"`
		FetchTimeout time.Duration `envconfig:"REVIEWS_FETCH_TIMEOUT" default:"5s"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	AMQP struct {
		URL      string `envconfig:"AMQP_URL"`
		Exchange string `envconfig:"AMQP_ERRORS_EXCHANGE" default:"site_errors"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
