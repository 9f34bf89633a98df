package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	AuthAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_attempts_total",
		Help: "Попытки авторизации через Telegram по результату",
	}, []string{"result"})

	RateLimitRejectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limit_rejects_total",
		Help: "Запросы, отклонённые ограничителями",
	}, []string{"limiter"})

	ReviewsCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reviews_cache_total",
		Help: "Обращения к кэшу сообщений по исходу",
	}, []string{"outcome"})

	UpstreamFetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "telegram_fetch_duration_seconds",
		Help:    "Длительность запросов к Telegram API",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	ErrorReportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "error_reports_total",
		Help: "Отчёты об ошибках по уровню важности",
	}, []string{"severity"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		AuthAttemptsTotal,
		RateLimitRejectsTotal,
		ReviewsCacheTotal,
		UpstreamFetchDuration,
		ErrorReportsTotal,
	)
}

// ObserveUpstreamFetch записывает длительность и статус выгрузки из Telegram.
func ObserveUpstreamFetch(start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	UpstreamFetchDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
}
