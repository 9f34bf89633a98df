package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-reviews-api/internal/domain"
	"tg-reviews-api/internal/infra/metrics"
	"tg-reviews-api/internal/infra/ratelimit"
	"tg-reviews-api/internal/usecase/auth"
	"tg-reviews-api/internal/usecase/reviews"
)

const (
	maxBodyBytes    = 64 * 1024
	defaultLimit    = 10
	maxLimit        = 50
	reviewsCacheAge = 15 * 60 // секунды
)

// Handlers связывает HTTP-эндпоинты с прикладными сервисами.
type Handlers struct {
	validator *auth.Validator
	reviews   *reviews.Service
	attempts  *ratelimit.AttemptLimiter
	reporter  domain.ErrorReporter
	users     domain.UserRepo // nil, если БД не настроена
	errRepo   domain.ErrorRepo
	botName   string
	log       zerolog.Logger
}

// NewHandlers создаёт обработчики API.
func NewHandlers(validator *auth.Validator, reviewsSvc *reviews.Service, attempts *ratelimit.AttemptLimiter, reporter domain.ErrorReporter, users domain.UserRepo, errRepo domain.ErrorRepo, botName string, logger zerolog.Logger) *Handlers {
	return &Handlers{
		validator: validator,
		reviews:   reviewsSvc,
		attempts:  attempts,
		reporter:  reporter,
		users:     users,
		errRepo:   errRepo,
		botName:   botName,
		log:       logger,
	}
}

// Mount вешает маршруты API на роутер.
func (h *Handlers) Mount(r chi.Router) {
	r.Post("/api/auth/telegram", h.AuthTelegram)
	r.Get("/api/reviews", h.Reviews)
	r.Post("/api/log-error", h.LogError)
}

// AuthTelegram проверяет данные Telegram Login Widget и возвращает
// авторизованного пользователя с именем бота.
func (h *Handlers) AuthTelegram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ip := ClientIP(r)

	if !h.attempts.Allow(ip) {
		metrics.RateLimitRejectsTotal.WithLabelValues("auth").Inc()
		w.Header().Set("Retry-After", "60")
		WriteError(w, http.StatusTooManyRequests, "Too many requests", "Please try again later")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid input", "Failed to read request body")
		return
	}

	payload, err := auth.DecodePayload(body)
	if err != nil {
		metrics.AuthAttemptsTotal.WithLabelValues("invalid_input").Inc()
		WriteError(w, http.StatusBadRequest, "Invalid input", "The provided data does not match the required format")
		return
	}

	validated, err := h.validator.Validate(ctx, payload)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrInvalidInput):
		metrics.AuthAttemptsTotal.WithLabelValues("invalid_input").Inc()
		WriteError(w, http.StatusBadRequest, "Invalid input", "The provided data does not match the required format")
		return
	case errors.Is(err, auth.ErrAuthExpired), errors.Is(err, auth.ErrInvalidSignature):
		metrics.AuthAttemptsTotal.WithLabelValues("rejected").Inc()
		WriteError(w, http.StatusUnauthorized, "Invalid authorization", "Authentication check failed")
		return
	default:
		metrics.AuthAttemptsTotal.WithLabelValues("error").Inc()
		h.reporter.CaptureException(ctx, err, map[string]any{"endpoint": "/api/auth/telegram"})
		WriteError(w, http.StatusInternalServerError, "Authentication failed", "Internal server error")
		return
	}

	metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()
	user := domain.AuthenticatedUser{AuthPayload: validated, BotName: h.botName}

	// сбой сохранения не должен ломать авторизацию
	if h.users != nil {
		if err := h.users.UpsertTelegramUser(ctx, user); err != nil {
			h.log.Error().Err(err).Int64("user_id", user.ID).Msg("не удалось сохранить пользователя")
			h.reporter.CaptureException(ctx, err, map[string]any{
				"operation": "upsert_user",
				"user_id":   user.ID,
			})
		}
	}

	WriteJSON(w, http.StatusOK, user)
}

// reviewItem — сообщение канала, дополненное производными полями для клиента.
type reviewItem struct {
	domain.ChannelMessage
	FormattedDate string `json:"formatted_date"`
	HTML          string `json:"html"`
}

// Reviews возвращает последние сообщения канала с отзывами.
func (h *Handlers) Reviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxLimit {
			WriteError(w, http.StatusBadRequest, "Invalid limit parameter. Must be between 1 and 50.", "")
			return
		}
		limit = parsed
	}

	messages, err := h.reviews.List(ctx, limit)
	if err != nil {
		h.reporter.CaptureException(ctx, err, map[string]any{"endpoint": "/api/reviews", "limit": limit})
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		WriteError(w, http.StatusInternalServerError, "Failed to fetch reviews", "Upstream unavailable")
		return
	}

	items := make([]reviewItem, 0, len(messages))
	for _, m := range messages {
		items = append(items, reviewItem{
			ChannelMessage: m,
			FormattedDate:  time.Unix(m.Date, 0).UTC().Format(time.RFC3339),
			HTML:           reviews.FormatMessage(m.Text, m.Entities),
		})
	}

	w.Header().Set("Cache-Control",
		"public, max-age="+strconv.Itoa(reviewsCacheAge)+", s-maxage="+strconv.Itoa(reviewsCacheAge*2))
	WriteJSON(w, http.StatusOK, items)
}

// logErrorRequest — входной формат приёмника ошибок. Timestamp приходит
// в миллисекундах эпохи, как его шлёт клиентский трекер.
type logErrorRequest struct {
	Message   string          `json:"message"`
	Stack     string          `json:"stack,omitempty"`
	Context   map[string]any  `json:"context,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Severity  domain.Severity `json:"severity"`
}

// LogError принимает отчёт об ошибке от клиента и передаёт его хранилищу.
func (h *Handlers) LogError(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req logErrorRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid input", "Malformed JSON body")
		return
	}
	if req.Message == "" || req.Timestamp <= 0 || !req.Severity.Valid() {
		WriteError(w, http.StatusBadRequest, "Invalid input", "message, timestamp and severity are required")
		return
	}

	report := domain.ErrorReport{
		ID:        uuid.NewString(),
		Message:   req.Message,
		Stack:     req.Stack,
		Context:   req.Context,
		Timestamp: time.UnixMilli(req.Timestamp).UTC(),
		Severity:  req.Severity,
		Source:    "client",
	}

	if h.errRepo != nil {
		if err := h.errRepo.SaveReport(ctx, report); err != nil {
			h.log.Error().Err(err).Msg("не удалось сохранить отчёт клиента")
			WriteError(w, http.StatusInternalServerError, "Failed to log error", "")
			return
		}
	} else {
		h.reporter.CaptureMessage(ctx, report.Message, report.Severity, report.Context)
	}

	WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}
