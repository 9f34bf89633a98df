package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"tg-reviews-api/internal/domain"
)

var (
	// ErrInvalidInput возвращается при нарушении схемы полезной нагрузки.
	ErrInvalidInput = errors.New("некорректные данные авторизации")
	// ErrAuthExpired возвращается для устаревшего auth_date.
	ErrAuthExpired = errors.New("авторизация устарела")
	// ErrInvalidSignature возвращается при несовпадении подписи.
	ErrInvalidSignature = errors.New("подпись недействительна")
	// ErrConfiguration возвращается при отсутствии токена бота.
	ErrConfiguration = errors.New("отсутствует конфигурация Telegram")
)

const hashLength = 64

// Validator проводит полезную нагрузку через три жёстких шага:
// схема, свежесть, подпись. Каждый провал терминален для запроса.
type Validator struct {
	verifier *Verifier
	reporter domain.ErrorReporter
	ttl      time.Duration
	now      func() time.Time
}

// NewValidator создаёт валидатор. ttl — единый настраиваемый срок
// годности auth_date для всех точек входа.
func NewValidator(verifier *Verifier, reporter domain.ErrorReporter, ttl time.Duration) *Validator {
	return &Validator{verifier: verifier, reporter: reporter, ttl: ttl, now: time.Now}
}

// envelope покрывает оба формата тела, которые присылает Login Widget:
// полезную нагрузку как есть и обёртку {"user": {...}}.
type envelope struct {
	User json.RawMessage `json:"user"`
}

// DecodePayload разбирает тело запроса, разворачивая обёртку user при
// её наличии.
func DecodePayload(body []byte) (domain.AuthPayload, error) {
	raw := body
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.User) > 0 {
		raw = env.User
	}
	var p domain.AuthPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.AuthPayload{}, fmt.Errorf("разбор тела: %w", ErrInvalidInput)
	}
	return p, nil
}

// Validate проверяет полезную нагрузку и возвращает кандидата в
// авторизованные пользователи. Имя бота прикрепляет вызывающая сторона.
func (v *Validator) Validate(ctx context.Context, p domain.AuthPayload) (domain.AuthPayload, error) {
	if err := checkSchema(p); err != nil {
		v.reporter.CaptureMessage(ctx, "схема данных авторизации нарушена", domain.SeverityMedium, map[string]any{
			"fields": err.Error(),
		})
		return domain.AuthPayload{}, err
	}

	age := v.now().Unix() - p.AuthDate
	if age > int64(v.ttl.Seconds()) {
		return domain.AuthPayload{}, fmt.Errorf("auth_date старше %s: %w", v.ttl, ErrAuthExpired)
	}

	if err := v.verifier.Verify(p); err != nil {
		v.reporter.CaptureMessage(ctx, "попытка авторизации с недействительной подписью", domain.SeverityHigh, map[string]any{
			"user_id":   p.ID,
			"auth_date": time.Unix(p.AuthDate, 0).UTC().Format(time.RFC3339),
		})
		return domain.AuthPayload{}, err
	}

	return p, nil
}

func checkSchema(p domain.AuthPayload) error {
	var bad []string
	if p.ID <= 0 {
		bad = append(bad, "id")
	}
	if strings.TrimSpace(p.FirstName) == "" {
		bad = append(bad, "first_name")
	}
	if p.AuthDate <= 0 {
		bad = append(bad, "auth_date")
	}
	if !validHash(p.Hash) {
		bad = append(bad, "hash")
	}
	if p.PhotoURL != "" && !validURL(p.PhotoURL) {
		bad = append(bad, "photo_url")
	}
	if len(bad) > 0 {
		return fmt.Errorf("поля %s: %w", strings.Join(bad, ", "), ErrInvalidInput)
	}
	return nil
}

func validHash(hash string) bool {
	if len(hash) != hashLength {
		return false
	}
	for _, r := range hash {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
