package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"tg-reviews-api/internal/domain"
	"tg-reviews-api/internal/infra/ratelimit"
	"tg-reviews-api/internal/usecase/auth"
	"tg-reviews-api/internal/usecase/reviews"
)

type fakeSource struct {
	calls    int
	messages []domain.ChannelMessage
	err      error
}

func (f *fakeSource) FetchMessages(context.Context, int) ([]domain.ChannelMessage, error) {
	f.calls++
	return f.messages, f.err
}

type memCache struct {
	entry domain.CachedMessages
	has   bool
}

func (c *memCache) Get(context.Context) (domain.CachedMessages, bool, error) {
	return c.entry, c.has, nil
}

func (c *memCache) Set(_ context.Context, entry domain.CachedMessages) error {
	c.entry = entry
	c.has = true
	return nil
}

type nopReporter struct{}

func (nopReporter) CaptureException(context.Context, error, map[string]any)                 {}
func (nopReporter) CaptureMessage(context.Context, string, domain.Severity, map[string]any) {}

type recordingUserRepo struct {
	saved []domain.AuthenticatedUser
}

func (r *recordingUserRepo) UpsertTelegramUser(_ context.Context, u domain.AuthenticatedUser) error {
	r.saved = append(r.saved, u)
	return nil
}

type recordingErrorRepo struct {
	reports []domain.ErrorReport
}

func (r *recordingErrorRepo) SaveReport(_ context.Context, rep domain.ErrorReport) error {
	r.reports = append(r.reports, rep)
	return nil
}

const testToken = "123456:ABC-DEF1234ghIkl-zyx57W2v1u123ew11"

type env struct {
	router   chi.Router
	verifier *auth.Verifier
	source   *fakeSource
	users    *recordingUserRepo
	errRepo  *recordingErrorRepo
}

func newEnv(t *testing.T) *env {
	t.Helper()
	verifier, err := auth.NewVerifier(testToken)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	validator := auth.NewValidator(verifier, nopReporter{}, 24*time.Hour)
	source := &fakeSource{messages: []domain.ChannelMessage{
		{MessageID: 1, Date: 100, Text: "первый отзыв"},
		{MessageID: 2, Date: 300, Text: "второй отзыв"},
		{MessageID: 3, Date: 200, Text: "третий отзыв"},
		{MessageID: 4, Date: 400, Text: "четвёртый отзыв"},
	}}
	svc := reviews.NewService(source, &memCache{}, nopReporter{}, zerolog.Nop(), 5*time.Minute, 5*time.Second)
	users := &recordingUserRepo{}
	errRepo := &recordingErrorRepo{}
	h := NewHandlers(validator, svc, ratelimit.NewAttemptLimiter(5, time.Minute), nopReporter{}, users, errRepo, "examplebot", zerolog.Nop())

	r := chi.NewRouter()
	h.Mount(r)
	return &env{router: r, verifier: verifier, source: source, users: users, errRepo: errRepo}
}

func signedBody(t *testing.T, verifier *auth.Verifier) []byte {
	t.Helper()
	p := domain.AuthPayload{ID: 42, FirstName: "Иван", Username: "ivan", AuthDate: time.Now().Unix()}
	p.Hash = verifier.Sign(p)
	body, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	return body
}

func TestAuthTelegramSuccess(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/telegram", bytes.NewReader(signedBody(t, e.verifier)))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.AuthenticatedUser
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if resp.BotName != "examplebot" || resp.ID != 42 {
		t.Fatalf("неверный ответ авторизации: %+v", resp)
	}
	if len(e.users.saved) != 1 {
		t.Fatalf("ожидали сохранение пользователя, сохранено %d", len(e.users.saved))
	}
}

func TestAuthTelegramWrappedUser(t *testing.T) {
	e := newEnv(t)
	wrapped, _ := json.Marshal(map[string]json.RawMessage{"user": signedBody(t, e.verifier)})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/telegram", bytes.NewReader(wrapped))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200 для обёртки user, получили %d", rec.Code)
	}
}

func TestAuthTelegramBadSignature(t *testing.T) {
	e := newEnv(t)
	p := domain.AuthPayload{ID: 42, FirstName: "Иван", AuthDate: time.Now().Unix()}
	p.Hash = e.verifier.Sign(p)
	p.FirstName = "Пётр"
	body, _ := json.Marshal(p)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/telegram", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("ожидали 401, получили %d", rec.Code)
	}
	if len(e.users.saved) != 0 {
		t.Fatalf("пользователь не должен сохраняться при провале подписи")
	}
}

func TestAuthTelegramInvalidInput(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/telegram", bytes.NewReader([]byte(`{"id":0,"first_name":"","auth_date":0,"hash":"xx"}`)))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ожидали 400, получили %d", rec.Code)
	}
}

func TestAuthTelegramRateLimited(t *testing.T) {
	e := newEnv(t)
	var last *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/telegram", bytes.NewReader(signedBody(t, e.verifier)))
		req.Header.Set("X-Forwarded-For", "10.0.0.1")
		last = httptest.NewRecorder()
		e.router.ServeHTTP(last, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("шестая попытка: ожидали 429, получили %d", last.Code)
	}
	if last.Header().Get("Retry-After") != "60" {
		t.Fatalf("ожидали Retry-After: 60, получили %q", last.Header().Get("Retry-After"))
	}
}

func TestReviewsLimitValidation(t *testing.T) {
	e := newEnv(t)
	for _, raw := range []string{"0", "51", "abc"} {
		req := httptest.NewRequest(http.MethodGet, "/api/reviews?limit="+raw, nil)
		rec := httptest.NewRecorder()
		e.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("limit=%s: ожидали 400, получили %d", raw, rec.Code)
		}
	}
}

func TestReviewsReturnsNewestFirst(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/reviews?limit=3", nil)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d: %s", rec.Code, rec.Body.String())
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "public, max-age=900, s-maxage=1800" {
		t.Fatalf("неверный Cache-Control: %q", cc)
	}

	var items []struct {
		MessageID     int64  `json:"message_id"`
		FormattedDate string `json:"formatted_date"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(items) > 3 {
		t.Fatalf("ожидали не более 3 сообщений, получили %d", len(items))
	}
	if items[0].MessageID != 4 || items[1].MessageID != 2 {
		t.Fatalf("ожидали сортировку новые-первыми, получили %+v", items)
	}
	if _, err := time.Parse(time.RFC3339, items[0].FormattedDate); err != nil {
		t.Fatalf("formatted_date не в ISO-8601: %v", err)
	}
}

func TestReviewsUpstreamFailureWithoutCache(t *testing.T) {
	e := newEnv(t)
	e.source.err = context.DeadlineExceeded
	req := httptest.NewRequest(http.MethodGet, "/api/reviews", nil)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("ожидали 500, получили %d", rec.Code)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache, no-store, must-revalidate" {
		t.Fatalf("ожидали запрет кэширования, получили %q", cc)
	}
}

func TestLogError(t *testing.T) {
	e := newEnv(t)
	body := []byte(`{"message":"boom","timestamp":1700000000000,"severity":"high","context":{"page":"/reviews"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/log-error", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d: %s", rec.Code, rec.Body.String())
	}
	if len(e.errRepo.reports) != 1 {
		t.Fatalf("ожидали 1 сохранённый отчёт, получили %d", len(e.errRepo.reports))
	}
	if e.errRepo.reports[0].Severity != domain.SeverityHigh || e.errRepo.reports[0].Source != "client" {
		t.Fatalf("отчёт сохранён неверно: %+v", e.errRepo.reports[0])
	}

	bad := []byte(`{"message":"boom","timestamp":1700000000000,"severity":"fatal"}`)
	req = httptest.NewRequest(http.MethodPost, "/api/log-error", bytes.NewReader(bad))
	rec = httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("неизвестный severity: ожидали 400, получили %d", rec.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := ratelimit.NewTokenBucket(2, time.Minute)
	handler := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/reviews", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("ожидали 200,200,429, получили %v", codes)
	}
}

func TestClientIPFallbacks(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := ClientIP(req); got != "unknown" {
		t.Fatalf("ожидали unknown, получили %q", got)
	}
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	if got := ClientIP(req); got != "1.2.3.4" {
		t.Fatalf("ожидали первый адрес из X-Forwarded-For, получили %q", got)
	}
	req.Header.Set("CF-Connecting-IP", "9.9.9.9")
	if got := ClientIP(req); got != "9.9.9.9" {
		t.Fatalf("заголовок платформы должен иметь приоритет, получили %q", got)
	}
}
