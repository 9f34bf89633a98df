package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tg-reviews-api/internal/domain"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.UserRepo = (*Postgres)(nil)
var _ domain.ErrorRepo = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// UpsertTelegramUser сохраняет или обновляет пользователя после
// успешной авторизации.
func (p *Postgres) UpsertTelegramUser(ctx context.Context, user domain.AuthenticatedUser) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	username := sql.NullString{String: user.Username, Valid: user.Username != ""}
	photoURL := sql.NullString{String: user.PhotoURL, Valid: user.PhotoURL != ""}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO users (telegram_id, first_name, username, photo_url, last_login)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (telegram_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			username = EXCLUDED.username,
			photo_url = EXCLUDED.photo_url,
			last_login = EXCLUDED.last_login`,
		user.ID, user.FirstName, username, photoURL, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("сохранение пользователя: %w", err)
	}
	return nil
}

// SaveReport сохраняет отчёт об ошибке.
func (p *Postgres) SaveReport(ctx context.Context, report domain.ErrorReport) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	contextJSON, err := json.Marshal(report.Context)
	if err != nil {
		return fmt.Errorf("сериализация контекста: %w", err)
	}
	stack := sql.NullString{String: report.Stack, Valid: report.Stack != ""}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO errors (id, message, stack, context, occurred_at, severity)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		report.ID, report.Message, stack, contextJSON, report.Timestamp, string(report.Severity))
	if err != nil {
		return fmt.Errorf("сохранение отчёта: %w", err)
	}
	return nil
}
