package domain

import "context"

// ErrorReporter принимает структурированные отчёты об ошибках.
// Реализации не должны блокировать обработку запроса дольше необходимого
// и никогда не получают в контексте секреты (токен бота и т.п.).
type ErrorReporter interface {
	CaptureException(ctx context.Context, err error, fields map[string]any)
	CaptureMessage(ctx context.Context, message string, severity Severity, fields map[string]any)
}

// MessageCache хранит последний успешный результат выгрузки сообщений.
// Протухший слот не удаляется: он остаётся доступным как резерв при
// недоступности Telegram API.
type MessageCache interface {
	Get(ctx context.Context) (CachedMessages, bool, error)
	Set(ctx context.Context, entry CachedMessages) error
}

// MessageSource выгружает сообщения канала из внешнего API.
type MessageSource interface {
	FetchMessages(ctx context.Context, limit int) ([]ChannelMessage, error)
}

// UserRepo сохраняет авторизованных пользователей.
type UserRepo interface {
	UpsertTelegramUser(ctx context.Context, user AuthenticatedUser) error
}

// ErrorRepo сохраняет отчёты об ошибках.
type ErrorRepo interface {
	SaveReport(ctx context.Context, report ErrorReport) error
}
