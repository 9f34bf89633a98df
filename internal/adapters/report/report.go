package report

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-reviews-api/internal/domain"
	"tg-reviews-api/internal/infra/metrics"
)

// newReport собирает отчёт из пойманной ошибки или сообщения.
// Вызывающая сторона отвечает за то, что в fields нет секретов.
func newReport(message string, severity domain.Severity, fields map[string]any) domain.ErrorReport {
	return domain.ErrorReport{
		ID:        uuid.NewString(),
		Message:   message,
		Context:   fields,
		Timestamp: time.Now().UTC(),
		Severity:  severity,
		Source:    "server",
	}
}

// LogReporter пишет отчёты в структурированный лог. Всегда доступен и
// служит нижней границей надёжности: остальные приёмники могут отпасть.
type LogReporter struct {
	log zerolog.Logger
}

var _ domain.ErrorReporter = (*LogReporter)(nil)

// NewLogReporter создаёт лог-репортер.
func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{log: logger}
}

// CaptureException фиксирует пойманную ошибку.
func (r *LogReporter) CaptureException(_ context.Context, err error, fields map[string]any) {
	metrics.ErrorReportsTotal.WithLabelValues(string(domain.SeverityMedium)).Inc()
	r.log.Error().Err(err).Fields(fields).Msg("перехвачена ошибка")
}

// CaptureMessage фиксирует событие с заданным уровнем важности.
func (r *LogReporter) CaptureMessage(_ context.Context, message string, severity domain.Severity, fields map[string]any) {
	metrics.ErrorReportsTotal.WithLabelValues(string(severity)).Inc()
	event := r.log.Warn()
	switch severity {
	case domain.SeverityLow:
		event = r.log.Info()
	case domain.SeverityHigh, domain.SeverityCritical:
		event = r.log.Error()
	}
	event.Str("severity", string(severity)).Fields(fields).Msg(message)
}

// RepoReporter сохраняет отчёты во внешнее хранилище через ErrorRepo.
// Ошибка сохранения не должна валить запрос, поэтому только логируется.
type RepoReporter struct {
	repo domain.ErrorRepo
	log  zerolog.Logger
}

var _ domain.ErrorReporter = (*RepoReporter)(nil)

// NewRepoReporter создаёт репортер поверх хранилища.
func NewRepoReporter(repo domain.ErrorRepo, logger zerolog.Logger) *RepoReporter {
	return &RepoReporter{repo: repo, log: logger}
}

func (r *RepoReporter) save(ctx context.Context, rep domain.ErrorReport) {
	if err := r.repo.SaveReport(ctx, rep); err != nil {
		r.log.Error().Err(err).Msg("не удалось сохранить отчёт об ошибке")
	}
}

// CaptureException сохраняет пойманную ошибку.
func (r *RepoReporter) CaptureException(ctx context.Context, err error, fields map[string]any) {
	r.save(ctx, newReport(err.Error(), domain.SeverityMedium, fields))
}

// CaptureMessage сохраняет событие.
func (r *RepoReporter) CaptureMessage(ctx context.Context, message string, severity domain.Severity, fields map[string]any) {
	r.save(ctx, newReport(message, severity, fields))
}

// Multi рассылает отчёт всем приёмникам по очереди.
type Multi []domain.ErrorReporter

var _ domain.ErrorReporter = (Multi)(nil)

// CaptureException передаёт ошибку всем приёмникам.
func (m Multi) CaptureException(ctx context.Context, err error, fields map[string]any) {
	for _, r := range m {
		r.CaptureException(ctx, err, fields)
	}
}

// CaptureMessage передаёт событие всем приёмникам.
func (m Multi) CaptureMessage(ctx context.Context, message string, severity domain.Severity, fields map[string]any) {
	for _, r := range m {
		r.CaptureMessage(ctx, message, severity, fields)
	}
}
