package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"tg-reviews-api/internal/domain"
)

// AMQPReporter публикует отчёты в exchange RabbitMQ. Внешний потребитель
// складывает их в долговременное хранилище, этот сервис только транспорт.
type AMQPReporter struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      zerolog.Logger
}

var _ domain.ErrorReporter = (*AMQPReporter)(nil)

// NewAMQPReporter подключается к RabbitMQ и объявляет exchange.
func NewAMQPReporter(amqpURL, exchange string, logger zerolog.Logger) (*AMQPReporter, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("подключение к RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("открытие канала: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("объявление exchange: %w", err)
	}
	return &AMQPReporter{conn: conn, ch: ch, exchange: exchange, log: logger}, nil
}

// Close освобождает канал и соединение.
func (r *AMQPReporter) Close() error {
	if err := r.ch.Close(); err != nil {
		return err
	}
	return r.conn.Close()
}

func (r *AMQPReporter) publish(ctx context.Context, rep domain.ErrorReport) {
	payload, err := json.Marshal(rep)
	if err != nil {
		r.log.Error().Err(err).Msg("сериализация отчёта не удалась")
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err = r.ch.PublishWithContext(pubCtx, r.exchange, "errors."+string(rep.Severity), false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   rep.Timestamp,
		MessageId:   rep.ID,
		Body:        payload,
	})
	if err != nil {
		r.log.Error().Err(err).Msg("публикация отчёта не удалась")
	}
}

// CaptureException публикует пойманную ошибку.
func (r *AMQPReporter) CaptureException(ctx context.Context, err error, fields map[string]any) {
	r.publish(ctx, newReport(err.Error(), domain.SeverityMedium, fields))
}

// CaptureMessage публикует событие.
func (r *AMQPReporter) CaptureMessage(ctx context.Context, message string, severity domain.Severity, fields map[string]any) {
	r.publish(ctx, newReport(message, severity, fields))
}
