package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-reviews-api/internal/domain"
)

var (
	// ErrConfiguration означает отсутствие токена или идентификатора канала.
	ErrConfiguration = errors.New("отсутствует конфигурация Telegram API")
	// ErrUpstream означает, что Telegram вернул ошибку или не-2xx статус.
	ErrUpstream = errors.New("ошибка Telegram API")
	// ErrTimeout означает превышение дедлайна запроса.
	ErrTimeout = errors.New("таймаут запроса к Telegram API")
	// ErrParse означает неожиданный формат ответа.
	ErrParse = errors.New("неожиданный формат ответа Telegram API")
)

const defaultBaseURL = "https://api.telegram.org"

// Client выгружает сообщения канала через Bot API getUpdates.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	channelID  string
	log        zerolog.Logger
}

var _ domain.MessageSource = (*Client)(nil)

// NewClient создаёт клиента Bot API. Пустые token или channelID не
// считаются ошибкой на этапе конструирования: это проверяется при
// каждой выгрузке, чтобы раздеплой без секретов падал предсказуемо.
func NewClient(token, channelID string, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    defaultBaseURL,
		token:      token,
		channelID:  channelID,
		log:        logger,
	}
}

// WithBaseURL подменяет адрес API. Используется в тестах.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = base
	return c
}

// FetchMessages выполняет getUpdates и возвращает сообщения канала без
// фильтрации по содержимому: отбор и валидация — забота вызывающего слоя.
func (c *Client) FetchMessages(ctx context.Context, limit int) ([]domain.ChannelMessage, error) {
	if c.token == "" || c.channelID == "" {
		return nil, ErrConfiguration
	}

	endpoint := fmt.Sprintf("%s/bot%s/getUpdates?chat_id=%s&limit=%d",
		c.baseURL, c.token, url.QueryEscape(c.channelID), limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("getUpdates: %w", ErrTimeout)
		}
		return nil, fmt.Errorf("getUpdates: %w", ErrUpstream)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: статус %d: %s", ErrUpstream, resp.StatusCode, body)
	}

	var apiResp tgbotapi.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("разбор конверта: %w", ErrParse)
	}
	if !apiResp.Ok {
		desc := apiResp.Description
		if desc == "" {
			desc = "неизвестная ошибка"
		}
		return nil, fmt.Errorf("%w: %s", ErrUpstream, desc)
	}

	var updates []tgbotapi.Update
	if err := json.Unmarshal(apiResp.Result, &updates); err != nil {
		return nil, fmt.Errorf("разбор result: %w", ErrParse)
	}

	messages := make([]domain.ChannelMessage, 0, len(updates))
	for _, upd := range updates {
		src := upd.Message
		if src == nil {
			src = upd.ChannelPost
		}
		if src == nil {
			continue
		}
		messages = append(messages, mapMessage(src))
	}
	c.log.Debug().Int("updates", len(updates)).Int("messages", len(messages)).Msg("getUpdates выполнен")
	return messages, nil
}

func mapMessage(m *tgbotapi.Message) domain.ChannelMessage {
	out := domain.ChannelMessage{
		MessageID: int64(m.MessageID),
		Date:      int64(m.Date),
		Text:      m.Text,
	}
	for _, e := range m.Entities {
		out.Entities = append(out.Entities, domain.MessageEntity{
			Type:   e.Type,
			Offset: e.Offset,
			Length: e.Length,
			URL:    e.URL,
		})
	}
	return out
}
